// Package config provides configuration loading and database bootstrapping.
package config

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	gateway "github.com/ariezmeoww/voidai-backend-sub001/internal"
	"github.com/ariezmeoww/voidai-backend-sub001/internal/secrets"
	"github.com/ariezmeoww/voidai-backend-sub001/internal/storage"
)

// Bootstrap seeds the database from the config file on first run. Existing
// rows are left untouched so operators can manage entities via the admin API
// after the first start.
func Bootstrap(ctx context.Context, cfg *Config, store storage.Store, vault *secrets.Vault) error {
	now := time.Now().UTC()

	for _, p := range cfg.Providers {
		existing, _ := store.GetProviderByName(ctx, p.Name)
		if existing != nil {
			continue
		}

		caps := make([]gateway.Capability, 0, len(p.Capabilities))
		for _, c := range p.Capabilities {
			caps = append(caps, gateway.Capability(c))
		}
		prov := &gateway.Provider{
			ID:                uuid.Must(uuid.NewV7()).String(),
			Name:              p.Name,
			BaseURL:           p.BaseURL,
			TimeoutMs:         max(5000, p.TimeoutMs),
			Priority:          p.Priority,
			IsActive:          p.IsEnabled(),
			NeedsSubProviders: p.RequiresSubProviders(),
			SupportedModels:   p.Models,
			Capabilities:      caps,
			CreatedAt:         now,
		}
		if err := store.CreateProvider(ctx, prov); err != nil {
			return fmt.Errorf("bootstrap provider %q: %w", p.Name, err)
		}

		for _, sp := range p.SubProviders {
			sub := &gateway.SubProvider{
				ID:            uuid.Must(uuid.NewV7()).String(),
				ProviderID:    prov.ID,
				Name:          sp.Name,
				AuthMode:      "api_key",
				BaseURL:       sp.BaseURL,
				Priority:      sp.Priority,
				Weight:        max(1, sp.Weight),
				IsEnabled:     sp.IsEnabled(),
				RPM:           sp.RPM,
				RPH:           sp.RPH,
				TPM:           sp.TPM,
				MaxConcurrent: sp.MaxConcurrent,
				ModelMapping:  sp.ModelMapping,
				CreatedAt:     now,
			}
			if sp.OAuthTokenURL != "" {
				sub.AuthMode = "oauth"
				sub.OAuthTokenURL = sp.OAuthTokenURL
				sub.OAuthClientID = sp.OAuthClientID
			}
			secret := sp.APIKey
			if sub.AuthMode == "oauth" {
				secret = sp.OAuthClientSecret
			}
			if secret != "" {
				enc, salt, err := vault.Encrypt(secret)
				if err != nil {
					return fmt.Errorf("bootstrap sub-provider %q: %w", sp.Name, err)
				}
				sub.EncryptedAPIKey = enc
				sub.Salt = salt
				sub.Algorithm = secrets.Algorithm
			}
			if err := store.CreateSubProvider(ctx, sub); err != nil {
				return fmt.Errorf("bootstrap sub-provider %q: %w", sp.Name, err)
			}
		}
		slog.Info("bootstrapped provider", "name", p.Name, "sub_providers", len(p.SubProviders))
	}

	for _, u := range cfg.Users {
		if err := bootstrapUser(ctx, u, store, vault, now); err != nil {
			return err
		}
	}

	return nil
}

func bootstrapUser(ctx context.Context, u UserEntry, store storage.Store, vault *secrets.Vault, now time.Time) error {
	id := u.ID
	if id == "" {
		id = uuid.Must(uuid.NewV7()).String()
	}
	existing, _ := store.GetUser(ctx, id)
	if existing != nil {
		return nil
	}

	plan := gateway.Plan(u.Plan)
	if !plan.Valid() {
		plan = gateway.PlanFree
	}
	credits := u.Credits
	if credits == 0 {
		credits = gateway.PlanCredits[plan]
	}
	user := &gateway.User{
		ID:               id,
		Name:             u.Name,
		Plan:             plan,
		Enabled:          true,
		Credits:          credits,
		CreditsLastReset: now,
		IPWhitelist:      u.IPWhitelist,
		CreatedAt:        now,
	}
	if err := store.CreateUser(ctx, user); err != nil {
		return fmt.Errorf("bootstrap user %q: %w", u.Name, err)
	}

	if u.APIKey != "" {
		enc, salt, err := vault.Encrypt(u.APIKey)
		if err != nil {
			return fmt.Errorf("bootstrap key for %q: %w", u.Name, err)
		}
		key := &gateway.APIKey{
			ID:         uuid.Must(uuid.NewV7()).String(),
			UserID:     id,
			Name:       "bootstrap",
			SearchHash: vault.SearchHash(u.APIKey),
			Encrypted:  enc,
			Salt:       salt,
			Algorithm:  secrets.Algorithm,
			IsActive:   true,
			CreatedAt:  now,
		}
		if err := store.CreateKey(ctx, key); err != nil {
			return fmt.Errorf("bootstrap key for %q: %w", u.Name, err)
		}
	}
	slog.Info("bootstrapped user", "name", u.Name, "plan", string(plan))
	return nil
}
