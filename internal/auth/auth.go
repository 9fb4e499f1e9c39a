// Package auth resolves the Authorization header to a gateway user. Two
// credential kinds share the Bearer scheme: vault-encrypted API keys
// (sk-voidai- prefix) and opaque OAuth tokens. A process-wide master key
// yields a synthetic admin identity that bypasses billing.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/maypok86/otter/v2"

	gateway "github.com/ariezmeoww/voidai-backend-sub001/internal"
	"github.com/ariezmeoww/voidai-backend-sub001/internal/secrets"
)

const (
	cacheTTL    = 30 * time.Second // short enough to pick up key revocations promptly
	cacheMaxLen = 10_000           // max concurrent active keys expected per deployment

	touchTimeout = 5 * time.Second
)

// Store is the persistence surface the authenticator reads.
type Store interface {
	GetKeyBySearchHash(ctx context.Context, hash string) (*gateway.APIKey, error)
	TouchKeyUsed(ctx context.Context, id string) error
	GetOAuthToken(ctx context.Context, token string) (*gateway.OAuthToken, error)
	GetUser(ctx context.Context, id string) (*gateway.User, error)
}

// Identity is the outcome of a successful authentication.
type Identity struct {
	User *gateway.User
	// Master is set when the process master key was presented; billing
	// and plan checks are bypassed for such requests.
	Master bool
	// KeyID is the API key used, empty on the OAuth and master paths.
	KeyID string
}

// Service authenticates requests. Resolved API keys are cached in a
// W-TinyLFU cache keyed by search hash.
type Service struct {
	store     Store
	vault     *secrets.Vault
	masterKey string
	cache     *otter.Cache[string, *gateway.User]
	logger    *slog.Logger
	now       func() time.Time
}

// New returns a Service. masterKey may be empty to disable the master path.
func New(store Store, vault *secrets.Vault, masterKey string, logger *slog.Logger) (*Service, error) {
	c, err := otter.New(&otter.Options[string, *gateway.User]{
		MaximumSize:      cacheMaxLen,
		ExpiryCalculator: otter.ExpiryWriting[string, *gateway.User](cacheTTL),
	})
	if err != nil {
		return nil, fmt.Errorf("create auth cache: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     store,
		vault:     vault,
		masterKey: masterKey,
		cache:     c,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Authenticate resolves the request's bearer credential, enforces the
// account and IP checks, and returns the caller's identity.
func (s *Service) Authenticate(ctx context.Context, r *http.Request) (*Identity, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, gateway.ErrMissingAuthHeader
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return nil, gateway.ErrInvalidAuthFormat
	}

	if s.masterKey != "" && subtle.ConstantTimeCompare([]byte(token), []byte(s.masterKey)) == 1 {
		return &Identity{User: masterUser(s.now()), Master: true}, nil
	}

	var id *Identity
	var err error
	if strings.HasPrefix(token, gateway.APIKeyPrefix) {
		id, err = s.resolveAPIKey(ctx, token)
	} else {
		id, err = s.resolveOAuthToken(ctx, token)
	}
	if err != nil {
		return nil, err
	}

	if !id.User.Enabled {
		return nil, gateway.ErrAccountDisabled
	}
	if !id.User.AllowsIP(ClientIP(r)) {
		return nil, gateway.ErrIPAccessDenied
	}
	return id, nil
}

func (s *Service) resolveAPIKey(ctx context.Context, token string) (*Identity, error) {
	hash := s.vault.SearchHash(token)

	if u, ok := s.cache.GetIfPresent(hash); ok {
		return &Identity{User: u}, nil
	}

	key, err := s.store.GetKeyBySearchHash(ctx, hash)
	if err != nil {
		if errors.Is(err, gateway.ErrNotFound) {
			return nil, gateway.ErrInvalidKey
		}
		return nil, fmt.Errorf("key lookup: %w", err)
	}
	if !key.IsActive {
		return nil, gateway.ErrInvalidKey
	}

	// The search hash narrowed the row; the decrypted plaintext is the
	// actual credential check.
	plaintext, err := s.vault.Decrypt(key.Encrypted, key.Salt)
	if err != nil {
		return nil, gateway.ErrInvalidKey
	}
	if subtle.ConstantTimeCompare([]byte(plaintext), []byte(token)) != 1 {
		return nil, gateway.ErrInvalidKey
	}

	u, err := s.store.GetUser(ctx, key.UserID)
	if err != nil {
		if errors.Is(err, gateway.ErrNotFound) {
			return nil, gateway.ErrInvalidKey
		}
		return nil, fmt.Errorf("user lookup: %w", err)
	}

	s.cache.Set(hash, u)

	// Touch last-used off the request path.
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), touchTimeout)
		defer cancel()
		if err := s.store.TouchKeyUsed(ctx, key.ID); err != nil {
			s.logger.LogAttrs(ctx, slog.LevelWarn, "touch key failed",
				slog.String("key_id", key.ID),
				slog.String("error", err.Error()),
			)
		}
	}()

	return &Identity{User: u, KeyID: key.ID}, nil
}

func (s *Service) resolveOAuthToken(ctx context.Context, token string) (*Identity, error) {
	t, err := s.store.GetOAuthToken(ctx, token)
	if err != nil {
		if errors.Is(err, gateway.ErrNotFound) {
			return nil, gateway.ErrInvalidOAuthToken
		}
		return nil, fmt.Errorf("oauth token lookup: %w", err)
	}
	if t.Expired(s.now()) {
		return nil, gateway.ErrInvalidOAuthToken
	}

	u, err := s.store.GetUser(ctx, t.UserID)
	if err != nil {
		if errors.Is(err, gateway.ErrNotFound) {
			return nil, gateway.ErrInvalidOAuthToken
		}
		return nil, fmt.Errorf("user lookup: %w", err)
	}
	return &Identity{User: u}, nil
}

// InvalidateKey drops a cached key resolution after admin mutations.
func (s *Service) InvalidateKey(rawKey string) {
	s.cache.Invalidate(s.vault.SearchHash(rawKey))
}

// masterUser is the synthetic identity behind the master admin key.
func masterUser(now time.Time) *gateway.User {
	return &gateway.User{
		ID:        "master",
		Name:      "master",
		Plan:      gateway.PlanAdmin,
		Enabled:   true,
		Credits:   gateway.PlanCredits[gateway.PlanAdmin],
		CreatedAt: now,
	}
}

// ClientIP extracts the caller address: CF-Connecting-IP when fronted by
// Cloudflare, else the first X-Forwarded-For hop, else the socket peer.
func ClientIP(r *http.Request) string {
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		return ip
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		ip, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(ip)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
