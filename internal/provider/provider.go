// Package provider implements the adapter registry for upstream providers.
//
// Each provider family registers a factory keyed by name. The registry hands
// out a shared default-keyed adapter per provider plus ephemeral adapters
// bound to a specific sub-provider's credentials.
package provider

import (
	"fmt"
	"slices"
	"sync"
	"time"

	gateway "github.com/ariezmeoww/voidai-backend-sub001/internal"
)

// Factory builds an adapter from a provider configuration.
type Factory func(cfg gateway.ProviderConfiguration) gateway.Adapter

// Registry maps provider names to adapter factories.
// It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	configs   map[string]gateway.ProviderConfiguration
	defaults  map[string]gateway.Adapter
}

// NewRegistry returns an empty, ready-to-use Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		configs:   make(map[string]gateway.ProviderConfiguration),
		defaults:  make(map[string]gateway.Adapter),
	}
}

// Register adds a provider factory with its default configuration.
// It overwrites any previously registered provider with the same name.
func (r *Registry) Register(name string, cfg gateway.ProviderConfiguration, f Factory) {
	r.mu.Lock()
	r.factories[name] = f
	r.configs[name] = cfg
	delete(r.defaults, name) // rebuilt lazily with the new config
	r.mu.Unlock()
}

// Get returns the shared default-keyed adapter for name.
func (r *Registry) Get(name string) (gateway.Adapter, error) {
	r.mu.RLock()
	if a, ok := r.defaults[name]; ok {
		r.mu.RUnlock()
		return a, nil
	}
	f, ok := r.factories[name]
	cfg := r.configs[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("provider %q not registered", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.defaults[name]; ok {
		return a, nil
	}
	a := f(cfg)
	r.defaults[name] = a
	return a, nil
}

// WithKey builds an ephemeral adapter bound to a specific sub-provider's
// decrypted credential. Sub-provider overrides (base URL, model mapping,
// OAuth endpoints) apply on top of the provider's default configuration.
func (r *Registry) WithKey(name, apiKey string, sub *gateway.SubProvider) (gateway.Adapter, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	cfg := r.configs[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("provider %q not registered", name)
	}

	cfg.APIKey = apiKey
	if sub != nil {
		if sub.BaseURL != "" {
			cfg.BaseURL = sub.BaseURL
		}
		if len(sub.ModelMapping) > 0 {
			cfg.ModelMapping = sub.ModelMapping
		}
		if sub.AuthMode == "oauth" {
			cfg.APIKey = ""
			cfg.OAuthTokenURL = sub.OAuthTokenURL
			cfg.OAuthClientID = sub.OAuthClientID
			cfg.OAuthClientSecret = apiKey
		}
	}
	return f(cfg), nil
}

// ForModel returns the shared adapters whose configuration covers model.
func (r *Registry) ForModel(model string) []gateway.Adapter {
	r.mu.RLock()
	names := make([]string, 0, len(r.factories))
	for name, cfg := range r.configs {
		if slices.Contains(cfg.SupportedModels, model) {
			names = append(names, name)
		}
	}
	r.mu.RUnlock()
	slices.Sort(names)

	adapters := make([]gateway.Adapter, 0, len(names))
	for _, name := range names {
		if a, err := r.Get(name); err == nil {
			adapters = append(adapters, a)
		}
	}
	return adapters
}

// List returns a sorted slice of all registered provider names.
func (r *Registry) List() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	r.mu.RUnlock()
	slices.Sort(names)
	return names
}

// DefaultTimeout applies when a provider configuration leaves Timeout unset.
const DefaultTimeout = 300 * time.Second
