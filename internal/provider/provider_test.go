package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	gateway "github.com/ariezmeoww/voidai-backend-sub001/internal"
)

// stubAdapter records the configuration it was built with.
type stubAdapter struct {
	Unsupported
	cfg gateway.ProviderConfiguration
}

func (s *stubAdapter) Name() string                       { return s.cfg.Name }
func (s *stubAdapter) Capabilities() []gateway.Capability { return s.cfg.Capabilities }

func stubFactory(cfg gateway.ProviderConfiguration) gateway.Adapter {
	return &stubAdapter{cfg: cfg}
}

func testConfig(name string, models ...string) gateway.ProviderConfiguration {
	return gateway.ProviderConfiguration{
		Name:            name,
		APIKey:          "default-key",
		BaseURL:         "https://" + name + ".example/v1",
		Timeout:         30 * time.Second,
		SupportedModels: models,
		Capabilities:    []gateway.Capability{gateway.CapChat},
	}
}

func TestRegistryGetShared(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Register("openai", testConfig("openai", "gpt-4o"), stubFactory)

	a1, err := r.Get("openai")
	if err != nil {
		t.Fatal(err)
	}
	a2, err := r.Get("openai")
	if err != nil {
		t.Fatal(err)
	}
	if a1 != a2 {
		t.Error("Get should return the same shared adapter")
	}

	if _, err := r.Get("nope"); err == nil {
		t.Error("Get unknown provider should fail")
	}
}

func TestRegistryWithKey(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Register("openai", testConfig("openai", "gpt-4o"), stubFactory)

	sub := &gateway.SubProvider{
		ID:           "sp1",
		BaseURL:      "https://alt.example/v1",
		ModelMapping: map[string]string{"gpt-4o": "gpt-4o-2024"},
	}
	a, err := r.WithKey("openai", "sk-sub-key", sub)
	if err != nil {
		t.Fatal(err)
	}
	cfg := a.(*stubAdapter).cfg
	if cfg.APIKey != "sk-sub-key" {
		t.Errorf("APIKey = %q", cfg.APIKey)
	}
	if cfg.BaseURL != "https://alt.example/v1" {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
	if cfg.MappedModel("gpt-4o") != "gpt-4o-2024" {
		t.Errorf("MappedModel = %q", cfg.MappedModel("gpt-4o"))
	}

	// Default config must stay untouched.
	shared, _ := r.Get("openai")
	if shared.(*stubAdapter).cfg.APIKey != "default-key" {
		t.Error("WithKey mutated the default configuration")
	}
}

func TestRegistryWithKeyOAuth(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Register("openai", testConfig("openai", "gpt-4o"), stubFactory)

	sub := &gateway.SubProvider{
		ID:            "sp2",
		AuthMode:      "oauth",
		OAuthTokenURL: "https://idp.example/token",
		OAuthClientID: "client-1",
	}
	a, err := r.WithKey("openai", "client-secret", sub)
	if err != nil {
		t.Fatal(err)
	}
	cfg := a.(*stubAdapter).cfg
	if cfg.APIKey != "" || cfg.OAuthClientSecret != "client-secret" || cfg.OAuthTokenURL != "https://idp.example/token" {
		t.Errorf("oauth config = %+v", cfg)
	}
}

func TestRegistryForModel(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Register("openai", testConfig("openai", "gpt-4o", "gpt-4o-mini"), stubFactory)
	r.Register("deepinfra", testConfig("deepinfra", "gpt-4o-mini"), stubFactory)
	r.Register("anthropic", testConfig("anthropic", "claude-sonnet-4-5"), stubFactory)

	got := r.ForModel("gpt-4o-mini")
	if len(got) != 2 {
		t.Fatalf("ForModel = %d adapters, want 2", len(got))
	}
	if got[0].Name() != "deepinfra" || got[1].Name() != "openai" {
		t.Errorf("ForModel order = %q, %q", got[0].Name(), got[1].Name())
	}

	if got := r.ForModel("unknown-model"); len(got) != 0 {
		t.Errorf("ForModel unknown = %d adapters, want 0", len(got))
	}
}

func TestUnsupportedOperations(t *testing.T) {
	t.Parallel()

	a := &stubAdapter{cfg: testConfig("openai")}
	ctx := context.Background()

	if _, err := a.CreateVideo(ctx, &gateway.VideoCreateRequest{}); !errors.Is(err, gateway.ErrUnsupportedOperation) {
		t.Errorf("CreateVideo err = %v, want ErrUnsupportedOperation", err)
	}
	if _, err := a.TextToSpeech(ctx, &gateway.SpeechRequest{}); !errors.Is(err, gateway.ErrUnsupportedOperation) {
		t.Errorf("TextToSpeech err = %v, want ErrUnsupportedOperation", err)
	}
	if err := a.DeleteVideo(ctx, "vid"); !errors.Is(err, gateway.ErrUnsupportedOperation) {
		t.Errorf("DeleteVideo err = %v, want ErrUnsupportedOperation", err)
	}
}
