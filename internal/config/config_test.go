package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Parallel()

	yaml := `
server:
  addr: ":9090"
  read_timeout: 10s
database:
  dsn: ":memory:"
auth:
  master_secret: test-secret
providers:
  - name: openai
    protocol: openai
    base_url: https://api.openai.com/v1
    models: [gpt-4o, gpt-4o-mini]
    capabilities: [chat, responses, embeddings, moderation]
    priority: 1
    sub_providers:
      - name: openai-main
        api_key: sk-upstream-1
        rpm: 500
        tpm: 200000
        max_concurrent: 32
users:
  - name: admin
    plan: admin
    api_key: sk-voidai-bootstrap
`
	cfg, err := Load(writeConfig(t, yaml))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Addr != ":9090" {
		t.Errorf("addr = %q, want %q", cfg.Server.Addr, ":9090")
	}
	if cfg.Database.DSN != ":memory:" {
		t.Errorf("dsn = %q, want %q", cfg.Database.DSN, ":memory:")
	}
	if len(cfg.Providers) != 1 {
		t.Fatalf("providers count = %d, want 1", len(cfg.Providers))
	}
	p := cfg.Providers[0]
	if p.Name != "openai" || !p.IsEnabled() || !p.RequiresSubProviders() {
		t.Errorf("provider = %+v, want enabled openai with sub-providers", p)
	}
	if len(p.SubProviders) != 1 || p.SubProviders[0].RPM != 500 {
		t.Errorf("sub-providers = %+v", p.SubProviders)
	}
	if len(cfg.Users) != 1 || cfg.Users[0].Plan != "admin" {
		t.Errorf("users = %+v", cfg.Users)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(writeConfig(t, `{}`))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.RateLimit.RequestsPerWindow != 100 || cfg.RateLimit.Window != time.Minute {
		t.Errorf("rate limit defaults = %+v", cfg.RateLimit)
	}
	if cfg.Dispatch.MaxRetries != 3 || cfg.Dispatch.VideoMaxRetries != 5 {
		t.Errorf("dispatch retries = %+v", cfg.Dispatch)
	}
	if cfg.Dispatch.KeepAlive != 20*time.Second {
		t.Errorf("keep alive = %v, want 20s", cfg.Dispatch.KeepAlive)
	}
	if cfg.Discounts.RotationHour != 18 || cfg.Discounts.Location != "Europe/Paris" {
		t.Errorf("discount defaults = %+v", cfg.Discounts)
	}
	if !cfg.Security.Enabled || cfg.Security.ModerationProvider != "openai" {
		t.Errorf("security defaults = %+v", cfg.Security)
	}
}

func TestExpandEnv(t *testing.T) {
	// Cannot use t.Parallel() with t.Setenv.
	t.Setenv("TEST_MASTER_KEY", "mk-secret-123")

	result := expandEnv([]byte("master_admin_key: ${TEST_MASTER_KEY}"))
	if string(result) != "master_admin_key: mk-secret-123" {
		t.Errorf("expandEnv = %q", string(result))
	}

	// Unset vars stay as-is so missing config is visible, not silently empty.
	result = expandEnv([]byte("key: ${TEST_UNSET_VAR_XYZ}"))
	if string(result) != "key: ${TEST_UNSET_VAR_XYZ}" {
		t.Errorf("expandEnv kept = %q", string(result))
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("HOST", "0.0.0.0")
	t.Setenv("DATABASE_URL", "/data/gw.db")
	t.Setenv("MASTER_ADMIN_KEY", "mk-from-env")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(writeConfig(t, `{}`))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Addr != "0.0.0.0:9999" {
		t.Errorf("addr = %q, want 0.0.0.0:9999", cfg.Server.Addr)
	}
	if cfg.Database.DSN != "/data/gw.db" {
		t.Errorf("dsn = %q", cfg.Database.DSN)
	}
	if cfg.Auth.MasterAdminKey != "mk-from-env" {
		t.Errorf("master admin key = %q", cfg.Auth.MasterAdminKey)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %q", cfg.Logging.Level)
	}
}
