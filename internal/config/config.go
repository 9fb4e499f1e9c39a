// Package config handles YAML configuration loading with environment variable expansion.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"go.yaml.in/yaml/v3"
)

// Config is the top-level gateway configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Cache     CacheConfig     `yaml:"cache"`
	Security  SecurityConfig  `yaml:"security"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Discounts DiscountConfig  `yaml:"discounts"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
	Providers []ProviderEntry `yaml:"providers"`
	Users     []UserEntry     `yaml:"users"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"` // file path or ":memory:"
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	// MasterAdminKey grants a synthetic admin identity and bypasses billing.
	// Usually supplied via ${MASTER_ADMIN_KEY}.
	MasterAdminKey string `yaml:"master_admin_key"`
	// MasterSecret is the encryption root for stored credentials.
	MasterSecret string `yaml:"master_secret"`
}

// RateLimitConfig holds edge rate limiting settings.
type RateLimitConfig struct {
	RequestsPerWindow int           `yaml:"requests_per_window"` // 0 = unlimited
	Window            time.Duration `yaml:"window"`
}

// CacheConfig holds TTL cache settings.
type CacheConfig struct {
	MaxSize    int           `yaml:"max_size"`
	DefaultTTL time.Duration `yaml:"default_ttl"`
}

// SecurityConfig controls prompt content analysis.
type SecurityConfig struct {
	Enabled            bool   `yaml:"enabled"`
	ModerationProvider string `yaml:"moderation_provider"`
	ModerationModel    string `yaml:"moderation_model"`
	// ModerationAPIKey authenticates the scanner's own upstream calls,
	// independent of the sub-provider key pool. Usually ${MODERATION_API_KEY}.
	ModerationAPIKey string `yaml:"moderation_api_key"`
}

// DispatchConfig tunes the request dispatch pipeline.
type DispatchConfig struct {
	MaxRetries      int           `yaml:"max_retries"`       // chat/responses/images/etc.
	VideoMaxRetries int           `yaml:"video_max_retries"` // videos retry harder
	UpstreamTimeout time.Duration `yaml:"upstream_timeout"`
	StreamStall     time.Duration `yaml:"stream_stall"` // no chunk for this long = timeout
	KeepAlive       time.Duration `yaml:"keep_alive"`   // SSE comment frame interval
}

// DiscountConfig controls the rotating discount engine.
type DiscountConfig struct {
	Enabled      bool          `yaml:"enabled"`
	TTL          time.Duration `yaml:"ttl"`
	RotationHour int           `yaml:"rotation_hour"` // local hour in Location
	Location     string        `yaml:"location"`      // IANA zone for the rotation clock
}

// TelemetryConfig holds observability settings.
type TelemetryConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// TracingConfig controls OpenTelemetry tracing.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Endpoint   string  `yaml:"endpoint"`    // OTLP gRPC endpoint
	SampleRate float64 `yaml:"sample_rate"` // 0.0 to 1.0
}

// LoggingConfig controls slog output.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	Dir   string `yaml:"dir"`   // empty = stderr only
}

// ProviderEntry is a provider definition in the config file.
type ProviderEntry struct {
	Name              string             `yaml:"name"`
	Protocol          string             `yaml:"protocol"` // "openai", "anthropic", "tools302"
	BaseURL           string             `yaml:"base_url"`
	Models            []string           `yaml:"models"`
	Capabilities      []string           `yaml:"capabilities"`
	Priority          int                `yaml:"priority"`
	TimeoutMs         int                `yaml:"timeout_ms"`
	CDNURL            string             `yaml:"cdn_url"` // asset re-hosting base for aggregators
	Enabled           *bool              `yaml:"enabled"`
	NeedsSubProviders *bool              `yaml:"needs_sub_providers"`
	SubProviders      []SubProviderEntry `yaml:"sub_providers"`
}

// IsEnabled reports whether the provider is enabled (defaults to true when nil).
func (p ProviderEntry) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// RequiresSubProviders defaults to true: a provider without keyed accounts is
// the exception, not the rule.
func (p ProviderEntry) RequiresSubProviders() bool {
	return p.NeedsSubProviders == nil || *p.NeedsSubProviders
}

// ResolvedProtocol returns Protocol if set, otherwise falls back to Name.
func (p ProviderEntry) ResolvedProtocol() string {
	if p.Protocol != "" {
		return p.Protocol
	}
	return p.Name
}

// SubProviderEntry is one API-key-bearing upstream account.
type SubProviderEntry struct {
	Name          string            `yaml:"name"`
	APIKey        string            `yaml:"api_key"` // plaintext in config, encrypted on bootstrap
	BaseURL       string            `yaml:"base_url"`
	Priority      int               `yaml:"priority"`
	Weight        int               `yaml:"weight"`
	Enabled       *bool             `yaml:"enabled"`
	RPM           int               `yaml:"rpm"`
	RPH           int               `yaml:"rph"`
	TPM           int               `yaml:"tpm"`
	MaxConcurrent int               `yaml:"max_concurrent"`
	ModelMapping  map[string]string `yaml:"model_mapping"`

	// OAuth client-credentials upstream auth; used instead of api_key.
	OAuthTokenURL     string `yaml:"oauth_token_url"`
	OAuthClientID     string `yaml:"oauth_client_id"`
	OAuthClientSecret string `yaml:"oauth_client_secret"`
}

// IsEnabled reports whether the sub-provider is enabled (defaults to true).
func (sp SubProviderEntry) IsEnabled() bool {
	return sp.Enabled == nil || *sp.Enabled
}

// UserEntry seeds a user (and optionally an API key) on first run.
type UserEntry struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Plan        string   `yaml:"plan"`
	Credits     int64    `yaml:"credits"`
	IPWhitelist []string `yaml:"ip_whitelist"`
	APIKey      string   `yaml:"api_key"` // plaintext, encrypted on bootstrap
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnv replaces ${VAR} patterns with environment variable values.
func expandEnv(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := string(match[2 : len(match)-1])
		if val, ok := os.LookupEnv(varName); ok {
			return []byte(val)
		}
		return match
	})
}

// Load reads and parses a YAML config file, expanding environment variables.
// Well-known environment variables (PORT, HOST, DATABASE_URL, LOG_LEVEL,
// MASTER_ADMIN_KEY, LOGS_DIR) fill any setting the file leaves empty.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	data = expandEnv(data)

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(cfg)
	return cfg, nil
}

// defaults returns a Config with baseline values before the file is applied.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    0, // streaming responses manage their own deadlines
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{DSN: "voidai.db"},
		RateLimit: RateLimitConfig{
			RequestsPerWindow: 100,
			Window:            time.Minute,
		},
		Cache: CacheConfig{
			MaxSize:    10_000,
			DefaultTTL: 5 * time.Minute,
		},
		Security: SecurityConfig{
			Enabled:            true,
			ModerationProvider: "openai",
			ModerationModel:    "omni-moderation-latest",
		},
		Dispatch: DispatchConfig{
			MaxRetries:      3,
			VideoMaxRetries: 5,
			UpstreamTimeout: 300 * time.Second,
			StreamStall:     90 * time.Second,
			KeepAlive:       20 * time.Second,
		},
		Discounts: DiscountConfig{
			Enabled:      true,
			TTL:          24 * time.Hour,
			RotationHour: 18,
			Location:     "Europe/Paris",
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// applyEnv fills empty settings from the well-known environment variables.
func applyEnv(cfg *Config) {
	if host, port := os.Getenv("HOST"), os.Getenv("PORT"); port != "" {
		cfg.Server.Addr = host + ":" + port
	}
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		cfg.Database.DSN = dsn
	}
	if key := os.Getenv("MASTER_ADMIN_KEY"); key != "" && cfg.Auth.MasterAdminKey == "" {
		cfg.Auth.MasterAdminKey = key
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if dir := os.Getenv("LOGS_DIR"); dir != "" && cfg.Logging.Dir == "" {
		cfg.Logging.Dir = dir
	}
}
