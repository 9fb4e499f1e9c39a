// Package gateway defines domain types and interfaces for the VoidAI gateway.
// This package has no project imports -- it is the dependency root.
package gateway

import (
	"context"
	"time"
)

// --- Plans ---

// Plan is a subscription tier. Each user holds exactly one.
type Plan string

const (
	PlanFree        Plan = "free"
	PlanEconomy     Plan = "economy"
	PlanBasic       Plan = "basic"
	PlanPremium     Plan = "premium"
	PlanContributor Plan = "contributor"
	PlanPro         Plan = "pro"
	PlanUltra       Plan = "ultra"
	PlanEnterprise  Plan = "enterprise"
	PlanAdmin       Plan = "admin"
)

// Valid reports whether p is a known plan.
func (p Plan) Valid() bool {
	_, ok := PlanCredits[p]
	return ok
}

// --- Capabilities ---

// Capability identifies an endpoint family a model or adapter serves.
type Capability string

const (
	CapChat       Capability = "chat"
	CapResponses  Capability = "responses"
	CapEmbeddings Capability = "embeddings"
	CapAudio      Capability = "audio"
	CapImages     Capability = "images"
	CapVideos     Capability = "videos"
	CapModeration Capability = "moderation"
)

// --- Users ---

// User is a billed tenant of the gateway.
type User struct {
	ID                    string     `json:"id"`
	Name                  string     `json:"name"`
	Plan                  Plan       `json:"plan"`
	Enabled               bool       `json:"enabled"`
	Credits               int64      `json:"credits"`
	CreditsLastReset      time.Time  `json:"credits_last_reset"`
	IPWhitelist           []string   `json:"ip_whitelist,omitempty"` // empty = all IPs accepted
	MaxConcurrentRequests int        `json:"max_concurrent_requests,omitempty"`
	PlanExpiresAt         *time.Time `json:"plan_expires_at,omitempty"`
	TotalRequests         int64      `json:"total_requests"`
	TotalTokensUsed       int64      `json:"total_tokens_used"`
	TotalCreditsUsed      int64      `json:"total_credits_used"`
	LastRequestAt         *time.Time `json:"last_request_at,omitempty"`
	RPVerified            bool       `json:"rp_verified"`
	RPBonusTokensExpires  *time.Time `json:"rp_bonus_tokens_expires,omitempty"`
	RPDiscountUsed        bool       `json:"rp_discount_used"`
	CreatedAt             time.Time  `json:"created_at"`
}

// IsAdmin reports whether the user may call /admin routes.
func (u *User) IsAdmin() bool { return u.Plan == PlanAdmin }

// AllowsIP checks the caller address against the user's whitelist.
// An empty whitelist accepts every address.
func (u *User) AllowsIP(ip string) bool {
	if len(u.IPWhitelist) == 0 {
		return true
	}
	for _, w := range u.IPWhitelist {
		if w == ip {
			return true
		}
	}
	return false
}

// --- Credentials ---

// APIKeyPrefix is the prefix for all VoidAI API keys.
const APIKeyPrefix = "sk-voidai-"

// APIKey is a stored API key. The raw key is never persisted: lookup is by
// SearchHash, and Encrypted holds the AES-GCM ciphertext of the raw key so
// admin flows can recover the plaintext with the master secret.
type APIKey struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	Name       string     `json:"name"`
	SearchHash string     `json:"-"`
	Encrypted  string     `json:"-"`
	Salt       string     `json:"-"`
	Algorithm  string     `json:"-"` // e.g. "aes-256-gcm"
	IsActive   bool       `json:"is_active"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// OAuthToken is the alternate bearer credential.
type OAuthToken struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Token     string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the token is past its expiry at the given instant.
func (t *OAuthToken) Expired(now time.Time) bool { return !now.Before(t.ExpiresAt) }

// --- Providers ---

// Provider is a configured upstream vendor (openai, anthropic, ...).
// Runtime health and metrics are owned by the balancer, not persisted here.
type Provider struct {
	ID                string       `json:"id"`
	Name              string       `json:"name"`
	BaseURL           string       `json:"base_url"`
	TimeoutMs         int          `json:"timeout_ms"`
	Priority          int          `json:"priority"`
	IsActive          bool         `json:"is_active"`
	NeedsSubProviders bool         `json:"needs_sub_providers"`
	SupportedModels   []string     `json:"supported_models"`
	Capabilities      []Capability `json:"capabilities"`
	CreatedAt         time.Time    `json:"created_at"`
}

// Supports reports whether the provider declares the given capability.
func (p *Provider) Supports(c Capability) bool {
	for _, pc := range p.Capabilities {
		if pc == c {
			return true
		}
	}
	return false
}

// ServesModel reports whether model is in the provider's supported set.
func (p *Provider) ServesModel(model string) bool {
	for _, m := range p.SupportedModels {
		if m == model {
			return true
		}
	}
	return false
}

// SubProvider is one API-key-bearing upstream account under a provider.
// Sliding windows, concurrency counters and the circuit breaker are runtime
// state owned by the balancer; this struct carries configuration only.
type SubProvider struct {
	ID              string            `json:"id"`
	ProviderID      string            `json:"provider_id"`
	Name            string            `json:"name"`
	EncryptedAPIKey string            `json:"-"`
	Salt            string            `json:"-"`
	Algorithm       string            `json:"-"`
	AuthMode        string            `json:"auth_mode"` // "api_key" or "oauth"
	OAuthTokenURL   string            `json:"oauth_token_url,omitempty"`
	OAuthClientID   string            `json:"oauth_client_id,omitempty"`
	BaseURL         string            `json:"base_url,omitempty"` // overrides the provider's when set
	Priority        int               `json:"priority"`
	Weight          int               `json:"weight"`
	IsEnabled       bool              `json:"is_enabled"`
	RPM             int               `json:"rpm"` // requests per minute, 0 = unlimited
	RPH             int               `json:"rph"` // requests per hour, 0 = unlimited
	TPM             int               `json:"tpm"` // tokens per minute, 0 = unlimited
	MaxConcurrent   int               `json:"max_concurrent"`
	ModelMapping    map[string]string `json:"model_mapping,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}

// --- Request tracking ---

// RequestStatus is the lifecycle state of an APIRequest.
type RequestStatus string

const (
	StatusPending    RequestStatus = "pending"
	StatusProcessing RequestStatus = "processing"
	StatusCompleted  RequestStatus = "completed"
	StatusFailed     RequestStatus = "failed"
	StatusTimeout    RequestStatus = "timeout"
)

// Terminal reports whether no further transitions are allowed.
func (s RequestStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusTimeout
}

// APIRequest is one tracked gateway request.
// Transitions are strictly pending -> processing -> {completed|failed|timeout}.
type APIRequest struct {
	ID            string        `json:"id"`
	UserID        string        `json:"user_id,omitempty"`
	Endpoint      string        `json:"endpoint"`
	Method        string        `json:"method"`
	Model         string        `json:"model"`
	ProviderID    string        `json:"provider_id,omitempty"`
	SubProviderID string        `json:"sub_provider_id,omitempty"`
	Status        RequestStatus `json:"status"`
	StatusCode    int           `json:"status_code,omitempty"`
	TokensUsed    int           `json:"tokens_used"`
	CreditsUsed   int64         `json:"credits_used"`
	LatencyMs     int64         `json:"latency_ms"`
	RequestSize   int           `json:"request_size"`
	ResponseSize  int           `json:"response_size"`
	RetryCount    int           `json:"retry_count"`
	ErrorMessage  string        `json:"error_message,omitempty"`
	Stream        bool          `json:"stream"`
	ClientIP      string        `json:"client_ip,omitempty"`
	UserAgent     string        `json:"user_agent,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	CompletedAt   *time.Time    `json:"completed_at,omitempty"`
}

// --- Discounts ---

// UserDiscount grants one user a temporary cost divisor on one model.
// At most one non-expired discount exists per (user, model).
type UserDiscount struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	ModelID    string    `json:"model_id"`
	Multiplier float64   `json:"discount_multiplier"` // in [1.5, 3.0]
	ExpiresAt  time.Time `json:"expires_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// Active reports whether the discount applies at the given instant.
func (d *UserDiscount) Active(now time.Time) bool { return now.Before(d.ExpiresAt) }

// --- Video jobs ---

// VideoJob binds a provider-assigned video id to the upstream that owns it,
// so status, download, delete and remix route back to the same account.
type VideoJob struct {
	ID            string    `json:"id"` // provider-assigned video id
	UserID        string    `json:"user_id,omitempty"`
	Model         string    `json:"model"`
	ProviderName  string    `json:"provider_name"`
	SubProviderID string    `json:"sub_provider_id,omitempty"`
	Status        string    `json:"status"`
	Size          string    `json:"size,omitempty"`
	Seconds       string    `json:"seconds,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// --- Context keys ---

type contextKey int

const ctxKeyMeta contextKey = 0

// requestMeta bundles per-request values into a single context allocation.
// The User field is set later by the authenticate middleware via mutation of
// the same pointer, avoiding a second context.WithValue + Request.WithContext.
type requestMeta struct {
	RequestID string
	StartTime time.Time
	ClientIP  string
	UserAgent string
	User      *User
	MasterKey bool
}

func metaFromContext(ctx context.Context) *requestMeta {
	m, _ := ctx.Value(ctxKeyMeta).(*requestMeta)
	return m
}

// ContextWithRequestMeta returns a context carrying a fresh request metadata
// record. Installed once per request by the request-id middleware.
func ContextWithRequestMeta(ctx context.Context, requestID, clientIP, userAgent string, start time.Time) context.Context {
	return context.WithValue(ctx, ctxKeyMeta, &requestMeta{
		RequestID: requestID,
		StartTime: start,
		ClientIP:  clientIP,
		UserAgent: userAgent,
	})
}

// ContextWithUser stores the authenticated user in the existing request
// metadata if present, avoiding a new allocation. Falls back to creating new
// metadata if none exists (e.g., in tests).
func ContextWithUser(ctx context.Context, u *User) context.Context {
	if m := metaFromContext(ctx); m != nil {
		m.User = u
		return ctx
	}
	return context.WithValue(ctx, ctxKeyMeta, &requestMeta{User: u})
}

// UserFromContext extracts the authenticated user from context.
func UserFromContext(ctx context.Context) *User {
	if m := metaFromContext(ctx); m != nil {
		return m.User
	}
	return nil
}

// MarkMasterKey flags the request as authenticated by the master admin key.
func MarkMasterKey(ctx context.Context) {
	if m := metaFromContext(ctx); m != nil {
		m.MasterKey = true
	}
}

// IsMasterKey reports whether the request used the master admin key.
// Master-key requests bypass credit authorization and debit.
func IsMasterKey(ctx context.Context) bool {
	if m := metaFromContext(ctx); m != nil {
		return m.MasterKey
	}
	return false
}

// RequestIDFromContext extracts the request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	if m := metaFromContext(ctx); m != nil {
		return m.RequestID
	}
	return ""
}

// ContextWithRequestID returns a context carrying the given request ID.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyMeta, &requestMeta{RequestID: id})
}

// ClientIPFromContext extracts the resolved client address from context.
func ClientIPFromContext(ctx context.Context) string {
	if m := metaFromContext(ctx); m != nil {
		return m.ClientIP
	}
	return ""
}

// UserAgentFromContext extracts the caller's User-Agent from context.
func UserAgentFromContext(ctx context.Context) string {
	if m := metaFromContext(ctx); m != nil {
		return m.UserAgent
	}
	return ""
}

// StartTimeFromContext extracts the request arrival instant from context.
func StartTimeFromContext(ctx context.Context) time.Time {
	if m := metaFromContext(ctx); m != nil {
		return m.StartTime
	}
	return time.Time{}
}
