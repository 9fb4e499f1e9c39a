// Package storage defines persistence interfaces for the gateway.
package storage

import (
	"context"
	"time"

	gateway "github.com/ariezmeoww/voidai-backend-sub001/internal"
)

// UserStore manages user persistence.
type UserStore interface {
	CreateUser(ctx context.Context, u *gateway.User) error
	GetUser(ctx context.Context, id string) (*gateway.User, error)
	ListUsers(ctx context.Context, offset, limit int) ([]*gateway.User, error)
	UpdateUser(ctx context.Context, u *gateway.User) error
	DeleteUser(ctx context.Context, id string) error

	// DebitCredits atomically decrements credits and bumps the usage
	// totals. Returns gateway.ErrInsufficientCredits when the balance is
	// lower than amount, leaving the row unchanged.
	DebitCredits(ctx context.Context, userID string, amount int64, tokens int) error
	// AddCredits increments the balance by amount (positive only).
	AddCredits(ctx context.Context, userID string, amount int64) error
	// ResetCredits sets the balance and stamps credits_last_reset.
	ResetCredits(ctx context.Context, userID string, credits int64, at time.Time) error
	// ListUsersForReset returns users whose last reset is at or before cutoff.
	ListUsersForReset(ctx context.Context, cutoff time.Time) ([]*gateway.User, error)
}

// APIKeyStore manages API key persistence.
type APIKeyStore interface {
	CreateKey(ctx context.Context, key *gateway.APIKey) error
	GetKeyBySearchHash(ctx context.Context, hash string) (*gateway.APIKey, error)
	ListKeysByUser(ctx context.Context, userID string) ([]*gateway.APIKey, error)
	UpdateKey(ctx context.Context, key *gateway.APIKey) error
	DeleteKey(ctx context.Context, id string) error
	TouchKeyUsed(ctx context.Context, id string) error
}

// OAuthTokenStore manages OAuth bearer token persistence.
type OAuthTokenStore interface {
	CreateOAuthToken(ctx context.Context, t *gateway.OAuthToken) error
	GetOAuthToken(ctx context.Context, token string) (*gateway.OAuthToken, error)
	DeleteOAuthToken(ctx context.Context, id string) error
	DeleteExpiredOAuthTokens(ctx context.Context, now time.Time) (int64, error)
}

// ProviderStore manages provider configuration persistence.
type ProviderStore interface {
	CreateProvider(ctx context.Context, p *gateway.Provider) error
	GetProvider(ctx context.Context, id string) (*gateway.Provider, error)
	GetProviderByName(ctx context.Context, name string) (*gateway.Provider, error)
	ListProviders(ctx context.Context) ([]*gateway.Provider, error)
	UpdateProvider(ctx context.Context, p *gateway.Provider) error
	DeleteProvider(ctx context.Context, id string) error
}

// SubProviderStore manages sub-provider persistence.
type SubProviderStore interface {
	CreateSubProvider(ctx context.Context, sp *gateway.SubProvider) error
	GetSubProvider(ctx context.Context, id string) (*gateway.SubProvider, error)
	ListSubProviders(ctx context.Context, providerID string) ([]*gateway.SubProvider, error)
	ListAllSubProviders(ctx context.Context) ([]*gateway.SubProvider, error)
	UpdateSubProvider(ctx context.Context, sp *gateway.SubProvider) error
	DeleteSubProvider(ctx context.Context, id string) error
}

// RequestFilter narrows api-log queries. Zero values mean "any".
type RequestFilter struct {
	UserID     string
	Model      string
	ProviderID string
	Status     gateway.RequestStatus
	Since      time.Time
	Until      time.Time
	MinLatency int64
	MaxLatency int64
	Offset     int
	Limit      int
}

// RequestStats is the rollup returned by api-log statistics queries.
type RequestStats struct {
	Total        int64   `json:"total"`
	Completed    int64   `json:"completed"`
	Failed       int64   `json:"failed"`
	Pending      int64   `json:"pending"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
	AvgTokens    float64 `json:"avg_tokens"`
	TotalCredits int64   `json:"total_credits"`
	SuccessRate  float64 `json:"success_rate"`
}

// RequestStore manages tracked request persistence.
type RequestStore interface {
	CreateRequest(ctx context.Context, r *gateway.APIRequest) error
	GetRequest(ctx context.Context, id string) (*gateway.APIRequest, error)
	UpdateRequest(ctx context.Context, r *gateway.APIRequest) error
	ListRequests(ctx context.Context, f RequestFilter) ([]*gateway.APIRequest, error)
	RequestStats(ctx context.Context, f RequestFilter) (*RequestStats, error)
}

// DiscountStore manages per-user model discount persistence.
type DiscountStore interface {
	UpsertDiscount(ctx context.Context, d *gateway.UserDiscount) error
	GetDiscount(ctx context.Context, userID, modelID string) (*gateway.UserDiscount, error)
	ListDiscountsByUser(ctx context.Context, userID string) ([]*gateway.UserDiscount, error)
	DeleteExpiredDiscounts(ctx context.Context, now time.Time) (int64, error)
	ListUserIDsWithoutActiveDiscount(ctx context.Context, now time.Time) ([]string, error)
}

// VideoJobStore manages video job bindings.
type VideoJobStore interface {
	CreateVideoJob(ctx context.Context, j *gateway.VideoJob) error
	GetVideoJob(ctx context.Context, id string) (*gateway.VideoJob, error)
	ListVideoJobsByUser(ctx context.Context, userID string) ([]*gateway.VideoJob, error)
	UpdateVideoJobStatus(ctx context.Context, id, status string) error
	DeleteVideoJob(ctx context.Context, id string) error
}

// Store combines all storage interfaces.
type Store interface {
	UserStore
	APIKeyStore
	OAuthTokenStore
	ProviderStore
	SubProviderStore
	RequestStore
	DiscountStore
	VideoJobStore
	Close() error
}
