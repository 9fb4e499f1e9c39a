// Package server is the HTTP transport of the VoidAI gateway: the chi
// router, the middleware chain, the OpenAI-compatible handlers, the SSE
// relay and the admin surface. Handlers stay thin; all semantics live in
// the dispatch pipeline.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	gateway "github.com/ariezmeoww/voidai-backend-sub001/internal"
	"github.com/ariezmeoww/voidai-backend-sub001/internal/auth"
	"github.com/ariezmeoww/voidai-backend-sub001/internal/balancer"
	"github.com/ariezmeoww/voidai-backend-sub001/internal/ratelimit"
	"github.com/ariezmeoww/voidai-backend-sub001/internal/registry"
	"github.com/ariezmeoww/voidai-backend-sub001/internal/secrets"
	"github.com/ariezmeoww/voidai-backend-sub001/internal/storage"
	"github.com/ariezmeoww/voidai-backend-sub001/internal/telemetry"
)

// Authenticator resolves the request's bearer credential to an identity.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) (*auth.Identity, error)
}

// Dispatcher is the dispatch pipeline surface the handlers call.
type Dispatcher interface {
	ChatCompletion(ctx context.Context, req *gateway.ChatRequest, bodySize int) (*gateway.ChatResponse, error)
	ChatCompletionStream(ctx context.Context, req *gateway.ChatRequest, bodySize int) (<-chan gateway.StreamChunk, error)
	CreateResponse(ctx context.Context, req *gateway.ResponsesRequest, bodySize int) (*gateway.ResponsesResponse, error)
	CreateResponseStream(ctx context.Context, req *gateway.ResponsesRequest, bodySize int) (<-chan gateway.StreamChunk, error)
	CreateEmbeddings(ctx context.Context, req *gateway.EmbeddingRequest, bodySize int) (*gateway.EmbeddingResponse, error)
	TextToSpeech(ctx context.Context, req *gateway.SpeechRequest, bodySize int) ([]byte, error)
	AudioTranscription(ctx context.Context, req *gateway.TranscriptionRequest, bodySize int) (*gateway.TranscriptionResponse, error)
	GenerateImages(ctx context.Context, req *gateway.ImageGenerationRequest, bodySize int) (*gateway.ImagesResponse, error)
	EditImages(ctx context.Context, req *gateway.ImageEditRequest, bodySize int) (*gateway.ImagesResponse, error)
	ModerateContent(ctx context.Context, req *gateway.ModerationRequest, bodySize int) (*gateway.ModerationResponse, error)
	CreateVideo(ctx context.Context, req *gateway.VideoCreateRequest, bodySize int) (*gateway.Video, error)
	GetVideoStatus(ctx context.Context, videoID string) (*gateway.Video, error)
	DownloadVideo(ctx context.Context, videoID, variant string) (*gateway.VideoContent, error)
	ListVideos(ctx context.Context) (*gateway.VideoList, error)
	DeleteVideo(ctx context.Context, videoID string) error
	RemixVideo(ctx context.Context, videoID string, req *gateway.VideoRemixRequest, bodySize int) (*gateway.Video, error)
}

// RateLimiter admits or rejects a request for a caller key.
type RateLimiter interface {
	Allow(ctx context.Context, key string) ratelimit.Result
}

// DiscountReader lists a user's live discounts.
type DiscountReader interface {
	ListForUser(ctx context.Context, userID string) ([]*gateway.UserDiscount, error)
}

// RequestLog is the tracker query surface behind /admin/api-logs.
type RequestLog interface {
	List(ctx context.Context, f storage.RequestFilter) ([]*gateway.APIRequest, error)
	Stats(ctx context.Context, f storage.RequestFilter) (*storage.RequestStats, error)
}

// CreditAdjuster is the billing surface behind the admin credit endpoints.
type CreditAdjuster interface {
	AddCredits(ctx context.Context, userID string, amount int64, reason string) error
	ResetUser(ctx context.Context, u *gateway.User, now time.Time) error
}

// HealthReporter exposes sub-provider runtime state for the admin view.
type HealthReporter interface {
	SubProviderStatuses() []balancer.SubProviderStatus
}

// ReadyChecker reports whether the system is ready to serve traffic.
type ReadyChecker func(ctx context.Context) error

// ProviderReloader pushes the persisted provider/sub-provider set back into
// the balancer and adapter registry after admin mutations.
type ProviderReloader func(ctx context.Context) error

// Deps holds all dependencies for the HTTP server.
type Deps struct {
	Auth         Authenticator
	Dispatch     Dispatcher
	Catalog      *registry.Registry
	Discounts    DiscountReader
	Requests     RequestLog
	Users        storage.UserStore
	Keys         storage.APIKeyStore
	SubProviders storage.SubProviderStore
	Credits      CreditAdjuster
	Vault        *secrets.Vault
	Balancer     HealthReporter     // nil = no runtime health view
	Limiter      RateLimiter        // nil = no rate limiting
	Metrics      *telemetry.Metrics // nil = no metrics middleware
	Prometheus   http.Handler       // nil = no /metrics route
	ReadyCheck   ReadyChecker       // nil = always ready (for tests)
	Reload       ProviderReloader   // nil = admin mutations take effect on restart
	KeepAlive    time.Duration      // SSE comment interval, default 20s
}

// New creates an http.Handler with all routes and middleware wired.
func New(deps Deps) http.Handler {
	s := &server{deps: deps}

	r := chi.NewRouter()

	// Global middleware
	r.Use(s.recovery)
	r.Use(s.requestID)
	r.Use(s.logging)
	if deps.Metrics != nil {
		r.Use(metricsMiddleware(deps.Metrics))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", requestIDHeader},
		MaxAge:         300,
	}))

	// System endpoints (no auth)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	if deps.Prometheus != nil {
		r.Method(http.MethodGet, "/metrics", deps.Prometheus)
	}

	// Client-facing OpenAI-compatible API
	r.Route("/v1", func(r chi.Router) {
		r.Use(s.authenticate)
		r.Use(s.rateLimit)

		r.Post("/chat/completions", s.handleChatCompletions)
		r.Post("/responses", s.handleResponses)
		r.Post("/embeddings", s.handleEmbeddings)
		r.Post("/audio/speech", s.handleSpeech)
		r.Post("/audio/transcriptions", s.handleTranscriptions)
		r.Post("/audio/translations", s.handleTranslations)
		r.Post("/images/generations", s.handleImageGenerations)
		r.Post("/images/edits", s.handleImageEdits)
		r.Post("/moderations", s.handleModerations)

		r.Post("/videos", s.handleCreateVideo)
		r.Get("/videos", s.handleListVideos)
		r.Get("/videos/{id}", s.handleGetVideo)
		r.Get("/videos/{id}/content", s.handleVideoContent)
		r.Delete("/videos/{id}", s.handleDeleteVideo)
		r.Post("/videos/{id}/remix", s.handleRemixVideo)

		r.Get("/models", s.handleListModels)
		r.Get("/models/{id}", s.handleGetModel)
		r.Get("/discounts/my-discounts", s.handleMyDiscounts)
		r.Get("/discounts/eligible-models", s.handleEligibleModels)
	})

	// Admin surface
	r.Route("/admin", func(r chi.Router) {
		r.Use(s.authenticate)
		r.Use(s.adminOnly)

		r.Route("/users", func(r chi.Router) {
			r.Get("/", s.handleListUsers)
			r.Post("/", s.handleCreateUser)
			r.Get("/{id}", s.handleGetUser)
			r.Put("/{id}", s.handleUpdateUser)
			r.Delete("/{id}", s.handleDeleteUser)
			r.Post("/{id}/credits", s.handleAddCredits)
			r.Post("/{id}/reset", s.handleResetCredits)
			r.Get("/{id}/keys", s.handleListKeys)
			r.Post("/{id}/keys", s.handleCreateKey)
		})
		r.Delete("/keys/{id}", s.handleDeleteKey)

		r.Route("/sub-providers", func(r chi.Router) {
			r.Get("/", s.handleListSubProviders)
			r.Post("/", s.handleCreateSubProvider)
			r.Get("/{id}", s.handleGetSubProvider)
			r.Put("/{id}", s.handleUpdateSubProvider)
			r.Delete("/{id}", s.handleDeleteSubProvider)
			r.Post("/{id}/enable", s.handleEnableSubProvider)
			r.Post("/{id}/disable", s.handleDisableSubProvider)
		})

		r.Get("/api-logs", s.handleListAPILogs)
		r.Get("/api-logs/stats", s.handleAPILogStats)
	})

	return r
}

type server struct {
	deps Deps
}
