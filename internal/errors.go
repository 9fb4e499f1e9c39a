package gateway

import "errors"

// Sentinel errors for the gateway domain.
var (
	// Auth failures, each mapped to a distinct HTTP status and code.
	ErrMissingAuthHeader = errors.New("missing authorization header")
	ErrInvalidAuthFormat = errors.New("invalid authorization format")
	ErrInvalidKey        = errors.New("invalid api key")
	ErrInvalidOAuthToken = errors.New("invalid or expired oauth token")
	ErrAccountDisabled   = errors.New("account disabled")
	ErrIPAccessDenied    = errors.New("ip address not allowed")
	ErrForbidden         = errors.New("forbidden")

	// Billing and access.
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrModelAccessDenied   = errors.New("model access denied for plan")

	// Validation and policy.
	ErrBadRequest            = errors.New("bad request")
	ErrModelNotFound         = errors.New("model not found")
	ErrEndpointNotSupported  = errors.New("endpoint not supported for model")
	ErrContentPolicy         = errors.New("content policy violation")
	ErrUnsupportedOperation  = errors.New("operation not supported by provider")
	ErrRateLimited           = errors.New("rate limit exceeded")
	ErrNoAvailableProviders  = errors.New("no available providers")
	ErrStreamingNotSupported = errors.New("streaming not supported for model")

	// Generic.
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
	ErrTimeout  = errors.New("request timeout")
)

// ErrorKind classifies upstream failures for retry and circuit decisions.
type ErrorKind string

const (
	KindAuthError   ErrorKind = "auth_error"
	KindRateLimit   ErrorKind = "rate_limit"
	KindTimeout     ErrorKind = "timeout"
	KindNetwork     ErrorKind = "network"
	KindServerError ErrorKind = "server_error"
	KindOther       ErrorKind = "other"
)
