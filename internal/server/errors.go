package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	gateway "github.com/ariezmeoww/voidai-backend-sub001/internal"
	"github.com/ariezmeoww/voidai-backend-sub001/internal/balancer"
)

// errorDetail is the client-facing error shape. Every surfaced error carries
// the request id as reference_id plus an ISO-8601 timestamp so support can
// correlate without leaking internals.
type errorDetail struct {
	Message     string `json:"message"`
	Type        string `json:"type"`
	Code        string `json:"code,omitempty"`
	ReferenceID string `json:"reference_id,omitempty"`
	Timestamp   string `json:"timestamp,omitempty"`
}

type errorEnvelope struct {
	Error errorDetail `json:"error"`
}

// classify maps a gateway error to its HTTP status, envelope type and code.
func classify(err error) (status int, typ, code string) {
	switch {
	case errors.Is(err, gateway.ErrMissingAuthHeader):
		return http.StatusUnauthorized, "authentication_error", "missing_header"
	case errors.Is(err, gateway.ErrInvalidAuthFormat):
		return http.StatusUnauthorized, "authentication_error", "invalid_format"
	case errors.Is(err, gateway.ErrInvalidKey):
		return http.StatusUnauthorized, "authentication_error", "invalid_key"
	case errors.Is(err, gateway.ErrInvalidOAuthToken):
		return http.StatusUnauthorized, "authentication_error", "invalid_oauth_token"
	case errors.Is(err, gateway.ErrAccountDisabled):
		return http.StatusForbidden, "permission_error", "account_disabled"
	case errors.Is(err, gateway.ErrIPAccessDenied):
		return http.StatusForbidden, "permission_error", "ip_denied"
	case errors.Is(err, gateway.ErrForbidden):
		return http.StatusForbidden, "permission_error", "forbidden"
	case errors.Is(err, gateway.ErrModelAccessDenied):
		return http.StatusForbidden, "permission_error", "model_access_denied"
	case errors.Is(err, gateway.ErrInsufficientCredits):
		return http.StatusPaymentRequired, "billing_error", "insufficient_credits"
	case errors.Is(err, gateway.ErrContentPolicy):
		return http.StatusBadRequest, "invalid_request_error", "content_policy"
	case errors.Is(err, gateway.ErrEndpointNotSupported),
		errors.Is(err, gateway.ErrStreamingNotSupported),
		errors.Is(err, gateway.ErrUnsupportedOperation):
		return http.StatusBadRequest, "invalid_request_error", "unsupported"
	case errors.Is(err, gateway.ErrBadRequest):
		return http.StatusBadRequest, "invalid_request_error", "invalid_request"
	case errors.Is(err, gateway.ErrModelNotFound):
		return http.StatusNotFound, "invalid_request_error", "model_not_found"
	case errors.Is(err, gateway.ErrNotFound):
		return http.StatusNotFound, "invalid_request_error", "not_found"
	case errors.Is(err, gateway.ErrConflict):
		return http.StatusConflict, "invalid_request_error", "conflict"
	case errors.Is(err, gateway.ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limit_exceeded", "too_many_requests"
	case errors.Is(err, gateway.ErrNoAvailableProviders):
		return http.StatusBadGateway, "upstream_error", "no_available_providers"
	case errors.Is(err, gateway.ErrTimeout):
		return http.StatusGatewayTimeout, "upstream_error", "upstream_timeout"
	}

	// Errors escaping the retry loop keep the classifier's verdict.
	switch balancer.ClassifyErr(err) {
	case gateway.KindTimeout:
		return http.StatusGatewayTimeout, "upstream_error", "upstream_timeout"
	case gateway.KindRateLimit:
		return http.StatusTooManyRequests, "rate_limit_exceeded", "too_many_requests"
	case gateway.KindAuthError, gateway.KindNetwork, gateway.KindServerError:
		return http.StatusBadGateway, "upstream_error", "upstream_error"
	}
	return http.StatusInternalServerError, "api_error", "request_failed"
}

// errorPayload builds the envelope for err. Detail for 5xx failures stays in
// the server logs; the client sees a generic message.
func errorPayload(r *http.Request, err error) (int, errorEnvelope) {
	status, typ, code := classify(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		slog.LogAttrs(r.Context(), slog.LevelError, "request failed",
			slog.String("request_id", gateway.RequestIDFromContext(r.Context())),
			slog.Int("status", status),
			slog.String("error", err.Error()),
		)
		msg = publicMessage(status)
	}
	return status, envelope(r, typ, code, msg)
}

func envelope(r *http.Request, typ, code, msg string) errorEnvelope {
	return errorEnvelope{Error: errorDetail{
		Message:     msg,
		Type:        typ,
		Code:        code,
		ReferenceID: gateway.RequestIDFromContext(r.Context()),
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}}
}

func publicMessage(status int) string {
	switch status {
	case http.StatusBadGateway:
		return "upstream provider error"
	case http.StatusGatewayTimeout:
		return "upstream provider timed out"
	default:
		return "request failed"
	}
}

// writeError maps err onto the wire envelope and writes it.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := errorPayload(r, err)
	writeJSON(w, status, body)
}

// writeErrorParts writes an envelope with explicit status, type, code and
// message, bypassing classification.
func writeErrorParts(w http.ResponseWriter, r *http.Request, status int, typ, code, msg string) {
	writeJSON(w, status, envelope(r, typ, code, msg))
}

// jsonCT is a pre-allocated header value slice. Direct map assignment
// (w.Header()["Content-Type"] = jsonCT) avoids the []string{v} alloc
// that Header.Set creates on every call. Saves 1 alloc/req.
var jsonCT = []string{"application/json"}

// writeJSON marshals v, snake-cases every object key at the edge and writes
// the body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to encode response", "error", err)
		w.Header()["Content-Type"] = jsonCT
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header()["Content-Type"] = jsonCT
	w.WriteHeader(status)
	w.Write(snakeCaseKeys(data))
}
