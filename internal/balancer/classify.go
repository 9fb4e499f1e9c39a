package balancer

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"

	gateway "github.com/ariezmeoww/voidai-backend-sub001/internal"
)

// httpStatusError is implemented by upstream errors carrying a status code
// (provider.APIError).
type httpStatusError interface {
	HTTPStatus() int
}

// kindPatterns maps case-insensitive message substrings to error kinds.
// Order matters: the first matching table wins.
var kindPatterns = []struct {
	kind     gateway.ErrorKind
	patterns []string
}{
	{gateway.KindAuthError, []string{
		"401", "403", "unauthorized", "api key", "apikey", "authentication",
		"permission", "forbidden", "invalid key", "incorrect api key",
	}},
	{gateway.KindRateLimit, []string{
		"429", "rate limit", "ratelimit", "quota", "too many requests",
		"capacity", "overloaded",
	}},
	{gateway.KindTimeout, []string{
		"timeout", "timed out", "deadline exceeded", "context canceled",
	}},
	{gateway.KindNetwork, []string{
		"connection refused", "connection reset", "no such host", "eof",
		"broken pipe", "network",
	}},
	{gateway.KindServerError, []string{
		"500", "502", "503", "504", "internal server error", "bad gateway",
		"service unavailable", "internal error", "server error",
	}},
}

// criticalPatterns mark a sub-provider itself as unhealthy: auth and quota
// failures mean every request through this account will fail.
var criticalPatterns = []string{
	"api key", "apikey", "incorrect api key", "invalid key", "unauthorized",
	"authentication", "401", "403", "quota", "insufficient credit",
	"insufficient permission", "account deactivated", "billing",
}

// excludedPatterns override criticalPatterns: these failures are scoped to
// the request, not the account, even when they mention a critical word.
var excludedPatterns = []string{
	"unsupported model", "model not found", "does not support",
	"unsupported parameter", "moderation", "content policy", "flagged",
	"unsupported country", "region", "user location",
}

// Classify maps an upstream error message to an ErrorKind by substring
// matching.
func Classify(message string) gateway.ErrorKind {
	m := strings.ToLower(message)
	for _, table := range kindPatterns {
		for _, p := range table.patterns {
			if strings.Contains(m, p) {
				return table.kind
			}
		}
	}
	return gateway.KindOther
}

// ClassifyErr maps an error to an ErrorKind, preferring structured signals
// (status codes, context errors) over message text.
func ClassifyErr(err error) gateway.ErrorKind {
	if err == nil {
		return gateway.KindOther
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return gateway.KindTimeout
	}
	var he httpStatusError
	if errors.As(err, &he) {
		switch code := he.HTTPStatus(); {
		case code == 401 || code == 403:
			return gateway.KindAuthError
		case code == 429:
			return gateway.KindRateLimit
		case code == 408 || code == 504:
			return gateway.KindTimeout
		case code >= 500:
			return gateway.KindServerError
		}
		return Classify(err.Error())
	}
	var netErr *net.OpError
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return gateway.KindTimeout
		}
		return gateway.KindNetwork
	}
	return Classify(err.Error())
}

// IsCritical reports whether an upstream failure implies the sub-provider
// account is unhealthy. Only critical errors advance the circuit breaker;
// everything else merely excludes the sub-provider for the current request.
func IsCritical(message string) bool {
	m := strings.ToLower(message)
	for _, p := range excludedPatterns {
		if strings.Contains(m, p) {
			return false
		}
	}
	for _, p := range criticalPatterns {
		if strings.Contains(m, p) {
			return true
		}
	}
	return false
}

// Retryable reports whether the dispatcher should try another sub-provider
// after this kind of failure.
func Retryable(kind gateway.ErrorKind) bool {
	switch kind {
	case gateway.KindRateLimit, gateway.KindTimeout, gateway.KindNetwork, gateway.KindServerError:
		return true
	default:
		return false
	}
}
