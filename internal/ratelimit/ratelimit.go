// Package ratelimit throttles inbound requests per caller: a counted
// 60-second window keyed by the API key prefix, falling back to the client
// IP for unkeyed callers. Counters live in the shared TTL cache.
package ratelimit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/ariezmeoww/voidai-backend-sub001/internal/cache"
	"github.com/ariezmeoww/voidai-backend-sub001/internal/telemetry"
)

const (
	// DefaultLimit is the per-caller request budget per window.
	DefaultLimit = 100
	// DefaultWindow is the counting window.
	DefaultWindow = time.Minute

	cacheKeyPrefix = "rate_limit:"
	keyIDLen       = 16
)

// counter is the cached window state.
type counter struct {
	Count     int   `json:"count"`
	Timestamp int64 `json:"timestamp"` // window start, unix seconds
}

// Result is the outcome of one admission check.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter admits or rejects requests per caller key.
type Limiter struct {
	mu     sync.Mutex // cache get/modify/set is not atomic
	cache  cache.Cache
	limit  int
	window time.Duration
	prom   *telemetry.Metrics
	now    func() time.Time
}

// New returns a Limiter storing counters in c. Zero limit or window fall
// back to the defaults.
func New(c cache.Cache, limit int, window time.Duration, prom *telemetry.Metrics) *Limiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{cache: c, limit: limit, window: window, prom: prom, now: time.Now}
}

// Key derives the caller key: the API key's identifying prefix when
// present, otherwise the client address.
func Key(apiKey, clientIP string) string {
	if apiKey != "" {
		if len(apiKey) > keyIDLen {
			apiKey = apiKey[:keyIDLen]
		}
		return apiKey
	}
	return clientIP
}

// Allow counts one request against the key's window.
func (l *Limiter) Allow(ctx context.Context, key string) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cacheKey := cacheKeyPrefix + key

	var c counter
	if data, ok := l.cache.Get(ctx, cacheKey); ok {
		if err := json.Unmarshal(data, &c); err != nil {
			c = counter{}
		}
	}

	elapsed := now.Unix() - c.Timestamp
	if elapsed >= int64(l.window.Seconds()) {
		c = counter{Timestamp: now.Unix()}
	}

	if c.Count >= l.limit {
		if l.prom != nil {
			l.prom.RateLimitRejects.WithLabelValues("client").Inc()
		}
		return Result{
			Limit:      l.limit,
			RetryAfter: l.window - time.Duration(elapsed)*time.Second,
		}
	}

	c.Count++
	data, err := json.Marshal(c)
	if err == nil {
		l.cache.Set(ctx, cacheKey, data, l.window)
	}
	return Result{
		Allowed:   true,
		Limit:     l.limit,
		Remaining: l.limit - c.Count,
	}
}
