package balancer

import (
	"sync"
	"time"

	gateway "github.com/ariezmeoww/voidai-backend-sub001/internal"
)

const (
	minuteWindow = time.Minute
	hourWindow   = time.Hour

	healthyFloor  = 70
	degradedFloor = 40

	// latencyAlpha is the EMA smoothing factor for per-sub-provider latency.
	latencyAlpha = 0.2
)

// windowEntry is one dispatched request in the sliding windows.
type windowEntry struct {
	at     time.Time
	tokens int
}

// subState is the runtime state of one sub-provider: sliding windows,
// concurrency counter, rolling counters and the circuit breaker. All fields
// are guarded by mu; every method is short and non-blocking.
type subState struct {
	mu  sync.Mutex
	sub gateway.SubProvider // config snapshot

	entries    []windowEntry // evicted past hourWindow on touch
	concurrent int

	totalRequests     int64
	totalSuccesses    int64
	totalTimeouts     int64
	consecutiveErrors int
	avgLatencyMs      float64

	breaker breaker
}

func newSubState(sub gateway.SubProvider) *subState {
	return &subState{sub: sub, breaker: newBreaker(defaultErrorThreshold, defaultCooldown)}
}

// evict drops window entries older than an hour.
func (s *subState) evict(now time.Time) {
	cutoff := now.Add(-hourWindow)
	i := 0
	for i < len(s.entries) && s.entries[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		s.entries = append(s.entries[:0], s.entries[i:]...)
	}
}

// withinLimits reports whether dispatching a request of estimatedTokens now
// would stay inside the configured rpm/rph/tpm/concurrency limits.
func (s *subState) withinLimits(now time.Time, estimatedTokens int) bool {
	if s.sub.MaxConcurrent > 0 && s.concurrent >= s.sub.MaxConcurrent {
		return false
	}
	s.evict(now)

	minuteCutoff := now.Add(-minuteWindow)
	var lastMinuteReqs, lastMinuteTokens int
	for _, e := range s.entries {
		if !e.at.Before(minuteCutoff) {
			lastMinuteReqs++
			lastMinuteTokens += e.tokens
		}
	}
	if s.sub.RPM > 0 && lastMinuteReqs >= s.sub.RPM {
		return false
	}
	if s.sub.RPH > 0 && len(s.entries) >= s.sub.RPH {
		return false
	}
	if s.sub.TPM > 0 && lastMinuteTokens+estimatedTokens > s.sub.TPM {
		return false
	}
	return true
}

// reserve appends a window entry and takes a concurrency slot.
func (s *subState) reserve(now time.Time, tokens int) {
	s.evict(now)
	s.entries = append(s.entries, windowEntry{at: now, tokens: tokens})
	s.concurrent++
}

// release frees the concurrency slot and records the outcome. It returns
// true when the circuit transitioned to open.
func (s *subState) release(now time.Time, success, critical, timeout bool, latency time.Duration) bool {
	if s.concurrent > 0 {
		s.concurrent--
	}
	s.totalRequests++
	if timeout {
		s.totalTimeouts++
	}

	ms := float64(latency.Milliseconds())
	if s.avgLatencyMs == 0 {
		s.avgLatencyMs = ms
	} else {
		s.avgLatencyMs += latencyAlpha * (ms - s.avgLatencyMs)
	}

	if success {
		s.totalSuccesses++
		s.consecutiveErrors = 0
		s.breaker.onSuccess()
		return false
	}

	// Non-critical errors extend the run; only a critical one at the end of
	// a long enough run trips the breaker.
	s.consecutiveErrors++
	return s.breaker.onFailure(critical, s.consecutiveErrors, now)
}

// healthScore derives a 0-100 figure from success rate, latency, timeout
// rate and consecutive errors. New sub-providers with no history score 100.
func (s *subState) healthScore() int {
	score := 100.0
	if s.totalRequests > 0 {
		successRate := float64(s.totalSuccesses) / float64(s.totalRequests)
		score -= (1 - successRate) * 50

		timeoutRate := float64(s.totalTimeouts) / float64(s.totalRequests)
		score -= min(timeoutRate*50, 15)
	}
	score -= min(s.avgLatencyMs/500, 20)
	score -= min(float64(s.consecutiveErrors)*3, 15)

	if score < 0 {
		return 0
	}
	return int(score)
}

// SubProviderStatus is a point-in-time view of one sub-provider's runtime
// state, for admin endpoints and logs.
type SubProviderStatus struct {
	SubProviderID     string    `json:"sub_provider_id"`
	ProviderID        string    `json:"provider_id"`
	CircuitState      string    `json:"circuit_state"`
	NextAttemptAt     time.Time `json:"next_attempt_at,omitempty"`
	HealthScore       int       `json:"health_score"`
	Concurrent        int       `json:"current_concurrent"`
	ConsecutiveErrors int       `json:"consecutive_errors"`
	TotalRequests     int64     `json:"total_requests"`
	TotalSuccesses    int64     `json:"total_successes"`
	AvgLatencyMs      float64   `json:"avg_latency_ms"`
}

func (s *subState) status() SubProviderStatus {
	return SubProviderStatus{
		SubProviderID:     s.sub.ID,
		ProviderID:        s.sub.ProviderID,
		CircuitState:      s.breaker.state.String(),
		NextAttemptAt:     s.breaker.nextAttemptAt,
		HealthScore:       s.healthScore(),
		Concurrent:        s.concurrent,
		ConsecutiveErrors: s.consecutiveErrors,
		TotalRequests:     s.totalRequests,
		TotalSuccesses:    s.totalSuccesses,
		AvgLatencyMs:      s.avgLatencyMs,
	}
}
