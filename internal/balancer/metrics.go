package balancer

import (
	"slices"
	"sync"
	"time"
)

const (
	maxLatencySamples  = 1000
	latencySampleTTL   = 10 * time.Minute
	percentileInterval = 5 * time.Second
)

type latencySample struct {
	at time.Time
	ms float64
}

// providerMetrics keeps a rolling latency history per provider. Percentile
// recomputation is throttled so hot paths pay one append, not a sort.
type providerMetrics struct {
	mu         sync.Mutex
	samples    []latencySample
	computedAt time.Time
	p50        float64
	p95        float64
	p99        float64
	avg        float64
}

// record appends a sample and refreshes percentiles when stale.
func (m *providerMetrics) record(now time.Time, latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.samples = append(m.samples, latencySample{at: now, ms: float64(latency.Milliseconds())})
	m.trim(now)
	if now.Sub(m.computedAt) >= percentileInterval {
		m.recompute(now)
	}
}

// trim drops samples past the TTL and caps the history length.
func (m *providerMetrics) trim(now time.Time) {
	cutoff := now.Add(-latencySampleTTL)
	i := 0
	for i < len(m.samples) && m.samples[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		m.samples = append(m.samples[:0], m.samples[i:]...)
	}
	if excess := len(m.samples) - maxLatencySamples; excess > 0 {
		m.samples = append(m.samples[:0], m.samples[excess:]...)
	}
}

func (m *providerMetrics) recompute(now time.Time) {
	m.computedAt = now
	if len(m.samples) == 0 {
		m.p50, m.p95, m.p99, m.avg = 0, 0, 0, 0
		return
	}
	sorted := make([]float64, len(m.samples))
	var sum float64
	for i, s := range m.samples {
		sorted[i] = s.ms
		sum += s.ms
	}
	slices.Sort(sorted)
	m.p50 = percentile(sorted, 0.50)
	m.p95 = percentile(sorted, 0.95)
	m.p99 = percentile(sorted, 0.99)
	m.avg = sum / float64(len(sorted))
}

// percentile returns the p-quantile of an ascending-sorted slice.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}

// LatencyStats is the published view of a provider's latency distribution.
type LatencyStats struct {
	AvgMs   float64 `json:"avg_ms"`
	P50Ms   float64 `json:"p50_ms"`
	P95Ms   float64 `json:"p95_ms"`
	P99Ms   float64 `json:"p99_ms"`
	Samples int     `json:"samples"`
}

// stats returns the current distribution, recomputing if stale.
func (m *providerMetrics) stats(now time.Time) LatencyStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	if now.Sub(m.computedAt) >= percentileInterval {
		m.trim(now)
		m.recompute(now)
	}
	return LatencyStats{AvgMs: m.avg, P50Ms: m.p50, P95Ms: m.p95, P99Ms: m.p99, Samples: len(m.samples)}
}
