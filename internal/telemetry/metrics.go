// Package telemetry provides observability primitives for the gateway.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors for the gateway.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	ActiveRequests   prometheus.Gauge
	UpstreamDuration *prometheus.HistogramVec
	UpstreamErrors   *prometheus.CounterVec
	UpstreamRetries  *prometheus.CounterVec
	CreditsSpent     *prometheus.CounterVec
	TokensProcessed  *prometheus.CounterVec
	RateLimitRejects *prometheus.CounterVec
	CircuitOpens     *prometheus.CounterVec
	TrackerQueueLen  prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voidai",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:                       "voidai",
			Name:                            "request_duration_seconds",
			Help:                            "HTTP request duration in seconds.",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 0,
		}, []string{"method", "path"}),

		ActiveRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "voidai",
			Name:      "active_requests",
			Help:      "Number of currently active requests.",
		}),

		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:                       "voidai",
			Name:                            "upstream_duration_seconds",
			Help:                            "Upstream provider call duration in seconds.",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 0,
		}, []string{"provider", "model"}),

		UpstreamErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voidai",
			Name:      "upstream_errors_total",
			Help:      "Total upstream provider errors by classified kind.",
		}, []string{"provider", "kind"}),

		UpstreamRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voidai",
			Name:      "upstream_retries_total",
			Help:      "Total dispatch retries after an upstream failure.",
		}, []string{"endpoint"}),

		CreditsSpent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voidai",
			Name:      "credits_spent_total",
			Help:      "Total credits debited from user balances.",
		}, []string{"model", "plan"}),

		TokensProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voidai",
			Name:      "tokens_processed_total",
			Help:      "Total tokens processed.",
		}, []string{"model", "type"}),

		RateLimitRejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voidai",
			Name:      "ratelimit_rejects_total",
			Help:      "Total rate limit rejections.",
		}, []string{"type"}),

		CircuitOpens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voidai",
			Name:      "circuit_opens_total",
			Help:      "Total circuit breaker trips per sub-provider.",
		}, []string{"sub_provider"}),

		TrackerQueueLen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "voidai",
			Name:      "tracker_queue_length",
			Help:      "Current number of queued tracker metric updates.",
		}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.ActiveRequests,
		m.UpstreamDuration,
		m.UpstreamErrors,
		m.UpstreamRetries,
		m.CreditsSpent,
		m.TokensProcessed,
		m.RateLimitRejects,
		m.CircuitOpens,
		m.TrackerQueueLen,
	)

	return m
}
