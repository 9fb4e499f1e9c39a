package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewPedanticRegistry()
	m := NewMetrics(reg)

	if m.RequestsTotal == nil {
		t.Error("RequestsTotal is nil")
	}
	if m.RequestDuration == nil {
		t.Error("RequestDuration is nil")
	}
	if m.ActiveRequests == nil {
		t.Error("ActiveRequests is nil")
	}
	if m.UpstreamDuration == nil {
		t.Error("UpstreamDuration is nil")
	}
	if m.UpstreamErrors == nil {
		t.Error("UpstreamErrors is nil")
	}
	if m.CreditsSpent == nil {
		t.Error("CreditsSpent is nil")
	}
	if m.CircuitOpens == nil {
		t.Error("CircuitOpens is nil")
	}
	if m.TrackerQueueLen == nil {
		t.Error("TrackerQueueLen is nil")
	}

	// Collectors must actually be registered: a second MustRegister of the
	// same name panics.
	defer func() {
		if recover() == nil {
			t.Error("expected duplicate registration to panic")
		}
	}()
	NewMetrics(reg)
}

func TestMetricsRecord(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewPedanticRegistry()
	m := NewMetrics(reg)

	m.RequestsTotal.WithLabelValues("POST", "/v1/chat/completions", "200").Inc()
	m.UpstreamErrors.WithLabelValues("openai", "server_error").Inc()
	m.CreditsSpent.WithLabelValues("gpt-4o-mini", "basic").Add(100)
	m.ActiveRequests.Inc()
	m.ActiveRequests.Dec()

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	if len(families) == 0 {
		t.Error("no metric families gathered")
	}
}
