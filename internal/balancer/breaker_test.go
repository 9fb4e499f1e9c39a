package balancer

import (
	"testing"
	"time"
)

func TestBreakerOpensOnConsecutiveCritical(t *testing.T) {
	t.Parallel()

	now := time.Now()
	b := newBreaker(5, time.Minute)

	for i := 1; i <= 4; i++ {
		if opened := b.onFailure(true, i, now); opened {
			t.Fatalf("opened after %d critical errors, want 5", i)
		}
	}
	if !b.onFailure(true, 5, now) {
		t.Fatal("should open on 5th consecutive critical error")
	}
	if b.state != breakerOpen {
		t.Errorf("state = %v, want open", b.state)
	}
	if got := b.nextAttemptAt; !got.Equal(now.Add(time.Minute)) {
		t.Errorf("nextAttemptAt = %v, want now+cooldown", got)
	}
}

func TestBreakerNonCriticalNeverOpens(t *testing.T) {
	t.Parallel()

	now := time.Now()
	b := newBreaker(5, time.Minute)
	for i := 1; i <= 20; i++ {
		if b.onFailure(false, i, now) {
			t.Fatal("non-critical failures must not open the circuit")
		}
	}
	if b.state != breakerClosed {
		t.Errorf("state = %v, want closed", b.state)
	}
}

func TestBreakerMixedRunTripsOnCriticalLast(t *testing.T) {
	t.Parallel()

	now := time.Now()
	b := newBreaker(5, time.Minute)

	// Non-critical errors stretch the run without opening the circuit.
	for i := 1; i <= 4; i++ {
		if b.onFailure(false, i, now) {
			t.Fatalf("opened after %d non-critical errors", i)
		}
	}
	// A critical error ending a run at the threshold must trip it.
	if !b.onFailure(true, 5, now) {
		t.Fatal("critical error at the end of a 5-error run must open the circuit")
	}
	if b.state != breakerOpen {
		t.Errorf("state = %v, want open", b.state)
	}
}

func TestBreakerCriticalBelowThresholdStaysClosed(t *testing.T) {
	t.Parallel()

	now := time.Now()
	b := newBreaker(5, time.Minute)

	if b.onFailure(true, 1, now) {
		t.Fatal("a single critical error must not open the circuit")
	}
	if b.state != breakerClosed {
		t.Errorf("state = %v, want closed", b.state)
	}
}

func TestBreakerHalfOpenSingleProbe(t *testing.T) {
	t.Parallel()

	now := time.Now()
	b := newBreaker(5, time.Minute)
	b.onFailure(true, 5, now)

	if b.allow(now.Add(30 * time.Second)) {
		t.Fatal("open circuit inside cooldown must reject")
	}

	probeTime := now.Add(61 * time.Second)
	if !b.allow(probeTime) {
		t.Fatal("open circuit past cooldown must admit a probe")
	}
	if b.state != breakerHalfOpen {
		t.Errorf("state = %v, want half_open", b.state)
	}
	if b.allow(probeTime) {
		t.Fatal("only one probe may be in flight")
	}
}

func TestBreakerProbeSuccessCloses(t *testing.T) {
	t.Parallel()

	now := time.Now()
	b := newBreaker(5, time.Minute)
	b.onFailure(true, 5, now)
	b.allow(now.Add(61 * time.Second))

	b.onSuccess()
	if b.state != breakerClosed {
		t.Errorf("state = %v, want closed after probe success", b.state)
	}
	if !b.allow(now.Add(62 * time.Second)) {
		t.Error("closed circuit must allow requests")
	}
}

func TestBreakerProbeFailureReopens(t *testing.T) {
	t.Parallel()

	now := time.Now()
	b := newBreaker(5, time.Minute)
	b.onFailure(true, 5, now)

	probeTime := now.Add(61 * time.Second)
	b.allow(probeTime)

	if !b.onFailure(false, 0, probeTime) {
		t.Fatal("failed probe must reopen the circuit")
	}
	if b.state != breakerOpen {
		t.Errorf("state = %v, want open", b.state)
	}
	// Cooldown resets from the probe failure.
	if b.allow(probeTime.Add(30 * time.Second)) {
		t.Error("reopened circuit must reject inside the fresh cooldown")
	}
	if !b.allow(probeTime.Add(61 * time.Second)) {
		t.Error("reopened circuit must admit a probe after the fresh cooldown")
	}
}
