package balancer

import (
	"time"
)

// breakerState is the circuit state of one sub-provider.
type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// String returns a human-readable state name.
func (s breakerState) String() string {
	switch s {
	case breakerClosed:
		return "closed"
	case breakerOpen:
		return "open"
	case breakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

const (
	// defaultErrorThreshold is the consecutive error count that opens the
	// circuit when the run ends on a critical error.
	defaultErrorThreshold = 5
	// defaultCooldown is how long an open circuit rejects before allowing a
	// probe.
	defaultCooldown = 60 * time.Second
)

// breaker is the per-sub-provider circuit state machine. Callers hold the
// sub-provider mutex; the breaker itself is not locked.
type breaker struct {
	state         breakerState
	nextAttemptAt time.Time
	probing       bool // a half-open probe is in flight
	threshold     int
	cooldown      time.Duration
}

func newBreaker(threshold int, cooldown time.Duration) breaker {
	if threshold <= 0 {
		threshold = defaultErrorThreshold
	}
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	return breaker{state: breakerClosed, threshold: threshold, cooldown: cooldown}
}

// allow reports whether a request may proceed at now. An open circuit past
// its cooldown transitions to half-open and admits exactly one probe.
func (b *breaker) allow(now time.Time) bool {
	switch b.state {
	case breakerClosed:
		return true
	case breakerOpen:
		if now.Before(b.nextAttemptAt) {
			return false
		}
		b.state = breakerHalfOpen
		b.probing = true
		return true
	case breakerHalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	}
	return false
}

// onSuccess records a successful outcome. A successful half-open probe
// closes the circuit.
func (b *breaker) onSuccess() {
	if b.state == breakerHalfOpen {
		b.state = breakerClosed
	}
	b.probing = false
}

// onFailure records a failed outcome. A closed circuit opens when the error
// run has reached the threshold and the latest error is critical; a failed
// probe reopens it with a fresh cooldown. Returns true when the circuit
// transitioned to open.
func (b *breaker) onFailure(critical bool, consecutiveErrors int, now time.Time) bool {
	if b.state == breakerHalfOpen {
		b.state = breakerOpen
		b.nextAttemptAt = now.Add(b.cooldown)
		b.probing = false
		return true
	}
	if !critical {
		return false
	}
	if b.state == breakerClosed && consecutiveErrors >= b.threshold {
		b.state = breakerOpen
		b.nextAttemptAt = now.Add(b.cooldown)
		return true
	}
	return false
}
