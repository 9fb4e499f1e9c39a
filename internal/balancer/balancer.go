// Package balancer owns sub-provider runtime state: sliding rate windows,
// concurrency counters, circuit breakers, health scores and latency
// percentiles. Its Select picks the best upstream account for a request;
// RecordRequestStart/Complete bracket every dispatch attempt.
package balancer

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	gateway "github.com/ariezmeoww/voidai-backend-sub001/internal"
	"github.com/ariezmeoww/voidai-backend-sub001/internal/telemetry"
)

// SelectRequest describes one selection round.
type SelectRequest struct {
	Model           string
	Capability      gateway.Capability
	EstimatedTokens int
	// ExcludeIDs lists sub-provider ids already tried for this request;
	// providers that run without sub-providers are listed by provider id.
	ExcludeIDs map[string]bool
	// RequireHealthy makes selection fail instead of falling back to
	// degraded or unhealthy candidates.
	RequireHealthy bool
}

// Selection is a chosen upstream account. SubProvider is nil for providers
// that run without keyed accounts.
type Selection struct {
	Provider    *gateway.Provider
	SubProvider *gateway.SubProvider
}

// Balancer routes requests across providers and their sub-providers.
type Balancer struct {
	mu        sync.RWMutex
	providers []gateway.Provider
	subs      map[string][]gateway.SubProvider // by provider id
	states    map[string]*subState             // by sub-provider id
	metrics   map[string]*providerMetrics      // by provider id

	logger *slog.Logger
	prom   *telemetry.Metrics
	now    func() time.Time
	randFn func() float64
}

// New creates an empty Balancer; call SetProviders before Select.
func New(logger *slog.Logger, prom *telemetry.Metrics) *Balancer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Balancer{
		subs:    make(map[string][]gateway.SubProvider),
		states:  make(map[string]*subState),
		metrics: make(map[string]*providerMetrics),
		logger:  logger,
		prom:    prom,
		now:     time.Now,
		randFn:  rand.Float64,
	}
}

// SetProviders replaces the routing table. Runtime state for sub-providers
// that survive the update is preserved.
func (b *Balancer) SetProviders(providers []gateway.Provider, subs map[string][]gateway.SubProvider) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.providers = providers
	b.subs = subs
	for _, list := range subs {
		for _, sub := range list {
			if st, ok := b.states[sub.ID]; ok {
				st.mu.Lock()
				st.sub = sub
				st.mu.Unlock()
			} else {
				b.states[sub.ID] = newSubState(sub)
			}
		}
	}
	for _, p := range providers {
		if _, ok := b.metrics[p.ID]; !ok {
			b.metrics[p.ID] = &providerMetrics{}
		}
	}
}

// candidate is one selectable (provider, sub-provider) pair with its score.
type candidate struct {
	provider *gateway.Provider
	sub      *gateway.SubProvider
	state    *subState

	health    int
	latencyMs float64
	priority  int
	weight    int
}

// band groups candidates for fallback: healthy, degraded, unhealthy.
func (c candidate) band() int {
	switch {
	case c.health >= healthyFloor:
		return 0
	case c.health >= degradedFloor:
		return 1
	default:
		return 2
	}
}

// Select picks the best available upstream account for the request, or
// returns gateway.ErrNoAvailableProviders.
//
// Candidates are scored lexicographically by (health score, -avg latency,
// priority, weight); ties within the top band break by weighted random pick.
func (b *Balancer) Select(req SelectRequest) (*Selection, error) {
	now := b.now()

	b.mu.RLock()
	var candidates []candidate
	for i := range b.providers {
		p := &b.providers[i]
		if !p.IsActive || !p.ServesModel(req.Model) || !p.Supports(req.Capability) {
			continue
		}

		subs := b.subs[p.ID]
		if !p.NeedsSubProviders && len(subs) == 0 {
			if !req.ExcludeIDs[p.ID] {
				candidates = append(candidates, candidate{provider: p, health: 100, priority: p.Priority, weight: 1})
			}
			continue
		}
		for j := range subs {
			sub := &subs[j]
			if !sub.IsEnabled || req.ExcludeIDs[sub.ID] {
				continue
			}
			st := b.states[sub.ID]
			st.mu.Lock()
			open := st.breaker.state == breakerOpen && now.Before(st.breaker.nextAttemptAt)
			probeBusy := st.breaker.state == breakerHalfOpen && st.breaker.probing
			ok := !open && !probeBusy && st.withinLimits(now, req.EstimatedTokens)
			health := st.healthScore()
			latency := st.avgLatencyMs
			st.mu.Unlock()
			if !ok {
				continue
			}
			candidates = append(candidates, candidate{
				provider:  p,
				sub:       sub,
				state:     st,
				health:    health,
				latencyMs: latency,
				priority:  sub.Priority,
				weight:    max(sub.Weight, 1),
			})
		}
	}
	b.mu.RUnlock()

	if len(candidates) == 0 {
		return nil, gateway.ErrNoAvailableProviders
	}

	pick := b.pick(candidates, req.RequireHealthy)
	if pick == nil {
		return nil, gateway.ErrNoAvailableProviders
	}

	// Claim the half-open probe slot if the winner is mid-recovery.
	if pick.state != nil {
		pick.state.mu.Lock()
		pick.state.breaker.allow(now)
		pick.state.mu.Unlock()
	}
	return &Selection{Provider: pick.provider, SubProvider: pick.sub}, nil
}

// pick orders candidates and applies the weighted-random tie break.
func (b *Balancer) pick(candidates []candidate, requireHealthy bool) *candidate {
	// Prefer the best band; requireHealthy refuses everything below it.
	bestBand := 3
	for _, c := range candidates {
		if band := c.band(); band < bestBand {
			bestBand = band
		}
	}
	if requireHealthy && bestBand > 0 {
		return nil
	}

	var best *candidate
	for i := range candidates {
		c := &candidates[i]
		if c.band() != bestBand {
			continue
		}
		if best == nil || c.beats(best) {
			best = c
		}
	}
	if best == nil {
		return nil
	}

	// Weighted random among candidates tied with the winner.
	var tied []*candidate
	total := 0
	for i := range candidates {
		c := &candidates[i]
		if c.band() == bestBand && c.ties(best) {
			tied = append(tied, c)
			total += c.weight
		}
	}
	if len(tied) <= 1 {
		return best
	}
	r := b.randFn() * float64(total)
	for _, c := range tied {
		r -= float64(c.weight)
		if r < 0 {
			return c
		}
	}
	return tied[len(tied)-1]
}

// beats reports whether c outranks other on (health, -latency, priority).
func (c *candidate) beats(other *candidate) bool {
	if c.health != other.health {
		return c.health > other.health
	}
	if c.latencyMs != other.latencyMs {
		return c.latencyMs < other.latencyMs
	}
	return c.priority > other.priority
}

// ties reports whether c scores identically to other before the weight key.
func (c *candidate) ties(other *candidate) bool {
	return c.health == other.health && c.latencyMs == other.latencyMs && c.priority == other.priority
}

// RecordRequestStart reserves capacity on a sub-provider: window entries,
// concurrency slot, token reservation.
func (b *Balancer) RecordRequestStart(subProviderID string, tokens int) {
	st := b.stateFor(subProviderID)
	if st == nil {
		return
	}
	now := b.now()
	st.mu.Lock()
	st.reserve(now, tokens)
	st.mu.Unlock()
}

// Outcome describes a finished dispatch attempt.
type Outcome struct {
	ProviderID    string
	SubProviderID string
	Success       bool
	Latency       time.Duration
	Tokens        int
	ErrorMessage  string
}

// RecordRequestComplete releases the concurrency slot, updates counters and
// latency stats, and advances the circuit breaker. Critical failures that
// trip the circuit are logged and counted.
func (b *Balancer) RecordRequestComplete(o Outcome) {
	now := b.now()

	if st := b.stateFor(o.SubProviderID); st != nil {
		var critical, timeout bool
		if !o.Success {
			kind := Classify(o.ErrorMessage)
			critical = IsCritical(o.ErrorMessage)
			timeout = kind == gateway.KindTimeout
		}
		st.mu.Lock()
		opened := st.release(now, o.Success, critical, timeout, o.Latency)
		st.mu.Unlock()

		if opened {
			b.logger.LogAttrs(context.Background(), slog.LevelWarn, "circuit opened",
				slog.String("sub_provider_id", o.SubProviderID),
				slog.String("error", o.ErrorMessage),
			)
			if b.prom != nil {
				b.prom.CircuitOpens.WithLabelValues(o.SubProviderID).Inc()
			}
		}
	}

	if o.ProviderID != "" {
		b.mu.RLock()
		m := b.metrics[o.ProviderID]
		b.mu.RUnlock()
		if m != nil {
			m.record(now, o.Latency)
		}
	}
}

func (b *Balancer) stateFor(subProviderID string) *subState {
	if subProviderID == "" {
		return nil
	}
	b.mu.RLock()
	st := b.states[subProviderID]
	b.mu.RUnlock()
	return st
}

// SubProviderStatuses returns runtime state for every known sub-provider,
// for the admin surface.
func (b *Balancer) SubProviderStatuses() []SubProviderStatus {
	b.mu.RLock()
	states := make([]*subState, 0, len(b.states))
	for _, st := range b.states {
		states = append(states, st)
	}
	b.mu.RUnlock()

	out := make([]SubProviderStatus, 0, len(states))
	for _, st := range states {
		st.mu.Lock()
		out = append(out, st.status())
		st.mu.Unlock()
	}
	return out
}

// ProviderLatency returns the latency distribution for one provider.
func (b *Balancer) ProviderLatency(providerID string) LatencyStats {
	b.mu.RLock()
	m := b.metrics[providerID]
	b.mu.RUnlock()
	if m == nil {
		return LatencyStats{}
	}
	return m.stats(b.now())
}
