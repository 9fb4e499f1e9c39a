// Package registry holds the static model catalog: which models exist, what
// they cost, which plans and endpoints they are open to. Built once at
// startup, read-only afterwards.
package registry

import (
	"math"
	"sort"

	gateway "github.com/ariezmeoww/voidai-backend-sub001/internal"
)

// CostType selects how a model is billed.
type CostType string

const (
	// CostPerToken bills the base cost per request, scaled by usage-derived
	// multipliers at the billing layer.
	CostPerToken CostType = "per_token"
	// CostFixed bills a flat figure per request.
	CostFixed CostType = "fixed"
)

// Model is one catalog entry.
type Model struct {
	ID                  string
	OwnedBy             string
	Endpoints           []string
	Plans               []gateway.Plan // plans with access; admin always passes
	CostType            CostType
	BaseCost            int64
	Multiplier          float64 // scales BaseCost; 1.0 when unset
	SupportsStreaming   bool
	SupportsToolCalling bool
	Capability          gateway.Capability
	DiscountEligible    bool
}

// Registry answers catalog queries. Immutable after construction.
type Registry struct {
	models map[string]*Model
	ids    []string
}

// New returns the registry over the built-in catalog.
func New() *Registry {
	return NewWithModels(builtinCatalog)
}

// NewWithModels builds a registry over an explicit model set (tests, forks).
func NewWithModels(models []Model) *Registry {
	r := &Registry{models: make(map[string]*Model, len(models))}
	for i := range models {
		m := models[i]
		if m.Multiplier == 0 {
			m.Multiplier = 1.0
		}
		r.models[m.ID] = &m
		r.ids = append(r.ids, m.ID)
	}
	sort.Strings(r.ids)
	return r
}

// Exists reports whether the model id is in the catalog.
func (r *Registry) Exists(id string) bool {
	_, ok := r.models[id]
	return ok
}

// Get returns the catalog entry for id, or nil.
func (r *Registry) Get(id string) *Model {
	return r.models[id]
}

// IDs returns all model ids in sorted order.
func (r *Registry) IDs() []string {
	return r.ids
}

// BaseCost returns the billed cost of one request to the model: the base
// figure scaled by the model multiplier, rounded to whole credits. Zero for
// unknown models.
func (r *Registry) BaseCost(id string) int64 {
	m, ok := r.models[id]
	if !ok {
		return 0
	}
	return int64(math.Round(float64(m.BaseCost) * m.Multiplier))
}

// SupportsEndpoint reports whether the model serves the given endpoint path.
func (r *Registry) SupportsEndpoint(id, endpoint string) bool {
	m, ok := r.models[id]
	if !ok {
		return false
	}
	for _, e := range m.Endpoints {
		if e == endpoint {
			return true
		}
	}
	return false
}

// HasAccess reports whether the plan may use the model. Admin always may.
func (r *Registry) HasAccess(id string, plan gateway.Plan) bool {
	if plan == gateway.PlanAdmin {
		return true
	}
	m, ok := r.models[id]
	if !ok {
		return false
	}
	for _, p := range m.Plans {
		if p == plan {
			return true
		}
	}
	return false
}

// ForCapability returns the ids of models serving the capability.
func (r *Registry) ForCapability(c gateway.Capability) []string {
	var out []string
	for _, id := range r.ids {
		if r.models[id].Capability == c {
			out = append(out, id)
		}
	}
	return out
}

// EligibleForDiscount returns the ids of models the rotation job may pick.
func (r *Registry) EligibleForDiscount() []string {
	var out []string
	for _, id := range r.ids {
		if r.models[id].DiscountEligible {
			out = append(out, id)
		}
	}
	return out
}

// plansAtOrAbove expands a minimum tier into the explicit plan set, cheapest
// tier first. Admin is implied by HasAccess and not listed.
func plansAtOrAbove(min gateway.Plan) []gateway.Plan {
	order := []gateway.Plan{
		gateway.PlanFree, gateway.PlanEconomy, gateway.PlanBasic,
		gateway.PlanPremium, gateway.PlanContributor, gateway.PlanPro,
		gateway.PlanUltra, gateway.PlanEnterprise,
	}
	for i, p := range order {
		if p == min {
			return order[i:]
		}
	}
	return nil
}
