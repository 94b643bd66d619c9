// Package provider defines the interface and implementations for enrichment
// data providers.
package provider

import (
	"context"
	"sort"
	"sync"

	"github.com/sells-group/leads-cli/internal/model"
)

// Provider tiers. Free providers are always tried before paid ones.
const (
	TierFree = 0
	TierPaid = 1
)

// Input holds the identifiers a provider can use to look up a company.
type Input struct {
	Email          string
	CompanyName    string
	CompanyDomain  string
	CompanyWebsite string
}

// Query returns the best available search term for name-based providers.
func (in Input) Query() string {
	if in.CompanyName != "" {
		return in.CompanyName
	}
	return in.CompanyDomain
}

// Provider fetches enrichment fields for a company. A lookup that completes
// without finding anything returns an empty bag and a nil error; errors are
// reserved for failed calls.
type Provider interface {
	// Name returns the provider identifier used in cache entries and stats.
	Name() string
	// Tier returns TierFree or TierPaid.
	Tier() int
	// CostPerLookup returns the USD cost charged per lookup attempt.
	CostPerLookup() float64
	// Available reports whether the provider is usable, typically whether a
	// credential was configured.
	Available() bool
	// Lookup fetches fields for the given company.
	Lookup(ctx context.Context, in Input) (model.FieldBag, error)
}

// Registry manages available providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	order     []string
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register adds a provider to the registry. Registration order breaks ties
// within a tier.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[p.Name()]; !ok {
		r.order = append(r.order, p.Name())
	}
	r.providers[p.Name()] = p
}

// Get returns a provider by name, or nil if not found.
func (r *Registry) Get(name string) Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.providers[name]
}

// List returns all registered provider names in priority order.
func (r *Registry) List() []string {
	return namesOf(r.ByPriority())
}

// ByPriority returns all providers sorted free tier first, preserving
// registration order within each tier.
func (r *Registry) ByPriority() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Provider, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.providers[name])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Tier() < out[j].Tier() })
	return out
}

func namesOf(providers []Provider) []string {
	names := make([]string, len(providers))
	for i, p := range providers {
		names[i] = p.Name()
	}
	return names
}
