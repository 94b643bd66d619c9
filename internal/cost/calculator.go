// Package cost tracks per-provider lookup spend across the pipeline.
package cost

import (
	"sort"
	"sync"
)

// Rates holds per-provider lookup pricing in USD.
type Rates struct {
	Serp       float64 `yaml:"serp" mapstructure:"serp"`
	ZeroBounce float64 `yaml:"zerobounce" mapstructure:"zerobounce"`
}

// DefaultRates returns the default pricing rates. Tech stack detection and
// Knowledge Graph lookups are free tiers, so they carry no rate.
func DefaultRates() Rates {
	return Rates{
		Serp:       0.002,
		ZeroBounce: 0.0008,
	}
}

// PerLookup returns the cost of one lookup for the named provider. Unknown
// providers are free.
func (r Rates) PerLookup(provider string) float64 {
	switch provider {
	case "serp":
		return r.Serp
	case "zerobounce":
		return r.ZeroBounce
	default:
		return 0
	}
}

// Tracker accumulates attempted spend per provider. Failed lookups still
// count: the API call was made whether or not it returned data.
type Tracker struct {
	mu      sync.Mutex
	rates   Rates
	lookups map[string]int
	spend   map[string]float64
}

// NewTracker creates a Tracker with the given rates.
func NewTracker(rates Rates) *Tracker {
	return &Tracker{
		rates:   rates,
		lookups: make(map[string]int),
		spend:   make(map[string]float64),
	}
}

// Record charges one lookup against the named provider and returns its cost.
func (t *Tracker) Record(provider string) float64 {
	c := t.rates.PerLookup(provider)
	t.mu.Lock()
	t.lookups[provider]++
	t.spend[provider] += c
	t.mu.Unlock()
	return c
}

// Total returns the accumulated spend across all providers.
func (t *Tracker) Total() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var total float64
	for _, s := range t.spend {
		total += s
	}
	return total
}

// ProviderSpend holds one provider's accumulated usage.
type ProviderSpend struct {
	Provider string  `json:"provider"`
	Lookups  int     `json:"lookups"`
	CostUSD  float64 `json:"cost_usd"`
}

// Breakdown returns per-provider spend sorted by provider name.
func (t *Tracker) Breakdown() []ProviderSpend {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]ProviderSpend, 0, len(t.lookups))
	for name, n := range t.lookups {
		out = append(out, ProviderSpend{Provider: name, Lookups: n, CostUSD: t.spend[name]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}
