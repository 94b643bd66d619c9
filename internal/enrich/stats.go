package enrich

import (
	"sort"
	"sync"
)

// ProviderStats holds lookup counters for one provider.
type ProviderStats struct {
	Provider  string `json:"provider"`
	Successes int    `json:"successes"`
	Failures  int    `json:"failures"`
}

// Stats accumulates per-provider lookup outcomes across the orchestrator's
// lifetime.
type Stats struct {
	mu        sync.Mutex
	successes map[string]int
	failures  map[string]int
}

// NewStats creates an empty Stats.
func NewStats() *Stats {
	return &Stats{
		successes: make(map[string]int),
		failures:  make(map[string]int),
	}
}

// RecordSuccess counts a completed lookup.
func (s *Stats) RecordSuccess(provider string) {
	s.mu.Lock()
	s.successes[provider]++
	s.mu.Unlock()
}

// RecordFailure counts a failed lookup.
func (s *Stats) RecordFailure(provider string) {
	s.mu.Lock()
	s.failures[provider]++
	s.mu.Unlock()
}

// Snapshot returns per-provider counters sorted by provider name.
func (s *Stats) Snapshot() []ProviderStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := map[string]bool{}
	for n := range s.successes {
		names[n] = true
	}
	for n := range s.failures {
		names[n] = true
	}

	out := make([]ProviderStats, 0, len(names))
	for n := range names {
		out = append(out, ProviderStats{Provider: n, Successes: s.successes[n], Failures: s.failures[n]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}
