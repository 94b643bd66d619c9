// Package monitoring gathers pipeline health metrics and raises webhook
// alerts when they cross configured thresholds.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leads-cli/internal/cost"
	"github.com/sells-group/leads-cli/internal/enrich"
	"github.com/sells-group/leads-cli/internal/model"
	"github.com/sells-group/leads-cli/internal/resilience"
	"github.com/sells-group/leads-cli/internal/store"
)

// collectLimit caps how many leads one snapshot scans.
const collectLimit = 10000

// MetricsSnapshot holds a point-in-time view of pipeline health.
type MetricsSnapshot struct {
	// Lead counts within the lookback window, by status.
	LeadTotal    int                      `json:"lead_total"`
	StatusCounts map[model.LeadStatus]int `json:"status_counts"`

	// ErrorRate is errored leads over all terminal-or-scored leads in the
	// window.
	ErrorRate   float64 `json:"error_rate"`
	AvgFitScore float64 `json:"avg_fit_score"`

	// Durable enrichment cache totals (not windowed).
	CacheEntries   int     `json:"cache_entries"`
	CacheTotalHits int     `json:"cache_total_hits"`
	CacheCostUSD   float64 `json:"cache_cost_usd"`

	// Enrichment provider health for this process.
	SpendTotalUSD float64                `json:"spend_total_usd"`
	Spend         []cost.ProviderSpend   `json:"spend,omitempty"`
	Providers     []enrich.ProviderStats `json:"providers,omitempty"`
	Breakers      map[string]string      `json:"breakers,omitempty"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Collector gathers metrics from the store and the enrichment orchestrator.
// The orchestrator may be nil when only store-level stats are wanted.
type Collector struct {
	store    store.Store
	enricher *enrich.Orchestrator
}

// NewCollector creates a metrics collector.
func NewCollector(st store.Store, enricher *enrich.Orchestrator) *Collector {
	return &Collector{store: st, enricher: enricher}
}

// Collect builds a snapshot for one tenant over the lookback window.
func (c *Collector) Collect(ctx context.Context, tenantID string, lookbackHours int) (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{
		StatusCounts:  make(map[model.LeadStatus]int),
		LookbackHours: lookbackHours,
		CollectedAt:   time.Now().UTC(),
	}

	filter := store.LeadFilter{TenantID: tenantID, Limit: collectLimit}
	if lookbackHours > 0 {
		filter.CreatedAfter = time.Now().UTC().Add(-time.Duration(lookbackHours) * time.Hour)
	}
	leads, err := c.store.ListLeads(ctx, filter)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list leads")
	}

	var scoreSum float64
	var scored, settled, errored int
	for _, l := range leads {
		snap.StatusCounts[l.Status]++
		if l.FitScore != nil {
			scoreSum += *l.FitScore
			scored++
		}
		switch l.Status {
		case model.StatusError:
			errored++
			settled++
		case model.StatusPendingReview, model.StatusRejectedDuplicate, model.StatusArchived:
			settled++
		}
	}
	snap.LeadTotal = len(leads)
	if scored > 0 {
		snap.AvgFitScore = scoreSum / float64(scored)
	}
	if settled > 0 {
		snap.ErrorRate = float64(errored) / float64(settled)
	}

	cacheStats, err := c.store.CacheStats(ctx, tenantID)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: cache stats")
	}
	snap.CacheEntries = cacheStats.Entries
	snap.CacheTotalHits = cacheStats.TotalHits
	snap.CacheCostUSD = cacheStats.TotalCostUSD

	if c.enricher != nil {
		snap.SpendTotalUSD = c.enricher.Spend().Total()
		snap.Spend = c.enricher.Spend().Breakdown()
		snap.Providers = c.enricher.Stats().Snapshot()
		snap.Breakers = breakerNames(c.enricher.BreakerStates())
	}
	return snap, nil
}

func breakerNames(states map[string]resilience.CircuitState) map[string]string {
	if len(states) == 0 {
		return nil
	}
	out := make(map[string]string, len(states))
	for provider, state := range states {
		out[provider] = state.String()
	}
	return out
}
