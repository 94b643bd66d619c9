// Package store defines the persistence interface for leads and the durable
// enrichment cache tier, with Postgres and SQLite backends.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leads-cli/internal/model"
)

// ErrNotFound is returned when a lead or cache entry does not exist.
var ErrNotFound = eris.New("store: not found")

// ErrIllegalTransition is returned when a status update does not follow the
// lead state machine, or when the lead's stored status no longer matches
// the expected prior status (a concurrent writer got there first).
var ErrIllegalTransition = eris.New("store: illegal status transition")

// LeadFilter specifies criteria for listing leads.
type LeadFilter struct {
	TenantID     string           `json:"tenant_id,omitempty"`
	Status       model.LeadStatus `json:"status,omitempty"`
	CreatedAfter time.Time        `json:"created_after,omitempty"`
	Limit        int              `json:"limit,omitempty"`
	Offset       int              `json:"offset,omitempty"`
}

// CacheStats summarizes the durable enrichment cache for monitoring.
type CacheStats struct {
	Entries      int     `json:"entries"`
	TotalHits    int     `json:"total_hits"`
	TotalCostUSD float64 `json:"total_cost_usd"`
}

// Store is the persistence collaborator for the lead pipeline. All queries
// are scoped by tenant where a tenant id is given.
type Store interface {
	// Leads
	CreateLead(ctx context.Context, lead *model.Lead) (*model.Lead, error)
	GetLead(ctx context.Context, id string) (*model.Lead, error)
	// UpdateLeadStatus atomically moves a lead from one status to another,
	// applying the given column updates in the same single-row write. The
	// transition must be legal and the stored status must still equal from.
	UpdateLeadStatus(ctx context.Context, id string, from, to model.LeadStatus, fields map[string]any) error
	ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error)
	FindActiveLeadByFingerprint(ctx context.Context, tenantID, fingerprint string) (string, error)

	// Enrichment cache (durable tier)
	SaveCacheEntry(ctx context.Context, entry *model.CacheEntry) error
	GetCacheEntry(ctx context.Context, tenantID, keyHash string) (*model.CacheEntry, error)
	TouchCacheEntry(ctx context.Context, id string) error
	DeleteExpiredCacheEntries(ctx context.Context) (int, error)
	CacheStats(ctx context.Context, tenantID string) (*CacheStats, error)

	// Retention
	ArchiveStaleErrorLeads(ctx context.Context, cutoff time.Time) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// leadColumns whitelists the columns UpdateLeadStatus accepts in its fields
// map. Anything else is a programming error.
var leadColumns = map[string]bool{
	"email":                true,
	"first_name":           true,
	"last_name":            true,
	"phone":                true,
	"job_title":            true,
	"company_name":         true,
	"company_domain":       true,
	"company_website":      true,
	"company_industry":     true,
	"linkedin_url":         true,
	"fingerprint":          true,
	"fit_score":            true,
	"email_verified":       true,
	"deliverability_score": true,
	"enrichment_data":      true,
	"archived_at":          true,
}

func validateFieldColumns(fields map[string]any) error {
	for col := range fields {
		if !leadColumns[col] {
			return eris.Errorf("store: unknown lead column %q", col)
		}
	}
	return nil
}

func validateTransition(from, to model.LeadStatus) error {
	if !from.CanTransition(to) {
		return eris.Wrapf(ErrIllegalTransition, "%s -> %s", from, to)
	}
	return nil
}
