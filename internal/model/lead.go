package model

import (
	"strings"
	"time"
)

// LeadStatus represents the current pipeline state of a lead.
type LeadStatus string

const (
	StatusNew           LeadStatus = "new"
	StatusNormalized    LeadStatus = "normalized"
	StatusEnriched      LeadStatus = "enriched"
	StatusVerified      LeadStatus = "verified"
	StatusPendingReview LeadStatus = "pending_review"

	// Terminal states.
	StatusRejectedDuplicate LeadStatus = "rejected_duplicate"
	StatusError             LeadStatus = "error"
	StatusArchived          LeadStatus = "archived"
)

// forwardEdges encodes the happy-path transition graph. Terminal transitions
// are handled separately in CanTransition.
var forwardEdges = map[LeadStatus]LeadStatus{
	StatusNew:        StatusNormalized,
	StatusNormalized: StatusEnriched,
	StatusEnriched:   StatusVerified,
	StatusVerified:   StatusPendingReview,
}

// stageRanks orders the forward states so stage idempotence checks can
// compare progress numerically.
var stageRanks = map[LeadStatus]int{
	StatusNew:           0,
	StatusNormalized:    1,
	StatusEnriched:      2,
	StatusVerified:      3,
	StatusPendingReview: 4,
}

// IsTerminal reports whether the status accepts no further transitions
// other than archival.
func (s LeadStatus) IsTerminal() bool {
	switch s {
	case StatusRejectedDuplicate, StatusError, StatusArchived:
		return true
	}
	return false
}

// StageRank returns the position of a forward status in the pipeline, or -1
// for terminal states.
func (s LeadStatus) StageRank() int {
	if r, ok := stageRanks[s]; ok {
		return r
	}
	return -1
}

// CanTransition reports whether moving from s to next is a legal edge.
// Status only moves forward through the pipeline, except:
//   - any non-archived state may move to error
//   - normalized may move to rejected_duplicate
//   - error may move to archived (retention sweep)
func (s LeadStatus) CanTransition(next LeadStatus) bool {
	if s == next {
		return false
	}
	switch next {
	case StatusError:
		return s != StatusArchived
	case StatusRejectedDuplicate:
		return s == StatusNormalized
	case StatusArchived:
		return s == StatusError
	}
	return forwardEdges[s] == next
}

// Valid reports whether s is a defined status value.
func (s LeadStatus) Valid() bool {
	switch s {
	case StatusNew, StatusNormalized, StatusEnriched, StatusVerified,
		StatusPendingReview, StatusRejectedDuplicate, StatusError, StatusArchived:
		return true
	}
	return false
}

// Lead is a tenant-scoped prospect record moving through the pipeline.
// Leads are created at ingestion, mutated only by pipeline stages, and
// never deleted — only archived.
type Lead struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`

	Email           string `json:"email"`
	FirstName       string `json:"first_name,omitempty"`
	LastName        string `json:"last_name,omitempty"`
	Phone           string `json:"phone,omitempty"`
	JobTitle        string `json:"job_title,omitempty"`
	CompanyName     string `json:"company_name,omitempty"`
	CompanyDomain   string `json:"company_domain,omitempty"`
	CompanyWebsite  string `json:"company_website,omitempty"`
	CompanyIndustry string `json:"company_industry,omitempty"`
	LinkedInURL     string `json:"linkedin_url,omitempty"`

	Status              LeadStatus `json:"status"`
	FitScore            *float64   `json:"fit_score,omitempty"`
	EmailVerified       bool       `json:"email_verified"`
	DeliverabilityScore *float64   `json:"deliverability_score,omitempty"`

	EnrichmentData FieldBag `json:"enrichment_data,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	ArchivedAt *time.Time `json:"archived_at,omitempty"`
}

// Active reports whether the lead holds its fingerprint: it passed
// deduplication and has not been archived. At most one active lead exists
// per (tenant, fingerprint); leads still ahead of the dedup stage do not
// count, so duplicates can be ingested and rejected by the pipeline.
func (l *Lead) Active() bool {
	switch l.Status {
	case StatusEnriched, StatusVerified, StatusPendingReview:
		return true
	}
	return false
}

// Fingerprint derives the tenant-scoped deduplication key for a lead:
// the normalized email, falling back to the company domain when no email
// is present.
func (l *Lead) Fingerprint() string {
	return Fingerprint(l.Email, l.CompanyDomain)
}

// Fingerprint builds a dedup key from an email, falling back to domain.
func Fingerprint(email, domain string) string {
	if e := strings.ToLower(strings.TrimSpace(email)); e != "" {
		return e
	}
	return strings.ToLower(strings.TrimSpace(domain))
}
