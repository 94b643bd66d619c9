package model

import "time"

// CacheTypeCompanyEnrichment is the cache_type for merged company
// enrichment payloads keyed by lookup-key hash.
const CacheTypeCompanyEnrichment = "company_enrichment"

// CacheEntry is a durable enrichment cache row. Entries are shared across
// leads that resolve to the same lookup key (company domain), amortizing
// provider spend across a tenant's leads from the same company.
type CacheEntry struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenant_id"`
	CacheType    string    `json:"cache_type"`
	KeyHash      string    `json:"key_hash"`
	Data         FieldBag  `json:"data"`
	Providers    []string  `json:"providers"`
	CostUSD      float64   `json:"cost_usd"`
	Completeness float64   `json:"completeness"`
	HitCount     int       `json:"hit_count"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the entry is past its expiry at the given time.
func (e *CacheEntry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}
