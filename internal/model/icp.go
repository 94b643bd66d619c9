package model

// ICPConfig is the per-tenant ideal-customer-profile configuration, owned
// by the (external) configuration surface and read-only to the pipeline.
// It names which stages and providers are enabled and the qualification
// thresholds applied after scoring.
type ICPConfig struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`

	EnrichmentEnabled   bool `json:"enrichment_enabled"`
	VerificationEnabled bool `json:"verification_enabled"`

	// ProviderOverrides toggles individual enrichment providers on or off
	// for this ICP. Absent providers fall back to the orchestrator default.
	ProviderOverrides map[string]bool `json:"provider_overrides,omitempty"`

	AutoApproveThreshold float64 `json:"auto_approve_threshold"`
	ReviewThreshold      float64 `json:"review_threshold"`
	AutoRejectThreshold  float64 `json:"auto_reject_threshold"`
}

// DefaultICPConfig returns the configuration applied when a tenant has no
// explicit ICP: everything enabled, review-everything thresholds.
func DefaultICPConfig(tenantID string) *ICPConfig {
	return &ICPConfig{
		TenantID:             tenantID,
		EnrichmentEnabled:    true,
		VerificationEnabled:  true,
		AutoApproveThreshold: 80,
		ReviewThreshold:      40,
		AutoRejectThreshold:  20,
	}
}
