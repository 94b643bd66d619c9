// Package pipeline drives a lead through the processing state machine:
// normalize, deduplicate, enrich, verify, score. Each stage commits its
// status transition before the next stage runs, so a crashed or retried run
// resumes exactly where the last commit left the lead.
package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leads-cli/internal/dedup"
	"github.com/sells-group/leads-cli/internal/enrich"
	"github.com/sells-group/leads-cli/internal/model"
	"github.com/sells-group/leads-cli/internal/normalize"
	"github.com/sells-group/leads-cli/internal/resilience"
	"github.com/sells-group/leads-cli/internal/score"
	"github.com/sells-group/leads-cli/internal/store"
	"github.com/sells-group/leads-cli/internal/verify"
)

// Stage entry ranks: a stage runs only when the lead's current status rank
// is below the rank the stage produces.
const (
	rankNormalized = 1
	rankEnriched   = 2
	rankVerified   = 3
	rankScored     = 4
)

// Options toggles optional stages for one ProcessLead call.
type Options struct {
	SkipEnrichment   bool
	SkipVerification bool
}

// ICPResolver returns the per-tenant qualification config. The pipeline
// treats the result as read-only.
type ICPResolver func(ctx context.Context, tenantID string) *model.ICPConfig

// Config wires the pipeline's collaborators together.
type Config struct {
	// Workers bounds batch parallelism. Default 5.
	Workers int
	// ICPFor resolves tenant qualification config. Default: DefaultICPConfig.
	ICPFor ICPResolver
}

// Pipeline orchestrates the lead stages.
type Pipeline struct {
	store    store.Store
	dedup    *dedup.Deduplicator
	enricher *enrich.Orchestrator
	verifier *verify.Verifier
	workers  int
	icpFor   ICPResolver
}

// New assembles a Pipeline.
func New(cfg Config, st store.Store, dd *dedup.Deduplicator, en *enrich.Orchestrator, vf *verify.Verifier) *Pipeline {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 5
	}
	icpFor := cfg.ICPFor
	if icpFor == nil {
		icpFor = func(_ context.Context, tenantID string) *model.ICPConfig {
			return model.DefaultICPConfig(tenantID)
		}
	}
	return &Pipeline{
		store:    st,
		dedup:    dd,
		enricher: en,
		verifier: vf,
		workers:  workers,
		icpFor:   icpFor,
	}
}

// leadOutcome records which stages did real work during one run, for batch
// summary accounting.
type leadOutcome struct {
	enriched bool
	verified bool
}

// ProcessLead advances one lead as far through the pipeline as it can go.
// Terminal leads are returned unchanged. A non-nil error means a stage
// failed to persist its transition; the lead's last committed status is
// authoritative and the run is safe to retry.
func (p *Pipeline) ProcessLead(ctx context.Context, leadID string, opts Options) (*model.Lead, error) {
	lead, _, err := p.run(ctx, leadID, opts)
	return lead, err
}

func (p *Pipeline) run(ctx context.Context, leadID string, opts Options) (*model.Lead, leadOutcome, error) {
	var outcome leadOutcome

	lead, err := p.store.GetLead(ctx, leadID)
	if err != nil {
		return nil, outcome, eris.Wrap(err, "pipeline: load lead")
	}
	if lead.Status.IsTerminal() {
		return lead, outcome, nil
	}

	icp := p.icpFor(ctx, lead.TenantID)

	// Normalize.
	if lead.Status.StageRank() < rankNormalized {
		if err := p.normalizeStage(ctx, lead); err != nil {
			return lead, outcome, err
		}
		if lead.Status == model.StatusError {
			return lead, outcome, nil
		}
	}

	// Deduplicate, then enrich. The claim is released if a later commit
	// fails so a retry (or a sibling lead) can re-claim the fingerprint.
	if lead.Status.StageRank() < rankEnriched {
		claimed, err := p.dedupStage(ctx, lead)
		if err != nil {
			return lead, outcome, err
		}
		if lead.Status == model.StatusRejectedDuplicate {
			return lead, outcome, nil
		}

		if err := p.enrichStage(ctx, lead, icp, opts, &outcome); err != nil {
			if claimed {
				p.dedup.Release(ctx, lead.TenantID, lead.Fingerprint())
			}
			return lead, outcome, err
		}
	}

	// Verify.
	if lead.Status.StageRank() < rankVerified {
		if err := p.verifyStage(ctx, lead, icp, opts, &outcome); err != nil {
			return lead, outcome, err
		}
	}

	// Score.
	if lead.Status.StageRank() < rankScored {
		if err := p.scoreStage(ctx, lead, icp); err != nil {
			return lead, outcome, err
		}
	}

	return lead, outcome, nil
}

func (p *Pipeline) normalizeStage(ctx context.Context, lead *model.Lead) error {
	normalized := *lead
	if err := normalize.Lead(&normalized); err != nil {
		zap.L().Warn("lead failed normalization",
			zap.String("lead_id", lead.ID),
			zap.String("tenant_id", lead.TenantID),
			zap.Error(err))
		return p.failLead(ctx, lead, err)
	}

	fields := map[string]any{
		"email":           normalized.Email,
		"first_name":      normalized.FirstName,
		"last_name":       normalized.LastName,
		"phone":           normalized.Phone,
		"job_title":       normalized.JobTitle,
		"company_name":    normalized.CompanyName,
		"company_domain":  normalized.CompanyDomain,
		"company_website": normalized.CompanyWebsite,
		"linkedin_url":    normalized.LinkedInURL,
		"fingerprint":     normalized.Fingerprint(),
	}
	if err := p.commit(ctx, lead, model.StatusNormalized, fields); err != nil {
		return err
	}

	lead.Email = normalized.Email
	lead.FirstName = normalized.FirstName
	lead.LastName = normalized.LastName
	lead.Phone = normalized.Phone
	lead.JobTitle = normalized.JobTitle
	lead.CompanyName = normalized.CompanyName
	lead.CompanyDomain = normalized.CompanyDomain
	lead.CompanyWebsite = normalized.CompanyWebsite
	lead.LinkedInURL = normalized.LinkedInURL
	return nil
}

// dedupStage claims the lead's fingerprint. Returns whether this lead now
// holds the claim.
func (p *Pipeline) dedupStage(ctx context.Context, lead *model.Lead) (bool, error) {
	claim, err := p.dedup.CheckAndClaim(ctx, lead.TenantID, lead.Fingerprint(), lead.ID)
	if err != nil {
		return false, eris.Wrap(err, "pipeline: dedup check")
	}
	if !claim.IsDuplicate {
		return true, nil
	}

	bag := cloneBag(lead.EnrichmentData)
	bag[model.FieldDuplicateOf] = claim.ExistingLeadID
	fields := map[string]any{"enrichment_data": marshalBag(bag)}
	if err := p.commit(ctx, lead, model.StatusRejectedDuplicate, fields); err != nil {
		return false, err
	}
	lead.EnrichmentData = bag
	zap.L().Info("lead rejected as duplicate",
		zap.String("lead_id", lead.ID),
		zap.String("existing_lead_id", claim.ExistingLeadID))
	return false, nil
}

// identityColumns maps enrichment field keys that correspond to lead
// columns. Identity columns are only filled when the lead has no value yet;
// firmographic columns are always overwritten by fresher data.
var identityColumns = map[model.FieldKey]string{
	"first_name":      "first_name",
	"last_name":       "last_name",
	"job_title":       "job_title",
	"linkedin_url":    "linkedin_url",
	"company_name":    "company_name",
	"company_website": "company_website",
}

func (p *Pipeline) enrichStage(ctx context.Context, lead *model.Lead, icp *model.ICPConfig, opts Options, outcome *leadOutcome) error {
	if opts.SkipEnrichment || !icp.EnrichmentEnabled {
		return p.commit(ctx, lead, model.StatusEnriched, nil)
	}

	res := p.enricher.Enrich(ctx, enrich.Request{
		TenantID:       lead.TenantID,
		Email:          lead.Email,
		CompanyDomain:  lead.CompanyDomain,
		CompanyName:    lead.CompanyName,
		CompanyWebsite: lead.CompanyWebsite,
		ICP:            icp,
	})
	if !res.Success {
		zap.L().Warn("enrichment produced no data",
			zap.String("lead_id", lead.ID),
			zap.String("error", res.Err))
		return p.commit(ctx, lead, model.StatusEnriched, nil)
	}

	fields := map[string]any{}
	bag := cloneBag(lead.EnrichmentData)
	updatedColumns := map[string]string{}

	for key, value := range res.Data {
		str, _ := value.(string)
		if col, ok := identityColumns[key]; ok {
			if str != "" && leadColumn(lead, col) == "" {
				fields[col] = str
				updatedColumns[col] = str
			}
			continue
		}
		if key == model.FieldIndustry {
			if str != "" {
				fields["company_industry"] = str
				updatedColumns["company_industry"] = str
			}
			continue
		}
		bag.Merge(model.FieldBag{key: value})
	}

	fields["enrichment_data"] = marshalBag(bag)
	if err := p.commit(ctx, lead, model.StatusEnriched, fields); err != nil {
		return err
	}

	lead.EnrichmentData = bag
	applyColumns(lead, updatedColumns)
	outcome.enriched = true
	return nil
}

func (p *Pipeline) verifyStage(ctx context.Context, lead *model.Lead, icp *model.ICPConfig, opts Options, outcome *leadOutcome) error {
	if opts.SkipVerification || !icp.VerificationEnabled || p.verifier == nil {
		return p.commit(ctx, lead, model.StatusVerified, nil)
	}

	res, err := p.verifier.Verify(ctx, lead.Email)
	if err != nil {
		// Non-fatal: advance with verification fields left empty.
		return p.commit(ctx, lead, model.StatusVerified, nil)
	}

	bag := cloneBag(lead.EnrichmentData)
	bag[model.FieldVerification] = map[string]any{
		"status":     res.Status,
		"provider":   res.Provider,
		"disposable": res.Disposable,
		"role_based": res.RoleBased,
	}
	fields := map[string]any{
		"email_verified":       res.Verified,
		"deliverability_score": res.DeliverabilityScore,
		"enrichment_data":      marshalBag(bag),
	}
	if err := p.commit(ctx, lead, model.StatusVerified, fields); err != nil {
		return err
	}

	lead.EmailVerified = res.Verified
	deliv := res.DeliverabilityScore
	lead.DeliverabilityScore = &deliv
	lead.EnrichmentData = bag
	outcome.verified = true
	return nil
}

func (p *Pipeline) scoreStage(ctx context.Context, lead *model.Lead, icp *model.ICPConfig) error {
	in := score.Input{
		JobTitle:       lead.JobTitle,
		EmailVerified:  lead.EmailVerified,
		FirstName:      lead.FirstName,
		LastName:       lead.LastName,
		Email:          lead.Email,
		Phone:          lead.Phone,
		CompanyName:    lead.CompanyName,
		CompanyDomain:  lead.CompanyDomain,
		CompanyWebsite: lead.CompanyWebsite,
		LinkedInURL:    lead.LinkedInURL,
	}
	if lead.DeliverabilityScore != nil {
		in.DeliverabilityScore = *lead.DeliverabilityScore
	}
	if count, ok := lead.EnrichmentData[model.FieldEmployeeCount].(string); ok {
		in.EmployeeCount = count
	}

	fitScore := score.Score(in)

	bag := cloneBag(lead.EnrichmentData)
	switch {
	case fitScore >= icp.AutoApproveThreshold:
		bag[model.FieldQualification] = "auto_approved"
	case fitScore < icp.AutoRejectThreshold:
		bag[model.FieldQualification] = "auto_reject"
	}

	fields := map[string]any{
		"fit_score":       fitScore,
		"enrichment_data": marshalBag(bag),
	}
	if err := p.commit(ctx, lead, model.StatusPendingReview, fields); err != nil {
		return err
	}

	lead.FitScore = &fitScore
	lead.EnrichmentData = bag
	return nil
}

// failLead persists the terminal error status with the failure recorded in
// the field bag. The returned error is nil: the lead reached a defined
// state and retrying will not help.
func (p *Pipeline) failLead(ctx context.Context, lead *model.Lead, cause error) error {
	bag := cloneBag(lead.EnrichmentData)
	bag[model.FieldPipelineError] = map[string]any{
		"message":        cause.Error(),
		"classification": resilience.ClassifyError(cause),
		"failed_at":      time.Now().UTC().Format(time.RFC3339),
	}
	fields := map[string]any{"enrichment_data": marshalBag(bag)}
	if err := p.commit(ctx, lead, model.StatusError, fields); err != nil {
		return err
	}
	lead.EnrichmentData = bag
	return nil
}

// commit persists a status transition and mirrors it onto the in-memory
// lead. A commit failure leaves the lead at its last persisted status.
func (p *Pipeline) commit(ctx context.Context, lead *model.Lead, to model.LeadStatus, fields map[string]any) error {
	if err := p.store.UpdateLeadStatus(ctx, lead.ID, lead.Status, to, fields); err != nil {
		return eris.Wrapf(err, "pipeline: commit %s -> %s", lead.Status, to)
	}
	lead.Status = to
	lead.UpdatedAt = time.Now().UTC()
	return nil
}

func leadColumn(lead *model.Lead, col string) string {
	switch col {
	case "first_name":
		return lead.FirstName
	case "last_name":
		return lead.LastName
	case "job_title":
		return lead.JobTitle
	case "linkedin_url":
		return lead.LinkedInURL
	case "company_name":
		return lead.CompanyName
	case "company_website":
		return lead.CompanyWebsite
	}
	return ""
}

func applyColumns(lead *model.Lead, cols map[string]string) {
	for col, val := range cols {
		switch col {
		case "first_name":
			lead.FirstName = val
		case "last_name":
			lead.LastName = val
		case "job_title":
			lead.JobTitle = val
		case "linkedin_url":
			lead.LinkedInURL = val
		case "company_name":
			lead.CompanyName = val
		case "company_website":
			lead.CompanyWebsite = val
		case "company_industry":
			lead.CompanyIndustry = val
		}
	}
}

func cloneBag(bag model.FieldBag) model.FieldBag {
	if bag == nil {
		return model.FieldBag{}
	}
	return bag.Clone()
}

// marshalBag serializes the bag for the enrichment_data column. The bag is
// always a marshalable map; a failure here would be a programming error.
func marshalBag(bag model.FieldBag) string {
	raw, err := json.Marshal(bag)
	if err != nil {
		zap.L().Error("enrichment data marshal failed", zap.Error(err))
		return "{}"
	}
	return string(raw)
}
