package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leads-cli/internal/cache"
	"github.com/sells-group/leads-cli/internal/cost"
	"github.com/sells-group/leads-cli/internal/dedup"
	"github.com/sells-group/leads-cli/internal/enrich"
	"github.com/sells-group/leads-cli/internal/enrich/provider"
	"github.com/sells-group/leads-cli/internal/model"
	"github.com/sells-group/leads-cli/internal/store"
	"github.com/sells-group/leads-cli/internal/verify"
	"github.com/sells-group/leads-cli/pkg/zerobounce"
)

// stubProvider returns a fixed field bag for every lookup.
type stubProvider struct {
	name string
	bag  model.FieldBag
	err  error

	mu    sync.Mutex
	calls int
}

func (p *stubProvider) Name() string           { return p.name }
func (p *stubProvider) Tier() int              { return provider.TierFree }
func (p *stubProvider) CostPerLookup() float64 { return 0 }
func (p *stubProvider) Available() bool        { return true }

func (p *stubProvider) Lookup(ctx context.Context, in provider.Input) (model.FieldBag, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	return p.bag.Clone(), nil
}

// validEmailClient scripts the verification provider.
type validEmailClient struct {
	status string
	err    error
}

func (c *validEmailClient) Validate(ctx context.Context, email string) (*zerobounce.ValidateResponse, error) {
	if c.err != nil {
		return nil, c.err
	}
	return &zerobounce.ValidateResponse{Address: email, Status: c.status}, nil
}

type fixture struct {
	pipeline *Pipeline
	store    store.Store
	provider *stubProvider
	dedup    *dedup.Deduplicator
}

func newFixture(t *testing.T, opts ...func(*fixture)) *fixture {
	t.Helper()

	st, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })

	f := &fixture{
		store: st,
		provider: &stubProvider{name: "techstack", bag: model.FieldBag{
			model.FieldIndustry:      "SaaS",
			model.FieldDescription:   "Cloud software",
			model.FieldEmployeeCount: "120",
		}},
	}
	for _, o := range opts {
		o(f)
	}

	reg := provider.NewRegistry()
	reg.Register(f.provider)
	enricher := enrich.NewOrchestrator(enrich.Config{}, reg, f.store, cache.NewMemory(), cost.DefaultRates())

	f.dedup = dedup.New(cache.NewMemory(), f.store, time.Minute)
	verifier := verify.New(&validEmailClient{status: zerobounce.StatusValid}, time.Second)

	f.pipeline = New(Config{}, f.store, f.dedup, enricher, verifier)
	return f
}

func (f *fixture) createLead(t *testing.T, lead *model.Lead) *model.Lead {
	t.Helper()
	if lead.TenantID == "" {
		lead.TenantID = "tenant-1"
	}
	created, err := f.store.CreateLead(context.Background(), lead)
	require.NoError(t, err)
	return created
}

func TestProcessLead_HappyPath(t *testing.T) {
	f := newFixture(t)
	lead := f.createLead(t, &model.Lead{
		Email:       "  Jane@Acme.COM ",
		FirstName:   "jane",
		LastName:    "DOE",
		JobTitle:    "vp   of sales",
		CompanyName: "Acme",
	})

	got, err := f.pipeline.ProcessLead(context.Background(), lead.ID, Options{})
	require.NoError(t, err)

	assert.Equal(t, model.StatusPendingReview, got.Status)
	assert.Equal(t, "jane@acme.com", got.Email)
	assert.Equal(t, "Jane", got.FirstName)
	assert.Equal(t, "Doe", got.LastName)
	assert.Equal(t, "Vp Of Sales", got.JobTitle)
	assert.Equal(t, "acme.com", got.CompanyDomain)
	assert.Equal(t, "SaaS", got.CompanyIndustry)
	assert.Equal(t, "Cloud software", got.EnrichmentData[model.FieldDescription])
	assert.True(t, got.EmailVerified)
	require.NotNil(t, got.DeliverabilityScore)
	assert.Equal(t, 100.0, *got.DeliverabilityScore)
	require.NotNil(t, got.FitScore)
	assert.Greater(t, *got.FitScore, 0.0)
	assert.LessOrEqual(t, *got.FitScore, 100.0)

	// The store agrees with the in-memory view.
	persisted, err := f.store.GetLead(context.Background(), lead.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPendingReview, persisted.Status)
	assert.Equal(t, "SaaS", persisted.CompanyIndustry)
	require.NotNil(t, persisted.FitScore)
	assert.Equal(t, *got.FitScore, *persisted.FitScore)
}

func TestProcessLead_InvalidEmailLandsInError(t *testing.T) {
	f := newFixture(t)
	lead := f.createLead(t, &model.Lead{Email: "not-an-email"})

	got, err := f.pipeline.ProcessLead(context.Background(), lead.ID, Options{})
	require.NoError(t, err)
	assert.Equal(t, model.StatusError, got.Status)

	persisted, err := f.store.GetLead(context.Background(), lead.ID)
	require.NoError(t, err)
	detail, ok := persisted.EnrichmentData[model.FieldPipelineError].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, detail["message"], "invalid lead")
	assert.Equal(t, "permanent", detail["classification"])

	// Terminal: re-running is a no-op.
	again, err := f.pipeline.ProcessLead(context.Background(), lead.ID, Options{})
	require.NoError(t, err)
	assert.Equal(t, model.StatusError, again.Status)
	assert.Zero(t, f.provider.calls)
}

func TestProcessLead_DuplicateRejected(t *testing.T) {
	f := newFixture(t)
	winner := f.createLead(t, &model.Lead{Email: "jane@acme.com"})
	dup := f.createLead(t, &model.Lead{Email: "Jane@Acme.com"})

	_, err := f.pipeline.ProcessLead(context.Background(), winner.ID, Options{})
	require.NoError(t, err)

	got, err := f.pipeline.ProcessLead(context.Background(), dup.ID, Options{})
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejectedDuplicate, got.Status)
	assert.Equal(t, winner.ID, got.EnrichmentData[model.FieldDuplicateOf])
}

func TestProcessLead_DuplicateCaughtByDurableIndexAfterClaimLoss(t *testing.T) {
	f := newFixture(t)
	winner := f.createLead(t, &model.Lead{Email: "jane@acme.com"})
	_, err := f.pipeline.ProcessLead(context.Background(), winner.ID, Options{})
	require.NoError(t, err)

	// Simulate a restart: the fast-tier claim is gone, only the durable
	// fingerprint index remains.
	f.dedup.Release(context.Background(), "tenant-1", "jane@acme.com")

	dup := f.createLead(t, &model.Lead{Email: "jane@acme.com"})
	got, err := f.pipeline.ProcessLead(context.Background(), dup.ID, Options{})
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejectedDuplicate, got.Status)
	assert.Equal(t, winner.ID, got.EnrichmentData[model.FieldDuplicateOf])
}

func TestProcessLead_SkipFlags(t *testing.T) {
	f := newFixture(t)
	lead := f.createLead(t, &model.Lead{Email: "jane@acme.com"})

	got, err := f.pipeline.ProcessLead(context.Background(), lead.ID,
		Options{SkipEnrichment: true, SkipVerification: true})
	require.NoError(t, err)

	assert.Equal(t, model.StatusPendingReview, got.Status)
	assert.Empty(t, got.CompanyIndustry)
	assert.False(t, got.EmailVerified)
	assert.Nil(t, got.DeliverabilityScore)
	assert.NotContains(t, got.EnrichmentData, model.FieldVerification)
	assert.Zero(t, f.provider.calls)
	require.NotNil(t, got.FitScore)
}

func TestProcessLead_EnrichmentFailureStillAdvances(t *testing.T) {
	f := newFixture(t, func(f *fixture) {
		f.provider = &stubProvider{name: "techstack", err: eris.New("fetch failed")}
	})
	lead := f.createLead(t, &model.Lead{Email: "jane@acme.com"})

	got, err := f.pipeline.ProcessLead(context.Background(), lead.ID, Options{})
	require.NoError(t, err)

	assert.Equal(t, model.StatusPendingReview, got.Status)
	assert.Empty(t, got.CompanyIndustry)
	assert.NotContains(t, got.EnrichmentData, model.FieldDescription)
	// Verification still ran.
	assert.True(t, got.EmailVerified)
}

func TestProcessLead_ResumesFromCommittedStage(t *testing.T) {
	f := newFixture(t)
	lead := f.createLead(t, &model.Lead{
		Email:  "jane@acme.com",
		Status: model.StatusEnriched,
	})

	got, err := f.pipeline.ProcessLead(context.Background(), lead.ID, Options{})
	require.NoError(t, err)

	assert.Equal(t, model.StatusPendingReview, got.Status)
	// Earlier stages did not re-run.
	assert.Zero(t, f.provider.calls)
	assert.True(t, got.EmailVerified)
	require.NotNil(t, got.FitScore)
}

func TestProcessLead_QualificationHints(t *testing.T) {
	f := newFixture(t)

	strong := f.createLead(t, &model.Lead{
		Email:       "jane@acme.com",
		FirstName:   "Jane",
		LastName:    "Doe",
		Phone:       "+15551234567",
		JobTitle:    "CEO",
		CompanyName: "Acme",
		LinkedInURL: "https://linkedin.com/in/janedoe",
	})
	got, err := f.pipeline.ProcessLead(context.Background(), strong.ID, Options{})
	require.NoError(t, err)
	assert.Equal(t, "auto_approved", got.EnrichmentData[model.FieldQualification])

	weak := f.createLead(t, &model.Lead{Email: "x@thin-lead.example"})
	got, err = f.pipeline.ProcessLead(context.Background(), weak.ID,
		Options{SkipEnrichment: true, SkipVerification: true})
	require.NoError(t, err)
	assert.Equal(t, "auto_reject", got.EnrichmentData[model.FieldQualification])
}

// commitFailStore fails one specific status transition once.
type commitFailStore struct {
	store.Store

	mu     sync.Mutex
	failTo model.LeadStatus
	fired  bool
}

func (s *commitFailStore) UpdateLeadStatus(ctx context.Context, id string, from, to model.LeadStatus, fields map[string]any) error {
	s.mu.Lock()
	shouldFail := to == s.failTo && !s.fired
	if shouldFail {
		s.fired = true
	}
	s.mu.Unlock()
	if shouldFail {
		return eris.New("connection reset")
	}
	return s.Store.UpdateLeadStatus(ctx, id, from, to, fields)
}

func TestProcessLead_PersistenceFailureIsRetryable(t *testing.T) {
	f := newFixture(t)
	wrapped := &commitFailStore{Store: f.store, failTo: model.StatusVerified}

	reg := provider.NewRegistry()
	reg.Register(f.provider)
	enricher := enrich.NewOrchestrator(enrich.Config{}, reg, wrapped, cache.NewMemory(), cost.DefaultRates())
	verifier := verify.New(&validEmailClient{status: zerobounce.StatusValid}, time.Second)
	p := New(Config{}, wrapped, dedup.New(cache.NewMemory(), wrapped, time.Minute), enricher, verifier)

	lead := f.createLead(t, &model.Lead{Email: "jane@acme.com"})

	_, err := p.ProcessLead(context.Background(), lead.ID, Options{})
	require.Error(t, err)

	// The last committed status is authoritative.
	persisted, err := f.store.GetLead(context.Background(), lead.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusEnriched, persisted.Status)

	// Retrying finishes the run.
	got, err := p.ProcessLead(context.Background(), lead.ID, Options{})
	require.NoError(t, err)
	assert.Equal(t, model.StatusPendingReview, got.Status)
}

func TestProcessBatch_MixedLeads(t *testing.T) {
	f := newFixture(t)

	f.createLead(t, &model.Lead{Email: "a@one.example"})
	f.createLead(t, &model.Lead{Email: "b@two.example"})
	f.createLead(t, &model.Lead{Email: "c@three.example"})
	f.createLead(t, &model.Lead{Email: "broken"})
	f.createLead(t, &model.Lead{Email: "dup@four.example"})
	f.createLead(t, &model.Lead{Email: "dup@four.example"})

	summary, err := f.pipeline.ProcessBatch(context.Background(),
		store.LeadFilter{TenantID: "tenant-1", Status: model.StatusNew}, 10)
	require.NoError(t, err)

	assert.Equal(t, 6, summary.Processed)
	assert.Equal(t, 1, summary.Errored)
	assert.Equal(t, 1, summary.RejectedDuplicates)
	assert.Equal(t, 4, summary.Enriched)
	assert.Equal(t, 4, summary.Verified)

	// Every lead ended in a defined status.
	leads, err := f.store.ListLeads(context.Background(), store.LeadFilter{TenantID: "tenant-1"})
	require.NoError(t, err)
	require.Len(t, leads, 6)
	for _, l := range leads {
		assert.True(t, l.Status.Valid(), l.Email)
	}
}

func TestProcessBatch_RespectsBatchSize(t *testing.T) {
	f := newFixture(t)
	f.createLead(t, &model.Lead{Email: "a@one.example"})
	f.createLead(t, &model.Lead{Email: "b@two.example"})
	f.createLead(t, &model.Lead{Email: "c@three.example"})

	summary, err := f.pipeline.ProcessBatch(context.Background(),
		store.LeadFilter{TenantID: "tenant-1", Status: model.StatusNew}, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Processed)
}
