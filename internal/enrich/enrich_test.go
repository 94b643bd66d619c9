package enrich

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
	"github.com/sells-group/leads-cli/internal/enrich/provider"
	"github.com/sells-group/leads-cli/internal/model"
	"github.com/sells-group/leads-cli/internal/store"
)

// cacheOnlyStore implements the cache-entry slice of store.Store in memory.
// The lead methods are never reached by the orchestrator.
type cacheOnlyStore struct {
	store.Store

	mu      sync.Mutex
	entries map[string]*model.CacheEntry
	touched map[string]int
	saveErr error
	getErr  error
}

func newCacheOnlyStore() *cacheOnlyStore {
	return &cacheOnlyStore{
		entries: make(map[string]*model.CacheEntry),
		touched: make(map[string]int),
	}
}

func (s *cacheOnlyStore) GetCacheEntry(ctx context.Context, tenantID, keyHash string) (*model.CacheEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.entries[tenantID+"/"+keyHash], nil
}

func (s *cacheOnlyStore) SaveCacheEntry(ctx context.Context, entry *model.CacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	if entry.ID == "" {
		entry.ID = "cache-" + entry.KeyHash[:8]
	}
	s.entries[entry.TenantID+"/"+entry.KeyHash] = entry
	return nil
}

func (s *cacheOnlyStore) TouchCacheEntry(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched[id]++
	return nil
}

// fakeProvider is a scriptable provider.
type fakeProvider struct {
	name      string
	tier      int
	cost      float64
	available bool
	bag       model.FieldBag
	err       error

	mu    sync.Mutex
	calls int
}

func (f *fakeProvider) Name() string           { return f.name }
func (f *fakeProvider) Tier() int              { return f.tier }
func (f *fakeProvider) CostPerLookup() float64 { return f.cost }
func (f *fakeProvider) Available() bool        { return f.available }

func (f *fakeProvider) Lookup(ctx context.Context, in provider.Input) (model.FieldBag, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.bag.Clone(), nil
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestOrchestrator(t *testing.T, providers ...provider.Provider) (*Orchestrator, *cacheOnlyStore, *cache.Memory) {
	t.Helper()
	reg := provider.NewRegistry()
	for _, p := range providers {
		reg.Register(p)
	}
	st := newCacheOnlyStore()
	fast := cache.NewMemory()
	o := NewOrchestrator(Config{}, reg, st, fast, cost.DefaultRates())
	return o, st, fast
}

func TestEnrich_ProvidersMergedAndCached(t *testing.T) {
	free := &fakeProvider{name: "techstack", tier: provider.TierFree, available: true,
		bag: model.FieldBag{model.FieldCMS: "WordPress", model.FieldDescription: "from techstack"}}
	paid := &fakeProvider{name: "serp", tier: provider.TierPaid, cost: 0.002, available: true,
		bag: model.FieldBag{model.FieldDescription: "from serp", model.FieldFounded: "1949"}}

	o, st, _ := newTestOrchestrator(t, paid, free)

	res := o.Enrich(context.Background(), Request{TenantID: "t1", CompanyDomain: "acme.com"})
	require.True(t, res.Success)
	assert.False(t, res.CacheHit)

	// Free tier ran first, so its description wins the merge.
	assert.Equal(t, "from techstack", res.Data[model.FieldDescription])
	assert.Equal(t, "WordPress", res.Data[model.FieldCMS])
	assert.Equal(t, "1949", res.Data[model.FieldFounded])
	assert.Equal(t, []string{"techstack", "serp"}, res.ProvidersUsed)
	assert.InDelta(t, 0.002, res.CostUSD, 1e-9)

	// Durable cache entry persisted.
	entry, err := st.GetCacheEntry(context.Background(), "t1", hashKey("acme.com"))
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, model.CacheTypeCompanyEnrichment, entry.CacheType)
	assert.Equal(t, []string{"techstack", "serp"}, entry.Providers)
	assert.Greater(t, entry.Completeness, 0.0)
}

func TestEnrich_SecondCallHitsFastTier(t *testing.T) {
	p := &fakeProvider{name: "techstack", tier: provider.TierFree, available: true,
		bag: model.FieldBag{model.FieldCMS: "Shopify"}}
	o, _, _ := newTestOrchestrator(t, p)

	req := Request{TenantID: "t1", CompanyDomain: "acme.com"}
	first := o.Enrich(context.Background(), req)
	require.True(t, first.Success)

	second := o.Enrich(context.Background(), req)
	require.True(t, second.Success)
	assert.True(t, second.CacheHit)
	assert.Zero(t, second.CostUSD)
	assert.Equal(t, "Shopify", second.Data[model.FieldCMS])
	assert.Equal(t, 1, p.callCount())
}

func TestEnrich_DurableHitMirrorsAndTouches(t *testing.T) {
	p := &fakeProvider{name: "techstack", tier: provider.TierFree, available: true,
		bag: model.FieldBag{model.FieldCMS: "should not be called"}}
	o, st, fast := newTestOrchestrator(t, p)

	keyHash := hashKey("acme.com")
	require.NoError(t, st.SaveCacheEntry(context.Background(), &model.CacheEntry{
		ID:        "cache-1",
		TenantID:  "t1",
		CacheType: model.CacheTypeCompanyEnrichment,
		KeyHash:   keyHash,
		Data:      model.FieldBag{model.FieldIndustry: "SaaS"},
		Providers: []string{"kgraph"},
		ExpiresAt: time.Now().Add(time.Hour),
	}))

	res := o.Enrich(context.Background(), Request{TenantID: "t1", CompanyDomain: "acme.com"})
	require.True(t, res.Success)
	assert.True(t, res.CacheHit)
	assert.Equal(t, "SaaS", res.Data[model.FieldIndustry])
	assert.Equal(t, []string{"kgraph"}, res.ProvidersUsed)
	assert.Zero(t, p.callCount())

	// Hit count bumped and entry mirrored to the fast tier.
	assert.Equal(t, 1, st.touched["cache-1"])
	_, ok, err := fast.Get(context.Background(), fastCacheKey("t1", keyHash))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEnrich_AllProvidersFailed(t *testing.T) {
	a := &fakeProvider{name: "techstack", tier: provider.TierFree, available: true, err: eris.New("fetch failed")}
	b := &fakeProvider{name: "serp", tier: provider.TierPaid, cost: 0.002, available: true, err: eris.New("rate limited")}
	o, st, _ := newTestOrchestrator(t, a, b)

	res := o.Enrich(context.Background(), Request{TenantID: "t1", CompanyDomain: "acme.com"})
	assert.False(t, res.Success)
	assert.Equal(t, ErrAllProvidersFailed.Error(), res.Err)

	// Attempted cost still counts the paid lookup that failed.
	assert.InDelta(t, 0.002, res.CostUSD, 1e-9)
	assert.Empty(t, res.ProvidersUsed)

	// Nothing cached.
	entry, err := st.GetCacheEntry(context.Background(), "t1", hashKey("acme.com"))
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestEnrich_NoLookupKey(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	res := o.Enrich(context.Background(), Request{TenantID: "t1"})
	assert.False(t, res.Success)
	assert.Equal(t, "no lookup key", res.Err)
}

func TestEnrich_EmailFallbackKey(t *testing.T) {
	p := &fakeProvider{name: "kgraph", tier: provider.TierFree, available: true,
		bag: model.FieldBag{model.FieldDescription: "desc"}}
	o, st, _ := newTestOrchestrator(t, p)

	res := o.Enrich(context.Background(), Request{TenantID: "t1", Email: "jane@acme.com"})
	require.True(t, res.Success)

	entry, err := st.GetCacheEntry(context.Background(), "t1", hashKey("jane@acme.com"))
	require.NoError(t, err)
	assert.NotNil(t, entry)
}

func TestEnrich_ICPOverridesFilterProviders(t *testing.T) {
	free := &fakeProvider{name: "techstack", tier: provider.TierFree, available: true,
		bag: model.FieldBag{model.FieldCMS: "WordPress"}}
	paid := &fakeProvider{name: "serp", tier: provider.TierPaid, cost: 0.002, available: true,
		bag: model.FieldBag{model.FieldFounded: "1949"}}
	o, _, _ := newTestOrchestrator(t, free, paid)

	icp := model.DefaultICPConfig("t1")
	icp.ProviderOverrides = map[string]bool{"serp": false}

	res := o.Enrich(context.Background(), Request{TenantID: "t1", CompanyDomain: "acme.com", ICP: icp})
	require.True(t, res.Success)
	assert.Equal(t, []string{"techstack"}, res.ProvidersUsed)
	assert.Zero(t, res.CostUSD)
	assert.Zero(t, paid.callCount())
}

func TestEnrich_UnavailableProviderSkipped(t *testing.T) {
	off := &fakeProvider{name: "kgraph", tier: provider.TierFree, available: false,
		bag: model.FieldBag{model.FieldDescription: "nope"}}
	on := &fakeProvider{name: "techstack", tier: provider.TierFree, available: true,
		bag: model.FieldBag{model.FieldCMS: "Wix"}}
	o, _, _ := newTestOrchestrator(t, off, on)

	res := o.Enrich(context.Background(), Request{TenantID: "t1", CompanyDomain: "acme.com"})
	require.True(t, res.Success)
	assert.Zero(t, off.callCount())
	assert.Equal(t, []string{"techstack"}, res.ProvidersUsed)
}

func TestEnrich_ConcurrentICPOverridesDoNotBleed(t *testing.T) {
	free := &fakeProvider{name: "techstack", tier: provider.TierFree, available: true,
		bag: model.FieldBag{model.FieldCMS: "WordPress"}}
	paid := &fakeProvider{name: "serp", tier: provider.TierPaid, cost: 0.002, available: true,
		bag: model.FieldBag{model.FieldFounded: "1949"}}
	o, _, _ := newTestOrchestrator(t, free, paid)

	noSerp := model.DefaultICPConfig("t1")
	noSerp.ProviderOverrides = map[string]bool{"serp": false}

	var wg sync.WaitGroup
	results := make([]*Result, 40)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := Request{TenantID: "t1", CompanyDomain: domainFor(i)}
			if i%2 == 0 {
				req.ICP = noSerp
			}
			results[i] = o.Enrich(context.Background(), req)
		}(i)
	}
	wg.Wait()

	for i, res := range results {
		require.True(t, res.Success, i)
		if i%2 == 0 {
			assert.NotContains(t, res.ProvidersUsed, "serp", i)
		} else {
			assert.Contains(t, res.ProvidersUsed, "serp", i)
		}
	}
}

func domainFor(i int) string {
	return string(rune('a'+i%26)) + "-corp.example"
}

func TestEnrich_DurableCacheErrorFailsOpenToProviders(t *testing.T) {
	p := &fakeProvider{name: "techstack", tier: provider.TierFree, available: true,
		bag: model.FieldBag{model.FieldCMS: "Webflow"}}
	o, st, _ := newTestOrchestrator(t, p)
	st.getErr = eris.New("connection refused")

	res := o.Enrich(context.Background(), Request{TenantID: "t1", CompanyDomain: "acme.com"})
	require.True(t, res.Success)
	assert.False(t, res.CacheHit)
	assert.Equal(t, 1, p.callCount())
}

func TestEnrich_CacheWriteFailureSwallowed(t *testing.T) {
	p := &fakeProvider{name: "techstack", tier: provider.TierFree, available: true,
		bag: model.FieldBag{model.FieldCMS: "Squarespace"}}
	o, st, _ := newTestOrchestrator(t, p)
	st.getErr = nil
	st.saveErr = eris.New("disk full")

	res := o.Enrich(context.Background(), Request{TenantID: "t1", CompanyDomain: "acme.com"})
	require.True(t, res.Success)
	assert.Equal(t, "Squarespace", res.Data[model.FieldCMS])
}

func TestEnrich_StatsAndSpendAccumulate(t *testing.T) {
	good := &fakeProvider{name: "techstack", tier: provider.TierFree, available: true,
		bag: model.FieldBag{model.FieldCMS: "WordPress"}}
	bad := &fakeProvider{name: "serp", tier: provider.TierPaid, cost: 0.002, available: true,
		err: eris.New("boom")}
	o, _, _ := newTestOrchestrator(t, good, bad)

	o.Enrich(context.Background(), Request{TenantID: "t1", CompanyDomain: "a.example"})
	o.Enrich(context.Background(), Request{TenantID: "t1", CompanyDomain: "b.example"})

	snap := o.Stats().Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, ProviderStats{Provider: "serp", Successes: 0, Failures: 2}, snap[0])
	assert.Equal(t, ProviderStats{Provider: "techstack", Successes: 2, Failures: 0}, snap[1])

	assert.InDelta(t, 0.004, o.Spend().Total(), 1e-9)
}
