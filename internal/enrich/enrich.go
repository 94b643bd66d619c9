// Package enrich orchestrates the provider waterfall and the two-tier
// enrichment cache.
package enrich

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leads-cli/internal/cache"
	"github.com/sells-group/leads-cli/internal/cost"
	"github.com/sells-group/leads-cli/internal/enrich/provider"
	"github.com/sells-group/leads-cli/internal/model"
	"github.com/sells-group/leads-cli/internal/resilience"
	"github.com/sells-group/leads-cli/internal/store"
)

// ErrAllProvidersFailed is reported when every eligible provider errored or
// returned nothing usable.
var ErrAllProvidersFailed = eris.New("enrich: all providers failed")

// Request identifies the company to enrich.
type Request struct {
	TenantID       string
	Email          string
	CompanyDomain  string
	CompanyName    string
	CompanyWebsite string
	// ICP optionally narrows the provider set for this call. The orchestrator
	// never mutates it; each call computes its own effective set.
	ICP *model.ICPConfig
}

// Result is the outcome of one enrichment run.
type Result struct {
	Success       bool
	CacheHit      bool
	Data          model.FieldBag
	FieldsAdded   []model.FieldKey
	CostUSD       float64
	ProvidersUsed []string
	Err           string
	DurationMS    int64
}

// Config tunes the orchestrator.
type Config struct {
	// CacheTTL is the durable cache entry lifetime. Default: 90 days.
	CacheTTL time.Duration
	// MirrorTTL is the fast-tier mirror lifetime. Default: 24h.
	MirrorTTL time.Duration
	// ProviderTimeout bounds each provider lookup. Default: 10s.
	ProviderTimeout time.Duration
	// Retry configures per-lookup retries. Zero value uses defaults.
	Retry resilience.RetryConfig
	// Breaker configures per-provider circuit breakers. Zero value uses defaults.
	Breaker resilience.CircuitBreakerConfig
}

// Orchestrator runs the enrichment waterfall with cache read-through.
type Orchestrator struct {
	cfg      Config
	registry *provider.Registry
	store    store.Store
	fast     cache.Cache
	breakers *resilience.ProviderBreakers
	spend    *cost.Tracker
	stats    *Stats

	nowFunc func() time.Time
}

// NewOrchestrator creates an Orchestrator. The fast cache may be a Memory
// cache when no Redis is configured.
func NewOrchestrator(cfg Config, registry *provider.Registry, st store.Store, fast cache.Cache, rates cost.Rates) *Orchestrator {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 90 * 24 * time.Hour
	}
	if cfg.MirrorTTL <= 0 {
		cfg.MirrorTTL = 24 * time.Hour
	}
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = 10 * time.Second
	}
	return &Orchestrator{
		cfg:      cfg,
		registry: registry,
		store:    st,
		fast:     fast,
		breakers: resilience.NewProviderBreakers(cfg.Breaker),
		spend:    cost.NewTracker(rates),
		stats:    NewStats(),
		nowFunc:  time.Now,
	}
}

// Stats exposes per-provider lookup counters for monitoring.
func (o *Orchestrator) Stats() *Stats {
	return o.stats
}

// Spend exposes accumulated provider spend for monitoring.
func (o *Orchestrator) Spend() *cost.Tracker {
	return o.spend
}

// BreakerStates reports the circuit state per provider.
func (o *Orchestrator) BreakerStates() map[string]resilience.CircuitState {
	return o.breakers.States()
}

// Enrich looks up company data for the request, serving from cache when
// possible and otherwise walking providers free tier first.
func (o *Orchestrator) Enrich(ctx context.Context, req Request) *Result {
	start := o.nowFunc()
	res := &Result{}
	defer func() {
		res.DurationMS = o.nowFunc().Sub(start).Milliseconds()
	}()

	lookupKey := req.CompanyDomain
	if lookupKey == "" {
		lookupKey = req.Email
	}
	if lookupKey == "" {
		res.Err = "no lookup key"
		return res
	}
	keyHash := hashKey(lookupKey)

	if data, providers, ok := o.readCache(ctx, req.TenantID, keyHash); ok {
		res.Success = true
		res.CacheHit = true
		res.Data = data
		res.ProvidersUsed = providers
		return res
	}

	merged := model.FieldBag{}
	var attemptedCost float64
	var used []string

	for _, p := range o.effectiveSet(req.ICP) {
		bag, err := o.lookup(ctx, p, req)
		attemptedCost += p.CostPerLookup()
		o.spend.Record(p.Name())

		if err != nil {
			o.stats.RecordFailure(p.Name())
			zap.L().Warn("provider lookup failed",
				zap.String("provider", p.Name()),
				zap.String("tenant_id", req.TenantID),
				zap.Error(err))
			continue
		}
		o.stats.RecordSuccess(p.Name())

		if len(bag) == 0 {
			continue
		}
		added := merged.Merge(bag)
		res.FieldsAdded = append(res.FieldsAdded, added...)
		used = append(used, p.Name())
	}

	res.CostUSD = attemptedCost
	res.ProvidersUsed = used

	if len(merged) == 0 {
		res.Err = ErrAllProvidersFailed.Error()
		return res
	}

	res.Success = true
	res.Data = merged
	o.writeCache(ctx, req.TenantID, keyHash, merged, used, attemptedCost)
	return res
}

// lookup runs one provider with timeout, retry, and circuit breaking.
func (o *Orchestrator) lookup(ctx context.Context, p provider.Provider, req Request) (model.FieldBag, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.ProviderTimeout)
	defer cancel()

	retryCfg := o.cfg.Retry
	if retryCfg.OnRetry == nil {
		retryCfg.OnRetry = resilience.RetryLogger(p.Name(), "lookup")
	}

	in := provider.Input{
		Email:          req.Email,
		CompanyName:    req.CompanyName,
		CompanyDomain:  req.CompanyDomain,
		CompanyWebsite: req.CompanyWebsite,
	}
	return resilience.ExecuteVal(ctx, o.breakers.Get(p.Name()), func(ctx context.Context) (model.FieldBag, error) {
		return resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (model.FieldBag, error) {
			return p.Lookup(ctx, in)
		})
	})
}

// effectiveSet computes the providers eligible for this call: registry
// priority order filtered by availability and the request's ICP overrides.
// The slice is local to the call so concurrent requests with different
// overrides never interfere.
func (o *Orchestrator) effectiveSet(icp *model.ICPConfig) []provider.Provider {
	var out []provider.Provider
	for _, p := range o.registry.ByPriority() {
		if !p.Available() {
			continue
		}
		if icp != nil {
			if enabled, ok := icp.ProviderOverrides[p.Name()]; ok && !enabled {
				continue
			}
		}
		out = append(out, p)
	}
	return out
}

func (o *Orchestrator) readCache(ctx context.Context, tenantID, keyHash string) (model.FieldBag, []string, bool) {
	fastKey := fastCacheKey(tenantID, keyHash)

	if raw, ok, err := o.fast.Get(ctx, fastKey); err != nil {
		zap.L().Warn("fast cache read failed", zap.Error(err))
	} else if ok {
		var mirrored mirrorEntry
		if err := json.Unmarshal([]byte(raw), &mirrored); err == nil {
			return mirrored.Data, mirrored.Providers, true
		}
		zap.L().Warn("fast cache entry corrupt, falling through", zap.String("key", fastKey))
	}

	entry, err := o.store.GetCacheEntry(ctx, tenantID, keyHash)
	if err != nil {
		zap.L().Warn("durable cache read failed", zap.Error(err))
		return nil, nil, false
	}
	if entry == nil {
		return nil, nil, false
	}

	if err := o.store.TouchCacheEntry(ctx, entry.ID); err != nil {
		zap.L().Warn("cache hit count bump failed", zap.Error(err))
	}
	o.mirror(ctx, fastKey, entry.Data, entry.Providers)
	return entry.Data, entry.Providers, true
}

func (o *Orchestrator) writeCache(ctx context.Context, tenantID, keyHash string, data model.FieldBag, providers []string, costUSD float64) {
	now := o.nowFunc().UTC()
	entry := &model.CacheEntry{
		TenantID:     tenantID,
		CacheType:    model.CacheTypeCompanyEnrichment,
		KeyHash:      keyHash,
		Data:         data,
		Providers:    providers,
		CostUSD:      costUSD,
		Completeness: data.Completeness(),
		CreatedAt:    now,
		ExpiresAt:    now.Add(o.cfg.CacheTTL),
	}
	if err := o.store.SaveCacheEntry(ctx, entry); err != nil {
		zap.L().Warn("durable cache write failed", zap.Error(err))
	}
	o.mirror(ctx, fastCacheKey(tenantID, keyHash), data, providers)
}

// mirrorEntry is the fast-tier cache payload.
type mirrorEntry struct {
	Data      model.FieldBag `json:"data"`
	Providers []string       `json:"providers"`
}

func (o *Orchestrator) mirror(ctx context.Context, fastKey string, data model.FieldBag, providers []string) {
	raw, err := json.Marshal(mirrorEntry{Data: data, Providers: providers})
	if err != nil {
		return
	}
	if err := o.fast.SetWithTTL(ctx, fastKey, string(raw), o.cfg.MirrorTTL); err != nil {
		zap.L().Warn("fast cache write failed", zap.Error(err))
	}
}

func fastCacheKey(tenantID, keyHash string) string {
	return fmt.Sprintf("enrich:%s:%s", tenantID, keyHash)
}

func hashKey(lookupKey string) string {
	sum := sha256.Sum256([]byte(lookupKey))
	return hex.EncodeToString(sum[:])
}
