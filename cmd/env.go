package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leads-cli/internal/cache"
	"github.com/sells-group/leads-cli/internal/cost"
	"github.com/sells-group/leads-cli/internal/dedup"
	"github.com/sells-group/leads-cli/internal/enrich"
	"github.com/sells-group/leads-cli/internal/enrich/provider"
	"github.com/sells-group/leads-cli/internal/model"
	"github.com/sells-group/leads-cli/internal/pipeline"
	"github.com/sells-group/leads-cli/internal/store"
	"github.com/sells-group/leads-cli/internal/verify"
	"github.com/sells-group/leads-cli/pkg/kgraph"
	"github.com/sells-group/leads-cli/pkg/serp"
	"github.com/sells-group/leads-cli/pkg/techstack"
	"github.com/sells-group/leads-cli/pkg/zerobounce"
)

// initStore opens the configured database backend and runs migrations.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "leads.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initCache returns the fast-tier cache: Redis when an address is configured,
// otherwise the in-process cache.
func initCache() cache.Cache {
	if cfg.Redis.Addr != "" {
		return cache.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	}
	zap.L().Debug("no redis address configured, using in-process cache")
	return cache.NewMemory()
}

// initProviders builds the enrichment provider registry from configured
// credentials and the optional provider plan. Free-tier providers are
// registered by default; paid ones only when their API key is set.
func initProviders() (*provider.Registry, error) {
	var plan *provider.Plan
	if cfg.Enrich.ProviderPlan != "" {
		p, err := provider.LoadPlan(cfg.Enrich.ProviderPlan)
		if err != nil {
			return nil, err
		}
		plan = p
	}

	registry := provider.NewRegistry()

	if plan.Enabled("techstack") {
		registry.Register(provider.NewTechStack(techstack.NewDetector(
			techstack.WithHTTPClient(&http.Client{
				Timeout: time.Duration(cfg.TechStack.TimeoutSecs) * time.Second,
			}),
		)))
	}

	switch {
	case !plan.Enabled("kgraph"):
	case cfg.KGraph.Key == "":
		zap.L().Debug("kgraph provider disabled, no API key")
	default:
		registry.Register(provider.NewKGraph(kgraph.NewClient(cfg.KGraph.Key,
			kgraph.WithBaseURL(cfg.KGraph.BaseURL))))
	}

	switch {
	case !plan.Enabled("serp"):
	case cfg.Serp.Key == "":
		zap.L().Debug("serp provider disabled, no API key")
	default:
		opts := []serp.Option{serp.WithBaseURL(cfg.Serp.BaseURL)}
		if rps := plan.RateLimit("serp"); rps > 0 {
			opts = append(opts, serp.WithRateLimit(rps))
		}
		registry.Register(provider.NewSerp(serp.NewClient(cfg.Serp.Key, opts...), cfg.Pricing.Serp))
	}

	return registry, nil
}

// pipelineEnv holds everything a pipeline command needs. Callers should defer
// env.Close().
type pipelineEnv struct {
	Store    store.Store
	Fast     cache.Cache
	Enricher *enrich.Orchestrator
	Pipeline *pipeline.Pipeline
}

// Close releases the env's resources.
func (e *pipelineEnv) Close() {
	if c, ok := e.Fast.(*cache.Redis); ok {
		if err := c.Close(); err != nil {
			zap.L().Warn("closing redis", zap.Error(err))
		}
	}
	if err := e.Store.Close(); err != nil {
		zap.L().Warn("closing store", zap.Error(err))
	}
}

// initPipeline validates config for the given mode, opens the store and
// cache, and wires the full pipeline.
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "init store")
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	fast := initCache()

	registry, err := initProviders()
	if err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "init providers")
	}

	enricher := enrich.NewOrchestrator(enrich.Config{
		CacheTTL:        cfg.Enrich.CacheTTL(),
		MirrorTTL:       cfg.Enrich.FastCacheTTL(),
		ProviderTimeout: cfg.Enrich.ProviderTimeout(),
	}, registry, st, fast, cost.Rates{
		Serp:       cfg.Pricing.Serp,
		ZeroBounce: cfg.Pricing.ZeroBounce,
	})

	dd := dedup.New(fast, st, time.Duration(cfg.Pipeline.DedupClaimTTLSecs)*time.Second)

	var zb zerobounce.Client
	if cfg.ZeroBounce.Key != "" {
		zb = zerobounce.NewClient(cfg.ZeroBounce.Key,
			zerobounce.WithBaseURL(cfg.ZeroBounce.BaseURL))
	} else {
		zap.L().Debug("email verification disabled, no zerobounce key")
	}
	vf := verify.New(zb, time.Duration(cfg.Pipeline.VerifyTimeoutSecs)*time.Second)

	p := pipeline.New(pipeline.Config{
		Workers: cfg.Batch.MaxConcurrentLeads,
		ICPFor: func(_ context.Context, tenantID string) *model.ICPConfig {
			icp := model.DefaultICPConfig(tenantID)
			icp.AutoApproveThreshold = cfg.Pipeline.AutoApproveScore
			icp.ReviewThreshold = cfg.Pipeline.ReviewScore
			icp.AutoRejectThreshold = cfg.Pipeline.AutoRejectScore
			return icp
		},
	}, st, dd, enricher, vf)

	return &pipelineEnv{Store: st, Fast: fast, Enricher: enricher, Pipeline: p}, nil
}
