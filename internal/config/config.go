package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Redis      RedisConfig      `yaml:"redis" mapstructure:"redis"`
	TechStack  TechStackConfig  `yaml:"techstack" mapstructure:"techstack"`
	Serp       SerpConfig       `yaml:"serp" mapstructure:"serp"`
	KGraph     KGraphConfig     `yaml:"kgraph" mapstructure:"kgraph"`
	ZeroBounce ZeroBounceConfig `yaml:"zerobounce" mapstructure:"zerobounce"`
	Enrich     EnrichConfig     `yaml:"enrich" mapstructure:"enrich"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Schedule   ScheduleConfig   `yaml:"schedule" mapstructure:"schedule"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// RedisConfig configures the fast cache tier. When Addr is empty the
// in-process cache is used instead.
type RedisConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
}

// TechStackConfig configures website technology detection.
type TechStackConfig struct {
	TimeoutSecs int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// SerpConfig holds SerpApi settings.
type SerpConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// KGraphConfig holds Google Knowledge Graph settings.
type KGraphConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// ZeroBounceConfig holds ZeroBounce email verification settings.
type ZeroBounceConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// EnrichConfig configures the enrichment orchestrator and cache tiers.
type EnrichConfig struct {
	CacheTTLDays        int    `yaml:"cache_ttl_days" mapstructure:"cache_ttl_days"`
	FastCacheTTLHours   int    `yaml:"fast_cache_ttl_hours" mapstructure:"fast_cache_ttl_hours"`
	ProviderTimeoutSecs int    `yaml:"provider_timeout_secs" mapstructure:"provider_timeout_secs"`
	ProviderPlan        string `yaml:"provider_plan" mapstructure:"provider_plan"` // optional YAML plan path
}

// CacheTTL returns the durable cache entry lifetime.
func (c EnrichConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLDays) * 24 * time.Hour
}

// FastCacheTTL returns the fast-tier mirror lifetime.
func (c EnrichConfig) FastCacheTTL() time.Duration {
	return time.Duration(c.FastCacheTTLHours) * time.Hour
}

// ProviderTimeout returns the per-provider lookup deadline.
func (c EnrichConfig) ProviderTimeout() time.Duration {
	return time.Duration(c.ProviderTimeoutSecs) * time.Second
}

// PricingConfig holds per-provider lookup pricing (USD per lookup).
type PricingConfig struct {
	Serp       float64 `yaml:"serp" mapstructure:"serp"`
	ZeroBounce float64 `yaml:"zerobounce" mapstructure:"zerobounce"`
}

// PipelineConfig configures lead processing behavior.
type PipelineConfig struct {
	DedupClaimTTLSecs int     `yaml:"dedup_claim_ttl_secs" mapstructure:"dedup_claim_ttl_secs"`
	AutoApproveScore  float64 `yaml:"auto_approve_score" mapstructure:"auto_approve_score"`
	ReviewScore       float64 `yaml:"review_score" mapstructure:"review_score"`
	AutoRejectScore   float64 `yaml:"auto_reject_score" mapstructure:"auto_reject_score"`
	RetentionDays     int     `yaml:"retention_days" mapstructure:"retention_days"`
	VerifyTimeoutSecs int     `yaml:"verify_timeout_secs" mapstructure:"verify_timeout_secs"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	MaxConcurrentLeads int `yaml:"max_concurrent_leads" mapstructure:"max_concurrent_leads"`
	Size               int `yaml:"size" mapstructure:"size"`
}

// ScheduleConfig configures the recurring job scheduler.
type ScheduleConfig struct {
	BatchIntervalMins     int `yaml:"batch_interval_mins" mapstructure:"batch_interval_mins"`
	RetentionIntervalHrs  int `yaml:"retention_interval_hrs" mapstructure:"retention_interval_hrs"`
	CachePurgeIntervalHrs int `yaml:"cache_purge_interval_hrs" mapstructure:"cache_purge_interval_hrs"`
}

// MonitoringConfig tunes stats collection and webhook alerting. Alerts are
// disabled when WebhookURL is empty.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	CostThresholdUSD     float64 `yaml:"cost_threshold_usd" mapstructure:"cost_threshold_usd"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Validate checks the configuration for the given run mode and reports all
// problems at once.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "process", "batch", "schedule", "stats":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for postgres")
		}
	case "sqlite":
		// A missing DSN falls back to a local file.
	default:
		problems = append(problems, "store.driver must be postgres or sqlite")
	}

	if c.Batch.MaxConcurrentLeads < 1 || c.Batch.MaxConcurrentLeads > 50 {
		problems = append(problems, "batch.max_concurrent_leads must be between 1 and 50")
	}
	if c.Batch.Size < 1 {
		problems = append(problems, "batch.size must be > 0")
	}

	p := c.Pipeline
	if p.AutoRejectScore < 0 || p.ReviewScore < p.AutoRejectScore || p.AutoApproveScore < p.ReviewScore || p.AutoApproveScore > 100 {
		problems = append(problems, "pipeline score thresholds must satisfy 0 <= auto_reject <= review <= auto_approve <= 100")
	}
	if p.RetentionDays < 1 {
		problems = append(problems, "pipeline.retention_days must be > 0")
	}

	if c.Enrich.CacheTTLDays < 1 {
		problems = append(problems, "enrich.cache_ttl_days must be > 0")
	}

	if mode == "schedule" {
		if c.Schedule.BatchIntervalMins < 1 {
			problems = append(problems, "schedule.batch_interval_mins must be > 0")
		}
		if c.Schedule.RetentionIntervalHrs < 1 {
			problems = append(problems, "schedule.retention_interval_hrs must be > 0")
		}
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEADS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("redis.db", 0)
	v.SetDefault("techstack.timeout_secs", 10)
	v.SetDefault("serp.base_url", "https://serpapi.com")
	v.SetDefault("kgraph.base_url", "https://kgsearch.googleapis.com")
	v.SetDefault("zerobounce.base_url", "https://api.zerobounce.net/v2")
	v.SetDefault("enrich.cache_ttl_days", 90)
	v.SetDefault("enrich.fast_cache_ttl_hours", 24)
	v.SetDefault("enrich.provider_timeout_secs", 10)
	v.SetDefault("enrich.provider_plan", "")
	v.SetDefault("pricing.serp", 0.002)
	v.SetDefault("pricing.zerobounce", 0.0008)
	v.SetDefault("pipeline.dedup_claim_ttl_secs", 300)
	v.SetDefault("pipeline.auto_approve_score", 80)
	v.SetDefault("pipeline.review_score", 40)
	v.SetDefault("pipeline.auto_reject_score", 20)
	v.SetDefault("pipeline.retention_days", 365)
	v.SetDefault("pipeline.verify_timeout_secs", 10)
	v.SetDefault("batch.max_concurrent_leads", 5)
	v.SetDefault("batch.size", 100)
	v.SetDefault("schedule.batch_interval_mins", 15)
	v.SetDefault("schedule.retention_interval_hrs", 24)
	v.SetDefault("schedule.cache_purge_interval_hrs", 6)
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.cost_threshold_usd", 50)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.check_interval_secs", 300)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
