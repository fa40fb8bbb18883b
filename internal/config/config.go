package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tapcard/contact-search/internal/cache"
	"github.com/tapcard/contact-search/internal/groups"
	"github.com/tapcard/contact-search/internal/jobs"
	"github.com/tapcard/contact-search/internal/monitoring"
	"github.com/tapcard/contact-search/internal/ratelimit"
	"github.com/tapcard/contact-search/internal/rerank"
	"github.com/tapcard/contact-search/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig       `yaml:"store" mapstructure:"store"`
	Redis      cache.Config      `yaml:"redis" mapstructure:"redis"`
	Jina       JinaConfig        `yaml:"jina" mapstructure:"jina"`
	Anthropic  AnthropicConfig   `yaml:"anthropic" mapstructure:"anthropic"`
	Pricing    PricingConfig     `yaml:"pricing" mapstructure:"pricing"`
	Tiers      TiersConfig       `yaml:"tiers" mapstructure:"tiers"`
	Search     SearchConfig      `yaml:"search" mapstructure:"search"`
	Rerank     rerank.Config     `yaml:"rerank" mapstructure:"rerank"`
	Geocode    GeocodeConfig     `yaml:"geocode" mapstructure:"geocode"`
	Grouping   GroupingConfig    `yaml:"grouping" mapstructure:"grouping"`
	Jobs       jobs.Config       `yaml:"jobs" mapstructure:"jobs"`
	RateLimit  ratelimit.Config  `yaml:"rate_limit" mapstructure:"rate_limit"`
	Monitoring monitoring.Config `yaml:"monitoring" mapstructure:"monitoring"`
	Server     ServerConfig      `yaml:"server" mapstructure:"server"`
	Log        LogConfig         `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string           `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string           `yaml:"database_url" mapstructure:"database_url"`
	Pool        store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// JinaConfig holds Jina AI API settings.
type JinaConfig struct {
	Key              string `yaml:"key" mapstructure:"key"`
	BaseURL          string `yaml:"base_url" mapstructure:"base_url"`
	EmbedModel       string `yaml:"embed_model" mapstructure:"embed_model"`
	RerankModel      string `yaml:"rerank_model" mapstructure:"rerank_model"`
	RetryMaxAttempts int    `yaml:"retry_max_attempts" mapstructure:"retry_max_attempts"`
	RetryBackoffMs   int    `yaml:"retry_backoff_ms" mapstructure:"retry_backoff_ms"`
	BreakerThreshold int    `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerResetSecs int    `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	ExpandModel   string `yaml:"expand_model" mapstructure:"expand_model"`
	GroupingModel string `yaml:"grouping_model" mapstructure:"grouping_model"`
}

// PricingConfig overrides the built-in provider rates.
type PricingConfig struct {
	EmbeddingPerMTok float64            `yaml:"embedding_per_mtok" mapstructure:"embedding_per_mtok"`
	RerankPerDoc     map[string]float64 `yaml:"rerank_per_doc" mapstructure:"rerank_per_doc"`
}

// TiersConfig points at an optional YAML file overriding tier limits.
type TiersConfig struct {
	File string `yaml:"file" mapstructure:"file"`
}

// SearchConfig tunes the search pipeline.
type SearchConfig struct {
	TopK             int `yaml:"top_k" mapstructure:"top_k"`
	ExpansionTTLSecs int `yaml:"expansion_ttl_secs" mapstructure:"expansion_ttl_secs"`
}

// ExpansionTTL returns the expansion cache TTL as a duration.
func (c SearchConfig) ExpansionTTL() time.Duration {
	return time.Duration(c.ExpansionTTLSecs) * time.Second
}

// GeocodeConfig configures coordinate backfill during contact import.
type GeocodeConfig struct {
	Enabled   bool   `yaml:"enabled" mapstructure:"enabled"`
	GoogleKey string `yaml:"google_key" mapstructure:"google_key"`
}

// GroupingConfig tunes the rules-based grouping engine.
type GroupingConfig struct {
	Rules groups.RulesConfig `yaml:"rules" mapstructure:"rules"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port              int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins    []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	ShutdownGraceSecs int      `yaml:"shutdown_grace_secs" mapstructure:"shutdown_grace_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CONTACTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "contacts.db")
	v.SetDefault("store.pool.max_conns", 10)
	v.SetDefault("store.pool.min_conns", 2)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.default_ttl", "24h")
	v.SetDefault("jina.key", "")
	v.SetDefault("jina.base_url", "https://api.jina.ai")
	v.SetDefault("jina.embed_model", "jina-embeddings-v3")
	v.SetDefault("jina.rerank_model", "jina-reranker-v2-base-multilingual")
	v.SetDefault("jina.retry_max_attempts", 3)
	v.SetDefault("jina.retry_backoff_ms", 500)
	v.SetDefault("jina.breaker_threshold", 5)
	v.SetDefault("jina.breaker_reset_secs", 30)
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.expand_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.grouping_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("pricing.embedding_per_mtok", 0.02)
	v.SetDefault("search.top_k", 20)
	v.SetDefault("search.expansion_ttl_secs", 86400)
	v.SetDefault("rerank.model", "jina-reranker-v2-base-multilingual")
	v.SetDefault("rerank.vector_weight", 0.3)
	v.SetDefault("rerank.rerank_weight", 0.7)
	v.SetDefault("geocode.enabled", false)
	v.SetDefault("geocode.google_key", "")
	v.SetDefault("grouping.rules.event_window", "30m")
	v.SetDefault("grouping.rules.location_radius_meters", 500)
	v.SetDefault("grouping.rules.min_cluster_size", 2)
	v.SetDefault("grouping.rules.max_groups", 15)
	v.SetDefault("jobs.ai_timeout", "2m")
	v.SetDefault("jobs.max_groups", 15)
	v.SetDefault("rate_limit.requests_per_minute", 60)
	v.SetDefault("rate_limit.burst", 10)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.failure_rate_threshold", 0.10)
	v.SetDefault("monitoring.cost_threshold_usd", 0)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.shutdown_grace_secs", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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
