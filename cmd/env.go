package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/tapcard/contact-search/internal/budget"
	"github.com/tapcard/contact-search/internal/cache"
	"github.com/tapcard/contact-search/internal/cost"
	"github.com/tapcard/contact-search/internal/expand"
	"github.com/tapcard/contact-search/internal/groups"
	"github.com/tapcard/contact-search/internal/ingest"
	"github.com/tapcard/contact-search/internal/jobs"
	"github.com/tapcard/contact-search/internal/rerank"
	"github.com/tapcard/contact-search/internal/resilience"
	"github.com/tapcard/contact-search/internal/search"
	"github.com/tapcard/contact-search/internal/store"
	"github.com/tapcard/contact-search/internal/tier"
	"github.com/tapcard/contact-search/internal/vector"
	anthropicpkg "github.com/tapcard/contact-search/pkg/anthropic"
	"github.com/tapcard/contact-search/pkg/geocode"
	"github.com/tapcard/contact-search/pkg/jina"
)

// appEnv holds the initialized store, clients and pipeline components
// shared by the commands.
type appEnv struct {
	Store        store.Store
	Cache        *cache.Cache
	Tiers        *tier.Registry
	Gate         *budget.Gate
	Calc         *cost.Calculator
	Jina         jina.Client
	Pipeline     *search.Pipeline
	Rules        *groups.RulesEngine
	Enhancer     *groups.Enhancer
	Orchestrator *jobs.Orchestrator
	Importer     *ingest.Importer
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Cache != nil {
		_ = e.Cache.Close()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initStore opens the configured backend and runs migrations.
func initStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, &cfg.Store.Pool)
	case "sqlite", "":
		st, err = store.NewSQLite(cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initEnv wires the full application from config. Callers should defer
// env.Close().
func initEnv(ctx context.Context) (*appEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	tiers := tier.NewRegistry(nil)
	if cfg.Tiers.File != "" {
		tiers, err = tier.LoadRegistry(cfg.Tiers.File)
		if err != nil {
			_ = st.Close()
			return nil, eris.Wrap(err, "load tier limits")
		}
	}

	rates := cost.DefaultRates()
	if cfg.Pricing.EmbeddingPerMTok > 0 {
		rates.Embedding.PerMTok = cfg.Pricing.EmbeddingPerMTok
	}
	for m, price := range cfg.Pricing.RerankPerDoc {
		rates.Rerank[m] = price
	}
	calc := cost.NewCalculator(rates)

	redisCache := cache.New(cfg.Redis)
	gate := budget.NewGate(st, tiers, zap.L())

	retryCfg := resilience.FromRetryConfig(cfg.Jina.RetryMaxAttempts, cfg.Jina.RetryBackoffMs, 0)
	retryCfg.OnRetry = resilience.RetryLogger("jina", "request")
	jinaClient := jina.NewClient(cfg.Jina.Key,
		jina.WithBaseURL(cfg.Jina.BaseURL),
		jina.WithEmbedModel(cfg.Jina.EmbedModel),
		jina.WithRerankModel(cfg.Jina.RerankModel),
		jina.WithRetryConfig(retryCfg),
		jina.WithCircuitConfig(resilience.FromCircuitConfig(cfg.Jina.BreakerThreshold, cfg.Jina.BreakerResetSecs)),
	)
	anthropicClient := anthropicpkg.NewClient(cfg.Anthropic.Key)

	expander := expand.New(
		redisCache,
		expand.NewAnthropicLLM(anthropicClient, calc, cfg.Anthropic.ExpandModel),
		expand.Config{CacheTTL: cfg.Search.ExpansionTTL()},
	)
	searcher := vector.NewSearcher(jinaClient, st, gate, calc, cfg.Jina.EmbedModel, zap.L())
	reranker := rerank.New(jinaClient, gate, calc, cfg.Rerank, zap.L())
	pipeline := search.NewPipeline(expander, searcher, reranker, gate, zap.L())

	enhancer := groups.NewEnhancer(anthropicClient, gate, calc, cfg.Anthropic.GroupingModel, zap.L())
	orchestrator := jobs.NewOrchestrator(st, enhancer, cfg.Jobs, zap.L())

	importer := ingest.NewImporter(st, jinaClient, calc, cfg.Jina.EmbedModel, zap.L())
	if cfg.Geocode.Enabled {
		var geoOpts []geocode.Option
		if cfg.Geocode.GoogleKey != "" {
			geoOpts = append(geoOpts, geocode.WithGoogleAPIKey(cfg.Geocode.GoogleKey))
		}
		importer = importer.WithGeocoder(geocode.NewClient(geoOpts...))
	}

	return &appEnv{
		Store:        st,
		Cache:        redisCache,
		Tiers:        tiers,
		Gate:         gate,
		Calc:         calc,
		Jina:         jinaClient,
		Pipeline:     pipeline,
		Rules:        groups.NewRulesEngine(cfg.Grouping.Rules),
		Enhancer:     enhancer,
		Orchestrator: orchestrator,
		Importer:     importer,
	}, nil
}
