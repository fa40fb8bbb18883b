// Package rerank reorders vector-search candidates with a cross-encoder
// rerank API and blends the two scores into a hybrid ranking.
package rerank

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/tapcard/contact-search/internal/budget"
	"github.com/tapcard/contact-search/internal/cost"
	"github.com/tapcard/contact-search/internal/expand"
	"github.com/tapcard/contact-search/internal/model"
	"github.com/tapcard/contact-search/internal/tier"
	"github.com/tapcard/contact-search/pkg/jina"
)

// Default hybrid blend. Rerank is weighted higher than the vector score
// since the cross-encoder is query-aware at finer granularity.
const (
	DefaultVectorWeight = 0.3
	DefaultRerankWeight = 0.7
)

// Config tunes the reranker.
type Config struct {
	Model        string  `yaml:"model" mapstructure:"model"`
	TopN         int     `yaml:"top_n" mapstructure:"top_n"`
	VectorWeight float64 `yaml:"vector_weight" mapstructure:"vector_weight"`
	RerankWeight float64 `yaml:"rerank_weight" mapstructure:"rerank_weight"`
}

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = "jina-reranker-v2-base-multilingual"
	}
	if c.VectorWeight == 0 && c.RerankWeight == 0 {
		c.VectorWeight = DefaultVectorWeight
		c.RerankWeight = DefaultRerankWeight
	}
	return c
}

// Reranker scores candidate contacts against the original query. Reranking
// is a paid, tier-gated feature: premium unlocks it, business unlocks the
// richer per-contact documents.
type Reranker struct {
	jina jina.Client
	gate *budget.Gate
	calc *cost.Calculator
	cfg  Config
	log  *zap.Logger
}

func New(client jina.Client, gate *budget.Gate, calc *cost.Calculator, cfg Config, log *zap.Logger) *Reranker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reranker{jina: client, gate: gate, calc: calc, cfg: cfg.withDefaults(), log: log}
}

// Rerank reorders contacts by cross-encoder relevance and attaches
// RerankScore, RerankRank and HybridScore to each. On any failure the
// caller keeps the vector-only order; no partial reranking is returned.
func (r *Reranker) Rerank(ctx context.Context, user model.User, query string, contacts []model.RankedContact, topN int) ([]model.RankedContact, float64, error) {
	if query == "" {
		return nil, 0, model.NewValidationError("query", "must not be empty")
	}
	if len(contacts) == 0 {
		return []model.RankedContact{}, 0, nil
	}
	userTier := tier.Name(user.Tier)
	if err := tier.GateRerank(userTier); err != nil {
		return nil, 0, err
	}
	if topN <= 0 {
		topN = r.cfg.TopN
	}
	if topN <= 0 || topN > len(contacts) {
		topN = len(contacts)
	}

	// Cost is per document scored, independent of topN.
	estimate := r.calc.Rerank(r.cfg.Model, len(contacts))
	if err := r.gate.CanAfford(ctx, user, estimate, model.RunTypeAPI); err != nil {
		return nil, 0, err
	}

	docs := BuildDocuments(contacts, userTier)
	lang := expand.DetectLanguage(query)

	resp, err := r.jina.Rerank(ctx, jina.RerankRequest{
		Model:     r.cfg.Model,
		Query:     query,
		Documents: docs,
		TopN:      topN,
	})
	if err != nil {
		return nil, 0, &model.ProviderError{Provider: "jina", Err: err}
	}

	if err := r.gate.RecordUsage(ctx, model.UsageRecord{
		UserID:  user.ID,
		Cost:    estimate,
		Model:   r.cfg.Model,
		Feature: "rerank",
		Metadata: map[string]any{
			"documents": len(contacts),
			"top_n":     topN,
			"language":  lang,
		},
		RunType:  model.RunTypeAPI,
		Billable: true,
	}); err != nil {
		r.log.Warn("failed to record rerank usage", zap.String("user_id", user.ID), zap.Error(err))
	}

	ranked := make([]model.RankedContact, 0, len(resp.Results))
	for rank, res := range resp.Results {
		if res.Index < 0 || res.Index >= len(contacts) {
			return nil, estimate, eris.Errorf("rerank: result index %d out of range", res.Index)
		}
		rc := contacts[res.Index]
		rc.RerankScore = res.RelevanceScore
		rc.RerankRank = rank + 1
		rc.HybridScore = rc.VectorScore*r.cfg.VectorWeight + rc.RerankScore*r.cfg.RerankWeight
		ranked = append(ranked, rc)
	}
	model.SortByHybridScore(ranked)
	return ranked, estimate, nil
}
