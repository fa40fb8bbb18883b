// Package search glues the pipeline together: expand the query, check the
// budget, run vector search, then optionally rerank. Ordering is strict --
// expansion never calls the paid path before the gate has passed, and
// reranking only ever reorders contacts the vector stage returned.
package search

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/tapcard/contact-search/internal/budget"
	"github.com/tapcard/contact-search/internal/expand"
	"github.com/tapcard/contact-search/internal/model"
	"github.com/tapcard/contact-search/internal/rerank"
	"github.com/tapcard/contact-search/internal/tier"
	"github.com/tapcard/contact-search/internal/vector"
)

// Options tunes one search request.
type Options struct {
	// TopK bounds the vector candidate set.
	TopK int
	// TopN bounds the reranked result. Zero means rerank everything.
	TopN int
	// LanguageHint is an optional BCP 47 hint from the client.
	LanguageHint string
	// SkipRerank forces vector-only results even for eligible tiers.
	SkipRerank bool
}

// Pipeline executes searches end to end.
type Pipeline struct {
	expander *expand.Expander
	searcher *vector.Searcher
	reranker *rerank.Reranker
	gate     *budget.Gate
	log      *zap.Logger
}

func NewPipeline(expander *expand.Expander, searcher *vector.Searcher, reranker *rerank.Reranker, gate *budget.Gate, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{expander: expander, searcher: searcher, reranker: reranker, gate: gate, log: log}
}

// Search runs the full pipeline for one query. Hard failures (validation,
// budget, vector provider) abort; expansion and rerank failures degrade,
// recorded in the result's Degraded list.
func (p *Pipeline) Search(ctx context.Context, user model.User, raw string, opts Options) (*model.SearchResult, error) {
	if raw == "" {
		return nil, model.NewValidationError("query", "must not be empty")
	}

	exp := p.expander.Expand(ctx, raw, opts.LanguageHint)
	result := &model.SearchResult{
		Query: model.SearchQuery{
			Raw:      raw,
			Enhanced: exp.Enhanced,
			Language: exp.Language,
			Source:   exp.Source,
		},
		CostUSD: exp.CostUSD,
	}
	if exp.Source == model.ExpansionSourceNone {
		result.Degraded = append(result.Degraded, "expansion")
	}
	if exp.CostUSD > 0 {
		// The expansion LLM call is metered for cost but does not consume a
		// run: the subsequent embedding call is the billable run.
		if err := p.gate.RecordUsage(ctx, model.UsageRecord{
			UserID:   user.ID,
			Cost:     exp.CostUSD,
			Model:    exp.Model,
			Feature:  "query_expansion",
			RunType:  model.RunTypeAI,
			Billable: false,
		}); err != nil {
			p.log.Warn("failed to record expansion usage", zap.String("user_id", user.ID), zap.Error(err))
		}
	}

	contacts, embedCost, err := p.searcher.Search(ctx, user, exp.Enhanced, opts.TopK)
	result.CostUSD += embedCost
	if err != nil {
		return nil, err
	}
	result.Contacts = contacts

	if opts.SkipRerank || len(contacts) == 0 || !tier.CanRerank(tier.Name(user.Tier)) {
		return result, nil
	}

	reranked, rerankCost, err := p.reranker.Rerank(ctx, user, raw, contacts, opts.TopN)
	result.CostUSD += rerankCost
	if err != nil {
		// Budget and provider trouble downgrade to vector-only order. A
		// validation error here is a bug upstream and still aborts.
		var validationErr *model.ValidationError
		if errors.As(err, &validationErr) {
			return nil, err
		}
		p.log.Warn("rerank degraded to vector order",
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
		result.Degraded = append(result.Degraded, "rerank")
		return result, nil
	}

	result.Contacts = reranked
	result.Reranked = true
	return result, nil
}
