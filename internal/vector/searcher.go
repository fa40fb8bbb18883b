package vector

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/tapcard/contact-search/internal/budget"
	"github.com/tapcard/contact-search/internal/cost"
	"github.com/tapcard/contact-search/internal/model"
	"github.com/tapcard/contact-search/pkg/jina"
)

const DefaultTopK = 20

// Searcher embeds a query and retrieves the user's nearest contacts with
// vector scores attached. The embedding call is budget-gated up front so a
// user over quota is denied before any provider spend.
type Searcher struct {
	jina  jina.Client
	index *Index
	store ContactStore
	gate  *budget.Gate
	calc  *cost.Calculator
	model string
	log   *zap.Logger
}

func NewSearcher(client jina.Client, s ContactStore, gate *budget.Gate, calc *cost.Calculator, embedModel string, log *zap.Logger) *Searcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Searcher{
		jina:  client,
		index: NewIndex(s),
		store: s,
		gate:  gate,
		calc:  calc,
		model: embedModel,
		log:   log,
	}
}

// Search embeds enhancedQuery and returns topK contacts ranked by cosine
// similarity, each carrying its VectorScore. Usage is recorded after the
// embedding call succeeds.
func (s *Searcher) Search(ctx context.Context, user model.User, enhancedQuery string, topK int) ([]model.RankedContact, float64, error) {
	if enhancedQuery == "" {
		return nil, 0, model.NewValidationError("query", "must not be empty")
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	estimate := s.calc.EstimateEmbedding(enhancedQuery)
	if err := s.gate.CanAfford(ctx, user, estimate, model.RunTypeAI); err != nil {
		return nil, 0, err
	}

	resp, err := s.jina.Embed(ctx, jina.EmbedRequest{
		Model: s.model,
		Input: []string{enhancedQuery},
		Task:  "retrieval.query",
	})
	if err != nil {
		return nil, 0, &model.ProviderError{Provider: "jina", Err: err}
	}
	if len(resp.Data) == 0 {
		return nil, 0, eris.New("vector: embedding response is empty")
	}

	actualCost := s.calc.Embedding(resp.Usage.TotalTokens)
	if err := s.gate.RecordUsage(ctx, model.UsageRecord{
		UserID:   user.ID,
		Cost:     actualCost,
		Model:    s.model,
		Feature:  "vector_search",
		RunType:  model.RunTypeAI,
		Billable: true,
	}); err != nil {
		s.log.Warn("failed to record embedding usage", zap.String("user_id", user.ID), zap.Error(err))
	}

	matches, err := s.index.Nearest(ctx, user.ID, resp.Data[0].Embedding, topK)
	if err != nil {
		return nil, actualCost, err
	}
	if len(matches) == 0 {
		return nil, actualCost, nil
	}

	contacts, err := s.store.ListContacts(ctx, user.ID)
	if err != nil {
		return nil, actualCost, eris.Wrap(err, "vector: list contacts")
	}
	byID := make(map[string]model.Contact, len(contacts))
	for _, c := range contacts {
		byID[c.ID] = c
	}

	ranked := make([]model.RankedContact, 0, len(matches))
	for _, m := range matches {
		c, ok := byID[m.ContactID]
		if !ok {
			// Embedding for a deleted contact; skip.
			continue
		}
		ranked = append(ranked, model.RankedContact{Contact: c, VectorScore: m.Score})
	}
	return ranked, actualCost, nil
}
