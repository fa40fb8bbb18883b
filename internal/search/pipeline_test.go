package search

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tapcard/contact-search/internal/budget"
	"github.com/tapcard/contact-search/internal/cost"
	"github.com/tapcard/contact-search/internal/expand"
	"github.com/tapcard/contact-search/internal/model"
	"github.com/tapcard/contact-search/internal/rerank"
	"github.com/tapcard/contact-search/internal/store"
	"github.com/tapcard/contact-search/internal/tier"
	"github.com/tapcard/contact-search/internal/vector"
	"github.com/tapcard/contact-search/pkg/jina"
)

type fakeLLM struct {
	enhanced string
	calls    int
}

func (f *fakeLLM) ExpandQuery(_ context.Context, raw, _ string) (*expand.LLMOutcome, error) {
	f.calls++
	enhanced := f.enhanced
	if enhanced == "" {
		enhanced = raw + " expanded"
	}
	return &expand.LLMOutcome{Enhanced: enhanced, Model: "claude-haiku-4-5-20251001", CostUSD: 0.0001}, nil
}

type fakeJina struct {
	embedding    []float32
	rerankErr    error
	rerankOrder  []jina.RerankResult
	embedCalls   int
	rerankCalls  int
	lastRerankIn jina.RerankRequest
}

func (f *fakeJina) Embed(_ context.Context, _ jina.EmbedRequest) (*jina.EmbedResponse, error) {
	f.embedCalls++
	return &jina.EmbedResponse{
		Data:  []jina.Embedding{{Embedding: f.embedding}},
		Usage: jina.Usage{TotalTokens: 10},
	}, nil
}

func (f *fakeJina) Rerank(_ context.Context, req jina.RerankRequest) (*jina.RerankResponse, error) {
	f.rerankCalls++
	f.lastRerankIn = req
	if f.rerankErr != nil {
		return nil, f.rerankErr
	}
	return &jina.RerankResponse{Results: f.rerankOrder}, nil
}

type fakeContactStore struct {
	contacts   []model.Contact
	embeddings []store.ContactEmbedding
}

func (f *fakeContactStore) ListContacts(_ context.Context, _ string) ([]model.Contact, error) {
	return f.contacts, nil
}

func (f *fakeContactStore) ListEmbeddings(_ context.Context, _ string) ([]store.ContactEmbedding, error) {
	return f.embeddings, nil
}

type fakeUsageStore struct {
	totals   model.UsageTotals
	appended []model.UsageRecord
}

func (f *fakeUsageStore) AppendUsage(_ context.Context, rec model.UsageRecord) error {
	f.appended = append(f.appended, rec)
	return nil
}

func (f *fakeUsageStore) MonthlyTotals(_ context.Context, _ string, _, _ time.Time) (model.UsageTotals, error) {
	return f.totals, nil
}

func newTestPipeline(jc *fakeJina, cs *fakeContactStore, usage *fakeUsageStore, llm expand.LLM) *Pipeline {
	gate := budget.NewGate(usage, tier.NewRegistry(nil), nil)
	calc := cost.NewCalculator(cost.DefaultRates())
	expander := expand.New(nil, llm, expand.Config{})
	searcher := vector.NewSearcher(jc, cs, gate, calc, "jina-embeddings-v3", nil)
	reranker := rerank.New(jc, gate, calc, rerank.Config{}, nil)
	return NewPipeline(expander, searcher, reranker, gate, nil)
}

func contactsFixture() (*fakeContactStore, *fakeJina) {
	cs := &fakeContactStore{
		contacts: []model.Contact{
			{ID: "c1", UserID: "u1", Name: "Alice", JobTitle: "CEO"},
			{ID: "c2", UserID: "u1", Name: "Bob", JobTitle: "Engineer"},
		},
		embeddings: []store.ContactEmbedding{
			{ContactID: "c1", Vector: []float32{1, 0}},
			{ContactID: "c2", Vector: []float32{0.5, 0.8}},
		},
	}
	jc := &fakeJina{
		embedding: []float32{1, 0},
		rerankOrder: []jina.RerankResult{
			{Index: 1, RelevanceScore: 0.9},
			{Index: 0, RelevanceScore: 0.2},
		},
	}
	return cs, jc
}

func TestPipeline_FullRun_PremiumReranks(t *testing.T) {
	t.Parallel()

	cs, jc := contactsFixture()
	usage := &fakeUsageStore{}
	p := newTestPipeline(jc, cs, usage, &fakeLLM{})

	res, err := p.Search(context.Background(), model.User{ID: "u1", Tier: "premium"}, "boss", Options{})
	require.NoError(t, err)

	assert.Equal(t, "boss", res.Query.Raw)
	assert.Equal(t, "boss expanded", res.Query.Enhanced)
	assert.Equal(t, model.ExpansionSourceLLM, res.Query.Source)
	assert.True(t, res.Reranked)
	assert.Empty(t, res.Degraded)
	require.Len(t, res.Contacts, 2)
	assert.Equal(t, "c2", res.Contacts[0].ID, "rerank order wins")
	assert.Greater(t, res.Contacts[0].HybridScore, res.Contacts[1].HybridScore)
	assert.Greater(t, res.CostUSD, 0.0)

	// Expansion, embedding and rerank were each metered.
	features := make(map[string]bool)
	for _, rec := range usage.appended {
		features[rec.Feature] = true
	}
	assert.True(t, features["query_expansion"])
	assert.True(t, features["vector_search"])
	assert.True(t, features["rerank"])
}

func TestPipeline_DictionaryQuerySkipsLLM(t *testing.T) {
	t.Parallel()

	cs, jc := contactsFixture()
	llm := &fakeLLM{}
	p := newTestPipeline(jc, cs, &fakeUsageStore{}, llm)

	res, err := p.Search(context.Background(), model.User{ID: "u1", Tier: "premium"}, "ceo", Options{})
	require.NoError(t, err)
	assert.Equal(t, model.ExpansionSourceDictionary, res.Query.Source)
	assert.Zero(t, llm.calls)
}

func TestPipeline_ProTierSkipsRerank(t *testing.T) {
	t.Parallel()

	cs, jc := contactsFixture()
	p := newTestPipeline(jc, cs, &fakeUsageStore{}, &fakeLLM{})

	res, err := p.Search(context.Background(), model.User{ID: "u1", Tier: "pro"}, "boss", Options{})
	require.NoError(t, err)
	assert.False(t, res.Reranked)
	assert.Zero(t, jc.rerankCalls, "below premium, no rerank call")
	require.Len(t, res.Contacts, 2)
	assert.Equal(t, "c1", res.Contacts[0].ID, "vector order preserved")
}

func TestPipeline_RerankFailureDegradesToVectorOrder(t *testing.T) {
	t.Parallel()

	cs, jc := contactsFixture()
	jc.rerankErr = &jina.APIError{StatusCode: 503}
	p := newTestPipeline(jc, cs, &fakeUsageStore{}, &fakeLLM{})

	res, err := p.Search(context.Background(), model.User{ID: "u1", Tier: "premium"}, "boss", Options{})
	require.NoError(t, err, "rerank trouble must not fail the search")
	assert.False(t, res.Reranked)
	assert.Contains(t, res.Degraded, "rerank")
	assert.Equal(t, "c1", res.Contacts[0].ID)
}

func TestPipeline_BudgetDeniedAbortsBeforeEmbedding(t *testing.T) {
	t.Parallel()

	cs, jc := contactsFixture()
	usage := &fakeUsageStore{totals: model.UsageTotals{CostUSD: 1e6}}
	p := newTestPipeline(jc, cs, usage, &fakeLLM{})

	_, err := p.Search(context.Background(), model.User{ID: "u1", Tier: "premium"}, "boss", Options{})
	var budgetErr *model.BudgetExceededError
	require.ErrorAs(t, err, &budgetErr)
	assert.Zero(t, jc.embedCalls)
	assert.Zero(t, jc.rerankCalls)
}

func TestPipeline_EmptyQuery(t *testing.T) {
	t.Parallel()

	cs, jc := contactsFixture()
	p := newTestPipeline(jc, cs, &fakeUsageStore{}, &fakeLLM{})

	_, err := p.Search(context.Background(), model.User{ID: "u1", Tier: "premium"}, "", Options{})
	var vErr *model.ValidationError
	require.ErrorAs(t, err, &vErr)
}

func TestPipeline_RerankUsesRawQuery(t *testing.T) {
	t.Parallel()

	cs, jc := contactsFixture()
	p := newTestPipeline(jc, cs, &fakeUsageStore{}, &fakeLLM{})

	_, err := p.Search(context.Background(), model.User{ID: "u1", Tier: "premium"}, "boss", Options{})
	require.NoError(t, err)
	assert.Equal(t, "boss", jc.lastRerankIn.Query, "cross-encoder sees the user's words, not the expansion")
}
