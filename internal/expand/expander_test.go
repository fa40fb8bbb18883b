package expand

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tapcard/contact-search/internal/cache"
	"github.com/tapcard/contact-search/internal/model"
)

type fakeLLM struct {
	calls   int
	outcome *LLMOutcome
	err     error
}

func (f *fakeLLM) ExpandQuery(ctx context.Context, raw, lang string) (*LLMOutcome, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.outcome, nil
}

func newTestExpandCache(t *testing.T) *cache.Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	c := cache.NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Hour)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestExpandDictionaryHitSkipsCacheAndLLM(t *testing.T) {
	llm := &fakeLLM{outcome: &LLMOutcome{Enhanced: "should not be used"}}
	c := newTestExpandCache(t)
	e := New(c, llm, Config{})

	got := e.Expand(context.Background(), "CEO", "")

	assert.Equal(t, model.ExpansionSourceDictionary, got.Source)
	assert.Contains(t, got.Enhanced, "chief executive officer")
	assert.Equal(t, "eng", got.Language)
	assert.Equal(t, 0, llm.calls)
	assert.False(t, c.Exists(context.Background(), CacheKey("CEO")))
}

func TestExpandDictionaryIsCaseInsensitive(t *testing.T) {
	e := New(nil, nil, Config{})

	upper := e.Expand(context.Background(), "CEO", "")
	lower := e.Expand(context.Background(), "ceo", "")

	assert.Equal(t, upper.Enhanced, lower.Enhanced)
	assert.Equal(t, model.ExpansionSourceDictionary, lower.Source)
}

func TestExpandFrenchDictionaryEntry(t *testing.T) {
	e := New(nil, nil, Config{})

	got := e.Expand(context.Background(), "PDG", "")

	assert.Equal(t, model.ExpansionSourceDictionary, got.Source)
	assert.Contains(t, got.Enhanced, "CEO")
	assert.Contains(t, got.Enhanced, "Directeur Général")
	assert.Equal(t, "fra", got.Language)
}

func TestExpandEmptyQueryShortCircuits(t *testing.T) {
	llm := &fakeLLM{}
	e := New(newTestExpandCache(t), llm, Config{})

	got := e.Expand(context.Background(), "   ", "")

	assert.Equal(t, model.ExpansionSourceNone, got.Source)
	assert.Equal(t, "   ", got.Enhanced)
	assert.Equal(t, 0, llm.calls)
}

func TestExpandLLMResultIsCached(t *testing.T) {
	llm := &fakeLLM{outcome: &LLMOutcome{Enhanced: "growth hacker marketing acquisition", Model: "haiku", CostUSD: 0.0002}}
	c := newTestExpandCache(t)
	e := New(c, llm, Config{})
	ctx := context.Background()

	first := e.Expand(ctx, "growth hacker", "")
	require.Equal(t, model.ExpansionSourceLLM, first.Source)
	assert.Equal(t, "growth hacker marketing acquisition", first.Enhanced)
	assert.InDelta(t, 0.0002, first.CostUSD, 1e-9)

	second := e.Expand(ctx, "Growth Hacker", "")
	assert.Equal(t, model.ExpansionSourceCache, second.Source)
	assert.Equal(t, first.Enhanced, second.Enhanced)
	assert.Equal(t, 1, llm.calls, "second call must not hit the LLM")
}

func TestExpandLLMFailureDegradesAndDoesNotCache(t *testing.T) {
	llm := &fakeLLM{err: eris.New("provider down")}
	c := newTestExpandCache(t)
	e := New(c, llm, Config{})
	ctx := context.Background()

	got := e.Expand(ctx, "blockchain wizard", "")

	assert.Equal(t, model.ExpansionSourceNone, got.Source)
	assert.Equal(t, "blockchain wizard", got.Enhanced)
	assert.False(t, c.Exists(ctx, CacheKey("blockchain wizard")), "failures must not be cached")

	// A later call retries the LLM instead of serving a cached failure.
	e.Expand(ctx, "blockchain wizard", "")
	assert.Equal(t, 2, llm.calls)
}

func TestExpandWithoutCacheOrLLM(t *testing.T) {
	e := New(nil, nil, Config{})

	got := e.Expand(context.Background(), "quantum analyst", "")

	assert.Equal(t, model.ExpansionSourceNone, got.Source)
	assert.Equal(t, "quantum analyst", got.Enhanced)
}

func TestDetectLanguage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want string
	}{
		{"english query", "who is the chief executive", "eng"},
		{"french query", "qui est le directeur de la société", "fra"},
		{"single french word is not enough", "le manager", "eng"},
		{"empty", "", "eng"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, DetectLanguage(tt.text))
		})
	}
}

func TestResolveLanguage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		hint string
		text string
		want string
	}{
		{"french hint wins", "fr", "chief executive", "fra"},
		{"regional french hint", "fr-FR", "chief executive", "fra"},
		{"english hint", "en-US", "le directeur de la société", "eng"},
		{"bad hint falls back to detection", "zz!!", "le directeur de la société", "fra"},
		{"no hint", "", "hello", "eng"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ResolveLanguage(tt.hint, tt.text))
		})
	}
}
