// Package expand implements the query expansion engine: a static EN/FR
// dictionary, a Redis-backed cache, and an LLM fallback, in that order.
package expand

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tapcard/contact-search/internal/cache"
	"github.com/tapcard/contact-search/internal/model"
)

// CacheKeyPrefix namespaces expansion entries in the shared cache.
const CacheKeyPrefix = "query_expansion"

// Expansion is the result of expanding a raw search term.
type Expansion struct {
	Enhanced string                `json:"enhanced"`
	Language string                `json:"language"`
	Source   model.ExpansionSource `json:"source"`
	// CostUSD is non-zero only when the LLM produced the expansion.
	CostUSD float64 `json:"-"`
	Model   string  `json:"-"`
}

// LLMOutcome is what the LLM layer returns for a successful expansion.
type LLMOutcome struct {
	Enhanced string
	Model    string
	CostUSD  float64
}

// LLM produces expansions for terms not covered by the dictionary.
type LLM interface {
	ExpandQuery(ctx context.Context, raw, lang string) (*LLMOutcome, error)
}

// Config holds expansion engine settings.
type Config struct {
	CacheTTL time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
}

// Expander resolves raw search terms into enhanced queries.
type Expander struct {
	cache *cache.Cache
	llm   LLM
	ttl   time.Duration
}

// New creates an Expander. cache and llm may each be nil; missing layers
// are skipped.
func New(c *cache.Cache, llm LLM, cfg Config) *Expander {
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = cache.DefaultTTL
	}
	return &Expander{cache: c, llm: llm, ttl: ttl}
}

// cachedExpansion is the JSON shape persisted under the cache key.
type cachedExpansion struct {
	Enhanced string `json:"enhanced"`
	Language string `json:"language"`
}

// CacheKey returns the cache key for a raw query.
func CacheKey(raw string) string {
	return CacheKeyPrefix + ":" + strings.ToLower(strings.TrimSpace(raw))
}

// Expand resolves raw through dictionary, cache, then LLM. It never
// returns an error: any failure degrades to the original query. langHint
// is an optional BCP 47 tag from the caller.
func (e *Expander) Expand(ctx context.Context, raw, langHint string) Expansion {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Expansion{Enhanced: raw, Language: "eng", Source: model.ExpansionSourceNone}
	}

	lang := ResolveLanguage(langHint, trimmed)

	if entry, ok := LookupDictionary(trimmed); ok {
		return Expansion{Enhanced: entry.Expansion, Language: entry.Language, Source: model.ExpansionSourceDictionary}
	}

	key := CacheKey(trimmed)
	if e.cache != nil {
		var cached cachedExpansion
		if e.cache.Get(ctx, key, &cached) {
			return Expansion{Enhanced: cached.Enhanced, Language: cached.Language, Source: model.ExpansionSourceCache}
		}
	}

	if e.llm == nil {
		return Expansion{Enhanced: trimmed, Language: lang, Source: model.ExpansionSourceNone}
	}

	outcome, err := e.llm.ExpandQuery(ctx, trimmed, lang)
	if err != nil || outcome == nil || strings.TrimSpace(outcome.Enhanced) == "" {
		// Degraded result: the raw query still searches, just with less
		// recall. Failures are not cached.
		zap.L().Warn("expand: llm expansion failed, using raw query",
			zap.String("query", trimmed),
			zap.Error(err),
		)
		return Expansion{Enhanced: trimmed, Language: lang, Source: model.ExpansionSourceNone}
	}

	if e.cache != nil {
		e.cache.Set(ctx, key, cachedExpansion{Enhanced: outcome.Enhanced, Language: lang}, e.ttl)
	}

	return Expansion{
		Enhanced: outcome.Enhanced,
		Language: lang,
		Source:   model.ExpansionSourceLLM,
		CostUSD:  outcome.CostUSD,
		Model:    outcome.Model,
	}
}
