package model

// ExpansionSource records which layer satisfied a query expansion.
type ExpansionSource string

const (
	ExpansionSourceDictionary ExpansionSource = "dictionary"
	ExpansionSourceCache      ExpansionSource = "cache"
	ExpansionSourceLLM        ExpansionSource = "llm"
	// ExpansionSourceNone marks a degraded passthrough (empty query or
	// LLM failure); the raw query is used unmodified.
	ExpansionSourceNone ExpansionSource = "none"
)

// SearchQuery is a resolved search request. Immutable once built; never
// persisted beyond the cache entry keyed by its normalized raw text.
type SearchQuery struct {
	Raw      string          `json:"raw"`
	Enhanced string          `json:"enhanced"`
	Language string          `json:"language"`
	Source   ExpansionSource `json:"source"`
}

// SearchResult is the final output of the search pipeline. Degraded lists
// the stages that soft-failed (e.g. "expansion", "rerank") so callers can
// tell reduced quality from a clean run.
type SearchResult struct {
	Query    SearchQuery     `json:"query"`
	Contacts []RankedContact `json:"contacts"`
	Reranked bool            `json:"reranked"`
	Degraded []string        `json:"degraded,omitempty"`
	CostUSD  float64         `json:"cost_usd"`
}
