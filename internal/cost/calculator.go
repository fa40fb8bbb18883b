package cost

// Rates holds per-provider pricing configuration.
type Rates struct {
	LLM       map[string]ModelRate `yaml:"llm" mapstructure:"llm"`
	Embedding EmbeddingRate        `yaml:"embedding" mapstructure:"embedding"`
	Rerank    map[string]float64   `yaml:"rerank" mapstructure:"rerank"`
}

// ModelRate holds per-model token pricing (per million tokens).
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// EmbeddingRate holds embedding pricing.
type EmbeddingRate struct {
	PerMTok float64 `yaml:"per_mtok" mapstructure:"per_mtok"`
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// LLM computes the cost for a chat-completion call. Unknown models cost 0.
func (c *Calculator) LLM(model string, input, output int) float64 {
	rate, ok := c.rates.LLM[model]
	if !ok {
		return 0
	}
	return (float64(input)/1e6)*rate.Input + (float64(output)/1e6)*rate.Output
}

// Embedding computes the cost of embedding the given token count.
func (c *Calculator) Embedding(tokens int) float64 {
	return (float64(tokens) / 1e6) * c.rates.Embedding.PerMTok
}

// EstimateEmbedding approximates embedding cost from text length, using
// the common 4-characters-per-token heuristic. Used for affordability
// checks before the call is issued.
func (c *Calculator) EstimateEmbedding(text string) float64 {
	return c.Embedding(len(text)/4 + 1)
}

// Rerank computes documents x per-document price for the given model.
// Cost is independent of topN. Unknown models cost 0.
func (c *Calculator) Rerank(model string, documents int) float64 {
	return float64(documents) * c.rates.Rerank[model]
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		LLM: map[string]ModelRate{
			"claude-haiku-4-5-20251001":  {Input: 0.80, Output: 4.00},
			"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
		},
		Embedding: EmbeddingRate{PerMTok: 0.02},
		Rerank: map[string]float64{
			"jina-reranker-v2-base-multilingual": 0.00005,
			"jina-colbert-v2":                    0.0001,
		},
	}
}
