package cost

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testRates() Rates {
	return Rates{
		LLM: map[string]ModelRate{
			"haiku":  {Input: 0.80, Output: 4.00},
			"sonnet": {Input: 3.00, Output: 15.00},
		},
		Embedding: EmbeddingRate{PerMTok: 0.02},
		Rerank: map[string]float64{
			"reranker-multilingual": 0.00005,
		},
	}
}

func TestLLM(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testRates())

	tests := []struct {
		name   string
		model  string
		input  int
		output int
		want   float64
	}{
		{
			name:  "haiku simple",
			model: "haiku", input: 1000000, output: 100000,
			want: 0.80 + 0.40,
		},
		{
			name:  "sonnet",
			model: "sonnet", input: 1000000, output: 100000,
			want: 3.00 + 1.50,
		},
		{
			name:  "unknown model returns 0",
			model: "unknown", input: 1000000, output: 1000000,
			want: 0,
		},
		{
			name:  "zero tokens returns 0",
			model: "haiku",
			want:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := calc.LLM(tt.model, tt.input, tt.output)
			assert.InDelta(t, tt.want, got, 0.001)
		})
	}
}

func TestEmbedding(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testRates())

	tests := []struct {
		name   string
		tokens int
		want   float64
	}{
		{"1M tokens", 1000000, 0.02},
		{"500K tokens", 500000, 0.01},
		{"zero tokens", 0, 0},
		{"small", 2150, 2150.0 / 1e6 * 0.02},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := calc.Embedding(tt.tokens)
			assert.InDelta(t, tt.want, got, 0.0001)
		})
	}
}

func TestEstimateEmbedding(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testRates())

	// 40 characters ~ 11 tokens under the 4-chars-per-token heuristic.
	text := "chief executive officer startup founder"
	got := calc.EstimateEmbedding(text)
	assert.InDelta(t, float64(len(text)/4+1)/1e6*0.02, got, 1e-9)
	assert.Greater(t, got, 0.0)
}

func TestRerank(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testRates())

	tests := []struct {
		name      string
		model     string
		documents int
		want      float64
	}{
		{"20 documents", "reranker-multilingual", 20, 0.001},
		{"zero documents", "reranker-multilingual", 0, 0},
		{"unknown model", "nope", 100, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := calc.Rerank(tt.model, tt.documents)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestDefaultRates(t *testing.T) {
	t.Parallel()
	rates := DefaultRates()

	assert.Contains(t, rates.LLM, "claude-haiku-4-5-20251001")
	assert.Contains(t, rates.Rerank, "jina-reranker-v2-base-multilingual")
	assert.InDelta(t, 0.02, rates.Embedding.PerMTok, 0.001)
}
