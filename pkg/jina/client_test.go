package jina

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tapcard/contact-search/internal/resilience"
)

func TestEmbed_Success(t *testing.T) {
	t.Parallel()

	want := EmbedResponse{
		Model: "jina-embeddings-v3",
		Data: []Embedding{
			{Index: 0, Embedding: []float32{0.1, 0.2, 0.3}},
		},
		Usage: Usage{TotalTokens: 12},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req EmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "jina-embeddings-v3", req.Model)
		assert.Equal(t, []string{"chief executive"}, req.Input)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(want)
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	got, err := client.Embed(context.Background(), EmbedRequest{Input: []string{"chief executive"}})

	require.NoError(t, err)
	require.Len(t, got.Data, 1)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, got.Data[0].Embedding)
	assert.Equal(t, 12, got.Usage.TotalTokens)
}

func TestRerank_Success(t *testing.T) {
	t.Parallel()

	want := RerankResponse{
		Model: "jina-reranker-v2-base-multilingual",
		Results: []RerankResult{
			{Index: 2, RelevanceScore: 0.91},
			{Index: 0, RelevanceScore: 0.42},
		},
		Usage: Usage{TotalTokens: 310},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/rerank", r.URL.Path)

		var req RerankRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "who runs acme", req.Query)
		assert.Len(t, req.Documents, 3)
		assert.Equal(t, 2, req.TopN)
		assert.False(t, req.ReturnDocuments)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(want)
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	got, err := client.Rerank(context.Background(), RerankRequest{
		Query:     "who runs acme",
		Documents: []string{"a", "b", "c"},
		TopN:      2,
	})

	require.NoError(t, err)
	require.Len(t, got.Results, 2)
	assert.Equal(t, 2, got.Results[0].Index)
	assert.InDelta(t, 0.91, got.Results[0].RelevanceScore, 0.001)
}

func TestRerank_AuthFailureIsAPIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":"invalid api key"}`))
	}))
	defer srv.Close()

	client := NewClient("bad-key", WithBaseURL(srv.URL))
	_, err := client.Rerank(context.Background(), RerankRequest{Query: "q", Documents: []string{"d"}})

	require.Error(t, err)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}

func TestEmbed_RetriesOnRateLimit(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"rate limit exceeded"}`))
			return
		}
		json.NewEncoder(w).Encode(EmbedResponse{Data: []Embedding{{Index: 0, Embedding: []float32{1}}}})
	}))
	defer srv.Close()

	retry := resilience.DefaultRetryConfig()
	retry.InitialBackoff = time.Millisecond
	client := NewClient("test-key", WithBaseURL(srv.URL), WithRetryConfig(retry))
	got, err := client.Embed(context.Background(), EmbedRequest{Input: []string{"x"}})

	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	require.Len(t, got.Data, 1)
}

func TestEmbed_DoesNotRetryClientError(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"bad input"}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := client.Embed(context.Background(), EmbedRequest{Input: []string{"x"}})

	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}
