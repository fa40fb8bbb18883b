// Package jina provides a client for the Jina AI embeddings and rerank
// APIs.
package jina

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/tapcard/contact-search/internal/resilience"
)

const (
	defaultBaseURL     = "https://api.jina.ai"
	defaultEmbedModel  = "jina-embeddings-v3"
	defaultRerankModel = "jina-reranker-v2-base-multilingual"
)

// Client defines the Jina AI operations used by the search pipeline.
type Client interface {
	// Embed converts input texts into embedding vectors.
	Embed(ctx context.Context, req EmbedRequest) (*EmbedResponse, error)
	// Rerank scores documents against a query with a cross-encoder.
	Rerank(ctx context.Context, req RerankRequest) (*RerankResponse, error)
}

// EmbedRequest is the request body for POST /v1/embeddings.
type EmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
	Task  string   `json:"task,omitempty"`
}

// EmbedResponse is the parsed embeddings response.
type EmbedResponse struct {
	Model string      `json:"model"`
	Data  []Embedding `json:"data"`
	Usage Usage       `json:"usage"`
}

// Embedding is a single embedding vector, index-aligned with the input.
type Embedding struct {
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

// RerankRequest is the request body for POST /v1/rerank.
type RerankRequest struct {
	Model           string   `json:"model"`
	Query           string   `json:"query"`
	Documents       []string `json:"documents"`
	TopN            int      `json:"top_n,omitempty"`
	ReturnDocuments bool     `json:"return_documents"`
}

// RerankResponse is the parsed rerank response; Results are ordered by
// descending relevance.
type RerankResponse struct {
	Model   string         `json:"model"`
	Results []RerankResult `json:"results"`
	Usage   Usage          `json:"usage"`
}

// RerankResult scores one input document by its original index.
type RerankResult struct {
	Index          int     `json:"index"`
	RelevanceScore float64 `json:"relevance_score"`
}

// Usage tracks token consumption.
type Usage struct {
	TotalTokens int `json:"total_tokens"`
}

// APIError is returned for non-2xx responses so callers can distinguish
// rate limits and auth failures from transport errors.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("jina: status %d: %s", e.StatusCode, e.Body)
}

// Option configures the Jina client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithEmbedModel overrides the default embedding model.
func WithEmbedModel(model string) Option {
	return func(c *httpClient) {
		c.embedModel = model
	}
}

// WithRerankModel overrides the default rerank model.
func WithRerankModel(model string) Option {
	return func(c *httpClient) {
		c.rerankModel = model
	}
}

// WithRetryConfig overrides the retry policy for transient failures.
func WithRetryConfig(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

// WithCircuitConfig overrides the circuit breaker policy. The breaker always
// trips on the same transient errors the retry loop acts on.
func WithCircuitConfig(cfg resilience.CircuitBreakerConfig) Option {
	return func(c *httpClient) {
		cfg.ShouldTrip = shouldRetry
		c.breaker = resilience.NewCircuitBreaker(cfg)
	}
}

type httpClient struct {
	apiKey      string
	baseURL     string
	embedModel  string
	rerankModel string
	http        *http.Client
	retry       resilience.RetryConfig
	breaker     *resilience.CircuitBreaker
}

// NewClient creates a new Jina AI client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:      apiKey,
		baseURL:     defaultBaseURL,
		embedModel:  defaultEmbedModel,
		rerankModel: defaultRerankModel,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retry: resilience.DefaultRetryConfig(),
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			ShouldTrip: shouldRetry,
		}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// shouldRetry treats 429 and 5xx responses as transient alongside the
// usual network-level failures.
func shouldRetry(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return resilience.IsTransientHTTPStatus(apiErr.StatusCode)
	}
	return resilience.IsTransient(err)
}

// postJSON executes a JSON POST with exponential backoff retries on
// transient failures. Returns the response body on success or the last
// error after exhausting retries.
func (c *httpClient) postJSON(ctx context.Context, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, eris.Wrap(err, "jina: marshal request")
	}

	cfg := c.retry
	cfg.ShouldRetry = shouldRetry

	// The breaker wraps the whole retry loop: only an exhausted retry
	// budget counts as a failure against the service.
	respBody, err := resilience.ExecuteVal(ctx, c.breaker, func(ctx context.Context) ([]byte, error) {
		return c.doOnce(ctx, cfg, path, body)
	})
	if err != nil {
		return nil, err
	}
	return respBody, nil
}

func (c *httpClient) doOnce(ctx context.Context, cfg resilience.RetryConfig, path string, body []byte) ([]byte, error) {
	var respBody []byte
	err := resilience.Do(ctx, cfg, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return eris.Wrap(err, "jina: create request")
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.http.Do(req)
		if err != nil {
			return resilience.NewTransientError(eris.Wrap(err, "jina: send request"), 0)
		}

		b, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return eris.Wrap(readErr, "jina: read response body")
		}

		if resp.StatusCode != http.StatusOK {
			return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		}
		respBody = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return respBody, nil
}

func (c *httpClient) Embed(ctx context.Context, req EmbedRequest) (*EmbedResponse, error) {
	if req.Model == "" {
		req.Model = c.embedModel
	}

	body, err := c.postJSON(ctx, "/v1/embeddings", req)
	if err != nil {
		return nil, err
	}

	var result EmbedResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "jina: unmarshal embeddings response")
	}

	return &result, nil
}

func (c *httpClient) Rerank(ctx context.Context, req RerankRequest) (*RerankResponse, error) {
	if req.Model == "" {
		req.Model = c.rerankModel
	}

	body, err := c.postJSON(ctx, "/v1/rerank", req)
	if err != nil {
		return nil, err
	}

	var result RerankResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "jina: unmarshal rerank response")
	}

	return &result, nil
}
