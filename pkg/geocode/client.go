// Package geocode resolves freeform place strings to coordinates via the
// Census Geocoder (US street addresses) with Google as an optional
// worldwide fallback.
package geocode

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Client geocodes a single-line place or address string.
type Client interface {
	Geocode(ctx context.Context, query string) (*Result, error)
}

// Result holds the geocoding output for a query. Matched is false when no
// provider could resolve the query; that is not an error.
type Result struct {
	Latitude  float64
	Longitude float64
	Source    string // "census" or "google"
	Quality   string // "rooftop", "range", "centroid", "approximate"
	Matched   bool
}

// Option configures the geocoder.
type Option func(*geocoder)

// WithGoogleAPIKey enables the Google Geocoding API as a fallback for
// queries Census cannot match, e.g. non-US places or venue names.
func WithGoogleAPIKey(key string) Option {
	return func(g *geocoder) {
		g.googleKey = key
	}
}

// WithHTTPClient sets a custom HTTP client for both providers.
func WithHTTPClient(hc *http.Client) Option {
	return func(g *geocoder) {
		g.httpClient = hc
	}
}

// WithRateLimit sets the requests-per-second limit shared by both providers.
func WithRateLimit(rps float64) Option {
	return func(g *geocoder) {
		g.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
	}
}

type geocoder struct {
	httpClient *http.Client
	googleKey  string
	limiter    *rate.Limiter
}

// NewClient creates a geocoding Client with the given options.
func NewClient(opts ...Option) Client {
	g := &geocoder{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(10, 10),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Geocode tries Census first, then Google if configured. An unmatched
// query returns Matched=false without an error.
func (g *geocoder) Geocode(ctx context.Context, query string) (*Result, error) {
	result, censusErr := g.geocodeCensus(ctx, query)
	if censusErr == nil && result.Matched {
		return result, nil
	}

	if g.googleKey != "" {
		googleResult, googleErr := g.geocodeGoogle(ctx, query)
		if googleErr == nil && googleResult.Matched {
			return googleResult, nil
		}
	}

	return &Result{Matched: false}, nil
}
