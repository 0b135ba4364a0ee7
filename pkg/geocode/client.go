// Package geocode resolves free-text addresses to coordinates and coordinates
// to human-readable place labels via the Mapbox Geocoding API.
package geocode

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Client resolves addresses and reverse-resolves coordinates.
type Client interface {
	// Resolve geocodes a single free-text address.
	Resolve(ctx context.Context, address string) (*Result, error)

	// ReverseResolve returns a human-readable label for a coordinate.
	ReverseResolve(ctx context.Context, lat, lng float64) (string, error)
}

// Result holds the outcome of resolving one address.
type Result struct {
	Latitude  float64
	Longitude float64
	PlaceName string // provider's formatted address, when matched
	Matched   bool
	Reason    string // human-readable failure reason, when unmatched
}

// Option configures the resolver.
type Option func(*resolver)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(r *resolver) {
		r.httpClient = hc
	}
}

// WithRateLimit sets the requests-per-second limit for provider calls.
func WithRateLimit(rps float64) Option {
	return func(r *resolver) {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithBaseURL overrides the provider base URL. Used by tests.
func WithBaseURL(u string) Option {
	return func(r *resolver) {
		r.baseURL = u
	}
}

type resolver struct {
	httpClient *http.Client
	token      string
	baseURL    string
	limiter    *rate.Limiter
}

// NewClient creates a resolver for the given Mapbox access token.
func NewClient(token string, opts ...Option) Client {
	r := &resolver{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		token:      token,
		baseURL:    "https://api.mapbox.com",
		limiter:    rate.NewLimiter(10, 10),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}
