// cleo - media ingestion engine
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package geocode reverse-geocodes GPS coordinates into the seven
// location strings persisted on MediaObject, with bounded retries,
// client-side rate limiting, and a circuit breaker protecting the worker
// from hammering a downed geocoder across many files.
package geocode

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/chrisorr0264/cleo2/internal/config"
	"github.com/chrisorr0264/cleo2/internal/ingesterr"
	"github.com/chrisorr0264/cleo2/internal/logging"
)

// Location holds the seven free-text location fields stored on
// MediaObject.
type Location struct {
	Class       string
	Type        string
	Name        string
	DisplayName string
	City        string
	Province    string
	Country     string
}

// nominatimResponse is the subset of a reverse-geocoder JSON response this
// package understands (field names match the widely-used Nominatim API
// shape).
type nominatimResponse struct {
	Class       string `json:"class"`
	Type        string `json:"type"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Address     struct {
		City    string `json:"city"`
		Town    string `json:"town"`
		Village string `json:"village"`
		State   string `json:"state"`
		Country string `json:"country"`
	} `json:"address"`
}

// Resolver reverse-geocodes GPS coordinates with a fixed retry contract
// (attempts with constant spacing, per-call timeout), layered under a
// circuit breaker and client-side rate limiter.
type Resolver struct {
	client    *http.Client
	userAgent string
	baseURL   string

	attempts   int
	retryDelay time.Duration
	timeout    time.Duration

	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[*Location]
}

// New builds a Resolver from geocode configuration.
func New(cfg *config.GeocodeConfig) *Resolver {
	r := &Resolver{
		client:     &http.Client{Timeout: cfg.Timeout},
		userAgent:  cfg.UserAgent,
		baseURL:    "https://nominatim.openstreetmap.org/reverse",
		attempts:   cfg.Attempts,
		retryDelay: cfg.RetryDelay,
		timeout:    cfg.Timeout,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimitPerSecond), 1),
	}

	r.breaker = gobreaker.NewCircuitBreaker[*Location](gobreaker.Settings{
		Name:        "geocode-resolver",
		MaxRequests: cfg.BreakerMaxRequests,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("geocode circuit breaker state change")
		},
	})

	return r
}

// Resolve reverse-geocodes (lat, long). On total failure after exhausting
// retries the returned Location is nil and a non-fatal *ingesterr.GeocodeError
// is returned; the caller leaves location fields null rather than aborting
// the pipeline.
func (r *Resolver) Resolve(ctx context.Context, lat, long float64) (*Location, error) {
	var lastErr error

	for attempt := 1; attempt <= r.attempts; attempt++ {
		loc, err := r.attempt(ctx, lat, long)
		if err == nil {
			return loc, nil
		}
		lastErr = err

		if attempt < r.attempts {
			select {
			case <-ctx.Done():
				return nil, &ingesterr.GeocodeError{Latitude: lat, Longitude: long, Attempts: attempt, Err: ctx.Err()}
			case <-time.After(r.retryDelay):
			}
		}
	}

	return nil, &ingesterr.GeocodeError{Latitude: lat, Longitude: long, Attempts: r.attempts, Err: lastErr}
}

// attempt performs a single rate-limited, breaker-protected, timeout-bounded
// reverse-geocode call.
func (r *Resolver) attempt(ctx context.Context, lat, long float64) (*Location, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	return r.breaker.Execute(func() (*Location, error) {
		return r.query(callCtx, lat, long)
	})
}

// query performs the actual HTTP round trip and response parse.
func (r *Resolver) query(ctx context.Context, lat, long float64) (*Location, error) {
	url := fmt.Sprintf("%s?format=jsonv2&lat=%f&lon=%f", r.baseURL, lat, long)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", r.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reverse geocoder returned status %d", resp.StatusCode)
	}

	var parsed nominatimResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	city := parsed.Address.City
	if city == "" {
		city = parsed.Address.Town
	}
	if city == "" {
		city = parsed.Address.Village
	}

	return &Location{
		Class:       parsed.Class,
		Type:        parsed.Type,
		Name:        parsed.Name,
		DisplayName: parsed.DisplayName,
		City:        city,
		Province:    parsed.Address.State,
		Country:     parsed.Address.Country,
	}, nil
}
