// cleo - media ingestion engine
// SPDX-License-Identifier: AGPL-3.0-or-later

package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chrisorr0264/cleo2/internal/config"
)

func testConfig() *config.GeocodeConfig {
	return &config.GeocodeConfig{
		UserAgent:          "cleo-test/1.0",
		Attempts:           3,
		RetryDelay:         10 * time.Millisecond,
		Timeout:            time.Second,
		RateLimitPerSecond: 1000,
		BreakerMaxRequests: 10,
		BreakerTimeout:     time.Second,
	}
}

func TestResolveSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"class": "place", "type": "city", "name": "San Francisco",
			"display_name": "San Francisco, California, USA",
			"address": {"city": "San Francisco", "state": "California", "country": "USA"}
		}`))
	}))
	defer srv.Close()

	r := New(testConfig())
	r.baseURL = srv.URL

	loc, err := r.Resolve(context.Background(), 37.7749, -122.4194)
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if loc.City != "San Francisco" {
		t.Errorf("City = %q, want San Francisco", loc.City)
	}
	if loc.Country != "USA" {
		t.Errorf("Country = %q, want USA", loc.Country)
	}
}

func TestResolveRetriesThenFails(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.Attempts = 3
	cfg.RetryDelay = time.Millisecond
	r := New(cfg)
	r.baseURL = srv.URL

	_, err := r.Resolve(context.Background(), 1, 1)
	if err == nil {
		t.Fatalf("expected a GeocodeError after exhausting retries")
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", calls)
	}
}

func TestResolveFallsBackToTownWhenCityMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"address": {"town": "Smallville"}}`))
	}))
	defer srv.Close()

	r := New(testConfig())
	r.baseURL = srv.URL

	loc, err := r.Resolve(context.Background(), 1, 1)
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if loc.City != "Smallville" {
		t.Errorf("City = %q, want Smallville", loc.City)
	}
}
