package middleware_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/loglens/loglens/internal/api/middleware"
	"github.com/loglens/loglens/internal/ratelimit"
)

type rateCounter struct{ hits int }

func (c *rateCounter) ObserveRateLimited(string) { c.hits++ }

func TestRateLimit_AfterAuth(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter(2, time.Minute)
	defer limiter.Close()
	counter := &rateCounter{}

	handler := newAuth(t, "key-a", "key-b").Middleware(
		middleware.RateLimit(limiter, counter)(http.HandlerFunc(okHandler)))

	send := func(key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/chat", nil)
		req.Header.Set("X-API-Key", key)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	for i := 0; i < 2; i++ {
		if w := send("key-a"); w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want %d", i, w.Code, http.StatusOK)
		}
	}

	w := send("key-a")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("over limit: status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if got := w.Header().Get("Retry-After"); got == "" || got == "0" {
		t.Errorf("Retry-After = %q, want a positive value", got)
	}
	if got := w.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Errorf("X-RateLimit-Remaining = %q, want 0", got)
	}
	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != "rate_limited" {
		t.Errorf("error = %v, want rate_limited", body["error"])
	}
	if counter.hits != 1 {
		t.Errorf("rate limit hits = %d, want 1", counter.hits)
	}

	// Windows are per key.
	if w := send("key-b"); w.Code != http.StatusOK {
		t.Errorf("other key: status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestRateLimit_InvalidKeyConsumesNothing(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter(1, time.Minute)
	defer limiter.Close()

	handler := newAuth(t, "key-a").Middleware(
		middleware.RateLimit(limiter, nil)(http.HandlerFunc(okHandler)))

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/status", nil)
		req.Header.Set("X-API-Key", "wrong")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("invalid key: status = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	}
	if limiter.Keys() != 0 {
		t.Errorf("limiter tracks %d keys after rejected requests, want 0", limiter.Keys())
	}

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("X-API-Key", "key-a")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("valid key: status = %d, want %d", w.Code, http.StatusOK)
	}
}
