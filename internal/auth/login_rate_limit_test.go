package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestLoginRateLimiterAllowsWithinWindow(t *testing.T) {
	clock := newFakeClock()
	limiter := NewLoginRateLimiter(2, time.Minute).WithClock(clock.Now)

	for i := 0; i < 2; i++ {
		if ok, _ := limiter.Allow("10.0.0.1"); !ok {
			t.Fatalf("expected hit %d to be allowed", i+1)
		}
	}

	ok, retryAfter := limiter.Allow("10.0.0.1")
	if ok {
		t.Fatalf("expected third hit to be throttled")
	}
	if retryAfter != time.Minute {
		t.Fatalf("expected retry after 1m, got %v", retryAfter)
	}

	if ok, _ := limiter.Allow("10.0.0.2"); !ok {
		t.Fatalf("expected other IPs unaffected")
	}

	clock.Advance(time.Minute)
	if ok, _ := limiter.Allow("10.0.0.1"); !ok {
		t.Fatalf("expected hits to age out of the window")
	}
}

func TestLoginRateLimiterMiddleware(t *testing.T) {
	limiter := NewLoginRateLimiter(1, time.Minute).WithClock(newFakeClock().Now)
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	serve := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.RemoteAddr = "192.0.2.7:5555"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	if rec := serve(); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	rec := serve()
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "60" {
		t.Fatalf("expected Retry-After 60, got %q", rec.Header().Get("Retry-After"))
	}
}
