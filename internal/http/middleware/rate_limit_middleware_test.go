package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string, RateLimitPolicy) (Decision, error) {
	return Decision{}, errors.New("backend down")
}

func hit(h http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/sign-in", nil)
	req.RemoteAddr = remoteAddr
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestLocalLimiterPerClient(t *testing.T) {
	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	rl := NewRateLimiterWithLimiter(NewLocalLimiter(clock.Now), RateLimitPolicy{Limit: 2, Window: time.Minute}, FailClosed, "auth", nil)
	h := rl.Middleware()(okHandler())

	for i := 0; i < 2; i++ {
		if rr := hit(h, "10.0.0.1:1000"); rr.Code != http.StatusNoContent {
			t.Fatalf("request %d expected 204, got %d", i, rr.Code)
		}
	}
	denied := hit(h, "10.0.0.1:1001")
	if denied.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", denied.Code)
	}
	if denied.Header().Get("Retry-After") != "30" {
		t.Fatalf("expected Retry-After 30, got %q", denied.Header().Get("Retry-After"))
	}
	if rr := hit(h, "10.0.0.2:1000"); rr.Code != http.StatusNoContent {
		t.Fatalf("other client should not be limited, got %d", rr.Code)
	}

	clock.Advance(30 * time.Second)
	if rr := hit(h, "10.0.0.1:1000"); rr.Code != http.StatusNoContent {
		t.Fatalf("expected refill after 30s, got %d", rr.Code)
	}
}

func TestRateLimiterFailureModes(t *testing.T) {
	closed := NewRateLimiterWithLimiter(failingLimiter{}, RateLimitPolicy{Limit: 5, Window: time.Minute}, FailClosed, "auth", nil)
	if rr := hit(closed.Middleware()(okHandler()), "10.0.0.1:1"); rr.Code != http.StatusTooManyRequests {
		t.Fatalf("fail closed expected 429, got %d", rr.Code)
	}
	open := NewRateLimiterWithLimiter(failingLimiter{}, RateLimitPolicy{Limit: 5, Window: time.Minute}, FailOpen, "auth", nil)
	if rr := hit(open.Middleware()(okHandler()), "10.0.0.1:1"); rr.Code != http.StatusNoContent {
		t.Fatalf("fail open expected 204, got %d", rr.Code)
	}
}
