// Copyright 2025 Joseph Cumines

package transport

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	now time.Time
	mu  sync.Mutex
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestRateLimiter_BurstThenRefill(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	rl := NewRateLimiterWithClock(2, 3, clock.Now)

	for i := range 3 {
		if ok, _ := rl.Allow(); !ok {
			t.Fatalf("request %d within burst was denied", i)
		}
	}
	ok, wait := rl.Allow()
	if ok {
		t.Fatal("request over burst was allowed")
	}
	if wait <= 0 || wait > 500*time.Millisecond {
		t.Errorf("wait = %v, want (0, 500ms]", wait)
	}

	// a denied request does not consume a token
	clock.Advance(500 * time.Millisecond)
	if ok, _ := rl.Allow(); !ok {
		t.Error("token should have refilled after 500ms at 2 rps")
	}
	if ok, _ := rl.Allow(); ok {
		t.Error("only one token should have refilled")
	}
}

func TestRateLimiter_DefaultBurst(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	rl := NewRateLimiterWithClock(2.5, 0, clock.Now)
	allowed := 0
	for range 10 {
		if ok, _ := rl.Allow(); ok {
			allowed++
		}
	}
	if allowed != 3 {
		t.Errorf("allowed = %d, want 3", allowed)
	}
}

func TestRateLimiter_Middleware(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	rl := NewRateLimiterWithClock(1, 1, clock.Now)
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, path, nil))
		return w
	}

	if w := do("/mcp"); w.Code != http.StatusOK {
		t.Fatalf("first request status = %d", w.Code)
	}
	w := do("/mcp")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "1" {
		t.Errorf("Retry-After = %q", got)
	}
	if w := do("/health"); w.Code != http.StatusOK {
		t.Errorf("/health should be exempt, status = %d", w.Code)
	}
	if w := do("/metrics"); w.Code != http.StatusOK {
		t.Errorf("/metrics should be exempt, status = %d", w.Code)
	}

	clock.Advance(time.Second)
	if w := do("/mcp"); w.Code != http.StatusOK {
		t.Errorf("after refill status = %d", w.Code)
	}
}
