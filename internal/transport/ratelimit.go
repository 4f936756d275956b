// Copyright 2025 Joseph Cumines
//
// Rate limiting for the HTTP transport

package transport

import (
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter is a token bucket allowing a sustained rate of requests with
// bursts up to its capacity.
type RateLimiter struct {
	limiter *rate.Limiter
	now     func() time.Time
}

// NewRateLimiter creates a limiter allowing rps requests per second. A burst
// below 1 is set to the ceiling of rps.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return NewRateLimiterWithClock(rps, burst, time.Now)
}

// NewRateLimiterWithClock creates a limiter reading time from now, for tests.
func NewRateLimiterWithClock(rps float64, burst int, now func() time.Time) *RateLimiter {
	if burst < 1 {
		burst = max(int(rps+0.999), 1)
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		now:     now,
	}
}

// Allow consumes a token if one is available. Otherwise it reports how long
// until one will be.
func (l *RateLimiter) Allow() (bool, time.Duration) {
	now := l.now()
	r := l.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, time.Second
	}
	delay := r.DelayFrom(now)
	if delay == 0 {
		return true, 0
	}
	r.CancelAt(now)
	return false, delay
}

// Middleware rejects requests over the limit with 429 and a Retry-After
// header. Health checks and metric scrapes are never limited.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		if ok, wait := l.Allow(); !ok {
			w.Header().Set("Retry-After", retryAfterSeconds(wait))
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "Rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
