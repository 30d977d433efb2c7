// ratelimit.go - Sliding-window rate limiter middleware by client origin.
//
// Provides a simple per-IP limiter to protect the upload and download
// endpoints; designed to complement proxy-side limits.
package server

import (
	"net/http"
	"sync"
	"time"

	"zapfile/internal/policy"
)

// rateLimiter tracks request timestamps per origin in an in-memory map
// with periodic cleanup.
type rateLimiter struct {
	mu       sync.RWMutex
	visitors map[string]*visitor
	rate     int           // requests allowed per window
	window   time.Duration // time window for rate limiting

	stopOnce sync.Once
	done     chan struct{}
}

// visitor tracks request timestamps for a single origin.
type visitor struct {
	requests []time.Time
	mu       sync.Mutex
}

// newRateLimiter creates a rate limiter that allows 'rate' requests per 'window'.
// Example: newRateLimiter(100, time.Minute) allows 100 requests per minute per IP.
func newRateLimiter(rate int, window time.Duration) *rateLimiter {
	rl := &rateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate,
		window:   window,
		done:     make(chan struct{}),
	}

	go rl.cleanup()

	return rl
}

// stop ends the cleanup goroutine. Safe to call more than once; the
// limiter still answers allow() afterwards.
func (rl *rateLimiter) stop() {
	rl.stopOnce.Do(func() { close(rl.done) })
}

// middleware returns an HTTP middleware that enforces rate limits.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := policy.ResolveOrigin(r.Header, r.RemoteAddr)

		if !rl.allow(origin) {
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// allow checks if a request from the given origin should be allowed.
func (rl *rateLimiter) allow(origin string) bool {
	rl.mu.Lock()
	v, exists := rl.visitors[origin]
	if !exists {
		v = &visitor{
			requests: make([]time.Time, 0, rl.rate),
		}
		rl.visitors[origin] = v
	}
	rl.mu.Unlock()

	v.mu.Lock()
	defer v.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-rl.window)

	valid := v.requests[:0]
	for _, t := range v.requests {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	v.requests = valid

	if len(v.requests) >= rl.rate {
		return false
	}

	v.requests = append(v.requests, now)
	return true
}

// cleanup periodically removes visitors with no recent requests, until
// stop is called.
func (rl *rateLimiter) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
		}

		rl.mu.Lock()
		cutoff := time.Now().Add(-rl.window * 2)

		for origin, v := range rl.visitors {
			v.mu.Lock()
			if len(v.requests) == 0 || v.requests[len(v.requests)-1].Before(cutoff) {
				delete(rl.visitors, origin)
			}
			v.mu.Unlock()
		}
		rl.mu.Unlock()
	}
}
