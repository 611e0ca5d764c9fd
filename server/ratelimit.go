package server

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/moltasthornblom/beam/logger"
)

// windowStore is a shared fixed-window counter, e.g. cache.RedisWindowStore.
type windowStore interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error)
}

// rateLimiter allows limit requests per window and client. It uses the shared
// store when one is configured and reachable, and per-process token buckets
// otherwise.
type rateLimiter struct {
	limit  int
	window time.Duration
	store  windowStore

	mu      sync.Mutex
	buckets map[string]*ipLimiter
}

type ipLimiter struct {
	bucket   *tokenBucket
	lastSeen time.Time
}

func newRateLimiter(limit int, window time.Duration, store windowStore) *rateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &rateLimiter{
		limit:   limit,
		window:  window,
		store:   store,
		buckets: make(map[string]*ipLimiter),
	}
}

// Allow counts one request of key.
func (r *rateLimiter) Allow(ctx context.Context, key string) (bool, time.Duration) {
	if r == nil || r.limit <= 0 {
		return true, 0
	}
	if key == "" {
		key = "unknown"
	}
	if r.store != nil {
		allowed, retryAfter, err := r.store.Allow(ctx, key, r.limit, r.window)
		if err == nil {
			return allowed, retryAfter
		}
		logger.Warn("Rate limit store unavailable, using local buckets", logger.ErrorField(err))
	}

	r.mu.Lock()
	l, ok := r.buckets[key]
	if !ok {
		l = &ipLimiter{bucket: newTokenBucket(float64(r.limit)/r.window.Seconds(), r.limit)}
		r.buckets[key] = l
	}
	l.lastSeen = time.Now()
	r.cleanupLocked()
	r.mu.Unlock()

	if l.bucket.Allow() {
		return true, 0
	}
	return false, l.bucket.RetryAfter()
}

func (r *rateLimiter) cleanupLocked() {
	cutoff := time.Now().Add(-2 * r.window)
	for key, l := range r.buckets {
		if l.lastSeen.Before(cutoff) {
			delete(r.buckets, key)
		}
	}
}

// Middleware rejects requests over the limit with 429.
func (r *rateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		allowed, retryAfter := r.Allow(req.Context(), clientIP(req))
		if !allowed {
			secs := int(math.Ceil(retryAfter.Seconds()))
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			writeMessage(w, http.StatusTooManyRequests, "Too many requests, please try again later.")
			return
		}
		next.ServeHTTP(w, req)
	})
}

type tokenBucket struct {
	mu        sync.Mutex
	rate      float64 // tokens per second
	capacity  float64
	tokens    float64
	lastCheck time.Time
}

func newTokenBucket(rate float64, burst int) *tokenBucket {
	if rate <= 0 {
		rate = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &tokenBucket{
		rate:      rate,
		capacity:  float64(burst),
		tokens:    float64(burst),
		lastCheck: time.Now(),
	}
}

func (tb *tokenBucket) refillLocked() {
	now := time.Now()
	tb.tokens += now.Sub(tb.lastCheck).Seconds() * tb.rate
	tb.lastCheck = now
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
}

func (tb *tokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refillLocked()
	if tb.tokens < 1 {
		return false
	}
	tb.tokens--
	return true
}

// RetryAfter is the wait until the next token.
func (tb *tokenBucket) RetryAfter() time.Duration {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refillLocked()
	if tb.tokens >= 1 {
		return 0
	}
	return time.Duration((1 - tb.tokens) / tb.rate * float64(time.Second))
}
