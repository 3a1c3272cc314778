// Package ratelimit implements a per-client token bucket limiter and the
// HTTP middleware that applies it.
package ratelimit

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/fruitsalade/fruitbasket/internal/metrics"
	"github.com/fruitsalade/fruitbasket/internal/protocol"
)

// Limiter allows rpm requests per minute per client key. rpm=0 means unlimited.
type Limiter struct {
	mu      sync.Mutex
	rpm     int
	buckets map[string]*tokenBucket
	now     func() time.Time
}

type tokenBucket struct {
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

// New creates a limiter allowing rpm requests per minute per key.
func New(rpm int) *Limiter {
	return &Limiter{
		rpm:     rpm,
		buckets: make(map[string]*tokenBucket),
		now:     time.Now,
	}
}

// Allow reports whether a request from key may proceed and consumes a token if so.
func (l *Limiter) Allow(key string) bool {
	if l.rpm <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	bucket, ok := l.buckets[key]
	if !ok {
		bucket = &tokenBucket{
			tokens:     float64(l.rpm),
			maxTokens:  float64(l.rpm),
			refillRate: float64(l.rpm) / 60.0,
			lastRefill: now,
		}
		l.buckets[key] = bucket
	}

	elapsed := now.Sub(bucket.lastRefill).Seconds()
	bucket.tokens += elapsed * bucket.refillRate
	if bucket.tokens > bucket.maxTokens {
		bucket.tokens = bucket.maxTokens
	}
	bucket.lastRefill = now

	if bucket.tokens < 1 {
		return false
	}
	bucket.tokens--
	return true
}

// RetryAfter returns the number of seconds until key gets its next token.
func (l *Limiter) RetryAfter(key string) int {
	if l.rpm <= 0 {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	bucket, ok := l.buckets[key]
	if !ok || bucket.tokens >= 1 {
		return 0
	}
	needed := 1.0 - bucket.tokens
	return int(needed/bucket.refillRate) + 1
}

// Cleanup removes buckets for clients that haven't been seen recently.
func (l *Limiter) Cleanup(maxAge time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-maxAge)
	for key, bucket := range l.buckets {
		if bucket.lastRefill.Before(cutoff) {
			delete(l.buckets, key)
		}
	}
}

// ClientKey identifies the caller by remote IP.
func ClientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Middleware rejects requests over the limit with 429 and a Retry-After header.
func Middleware(l *Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ClientKey(r)
			if !l.Allow(key) {
				metrics.RecordRateLimitHit()
				w.Header().Set("Retry-After", strconv.Itoa(l.RetryAfter(key)))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(protocol.ErrorResponse{
					Error: "rate limit exceeded",
					Code:  http.StatusTooManyRequests,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
