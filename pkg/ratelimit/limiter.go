package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter defines the interface for rate limiting
type Limiter interface {
	// Allow checks if a request is allowed under the current rate limit
	Allow() bool
	// Wait blocks until the rate limit allows another request or the
	// context is cancelled
	Wait(ctx context.Context) error
	// Reset resets the rate limiter state
	Reset()
}

// TokenBucket implements a token bucket rate limiter refilled at a fixed
// requests-per-minute rate. One bucket is shared by every outbound call of
// a process; blocking in Wait is the pipeline's sole backpressure mechanism.
type TokenBucket struct {
	requestsPerMinute int
	burst             int
	limiter           *rate.Limiter
	mu                sync.RWMutex
}

// NewTokenBucket creates a new token bucket rate limiter. The bucket starts
// full with burst tokens and refills at requestsPerMinute.
func NewTokenBucket(requestsPerMinute, burst int) *TokenBucket {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &TokenBucket{
		requestsPerMinute: requestsPerMinute,
		burst:             burst,
		limiter:           newLimiter(requestsPerMinute, burst),
	}
}

func newLimiter(requestsPerMinute, burst int) *rate.Limiter {
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), burst)
}

// Allow checks if a request can proceed without blocking.
func (tb *TokenBucket) Allow() bool {
	tb.mu.RLock()
	defer tb.mu.RUnlock()
	return tb.limiter.Allow()
}

// Wait blocks until a token is available or the context is cancelled.
func (tb *TokenBucket) Wait(ctx context.Context) error {
	tb.mu.RLock()
	l := tb.limiter
	tb.mu.RUnlock()
	return l.Wait(ctx)
}

// Reset restores the bucket to full capacity.
func (tb *TokenBucket) Reset() {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.limiter = newLimiter(tb.requestsPerMinute, tb.burst)
}
