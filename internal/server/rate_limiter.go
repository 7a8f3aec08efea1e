// Package server implements a token bucket rate limiter that throttles
// inbound events per connection before they reach the hub.
package server

import (
	"sync"
	"time"
)

// rateLimiter is a token bucket refilled continuously at capacity tokens per
// refill interval. Each inbound event costs one token; the bucket never holds
// more than its capacity, so idle connections cannot accumulate a large burst.
type rateLimiter struct {
	mu       sync.Mutex
	tokens   float64
	capacity float64
	perSec   float64
	refilled time.Time
}

func newRateLimiter(burst int, interval time.Duration) *rateLimiter {
	if burst <= 0 {
		burst = 1
	}
	if interval <= 0 {
		interval = time.Second
	}

	return &rateLimiter{
		tokens:   float64(burst),
		capacity: float64(burst),
		perSec:   float64(burst) / interval.Seconds(),
		refilled: time.Now(),
	}
}

// allow consumes one token, reporting false when the bucket is empty. The
// event is then discarded by the caller; the connection itself stays open.
func (rl *rateLimiter) allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if elapsed := now.Sub(rl.refilled).Seconds(); elapsed > 0 {
		rl.tokens = min(rl.tokens+elapsed*rl.perSec, rl.capacity)
	}
	rl.refilled = now

	if rl.tokens < 1 {
		return false
	}
	rl.tokens--
	return true
}
