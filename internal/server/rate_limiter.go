// Package server implements a token bucket rate limiter, applied per sender
// on the unary send endpoints to protect the delivery core from abuse.
package server

import (
	"sync"
	"time"
)

type rateLimiter struct {
	mu        sync.Mutex
	tokens    float64
	capacity  float64
	rate      float64
	lastCheck time.Time
}

func newRateLimiter(capacity int, interval time.Duration) *rateLimiter {
	if capacity <= 0 {
		capacity = 1
	}
	if interval <= 0 {
		interval = time.Second
	}

	rate := float64(capacity) / interval.Seconds()
	if rate <= 0 {
		rate = float64(capacity)
	}

	return &rateLimiter{
		tokens:    float64(capacity),
		capacity:  float64(capacity),
		rate:      rate,
		lastCheck: time.Now(),
	}
}

func (rl *rateLimiter) allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(rl.lastCheck).Seconds()
	rl.lastCheck = now

	if elapsed > 0 {
		rl.tokens += elapsed * rl.rate
		if rl.tokens > rl.capacity {
			rl.tokens = rl.capacity
		}
	}

	if rl.tokens < 1 {
		return false
	}

	rl.tokens--
	return true
}

// senderLimiter holds one token bucket per sending username. Buckets are
// created on first use and live for the process lifetime.
type senderLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*rateLimiter
	burst    int
	interval time.Duration
}

func newSenderLimiter(cfg RateLimitConfig) *senderLimiter {
	return &senderLimiter{
		buckets:  make(map[string]*rateLimiter),
		burst:    cfg.Burst,
		interval: cfg.RefillInterval,
	}
}

func (l *senderLimiter) allow(sender string) bool {
	l.mu.Lock()
	bucket, ok := l.buckets[sender]
	if !ok {
		bucket = newRateLimiter(l.burst, l.interval)
		l.buckets[sender] = bucket
	}
	l.mu.Unlock()

	return bucket.allow()
}
