package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket is a classic token bucket. Tokens refill continuously at
// refillRate per second up to capacity.
type TokenBucket struct {
	mu         sync.Mutex
	capacity   float64
	refillRate float64
	tokens     float64
	lastRefill time.Time
	now        func() time.Time
}

// NewTokenBucket creates a full bucket.
func NewTokenBucket(capacity, refillRate float64) *TokenBucket {
	return newTokenBucket(capacity, refillRate, time.Now)
}

func newTokenBucket(capacity, refillRate float64, now func() time.Time) *TokenBucket {
	return &TokenBucket{
		capacity:   capacity,
		refillRate: refillRate,
		tokens:     capacity,
		lastRefill: now(),
		now:        now,
	}
}

// refill must be called with mu held.
func (b *TokenBucket) refill() {
	now := b.now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * b.refillRate
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
	}
	b.lastRefill = now
}

// Consume takes n tokens if available. A rejected call takes nothing.
func (b *TokenBucket) Consume(n float64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()
	if b.tokens >= n {
		b.tokens -= n
		return true
	}
	return false
}

// AvailableTokens refills and returns the current token count without
// consuming.
func (b *TokenBucket) AvailableTokens() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()
	return b.tokens
}

func (b *TokenBucket) Capacity() float64   { return b.capacity }
func (b *TokenBucket) RefillRate() float64 { return b.refillRate }
