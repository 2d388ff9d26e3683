package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Decision is the outcome of taking one token for a client.
type Decision struct {
	Allowed   bool
	Remaining float64
}

// Store hands out per-client token buckets.
type Store interface {
	Take(ctx context.Context, clientID string) (Decision, error)
}

// LocalStore keeps buckets in process. The bucket map is bounded: idle
// clients expire after ttl and the least recently used are evicted past
// maxClients.
type LocalStore struct {
	mu      sync.Mutex
	buckets *expirable.LRU[string, *TokenBucket]

	capacity   float64
	refillRate float64
	now        func() time.Time
}

// NewLocalStore creates an in-process store.
func NewLocalStore(capacity, refillRate float64, maxClients int, ttl time.Duration) *LocalStore {
	return &LocalStore{
		buckets:    expirable.NewLRU[string, *TokenBucket](maxClients, nil, ttl),
		capacity:   capacity,
		refillRate: refillRate,
		now:        time.Now,
	}
}

// bucket returns the client's bucket, creating it on first sight. Re-adding
// refreshes the idle TTL.
func (s *LocalStore) bucket(clientID string) *TokenBucket {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets.Get(clientID)
	if !ok {
		b = newTokenBucket(s.capacity, s.refillRate, s.now)
	}
	s.buckets.Add(clientID, b)
	return b
}

func (s *LocalStore) Take(_ context.Context, clientID string) (Decision, error) {
	b := s.bucket(clientID)
	allowed := b.Consume(1)
	remaining := 0.0
	if allowed {
		remaining = b.AvailableTokens()
	}
	return Decision{Allowed: allowed, Remaining: remaining}, nil
}

// Len returns the number of tracked clients.
func (s *LocalStore) Len() int {
	return s.buckets.Len()
}
