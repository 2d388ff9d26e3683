package feedback

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MemoryStore keeps feedback in a bounded LRU. Entries also expire after
// the retention period without waiting for a purge.
type MemoryStore struct {
	cache *expirable.LRU[string, Feedback]
}

func NewMemoryStore(maxEntries int, retention time.Duration) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = 100000
	}
	return &MemoryStore{cache: expirable.NewLRU[string, Feedback](maxEntries, nil, retention)}
}

func (s *MemoryStore) Save(_ context.Context, f Feedback) error {
	s.cache.Add(f.RequestID, f)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, requestID string) (Feedback, error) {
	f, ok := s.cache.Get(requestID)
	if !ok {
		return Feedback{}, ErrNotFound
	}
	return f, nil
}

func (s *MemoryStore) Purge(_ context.Context, before time.Time) (int64, error) {
	var n int64
	for _, key := range s.cache.Keys() {
		f, ok := s.cache.Peek(key)
		if ok && f.CreatedAt.Before(before) {
			s.cache.Remove(key)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Len() int { return s.cache.Len() }
