package cache

import (
	"context"
	"sync"
)

// MemoryStore keeps cached answers in process memory. Used in tests and in
// deployments without Redis.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]CachedAnswer
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: map[string][]CachedAnswer{}}
}

func (s *MemoryStore) Get(ctx context.Context, partyID, key string) ([]CachedAnswer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.entries[partyID+":"+key]
	out := make([]CachedAnswer, len(stored))
	copy(out, stored)
	return out, nil
}

func (s *MemoryStore) Put(ctx context.Context, partyID, key string, answer CachedAnswer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := partyID + ":" + key
	s.entries[id] = append(s.entries[id], answer)
	return nil
}
