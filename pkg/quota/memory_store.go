package quota

import (
	"context"
	"sync"
)

// MemoryStore is a process-local Store for tests and single-instance development.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[Key]int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counters: make(map[Key]int64)}
}

func (s *MemoryStore) Get(_ context.Context, key Key) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[key], nil
}

func (s *MemoryStore) Increment(_ context.Context, key Key) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[key]++
	return s.counters[key], nil
}

func (s *MemoryStore) IncrementIfBelow(_ context.Context, key Key, limit int64) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	used := s.counters[key]
	if used >= limit {
		return used, false, nil
	}
	s.counters[key] = used + 1
	return used + 1, true, nil
}

func (s *MemoryStore) Decrement(_ context.Context, key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counters[key] > 0 {
		s.counters[key]--
	}
	return nil
}
