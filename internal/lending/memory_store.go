package lending

import (
	"context"
	"sync"
)

type memoryStore struct {
	mu        sync.RWMutex
	positions map[string]Position
}

// NewMemoryStore creates a concurrency-safe in-memory position store used in
// development mode and unit tests.
func NewMemoryStore() Store {
	return &memoryStore{positions: make(map[string]Position)}
}

func (s *memoryStore) Position(_ context.Context, address string) (Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pos, ok := s.positions[address]
	if !ok {
		return Position{Address: address}.Clone(), nil
	}
	return pos.Clone(), nil
}

func (s *memoryStore) Update(_ context.Context, address string, fn func(*Position) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.positions[address]
	if !ok {
		pos = Position{Address: address}
	}

	working := pos.Clone()
	if err := fn(&working); err != nil {
		return err
	}
	working.Address = address

	s.positions[address] = working
	return nil
}
