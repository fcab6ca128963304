package kvstore

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory implementation of Store.
// This is intended for testing and for installs without a durable backend.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[Key]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values: make(map[Key]string),
	}
}

// Get retrieves a value by key.
func (s *MemoryStore) Get(_ context.Context, key Key) (string, error) {
	if err := checkKey(key); err != nil {
		return "", err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

// Set creates or overwrites a value.
func (s *MemoryStore) Set(_ context.Context, key Key, value string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = value
	return nil
}

// Delete removes a value.
func (s *MemoryStore) Delete(_ context.Context, key Key) error {
	if err := checkKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.values, key)
	return nil
}

// Ensure MemoryStore implements Store interface.
var _ Store = (*MemoryStore)(nil)
