// Package memory stores documents in-memory for development and tests.
package memory

import (
	"context"
	"sync"

	"github.com/xZoluGames/skinfetch/internal/storage"
)

// Store keeps documents in a map guarded by a read-write mutex.
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// New creates an in-memory store.
func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

// Save copies the document into the map.
func (s *Store) Save(_ context.Context, objectName string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[objectName] = append([]byte(nil), data...)
	return nil
}

// Load copies the document out of the map.
func (s *Store) Load(_ context.Context, objectName string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[objectName]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

// Objects reports how many documents are stored.
func (s *Store) Objects() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
