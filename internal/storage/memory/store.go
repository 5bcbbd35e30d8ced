// Package memory provides an in-memory key/value store for tests and
// ephemeral sessions.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/tjfontaine/launchgate/internal/core/ports"
)

// Store is an in-memory implementation of ports.KeyValueStore
type Store struct {
	mu     sync.RWMutex
	values map[string]string
	closed bool
}

var _ ports.KeyValueStore = (*Store)(nil)

// New creates a new in-memory store
func New() *Store {
	return &Store{
		values: make(map[string]string),
	}
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return "", false, fmt.Errorf("store closed")
	}
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store closed")
	}
	s.values[key] = value
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store closed")
	}
	delete(s.values, key)
	return nil
}

// Snapshot returns a copy of every stored value.
func (s *Store) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
