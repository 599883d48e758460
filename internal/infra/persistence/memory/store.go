// Package memory keeps client state buckets in process memory. It backs tests
// and ephemeral deployments.
package memory

import (
	"context"
	"sync"

	"sampleflow/pkg/domain"
)

var _ domain.StateStore = (*Store)(nil)

// Store is an in-memory bucket store.
type Store struct {
	mu      sync.RWMutex
	buckets map[string][]byte
	saves   int
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{buckets: make(map[string][]byte)}
}

// Load implements domain.StateStore.
func (s *Store) Load(context.Context) (map[string][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]byte, len(s.buckets))
	for k, v := range s.buckets {
		out[k] = append([]byte(nil), v...)
	}
	return out, nil
}

// Save implements domain.StateStore. Buckets not named in the call keep
// their previous payload.
func (s *Store) Save(_ context.Context, buckets map[string][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range buckets {
		s.buckets[k] = append([]byte(nil), v...)
	}
	s.saves++
	return nil
}

// Saves reports how many Save calls succeeded.
func (s *Store) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

// Close implements domain.StateStore.
func (s *Store) Close() error { return nil }
