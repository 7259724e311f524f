// Package memory provides an in-process credential store.
package memory

import (
	"context"
	"sync"

	"gitlab.bluewillows.net/root/ddnsweaver/internal/credential"
)

// Store keeps credential records in a map.
type Store struct {
	mu      sync.RWMutex
	records map[string]credential.Record
}

// New creates a Store seeded with records.
func New(records ...credential.Record) *Store {
	s := &Store{records: make(map[string]credential.Record, len(records))}
	for _, r := range records {
		s.records[r.Key] = r
	}
	return s
}

// Get returns the record for key.
func (s *Store) Get(_ context.Context, key string) (credential.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[key]
	if !ok {
		return credential.Record{}, credential.ErrNotFound
	}
	return r, nil
}

// Put overwrites the record stored under r.Key.
func (s *Store) Put(_ context.Context, r credential.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[r.Key] = r
	return nil
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

var _ credential.Store = (*Store)(nil)
