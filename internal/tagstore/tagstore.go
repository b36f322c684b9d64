// Package tagstore implements the typed, timestamped key-value point store
// (spec.md §4.1, C1). Every operation is linearizable under a single
// reader/writer lock; missing keys degrade to zero values instead of
// failing, so logic evaluation always has something to read.
package tagstore

import (
	"sync"

	"github.com/sandialabs/sceptre-bennu-sub000/internal/tagvalue"
)

// Record is a stored point: its current value and the wall-clock time (in
// seconds since epoch) it was last written through Set. A Record that has
// never been Set (only Add'ed) carries a zero Timestamp, per spec.md §3.
type Record struct {
	Value     tagvalue.Value
	Timestamp float64
}

// Store is the generic typed point store keyed by a string name.
type Store struct {
	mu   sync.RWMutex
	data map[string]Record
}

// New returns an empty Store.
func New() *Store {
	return &Store{data: make(map[string]Record)}
}

// Add inserts key with the given initial value and a zero timestamp.
// Repeated Adds overwrite the previous record for key (idempotent-by-key).
func (s *Store) Add(key string, initial tagvalue.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = Record{Value: initial, Timestamp: 0}
}

// Set replaces the stored value and timestamp for key atomically, returning
// true iff key already existed. Set never implicitly creates a key.
func (s *Store) Set(key string, value tagvalue.Value, ts float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; !ok {
		return false
	}
	s.data[key] = Record{Value: value, Timestamp: ts}
	return true
}

// Get returns the stored value for key, or the zero Value if key is absent.
func (s *Store) Get(key string) tagvalue.Value {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data[key].Value
}

// Timestamp returns the last-write time for key, or 0 if key is absent or
// was never Set.
func (s *Store) Timestamp(key string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data[key].Timestamp
}

// Has reports whether key is present in the store.
func (s *Store) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data[key]
	return ok
}

// Clear removes every key from the store.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[string]Record)
}

// Snapshot returns a point-in-time copy of the whole store, safe for the
// caller to range over without holding any lock. Used by the command
// interface's QUERY handler and by tests.
func (s *Store) Snapshot() map[string]Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Record, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out
}
