// Package memory is an in-memory audit store for tests.
package memory

import (
	"context"
	"sync"

	"linkage/internal/audit"
	dErrors "linkage/pkg/domain-errors"
)

// Store keeps appended entries in order.
type Store struct {
	mu      sync.Mutex
	entries []*audit.Entry

	FailAppend bool
}

// New creates an empty store.
func New() *Store {
	return &Store{}
}

func (s *Store) Append(_ context.Context, entries []*audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAppend {
		return dErrors.New(dErrors.CodeInternal, "audit sink rejected the batch")
	}
	s.entries = append(s.entries, entries...)
	return nil
}

// Entries returns everything appended so far.
func (s *Store) Entries() []*audit.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*audit.Entry(nil), s.entries...)
}
