// Package memory provides an in-memory RecordStore for tests. It mirrors the
// FHIR adapter's observable behavior: upsert-by-reference batches, tag
// searches and meta-deletes, with switchable failure injection.
package memory

import (
	"context"
	"sync"

	"linkage/internal/match/bundle"
	"linkage/internal/match/models"
	dErrors "linkage/pkg/domain-errors"
)

// Store is an in-memory record store.
type Store struct {
	mu      sync.Mutex
	records map[models.Ref]*models.Record
	// Others collects non-record resources committed through batches, such
	// as audit entries.
	Others []bundle.Resource

	CommitCount int
	LastBundle  *bundle.Bundle

	FailCommit    bool
	FailDeleteTag bool
	FailFind      bool
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{records: make(map[models.Ref]*models.Record)}
}

// Seed inserts records directly, bypassing batch bookkeeping.
func (s *Store) Seed(records ...*models.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		s.records[r.Ref()] = r.Clone()
	}
}

// Record returns a copy of the stored record, if present.
func (s *Store) Record(ref models.Ref) (*models.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[ref]
	if !ok {
		return nil, false
	}
	return r.Clone(), true
}

func (s *Store) GetRecord(_ context.Context, ref models.Ref) (*models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailFind {
		return nil, dErrors.New(dErrors.CodeUnavailable, "record store unreachable")
	}
	r, ok := s.records[ref]
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "record %s not found", ref)
	}
	return r.Clone(), nil
}

func (s *Store) FindByIDs(_ context.Context, recordType string, ids []string, _ bool) ([]*models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailFind {
		return nil, dErrors.New(dErrors.CodeUnavailable, "record store unreachable")
	}
	var out []*models.Record
	for _, id := range ids {
		if r, ok := s.records[models.Ref{Type: recordType, ID: id}]; ok {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

func (s *Store) CountByTag(_ context.Context, recordType string, tag models.Tag) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailFind {
		return 0, dErrors.New(dErrors.CodeUnavailable, "record store unreachable")
	}
	count := 0
	for ref, r := range s.records {
		if ref.Type == recordType && r.HasTag(tag.System, tag.Code) {
			count++
		}
	}
	return count, nil
}

func (s *Store) FindByTag(_ context.Context, recordType string, tag models.Tag) ([]*models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailFind {
		return nil, dErrors.New(dErrors.CodeUnavailable, "record store unreachable")
	}
	var out []*models.Record
	for ref, r := range s.records {
		if ref.Type == recordType && r.HasTag(tag.System, tag.Code) {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

func (s *Store) CommitBatch(_ context.Context, b *bundle.Bundle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailCommit {
		return dErrors.New(dErrors.CodeInternal, "record store rejected the batch")
	}
	s.CommitCount++
	s.LastBundle = b
	for _, e := range b.Entries {
		if rec, ok := e.Resource.(*models.Record); ok {
			s.records[rec.Ref()] = rec.Clone()
			continue
		}
		s.Others = append(s.Others, e.Resource)
	}
	return nil
}

func (s *Store) DeleteTag(_ context.Context, ref models.Ref, tag models.Tag) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailDeleteTag {
		return dErrors.New(dErrors.CodeInternal, "tag delete rejected")
	}
	if r, ok := s.records[ref]; ok {
		r.RemoveTag(tag.System, tag.Code)
	}
	return nil
}
