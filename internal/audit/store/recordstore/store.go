// Package recordstore persists audit entries into the clinical record store
// as their own batch, so the audit trail lives next to the records it
// explains.
package recordstore

import (
	"context"

	"linkage/internal/audit"
	"linkage/internal/match/bundle"
	"linkage/internal/match/store"
)

// Store appends audit entries through the record store adapter.
type Store struct {
	records store.RecordStore
}

// New creates a record-store-backed audit store.
func New(records store.RecordStore) *Store {
	return &Store{records: records}
}

// Append commits the entries as one batch, separate from any primary
// mutation batch.
func (s *Store) Append(ctx context.Context, entries []*audit.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	b := bundle.New()
	for _, e := range entries {
		b.Add(e)
	}
	return s.records.CommitBatch(ctx, b)
}
