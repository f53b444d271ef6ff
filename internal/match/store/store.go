// Package store defines the narrow contract the match service consumes from
// the external clinical record store. The store owns persistence, querying
// and batch atomicity; this service only reads records, commits batches and
// deletes tags.
package store

import (
	"context"

	"linkage/internal/match/bundle"
	"linkage/internal/match/models"
)

// RecordStore is the record store adapter contract.
type RecordStore interface {
	// GetRecord fetches one record by reference.
	GetRecord(ctx context.Context, ref models.Ref) (*models.Record, error)

	// FindByIDs fetches records of one type by ID. noCache bypasses any
	// read-through cache so mutation planning always sees current state.
	// Missing IDs are simply absent from the result.
	FindByIDs(ctx context.Context, recordType string, ids []string, noCache bool) ([]*models.Record, error)

	// CountByTag counts records of one type carrying the given tag.
	CountByTag(ctx context.Context, recordType string, tag models.Tag) (int, error)

	// FindByTag fetches records of one type carrying the given tag.
	FindByTag(ctx context.Context, recordType string, tag models.Tag) ([]*models.Record, error)

	// CommitBatch applies every entry of the bundle as an upsert. The batch
	// commits together or not at all.
	CommitBatch(ctx context.Context, b *bundle.Bundle) error

	// DeleteTag removes a (system, code) tag from a stored record.
	DeleteTag(ctx context.Context, ref models.Ref, tag models.Tag) error
}
