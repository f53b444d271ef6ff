// Package postgres mirrors audit entries into Postgres for operational
// queries, alongside the record-store trail.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	"linkage/internal/audit"
)

// Store implements audit.Store over database/sql.
type Store struct {
	db *sql.DB
}

// Open connects to Postgres and ensures the audit table exists.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping audit database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewWithDB wraps an existing connection; used by tests.
func NewWithDB(ctx context.Context, db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS audit_entries (
			id UUID PRIMARY KEY,
			operation TEXT NOT NULL,
			editing_record TEXT NOT NULL,
			related JSONB NOT NULL DEFAULT '[]',
			outcome TEXT NOT NULL,
			outcome_desc TEXT NOT NULL,
			actor TEXT NOT NULL DEFAULT '',
			address TEXT NOT NULL DEFAULT '',
			recorded_at TIMESTAMPTZ NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("migrate audit table: %w", err)
	}
	return nil
}

// Append inserts the entries in one transaction.
func (s *Store) Append(ctx context.Context, entries []*audit.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin audit tx: %w", err)
	}
	defer tx.Rollback()

	for _, e := range entries {
		related, err := json.Marshal(e.Related)
		if err != nil {
			return fmt.Errorf("marshal related refs: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO audit_entries
				(id, operation, editing_record, related, outcome, outcome_desc, actor, address, recorded_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			e.ID, e.Operation, e.EditingRecord, related,
			e.Outcome, e.OutcomeDesc, e.Actor, e.Address, e.RecordedAt,
		)
		if err != nil {
			return fmt.Errorf("insert audit entry: %w", err)
		}
	}
	return tx.Commit()
}

// ListByRecord returns entries editing the given record, newest first.
func (s *Store) ListByRecord(ctx context.Context, editingRecord string) ([]*audit.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, operation, editing_record, related, outcome, outcome_desc, actor, address, recorded_at
		FROM audit_entries
		WHERE editing_record = $1
		ORDER BY recorded_at DESC`, editingRecord)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var out []*audit.Entry
	for rows.Next() {
		var e audit.Entry
		var related []byte
		err := rows.Scan(&e.ID, &e.Operation, &e.EditingRecord, &related,
			&e.Outcome, &e.OutcomeDesc, &e.Actor, &e.Address, &e.RecordedAt)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if err := json.Unmarshal(related, &e.Related); err != nil {
			return nil, fmt.Errorf("unmarshal related refs: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
