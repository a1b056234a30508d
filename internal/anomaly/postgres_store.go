package anomaly

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// PostgresStore persists scan results in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed scan result store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the anomaly_scans table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS anomaly_scans (
			id           VARCHAR(42) PRIMARY KEY,
			trigger_by   VARCHAR(12) NOT NULL CHECK (trigger_by IN ('manual', 'scheduled')),
			result       VARCHAR(20) NOT NULL,
			analyzed     INTEGER NOT NULL DEFAULT 0,
			flagged_ids  TEXT[] NOT NULL DEFAULT '{}',
			started_at   TIMESTAMPTZ NOT NULL,
			completed_at TIMESTAMPTZ NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_anomaly_scans_completed
			ON anomaly_scans (completed_at DESC);
	`)
	return err
}

func (s *PostgresStore) Record(ctx context.Context, r *ScanResult) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO anomaly_scans (id, trigger_by, result, analyzed, flagged_ids, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		r.ID,
		r.Trigger,
		r.Result,
		r.Analyzed,
		pq.Array(r.FlaggedIDs),
		r.StartedAt,
		r.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record scan result: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListRecent(ctx context.Context, limit int) ([]*ScanResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, trigger_by, result, analyzed, flagged_ids, started_at, completed_at
		FROM anomaly_scans
		ORDER BY completed_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list scan results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*ScanResult
	for rows.Next() {
		var r ScanResult
		if err := rows.Scan(&r.ID, &r.Trigger, &r.Result, &r.Analyzed,
			pq.Array(&r.FlaggedIDs), &r.StartedAt, &r.CompletedAt); err != nil {
			continue
		}
		result = append(result, &r)
	}
	return result, rows.Err()
}
