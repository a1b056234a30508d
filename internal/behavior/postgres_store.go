package behavior

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PostgresStore persists behavioral log entries in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed behavioral log store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the behavior_log table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS behavior_log (
			id                 VARCHAR(36) PRIMARY KEY,
			account_id         VARCHAR(36) NOT NULL,
			action             VARCHAR(32) NOT NULL,
			details            JSONB NOT NULL DEFAULT '{}',
			flagged_suspicious BOOLEAN NOT NULL DEFAULT FALSE,
			created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_behavior_log_account
			ON behavior_log (account_id, created_at);

		CREATE INDEX IF NOT EXISTS idx_behavior_log_flagged
			ON behavior_log (created_at DESC) WHERE flagged_suspicious;
	`)
	return err
}

func (s *PostgresStore) Append(ctx context.Context, e *Entry) error {
	details, err := json.Marshal(e.Details)
	if err != nil {
		return fmt.Errorf("failed to marshal details: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO behavior_log (id, account_id, action, details, flagged_suspicious, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.ID, e.AccountID, e.Action, details, e.FlaggedSuspicious, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append log entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByAccount(ctx context.Context, accountID string, since time.Time) ([]*Entry, error) {
	rows, err := s.db.QueryContext(ctx, selectEntry+`
		WHERE account_id = $1 AND created_at >= $2
		ORDER BY created_at ASC
	`, accountID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list log entries: %w", err)
	}
	return scanEntries(rows)
}

func (s *PostgresStore) ListRecent(ctx context.Context, limit int) ([]*Entry, error) {
	rows, err := s.db.QueryContext(ctx, selectEntry+`
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent log entries: %w", err)
	}
	return scanEntries(rows)
}

func (s *PostgresStore) ListFlagged(ctx context.Context, limit int) ([]*Entry, error) {
	rows, err := s.db.QueryContext(ctx, selectEntry+`
		WHERE flagged_suspicious
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list flagged log entries: %w", err)
	}
	return scanEntries(rows)
}

func (s *PostgresStore) MarkFlagged(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE behavior_log SET flagged_suspicious = TRUE
		WHERE id = ANY($1)
	`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to mark entries flagged: %w", err)
	}
	return nil
}

const selectEntry = `
	SELECT id, account_id, action, details, flagged_suspicious, created_at
	FROM behavior_log`

func scanEntries(rows *sql.Rows) ([]*Entry, error) {
	defer func() { _ = rows.Close() }()

	var result []*Entry
	for rows.Next() {
		var e Entry
		var details []byte

		if err := rows.Scan(&e.ID, &e.AccountID, &e.Action, &details, &e.FlaggedSuspicious, &e.CreatedAt); err != nil {
			continue
		}
		_ = json.Unmarshal(details, &e.Details)
		result = append(result, &e)
	}
	return result, nil
}
