package otp

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"time"
)

// PostgresStore persists one-time codes in PostgreSQL.
//
// Issuance takes a per-account advisory transaction lock around the
// supersede+insert pair so two concurrent logins cannot both end up holding
// an active code.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed code store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the otp_codes table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS otp_codes (
			id          VARCHAR(36) PRIMARY KEY,
			account_id  VARCHAR(36) NOT NULL,
			value       VARCHAR(10) NOT NULL,
			channel     VARCHAR(16) NOT NULL,
			state       VARCHAR(10) NOT NULL CHECK (state IN ('active', 'superseded', 'invalid')),
			grace_until TIMESTAMPTZ,
			verified    BOOLEAN NOT NULL DEFAULT FALSE,
			attempts    INT NOT NULL DEFAULT 0,
			created_at  TIMESTAMPTZ NOT NULL,
			expires_at  TIMESTAMPTZ NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_otp_codes_account
			ON otp_codes (account_id, created_at DESC);
	`)
	return err
}

func (s *PostgresStore) SupersedeAndInsert(ctx context.Context, c *Code, graceUntil time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin issue: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Serialize per account: concurrent issuers queue here. The lock is
	// held until commit, covering both the supersede and the insert.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, accountLockKey(c.AccountID)); err != nil {
		return fmt.Errorf("acquire account lock: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE otp_codes
		SET state = 'superseded', grace_until = $2
		WHERE account_id = $1 AND verified = FALSE AND state = 'active'
	`, c.AccountID, graceUntil); err != nil {
		return fmt.Errorf("supersede codes: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO otp_codes
			(id, account_id, value, channel, state, grace_until, verified, attempts, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		c.ID, c.AccountID, c.Value, c.Channel, string(c.State),
		c.GraceUntil, c.Verified, c.Attempts, c.CreatedAt, c.ExpiresAt,
	); err != nil {
		return fmt.Errorf("failed to insert code: %w", err)
	}

	return tx.Commit()
}

func (s *PostgresStore) ListCandidates(ctx context.Context, accountID string) ([]*Code, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, value, channel, state, grace_until, verified, attempts, created_at, expires_at
		FROM otp_codes
		WHERE account_id = $1 AND verified = FALSE
		ORDER BY created_at DESC
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list codes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Code
	for rows.Next() {
		var c Code
		var state string
		var graceUntil sql.NullTime

		if err := rows.Scan(&c.ID, &c.AccountID, &c.Value, &c.Channel, &state,
			&graceUntil, &c.Verified, &c.Attempts, &c.CreatedAt, &c.ExpiresAt); err != nil {
			continue
		}
		c.State = State(state)
		if graceUntil.Valid {
			t := graceUntil.Time
			c.GraceUntil = &t
		}
		result = append(result, &c)
	}
	return result, nil
}

func (s *PostgresStore) Update(ctx context.Context, c *Code) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE otp_codes
		SET state = $2, grace_until = $3, verified = $4, attempts = $5
		WHERE id = $1
	`, c.ID, string(c.State), c.GraceUntil, c.Verified, c.Attempts)
	if err != nil {
		return fmt.Errorf("failed to update code: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// accountLockKey hashes an account id into an advisory lock key.
func accountLockKey(accountID string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(accountID))
	return int64(h.Sum64())
}
