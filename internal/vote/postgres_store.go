package vote

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// PostgresStore persists votes in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed vote store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the votes table if it doesn't exist. The unique index on
// (account_id, election_id) is what makes concurrent double-votes impossible.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS votes (
			id            VARCHAR(42) PRIMARY KEY,
			account_id    VARCHAR(42) NOT NULL,
			election_id   VARCHAR(64) NOT NULL,
			sealed_choice BYTEA NOT NULL,
			risk_tier     VARCHAR(10) NOT NULL CHECK (risk_tier IN ('low', 'medium', 'high')),
			probability   NUMERIC(4,3) NOT NULL,
			flagged       BOOLEAN NOT NULL DEFAULT FALSE,
			cast_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_votes_one_per_election
			ON votes (account_id, election_id);

		CREATE INDEX IF NOT EXISTS idx_votes_election
			ON votes (election_id, cast_at DESC);

		CREATE INDEX IF NOT EXISTS idx_votes_flagged
			ON votes (cast_at DESC) WHERE flagged;
	`)
	return err
}

func (s *PostgresStore) Insert(ctx context.Context, r *Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO votes (id, account_id, election_id, sealed_choice, risk_tier, probability, flagged, cast_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		r.ID,
		r.AccountID,
		r.ElectionID,
		r.SealedChoice,
		string(r.RiskTier),
		r.Probability,
		r.Flagged,
		r.CastAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyVoted
		}
		return fmt.Errorf("failed to insert vote: %w", err)
	}
	return nil
}

func (s *PostgresStore) HasVoted(ctx context.Context, accountID, electionID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM votes WHERE account_id = $1 AND election_id = $2)
	`, accountID, electionID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check vote existence: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) CountByAccount(ctx context.Context, accountID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM votes WHERE account_id = $1
	`, accountID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count votes: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) ListByElection(ctx context.Context, electionID string, limit int) ([]*Record, error) {
	return s.list(ctx, `
		SELECT id, account_id, election_id, sealed_choice, risk_tier, probability, flagged, cast_at
		FROM votes
		WHERE election_id = $1
		ORDER BY cast_at DESC
		LIMIT $2
	`, electionID, limit)
}

func (s *PostgresStore) ListFlagged(ctx context.Context, limit int) ([]*Record, error) {
	return s.list(ctx, `
		SELECT id, account_id, election_id, sealed_choice, risk_tier, probability, flagged, cast_at
		FROM votes
		WHERE flagged
		ORDER BY cast_at DESC
		LIMIT $1
	`, limit)
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...interface{}) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list votes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.AccountID, &r.ElectionID, &r.SealedChoice,
			&r.RiskTier, &r.Probability, &r.Flagged, &r.CastAt); err != nil {
			continue
		}
		result = append(result, &r)
	}
	return result, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation"
}
