package fraud

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// PostgresStore persists fraud assessments in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed assessment store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the fraud_assessments table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS fraud_assessments (
			id           VARCHAR(42) PRIMARY KEY,
			account_id   VARCHAR(42) NOT NULL,
			election_id  VARCHAR(42) NOT NULL DEFAULT '',
			probability  NUMERIC(4,3) NOT NULL CHECK (probability >= 0 AND probability <= 1),
			tier         VARCHAR(10) NOT NULL CHECK (tier IN ('low', 'medium', 'high')),
			action       VARCHAR(10) NOT NULL CHECK (action IN ('allow', 'review', 'block')),
			scorer       VARCHAR(10) NOT NULL,
			details      JSONB NOT NULL DEFAULT '{}',
			first_vote   BOOLEAN NOT NULL DEFAULT FALSE,
			evaluated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_fraud_assessments_account
			ON fraud_assessments (account_id, evaluated_at DESC);

		CREATE INDEX IF NOT EXISTS idx_fraud_assessments_tier
			ON fraud_assessments (tier, evaluated_at DESC);
	`)
	return err
}

func (s *PostgresStore) Record(ctx context.Context, a *Assessment) error {
	detailsJSON, err := json.Marshal(a.Details)
	if err != nil {
		return fmt.Errorf("failed to marshal details: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO fraud_assessments
			(id, account_id, election_id, probability, tier, action, scorer, details, first_vote, evaluated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		a.ID,
		a.AccountID,
		a.ElectionID,
		a.Probability,
		string(a.Tier),
		string(a.Action),
		a.Scorer,
		detailsJSON,
		a.FirstVote,
		a.EvaluatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record fraud assessment: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByAccount(ctx context.Context, accountID string, limit int) ([]*Assessment, error) {
	return s.list(ctx, `
		SELECT id, account_id, election_id, probability, tier, action, scorer, details, first_vote, evaluated_at
		FROM fraud_assessments
		WHERE account_id = $1
		ORDER BY evaluated_at DESC
		LIMIT $2
	`, accountID, limit)
}

func (s *PostgresStore) ListByTier(ctx context.Context, tier Tier, limit int) ([]*Assessment, error) {
	return s.list(ctx, `
		SELECT id, account_id, election_id, probability, tier, action, scorer, details, first_vote, evaluated_at
		FROM fraud_assessments
		WHERE tier = $1
		ORDER BY evaluated_at DESC
		LIMIT $2
	`, string(tier), limit)
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...interface{}) ([]*Assessment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list fraud assessments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Assessment
	for rows.Next() {
		var a Assessment
		var detailsJSON []byte
		if err := rows.Scan(&a.ID, &a.AccountID, &a.ElectionID, &a.Probability, &a.Tier,
			&a.Action, &a.Scorer, &detailsJSON, &a.FirstVote, &a.EvaluatedAt); err != nil {
			continue
		}
		a.Details = make(map[string]float64)
		_ = json.Unmarshal(detailsJSON, &a.Details)
		result = append(result, &a)
	}
	return result, rows.Err()
}
