package account

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresStore persists accounts in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed account store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the accounts table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS accounts (
			id                VARCHAR(36) PRIMARY KEY,
			email             VARCHAR(255) NOT NULL UNIQUE,
			name              VARCHAR(255) NOT NULL,
			role              VARCHAR(16) NOT NULL CHECK (role IN ('voter', 'candidate', 'admin')),
			password_hash     TEXT NOT NULL,
			birth_date        DATE,
			identity_verified BOOLEAN NOT NULL DEFAULT FALSE,
			mfa_enabled       BOOLEAN NOT NULL DEFAULT FALSE,
			failed_attempts   INT NOT NULL DEFAULT 0,
			locked_until      TIMESTAMPTZ,
			created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_accounts_email ON accounts (email);
	`)
	return err
}

func (s *PostgresStore) Create(ctx context.Context, a *Account) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts
			(id, email, name, role, password_hash, birth_date, identity_verified,
			 mfa_enabled, failed_attempts, locked_until, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		a.ID, a.Email, a.Name, string(a.Role), a.PasswordHash,
		nullTime(a.BirthDate), a.IdentityVerified, a.MFAEnabled,
		a.FailedAttempts, a.LockedUntil, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailTaken
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Account, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, selectAccount+` WHERE id = $1`, id))
}

func (s *PostgresStore) GetByEmail(ctx context.Context, email string) (*Account, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, selectAccount+` WHERE email = $1`, email))
}

func (s *PostgresStore) Update(ctx context.Context, a *Account) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE accounts SET
			name = $2, role = $3, password_hash = $4, birth_date = $5,
			identity_verified = $6, mfa_enabled = $7, failed_attempts = $8,
			locked_until = $9, updated_at = $10
		WHERE id = $1
	`,
		a.ID, a.Name, string(a.Role), a.PasswordHash, nullTime(a.BirthDate),
		a.IdentityVerified, a.MFAEnabled, a.FailedAttempts, a.LockedUntil, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

const selectAccount = `
	SELECT id, email, name, role, password_hash, birth_date, identity_verified,
	       mfa_enabled, failed_attempts, locked_until, created_at, updated_at
	FROM accounts`

func (s *PostgresStore) scanOne(row *sql.Row) (*Account, error) {
	var a Account
	var role string
	var birthDate, lockedUntil sql.NullTime

	err := row.Scan(&a.ID, &a.Email, &a.Name, &role, &a.PasswordHash,
		&birthDate, &a.IdentityVerified, &a.MFAEnabled, &a.FailedAttempts,
		&lockedUntil, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}

	a.Role = Role(role)
	if birthDate.Valid {
		a.BirthDate = birthDate.Time
	}
	if lockedUntil.Valid {
		t := lockedUntil.Time
		a.LockedUntil = &t
	}
	return &a, nil
}

func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}

// isUniqueViolation reports whether err is a Postgres unique constraint error.
func isUniqueViolation(err error) bool {
	type coder interface{ SQLState() string }
	if c, ok := err.(coder); ok {
		return c.SQLState() == "23505"
	}
	return false
}
