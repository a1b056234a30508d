// Package account implements voter accounts and the lockout policy for Votegate.
//
// Accounts carry the credential hash, the identity-verification flag, and the
// consecutive-failure counter the lockout policy enforces. Five failures lock
// the account for thirty minutes; the lock auto-expires on the next check.
package account

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound           = errors.New("account not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrLocked             = errors.New("account is temporarily locked")
)

// Role classifies what an account can do on the platform.
type Role string

const (
	RoleVoter     Role = "voter"
	RoleCandidate Role = "candidate"
	RoleAdmin     Role = "admin"
)

// Account represents a registered voter, candidate, or admin.
type Account struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	Name             string     `json:"name"`
	Role             Role       `json:"role"`
	PasswordHash     string     `json:"-"`
	BirthDate        time.Time  `json:"birthDate,omitempty"`
	IdentityVerified bool       `json:"identityVerified"`
	MFAEnabled       bool       `json:"mfaEnabled"`
	FailedAttempts   int        `json:"failedAttempts"`
	LockedUntil      *time.Time `json:"lockedUntil,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// Age returns the account holder's age in whole years at time now.
// Zero birth date yields 0.
func (a *Account) Age(now time.Time) int {
	if a.BirthDate.IsZero() {
		return 0
	}
	years := now.Year() - a.BirthDate.Year()
	if now.YearDay() < a.BirthDate.YearDay() {
		years--
	}
	if years < 0 {
		return 0
	}
	return years
}

// AgeDays returns the account's age in whole days since registration.
func (a *Account) AgeDays(now time.Time) int {
	if a.CreatedAt.IsZero() {
		return 0
	}
	d := int(now.Sub(a.CreatedAt).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}

// RegisterRequest is the request body for account registration.
type RegisterRequest struct {
	Email     string `json:"email" binding:"required"`
	Name      string `json:"name"`
	Password  string `json:"password" binding:"required"`
	Role      string `json:"role"`
	BirthDate string `json:"birthDate"` // 2006-01-02, optional
}

// Store persists accounts.
type Store interface {
	Create(ctx context.Context, a *Account) error
	Get(ctx context.Context, id string) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	Update(ctx context.Context, a *Account) error
}
