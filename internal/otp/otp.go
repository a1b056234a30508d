// Package otp implements the one-time passcode state machine for Votegate.
//
// Codes are fixed-width numeric secrets delivered out-of-band. Issuing a new
// code supersedes any outstanding one with a short grace window instead of
// deleting it, so a code already in transit to the voter keeps working for a
// couple of minutes. Verification follows a strict matching order; wrong
// attempts are recorded for audit and, optionally, capped per code.
package otp

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("no outstanding code for this account")
	ErrExpired  = errors.New("code has expired")
	ErrInvalid  = errors.New("wrong code")
)

// Default authenticator parameters.
const (
	DefaultCodeLength     = 4
	DefaultTTL            = 10 * time.Minute
	DefaultSupersedeGrace = 2 * time.Minute
)

// State tags the lifecycle of a code. A superseded code stays matchable
// until its grace expiry; an invalid code never matches again.
type State string

const (
	StateActive     State = "active"
	StateSuperseded State = "superseded"
	StateInvalid    State = "invalid"
)

// Code is a single issued one-time passcode.
type Code struct {
	ID         string     `json:"id"`
	AccountID  string     `json:"accountId"`
	Value      string     `json:"-"`
	Channel    string     `json:"channel"`
	State      State      `json:"state"`
	GraceUntil *time.Time `json:"graceUntil,omitempty"` // set when superseded
	Verified   bool       `json:"verified"`
	Attempts   int        `json:"attempts"`
	CreatedAt  time.Time  `json:"createdAt"`
	ExpiresAt  time.Time  `json:"expiresAt"`
}

// Matchable reports whether the code may still satisfy a verification at
// time now: unverified, unexpired, and either active or superseded within
// its grace window.
func (c *Code) Matchable(now time.Time) bool {
	if c.Verified || c.State == StateInvalid {
		return false
	}
	if now.After(c.ExpiresAt) {
		return false
	}
	if c.State == StateSuperseded {
		return c.GraceUntil != nil && !now.After(*c.GraceUntil)
	}
	return true
}

// Store persists one-time codes.
//
// Supersede must atomically mark every unverified, non-invalid code for the
// account as superseded with the given grace expiry; implementations back
// this with a transaction or per-account lock so two concurrent logins
// cannot both hold an active code.
type Store interface {
	// SupersedeAndInsert marks the account's outstanding active codes
	// superseded (grace window applies) and inserts the replacement as a
	// single atomic step, so concurrent issuers can never leave more than
	// one active code behind.
	SupersedeAndInsert(ctx context.Context, c *Code, graceUntil time.Time) error
	// ListCandidates returns all unverified codes for an account, most
	// recent first, regardless of state. The authenticator applies the
	// matching rule.
	ListCandidates(ctx context.Context, accountID string) ([]*Code, error)
	Update(ctx context.Context, c *Code) error
}
