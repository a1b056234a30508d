package otp

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/electio/votegate/internal/idgen"
	"github.com/electio/votegate/internal/metrics"
)

// Authenticator issues and verifies one-time codes.
type Authenticator struct {
	store       Store
	codeLength  int
	ttl         time.Duration
	grace       time.Duration
	maxAttempts int // 0 = unlimited; attempts still recorded for audit
	now         func() time.Time
}

// NewAuthenticator creates an authenticator over the given code store.
func NewAuthenticator(store Store, codeLength int, ttl, grace time.Duration) *Authenticator {
	if codeLength <= 0 {
		codeLength = DefaultCodeLength
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if grace <= 0 {
		grace = DefaultSupersedeGrace
	}
	return &Authenticator{
		store:      store,
		codeLength: codeLength,
		ttl:        ttl,
		grace:      grace,
		now:        time.Now,
	}
}

// WithMaxAttempts caps wrong attempts per code; reaching the cap marks the
// code invalid. Zero disables the cap (account lockout remains the
// brute-force enforcement point).
func (a *Authenticator) WithMaxAttempts(n int) *Authenticator {
	a.maxAttempts = n
	return a
}

// Issue supersedes any outstanding codes for the account (grace window
// applies) and creates a fresh one. Resending is just calling Issue again.
func (a *Authenticator) Issue(ctx context.Context, accountID, channel string) (*Code, error) {
	now := a.now()

	c := &Code{
		ID:        idgen.WithPrefix("otp_"),
		AccountID: accountID,
		Value:     idgen.Numeric(a.codeLength),
		Channel:   channel,
		State:     StateActive,
		CreatedAt: now,
		ExpiresAt: now.Add(a.ttl),
	}
	if err := a.store.SupersedeAndInsert(ctx, c, now.Add(a.grace)); err != nil {
		return nil, fmt.Errorf("issue code: %w", err)
	}

	metrics.OTPIssuedTotal.Inc()
	return c, nil
}

// Verify checks a submitted code against the account's outstanding codes.
//
// Matching order:
//  1. A code with the submitted value that is unverified, unexpired, and
//     either active or superseded within its grace window: mark verified.
//  2. Otherwise the most recent unverified, non-invalid code; none means
//     ErrNotFound.
//  3. If that code has expired, mark it invalid and return ErrExpired.
//  4. Otherwise record the wrong attempt and return ErrInvalid.
func (a *Authenticator) Verify(ctx context.Context, accountID, submitted string) error {
	now := a.now()

	candidates, err := a.store.ListCandidates(ctx, accountID)
	if err != nil {
		return fmt.Errorf("list codes: %w", err)
	}

	for _, c := range candidates {
		if c.Matchable(now) && subtle.ConstantTimeCompare([]byte(c.Value), []byte(submitted)) == 1 {
			c.Verified = true
			if err := a.store.Update(ctx, c); err != nil {
				return fmt.Errorf("mark verified: %w", err)
			}
			metrics.OTPVerificationsTotal.WithLabelValues("verified").Inc()
			return nil
		}
	}

	// No match: find the most recent unverified, non-invalid code.
	var latest *Code
	for _, c := range candidates {
		if c.State != StateInvalid {
			latest = c
			break // candidates are most recent first
		}
	}
	if latest == nil {
		metrics.OTPVerificationsTotal.WithLabelValues("not_found").Inc()
		return ErrNotFound
	}

	if now.After(latest.ExpiresAt) {
		latest.State = StateInvalid
		if err := a.store.Update(ctx, latest); err != nil {
			return fmt.Errorf("mark expired code invalid: %w", err)
		}
		metrics.OTPVerificationsTotal.WithLabelValues("expired").Inc()
		return ErrExpired
	}

	latest.Attempts++
	if a.maxAttempts > 0 && latest.Attempts >= a.maxAttempts {
		latest.State = StateInvalid
	}
	if err := a.store.Update(ctx, latest); err != nil {
		return fmt.Errorf("record wrong attempt: %w", err)
	}
	metrics.OTPVerificationsTotal.WithLabelValues("invalid").Inc()
	return ErrInvalid
}
