package account

import (
	"context"
	"fmt"
	"time"

	"github.com/electio/votegate/internal/metrics"
)

// Default lockout parameters.
const (
	DefaultLockoutThreshold = 5
	DefaultLockoutDuration  = 30 * time.Minute
)

// LockState is the result of a lockout check.
type LockState struct {
	Locked           bool `json:"locked"`
	FailedAttempts   int  `json:"failedAttempts"`
	RemainingSeconds int  `json:"remainingSeconds,omitempty"`
}

// LockoutPolicy tracks consecutive credential failures per account and
// enforces a timed lockout once the threshold is reached.
//
// State machine: Unlocked(count<threshold) advances one failure at a time
// until Locked; the lock auto-expires on the next check, resetting the
// counter to exactly 0. A full authentication success clears everything
// unconditionally. Re-checking an expired lock is a no-op after the first
// reset.
type LockoutPolicy struct {
	store     Store
	threshold int
	duration  time.Duration
	now       func() time.Time
}

// NewLockoutPolicy creates a lockout policy over the given account store.
func NewLockoutPolicy(store Store, threshold int, duration time.Duration) *LockoutPolicy {
	if threshold <= 0 {
		threshold = DefaultLockoutThreshold
	}
	if duration <= 0 {
		duration = DefaultLockoutDuration
	}
	return &LockoutPolicy{
		store:     store,
		threshold: threshold,
		duration:  duration,
		now:       time.Now,
	}
}

// CheckAccess evaluates whether the account may attempt authentication.
// An expired lock is cleared (counter reset to 0) before evaluation, so a
// check at or after locked_until always reports unlocked.
func (p *LockoutPolicy) CheckAccess(ctx context.Context, a *Account) (LockState, error) {
	now := p.now()

	if a.LockedUntil != nil && !now.Before(*a.LockedUntil) {
		a.LockedUntil = nil
		a.FailedAttempts = 0
		a.UpdatedAt = now
		if err := p.store.Update(ctx, a); err != nil {
			return LockState{}, fmt.Errorf("clear expired lock: %w", err)
		}
	}

	if a.LockedUntil != nil {
		return LockState{
			Locked:           true,
			FailedAttempts:   a.FailedAttempts,
			RemainingSeconds: int(a.LockedUntil.Sub(now).Seconds()) + 1,
		}, nil
	}

	return LockState{FailedAttempts: a.FailedAttempts}, nil
}

// RecordFailure increments the consecutive-failure counter, locking the
// account when the threshold is reached.
func (p *LockoutPolicy) RecordFailure(ctx context.Context, a *Account) (LockState, error) {
	now := p.now()

	a.FailedAttempts++
	if a.FailedAttempts >= p.threshold {
		until := now.Add(p.duration)
		a.LockedUntil = &until
		metrics.AccountLockoutsTotal.Inc()
	}
	a.UpdatedAt = now

	if err := p.store.Update(ctx, a); err != nil {
		return LockState{}, fmt.Errorf("record failure: %w", err)
	}

	state := LockState{FailedAttempts: a.FailedAttempts}
	if a.LockedUntil != nil {
		state.Locked = true
		state.RemainingSeconds = int(a.LockedUntil.Sub(now).Seconds()) + 1
	}
	return state, nil
}

// RecordSuccess unconditionally clears the failure counter and any lock.
// Called after a full authentication (credential plus second factor).
func (p *LockoutPolicy) RecordSuccess(ctx context.Context, a *Account) error {
	if a.FailedAttempts == 0 && a.LockedUntil == nil {
		return nil // already clean
	}
	a.FailedAttempts = 0
	a.LockedUntil = nil
	a.UpdatedAt = p.now()
	if err := p.store.Update(ctx, a); err != nil {
		return fmt.Errorf("record success: %w", err)
	}
	return nil
}
