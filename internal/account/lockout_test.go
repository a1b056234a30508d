package account

import (
	"context"
	"testing"
	"time"
)

func seedAccount(t *testing.T, store *MemoryStore) *Account {
	t.Helper()
	a := &Account{
		ID:        "acct_000000000000000000000001",
		Email:     "voter@example.com",
		Name:      "Test Voter",
		Role:      RoleVoter,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := store.Create(context.Background(), a); err != nil {
		t.Fatalf("seed account: %v", err)
	}
	return a
}

func TestLockout_FailuresAccumulate(t *testing.T) {
	store := NewMemoryStore()
	a := seedAccount(t, store)
	policy := NewLockoutPolicy(store, 5, 30*time.Minute)

	ctx := context.Background()
	for i := 1; i <= 4; i++ {
		state, err := policy.RecordFailure(ctx, a)
		if err != nil {
			t.Fatalf("RecordFailure: %v", err)
		}
		if state.Locked {
			t.Fatalf("locked after %d failures, threshold is 5", i)
		}
		if state.FailedAttempts != i {
			t.Fatalf("expected %d failed attempts, got %d", i, state.FailedAttempts)
		}
	}

	state, err := policy.RecordFailure(ctx, a)
	if err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}
	if !state.Locked {
		t.Fatal("expected lock after 5th failure")
	}
	if state.RemainingSeconds <= 0 {
		t.Fatalf("expected positive remaining seconds, got %d", state.RemainingSeconds)
	}
}

func TestLockout_CheckAccessWhileLocked(t *testing.T) {
	store := NewMemoryStore()
	a := seedAccount(t, store)
	policy := NewLockoutPolicy(store, 5, 30*time.Minute)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := policy.RecordFailure(ctx, a); err != nil {
			t.Fatalf("RecordFailure: %v", err)
		}
	}

	state, err := policy.CheckAccess(ctx, a)
	if err != nil {
		t.Fatalf("CheckAccess: %v", err)
	}
	if !state.Locked {
		t.Fatal("expected locked state")
	}
}

func TestLockout_AutoExpiryResetsCounter(t *testing.T) {
	store := NewMemoryStore()
	a := seedAccount(t, store)
	policy := NewLockoutPolicy(store, 5, 30*time.Minute)

	base := time.Now()
	policy.now = func() time.Time { return base }

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := policy.RecordFailure(ctx, a); err != nil {
			t.Fatalf("RecordFailure: %v", err)
		}
	}

	// One second before expiry: still locked.
	policy.now = func() time.Time { return base.Add(30*time.Minute - time.Second) }
	state, err := policy.CheckAccess(ctx, a)
	if err != nil {
		t.Fatalf("CheckAccess: %v", err)
	}
	if !state.Locked {
		t.Fatal("expected still locked before expiry")
	}

	// At expiry: unlocked with counter reset to exactly 0.
	policy.now = func() time.Time { return base.Add(30 * time.Minute) }
	state, err = policy.CheckAccess(ctx, a)
	if err != nil {
		t.Fatalf("CheckAccess: %v", err)
	}
	if state.Locked {
		t.Fatal("expected unlocked at expiry")
	}
	if state.FailedAttempts != 0 {
		t.Fatalf("expected counter reset to 0, got %d", state.FailedAttempts)
	}

	// Re-checking an already-expired lock is a no-op.
	stored, _ := store.Get(ctx, a.ID)
	firstUpdate := stored.UpdatedAt
	if _, err := policy.CheckAccess(ctx, a); err != nil {
		t.Fatalf("CheckAccess: %v", err)
	}
	stored, _ = store.Get(ctx, a.ID)
	if !stored.UpdatedAt.Equal(firstUpdate) {
		t.Fatal("re-checking an unlocked account should not mutate state")
	}
}

func TestLockout_SuccessClearsUnconditionally(t *testing.T) {
	store := NewMemoryStore()
	a := seedAccount(t, store)
	policy := NewLockoutPolicy(store, 5, 30*time.Minute)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := policy.RecordFailure(ctx, a); err != nil {
			t.Fatalf("RecordFailure: %v", err)
		}
	}

	if err := policy.RecordSuccess(ctx, a); err != nil {
		t.Fatalf("RecordSuccess: %v", err)
	}

	state, err := policy.CheckAccess(ctx, a)
	if err != nil {
		t.Fatalf("CheckAccess: %v", err)
	}
	if state.Locked || state.FailedAttempts != 0 {
		t.Fatalf("expected clean state after success, got %+v", state)
	}

	// Success on a clean account is a no-op.
	if err := policy.RecordSuccess(ctx, a); err != nil {
		t.Fatalf("RecordSuccess on clean account: %v", err)
	}
}

func TestLockout_Defaults(t *testing.T) {
	policy := NewLockoutPolicy(NewMemoryStore(), 0, 0)
	if policy.threshold != DefaultLockoutThreshold {
		t.Fatalf("expected default threshold %d, got %d", DefaultLockoutThreshold, policy.threshold)
	}
	if policy.duration != DefaultLockoutDuration {
		t.Fatalf("expected default duration %v, got %v", DefaultLockoutDuration, policy.duration)
	}
}
