package vote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/electio/votegate/internal/account"
	"github.com/electio/votegate/internal/behavior"
	"github.com/electio/votegate/internal/fraud"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	votes    *MemoryStore
	history  *behavior.MemoryStore
	accounts *account.Service
	service  *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	votes := NewMemoryStore()
	history := behavior.NewMemoryStore()
	accounts := account.NewService(account.NewMemoryStore())
	engine := fraud.NewEngine(fraud.NewExtractor(history, votes), nil, nil, nil)

	sealer, err := NewGCMSealer(bytes.Repeat([]byte{0x42}, 32))
	if err != nil {
		t.Fatalf("sealer: %v", err)
	}

	logger := testLogger()
	service := NewService(votes, engine, accounts, sealer, behavior.NewRecorder(history, logger), nil, logger)
	return &fixture{votes: votes, history: history, accounts: accounts, service: service}
}

func (f *fixture) register(t *testing.T, verified, mfa bool) *account.Account {
	t.Helper()
	acct, err := f.accounts.Register(context.Background(), &account.RegisterRequest{
		Email:    fmt.Sprintf("voter%d@example.com", time.Now().UnixNano()),
		Password: "correct-horse-battery",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if verified {
		if err := f.accounts.SetIdentityVerified(context.Background(), acct, true); err != nil {
			t.Fatalf("set verified: %v", err)
		}
	}
	if mfa {
		if err := f.accounts.SetMFAEnabled(context.Background(), acct, true); err != nil {
			t.Fatalf("set mfa: %v", err)
		}
	}
	return acct
}

func TestCastPersistsSealedVote(t *testing.T) {
	f := newFixture(t)
	acct := f.register(t, true, true)

	record, assessment, err := f.service.Cast(context.Background(), acct.ID, &CastRequest{
		ElectionID:      "election-2026",
		Choice:          "candidate-7",
		SessionDuration: 120,
		IPAddress:       "203.0.113.9",
	})
	if err != nil {
		t.Fatalf("cast: %v", err)
	}

	if record.RiskTier != fraud.TierLow || record.Flagged {
		t.Errorf("first vote tier = %s flagged = %v, want low unflagged", record.RiskTier, record.Flagged)
	}
	if !assessment.FirstVote {
		t.Error("expected first-vote assessment")
	}
	if bytes.Contains(record.SealedChoice, []byte("candidate-7")) {
		t.Error("choice stored in plaintext")
	}

	choice, err := f.service.Unseal(record)
	if err != nil {
		t.Fatalf("unseal: %v", err)
	}
	if choice != "candidate-7" {
		t.Errorf("unsealed choice = %q, want candidate-7", choice)
	}

	voted, err := f.votes.HasVoted(context.Background(), acct.ID, "election-2026")
	if err != nil || !voted {
		t.Errorf("HasVoted = %v, %v; want true", voted, err)
	}
}

func TestDuplicateVoteRejectedBeforeScoring(t *testing.T) {
	f := newFixture(t)
	acct := f.register(t, true, true)

	req := &CastRequest{ElectionID: "election-2026", Choice: "candidate-1", SessionDuration: 90}
	if _, _, err := f.service.Cast(context.Background(), acct.ID, req); err != nil {
		t.Fatalf("first cast: %v", err)
	}

	_, assessment, err := f.service.Cast(context.Background(), acct.ID, req)
	if err != ErrAlreadyVoted {
		t.Fatalf("second cast error = %v, want ErrAlreadyVoted", err)
	}
	if assessment != nil {
		t.Error("duplicate vote must be rejected before scoring runs")
	}
}

func TestHighRiskVoteBlocked(t *testing.T) {
	f := newFixture(t)
	acct := f.register(t, false, false)

	// An allowed first vote so the override no longer applies.
	if _, _, err := f.service.Cast(context.Background(), acct.ID, &CastRequest{
		ElectionID: "election-a", Choice: "candidate-1", SessionDuration: 90,
	}); err != nil {
		t.Fatalf("first cast: %v", err)
	}

	// Rapid-fire voting history pushes the rule score past the block line.
	now := time.Now()
	for i := 0; i < 4; i++ {
		err := f.history.Append(context.Background(), &behavior.Entry{
			ID:        fmt.Sprintf("log_%d", i),
			AccountID: acct.ID,
			Action:    behavior.ActionCastVote,
			CreatedAt: now.Add(-time.Duration(i+1) * time.Minute),
		})
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	record, assessment, err := f.service.Cast(context.Background(), acct.ID, &CastRequest{
		ElectionID: "election-b", Choice: "candidate-2", SessionDuration: 5,
	})
	if err != ErrHighRisk {
		t.Fatalf("cast error = %v, want ErrHighRisk", err)
	}
	if record != nil {
		t.Error("blocked vote must not persist a record")
	}
	if assessment == nil || assessment.Action != fraud.ActionBlock {
		t.Fatalf("assessment = %+v, want block action", assessment)
	}

	voted, _ := f.votes.HasVoted(context.Background(), acct.ID, "election-b")
	if voted {
		t.Error("blocked vote left a record behind")
	}
}

func TestIdentityGateWhenRequired(t *testing.T) {
	f := newFixture(t)
	f.service.WithRequireIdentity(true)
	acct := f.register(t, false, true)

	_, _, err := f.service.Cast(context.Background(), acct.ID, &CastRequest{
		ElectionID: "election-2026", Choice: "candidate-1",
	})
	if err != ErrIdentityRequired {
		t.Fatalf("cast error = %v, want ErrIdentityRequired", err)
	}
}

func TestConcurrentDoubleVote(t *testing.T) {
	f := newFixture(t)
	acct := f.register(t, true, true)

	req := &CastRequest{ElectionID: "election-2026", Choice: "candidate-1", SessionDuration: 90}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = f.service.Cast(context.Background(), acct.ID, req)
		}(i)
	}
	wg.Wait()

	var ok, dup int
	for _, err := range errs {
		switch err {
		case nil:
			ok++
		case ErrAlreadyVoted:
			dup++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 || dup != 1 {
		t.Errorf("got %d successes and %d duplicates, want exactly 1 of each", ok, dup)
	}

	n, err := f.votes.CountByAccount(context.Background(), acct.ID)
	if err != nil || n != 1 {
		t.Errorf("persisted votes = %d, %v; want exactly 1", n, err)
	}
}
