package vote

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/electio/votegate/internal/testutil"
)

func TestPostgresStoreInsertAndQuery(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()

	rec := &Record{
		ID:           "vote_pg_1",
		AccountID:    "acct_1",
		ElectionID:   "election-2026",
		SealedChoice: []byte("sealed"),
		RiskTier:     "low",
		Probability:  0.1,
		CastAt:       time.Now().UTC(),
	}
	if err := store.Insert(ctx, rec); err != nil {
		t.Fatalf("Insert() error: %v", err)
	}

	voted, err := store.HasVoted(ctx, "acct_1", "election-2026")
	if err != nil {
		t.Fatalf("HasVoted() error: %v", err)
	}
	if !voted {
		t.Error("HasVoted() = false after insert")
	}

	count, err := store.CountByAccount(ctx, "acct_1")
	if err != nil {
		t.Fatalf("CountByAccount() error: %v", err)
	}
	if count != 1 {
		t.Errorf("CountByAccount() = %d, want 1", count)
	}

	votes, err := store.ListByElection(ctx, "election-2026", 10)
	if err != nil {
		t.Fatalf("ListByElection() error: %v", err)
	}
	if len(votes) != 1 {
		t.Fatalf("ListByElection() returned %d votes, want 1", len(votes))
	}
	if string(votes[0].SealedChoice) != "sealed" {
		t.Error("sealed choice did not round-trip")
	}
}

func TestPostgresStoreUniqueConstraint(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()

	first := &Record{
		ID:           "vote_pg_2",
		AccountID:    "acct_2",
		ElectionID:   "election-2026",
		SealedChoice: []byte("a"),
		RiskTier:     "low",
		Probability:  0.1,
		CastAt:       time.Now().UTC(),
	}
	if err := store.Insert(ctx, first); err != nil {
		t.Fatalf("first Insert() error: %v", err)
	}

	second := &Record{
		ID:           "vote_pg_3",
		AccountID:    "acct_2",
		ElectionID:   "election-2026",
		SealedChoice: []byte("b"),
		RiskTier:     "low",
		Probability:  0.1,
		CastAt:       time.Now().UTC(),
	}
	err := store.Insert(ctx, second)
	if !errors.Is(err, ErrAlreadyVoted) {
		t.Errorf("second Insert() error = %v, want ErrAlreadyVoted", err)
	}

	// A different election is still open to the same account.
	third := &Record{
		ID:           "vote_pg_4",
		AccountID:    "acct_2",
		ElectionID:   "election-2027",
		SealedChoice: []byte("c"),
		RiskTier:     "low",
		Probability:  0.1,
		CastAt:       time.Now().UTC(),
	}
	if err := store.Insert(ctx, third); err != nil {
		t.Errorf("Insert() into another election error: %v", err)
	}
}
