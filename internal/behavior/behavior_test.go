package behavior

import (
	"context"
	"log/slog"
	"testing"
	"time"
)

func TestMemoryStore_AppendAndList(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Now()

	for i := 0; i < 5; i++ {
		err := store.Append(ctx, &Entry{
			ID:        "log_" + string(rune('a'+i)),
			AccountID: "acct_1",
			Action:    ActionLogin,
			Details:   map[string]interface{}{"hour": float64(i)},
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	entries, err := store.ListByAccount(ctx, "acct_1", base.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("ListByAccount: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries since cutoff, got %d", len(entries))
	}
	// Oldest first.
	if entries[0].Float("hour", -1) != 2 {
		t.Errorf("expected oldest entry first, got hour=%v", entries[0].Float("hour", -1))
	}

	recent, err := store.ListRecent(ctx, 2)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 recent entries, got %d", len(recent))
	}
	// Newest first.
	if recent[0].Float("hour", -1) != 4 {
		t.Errorf("expected newest entry first, got hour=%v", recent[0].Float("hour", -1))
	}
}

func TestMemoryStore_MarkFlagged(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for _, id := range []string{"log_a", "log_b", "log_c"} {
		if err := store.Append(ctx, &Entry{ID: id, AccountID: "acct_1", Action: ActionCastVote, CreatedAt: time.Now()}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	if err := store.MarkFlagged(ctx, []string{"log_b"}); err != nil {
		t.Fatalf("MarkFlagged: %v", err)
	}

	flagged, err := store.ListFlagged(ctx, 10)
	if err != nil {
		t.Fatalf("ListFlagged: %v", err)
	}
	if len(flagged) != 1 || flagged[0].ID != "log_b" {
		t.Fatalf("expected only log_b flagged, got %+v", flagged)
	}

	// Flagging again is a no-op, flags are never rescinded.
	if err := store.MarkFlagged(ctx, []string{"log_b"}); err != nil {
		t.Fatalf("MarkFlagged again: %v", err)
	}
	flagged, _ = store.ListFlagged(ctx, 10)
	if len(flagged) != 1 {
		t.Fatalf("expected flag preserved, got %d flagged", len(flagged))
	}
}

func TestEntry_Float(t *testing.T) {
	e := &Entry{Details: map[string]interface{}{
		"f": 1.5,
		"i": 3,
		"s": "oops",
	}}

	if got := e.Float("f", 0); got != 1.5 {
		t.Errorf("Float(f) = %v", got)
	}
	if got := e.Float("i", 0); got != 3 {
		t.Errorf("Float(i) = %v", got)
	}
	if got := e.Float("s", 7); got != 7 {
		t.Errorf("Float on non-numeric should default, got %v", got)
	}
	if got := e.Float("missing", 9); got != 9 {
		t.Errorf("Float on missing should default, got %v", got)
	}
}

func TestRecorder_SwallowsNothing(t *testing.T) {
	store := NewMemoryStore()
	rec := NewRecorder(store, slog.Default())

	rec.Record(context.Background(), "acct_1", ActionLogin, map[string]interface{}{"hour": 9})

	entries, _ := store.ListRecent(context.Background(), 10)
	if len(entries) != 1 {
		t.Fatalf("expected 1 recorded entry, got %d", len(entries))
	}
	if entries[0].Action != ActionLogin {
		t.Errorf("expected login action, got %q", entries[0].Action)
	}
	if entries[0].ID == "" {
		t.Error("expected generated id")
	}
}
