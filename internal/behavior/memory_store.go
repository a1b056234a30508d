package behavior

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []*Entry
}

// NewMemoryStore creates an in-memory behavioral log store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(ctx context.Context, e *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := copyEntry(e)
	s.entries = append(s.entries, cp)
	return nil
}

func (s *MemoryStore) ListByAccount(ctx context.Context, accountID string, since time.Time) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Entry
	for _, e := range s.entries {
		if e.AccountID == accountID && !e.CreatedAt.Before(since) {
			result = append(result, copyEntry(e))
		}
	}
	return result, nil
}

func (s *MemoryStore) ListRecent(ctx context.Context, limit int) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := len(s.entries) - limit
	if start < 0 {
		start = 0
	}

	result := make([]*Entry, 0, len(s.entries)-start)
	for i := len(s.entries) - 1; i >= start; i-- {
		result = append(result, copyEntry(s.entries[i]))
	}
	return result, nil
}

func (s *MemoryStore) ListFlagged(ctx context.Context, limit int) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Entry
	for i := len(s.entries) - 1; i >= 0 && len(result) < limit; i-- {
		if s.entries[i].FlaggedSuspicious {
			result = append(result, copyEntry(s.entries[i]))
		}
	}
	return result, nil
}

func (s *MemoryStore) MarkFlagged(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		idSet[id] = true
	}
	for _, e := range s.entries {
		if idSet[e.ID] {
			e.FlaggedSuspicious = true
		}
	}
	return nil
}

func copyEntry(e *Entry) *Entry {
	cp := *e
	if e.Details != nil {
		cp.Details = make(map[string]interface{}, len(e.Details))
		for k, v := range e.Details {
			cp.Details[k] = v
		}
	}
	return &cp
}
