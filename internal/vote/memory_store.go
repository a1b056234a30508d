package vote

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu      sync.RWMutex
	records []*Record
	byKey   map[string]bool // accountID + "\x00" + electionID
}

// NewMemoryStore creates an in-memory vote store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byKey: make(map[string]bool)}
}

func key(accountID, electionID string) string {
	return accountID + "\x00" + electionID
}

func (s *MemoryStore) Insert(ctx context.Context, r *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(r.AccountID, r.ElectionID)
	if s.byKey[k] {
		return ErrAlreadyVoted
	}
	s.byKey[k] = true
	s.records = append(s.records, copyRecord(r))
	return nil
}

func (s *MemoryStore) HasVoted(ctx context.Context, accountID, electionID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byKey[key(accountID, electionID)], nil
}

func (s *MemoryStore) CountByAccount(ctx context.Context, accountID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, r := range s.records {
		if r.AccountID == accountID {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) ListByElection(ctx context.Context, electionID string, limit int) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filter(limit, func(r *Record) bool { return r.ElectionID == electionID }), nil
}

func (s *MemoryStore) ListFlagged(ctx context.Context, limit int) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filter(limit, func(r *Record) bool { return r.Flagged }), nil
}

// filter returns matches most recent first, up to limit (caller holds lock).
func (s *MemoryStore) filter(limit int, match func(*Record) bool) []*Record {
	var result []*Record
	for i := len(s.records) - 1; i >= 0 && len(result) < limit; i-- {
		if match(s.records[i]) {
			result = append(result, copyRecord(s.records[i]))
		}
	}
	return result
}

func copyRecord(r *Record) *Record {
	c := *r
	c.SealedChoice = append([]byte(nil), r.SealedChoice...)
	return &c
}
