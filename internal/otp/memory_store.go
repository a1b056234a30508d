package otp

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
// A single mutex holds each supersede+insert sequence in one critical
// section, which is enough for single-node use.
type MemoryStore struct {
	mu    sync.Mutex
	codes map[string][]*Code // accountID → codes
}

// NewMemoryStore creates an in-memory code store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{codes: make(map[string][]*Code)}
}

func (s *MemoryStore) SupersedeAndInsert(ctx context.Context, c *Code, graceUntil time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.codes[c.AccountID] {
		if !existing.Verified && existing.State == StateActive {
			g := graceUntil
			existing.State = StateSuperseded
			existing.GraceUntil = &g
		}
	}

	cp := *c
	s.codes[c.AccountID] = append(s.codes[c.AccountID], &cp)
	return nil
}

func (s *MemoryStore) ListCandidates(ctx context.Context, accountID string) ([]*Code, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*Code
	for _, c := range s.codes[accountID] {
		if !c.Verified {
			cp := *c
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (s *MemoryStore) Update(ctx context.Context, c *Code) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.codes[c.AccountID] {
		if existing.ID == c.ID {
			cp := *c
			s.codes[c.AccountID][i] = &cp
			return nil
		}
	}
	return ErrNotFound
}
