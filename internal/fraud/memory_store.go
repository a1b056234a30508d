package fraud

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu  sync.RWMutex
	all []*Assessment // append order, oldest first
}

// NewMemoryStore creates an in-memory assessment store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Record(ctx context.Context, a *Assessment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.all = append(s.all, copyAssessment(a))
	return nil
}

func (s *MemoryStore) ListByAccount(ctx context.Context, accountID string, limit int) ([]*Assessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filter(limit, func(a *Assessment) bool { return a.AccountID == accountID }), nil
}

func (s *MemoryStore) ListByTier(ctx context.Context, tier Tier, limit int) ([]*Assessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filter(limit, func(a *Assessment) bool { return a.Tier == tier }), nil
}

// filter returns matches most recent first, up to limit (caller holds lock).
func (s *MemoryStore) filter(limit int, match func(*Assessment) bool) []*Assessment {
	var result []*Assessment
	for i := len(s.all) - 1; i >= 0 && len(result) < limit; i-- {
		if match(s.all[i]) {
			result = append(result, copyAssessment(s.all[i]))
		}
	}
	return result
}

func copyAssessment(a *Assessment) *Assessment {
	c := *a
	c.Details = make(map[string]float64, len(a.Details))
	for k, v := range a.Details {
		c.Details[k] = v
	}
	return &c
}
