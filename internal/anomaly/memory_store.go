package anomaly

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu      sync.RWMutex
	results []*ScanResult
}

// NewMemoryStore creates an in-memory scan result store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Record(ctx context.Context, r *ScanResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, copyResult(r))
	return nil
}

func (s *MemoryStore) ListRecent(ctx context.Context, limit int) ([]*ScanResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*ScanResult
	for i := len(s.results) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, copyResult(s.results[i]))
	}
	return result, nil
}

func copyResult(r *ScanResult) *ScanResult {
	c := *r
	c.FlaggedIDs = append([]string(nil), r.FlaggedIDs...)
	return &c
}
