// Package anomaly batch-scans the behavioral log for outliers. Entries are
// grouped by action, featurized, normalized, and run through an isolation
// forest; roughly the most extreme 5% of each group get flagged. Flags are
// additive: a scan never rescinds what an earlier scan marked.
package anomaly

import (
	"context"
	"errors"
	"time"
)

// Scan triggers.
const (
	TriggerManual    = "manual"
	TriggerScheduled = "scheduled"
)

// Scan results.
const (
	ResultCompleted        = "completed"
	ResultInsufficientData = "insufficient_data"
)

// ErrScanRunning is returned when a scan is requested while one is active.
var ErrScanRunning = errors.New("a scan is already running")

// ScanResult summarizes one completed scan.
type ScanResult struct {
	ID          string    `json:"id"`
	Trigger     string    `json:"trigger"`
	Result      string    `json:"result"`
	Analyzed    int       `json:"analyzed"`
	FlaggedIDs  []string  `json:"flaggedIds"`
	StartedAt   time.Time `json:"startedAt"`
	CompletedAt time.Time `json:"completedAt"`
}

// Store persists scan results.
type Store interface {
	Record(ctx context.Context, r *ScanResult) error
	ListRecent(ctx context.Context, limit int) ([]*ScanResult, error)
}
