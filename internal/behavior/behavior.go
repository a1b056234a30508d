// Package behavior records every authenticated action as a timestamped log
// entry with free-form metadata. The fraud engine reads this history when
// scoring a vote attempt; the anomaly scanner flags entries after the fact.
package behavior

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("log entry not found")

// Well-known actions. The action string is free-form; these are the ones
// the anomaly scanner knows how to featurize.
const (
	ActionLogin         = "login"
	ActionCastVote      = "cast_vote"
	ActionIdentityCheck = "identity_check"
)

// Entry is one behavioral log record.
type Entry struct {
	ID                string                 `json:"id"`
	AccountID         string                 `json:"accountId"`
	Action            string                 `json:"action"`
	Details           map[string]interface{} `json:"details,omitempty"`
	FlaggedSuspicious bool                   `json:"flaggedSuspicious"`
	CreatedAt         time.Time              `json:"createdAt"`
}

// Float reads a numeric detail, tolerating missing keys and json.Number-ish
// types. Returns def when absent or non-numeric.
func (e *Entry) Float(key string, def float64) float64 {
	v, ok := e.Details[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return def
	}
}

// String reads a string detail, returning "" when absent.
func (e *Entry) String(key string) string {
	if v, ok := e.Details[key].(string); ok {
		return v
	}
	return ""
}

// Store persists behavioral log entries.
type Store interface {
	Append(ctx context.Context, e *Entry) error
	// ListByAccount returns entries for an account created at or after since,
	// oldest first.
	ListByAccount(ctx context.Context, accountID string, since time.Time) ([]*Entry, error)
	// ListRecent returns the newest entries across all accounts, up to limit.
	ListRecent(ctx context.Context, limit int) ([]*Entry, error)
	// ListFlagged returns entries marked suspicious, newest first.
	ListFlagged(ctx context.Context, limit int) ([]*Entry, error)
	// MarkFlagged sets flagged_suspicious on the given entries. Flags on
	// entries outside the batch are never rescinded.
	MarkFlagged(ctx context.Context, ids []string) error
}
