// Package fraud scores vote attempts for fraud risk.
//
// Every cast-vote request is evaluated before the vote is persisted: a
// feature extractor turns the attempt plus the account's behavioral history
// into two vectors, a scorer (trained classifier when loaded, weighted rules
// otherwise) produces a probability in [0, 1], and a decision gate maps the
// probability to a tier and action. Attempts at or above the block threshold
// are rejected before the ballot is stored.
package fraud

import (
	"context"
	"time"
)

// Tier buckets a fraud probability for reporting and audit.
type Tier string

const (
	TierLow    Tier = "low"
	TierMedium Tier = "medium"
	TierHigh   Tier = "high"
)

// Action is the gate's verdict on a vote attempt.
type Action string

const (
	ActionAllow  Action = "allow"
	ActionReview Action = "review"
	ActionBlock  Action = "block"
)

// Decision thresholds and the first-vote probability ceiling.
const (
	DefaultReviewThreshold = 0.30
	DefaultBlockThreshold  = 0.60

	// FirstVoteCap is the highest probability ever persisted for an
	// account's first vote. A voter with no behavioral history is always
	// allowed; the model has nothing legitimate to judge them against.
	FirstVoteCap = 0.20
)

// Scorer names for the audit trail.
const (
	ScorerModel = "model"
	ScorerRules = "rules"
)

// Assessment is the result of evaluating a single vote attempt.
type Assessment struct {
	ID          string             `json:"id"`
	AccountID   string             `json:"accountId"`
	ElectionID  string             `json:"electionId"`
	Probability float64            `json:"probability"`
	Tier        Tier               `json:"tier"`
	Action      Action             `json:"action"`
	Scorer      string             `json:"scorer"`
	Details     map[string]float64 `json:"details"`
	FirstVote   bool               `json:"firstVote"`
	EvaluatedAt time.Time          `json:"evaluatedAt"`
}

// Attempt carries the per-request signals of a vote attempt. History-derived
// signals come from the behavioral log, not from here.
type Attempt struct {
	AccountID         string
	ElectionID        string
	IPAddress         string
	DeviceFingerprint string
	SessionDuration   float64 // seconds since login
	PageViews         int
	TimeOnPage        float64 // seconds on the voting page
	At                time.Time
}

// Store persists fraud assessments for audit trail.
type Store interface {
	Record(ctx context.Context, a *Assessment) error
	ListByAccount(ctx context.Context, accountID string, limit int) ([]*Assessment, error)
	ListByTier(ctx context.Context, tier Tier, limit int) ([]*Assessment, error)
}
