// Package vote persists ballots. Exactly one vote record exists per account
// and election, enforced both by a pre-check and by a storage-level unique
// constraint; the ballot choice is sealed at rest.
package vote

import (
	"context"
	"errors"
	"time"

	"github.com/electio/votegate/internal/fraud"
)

var (
	ErrAlreadyVoted     = errors.New("account has already voted in this election")
	ErrNotFound         = errors.New("vote not found")
	ErrHighRisk         = errors.New("vote rejected by fraud screening")
	ErrIdentityRequired = errors.New("identity verification required before voting")
)

// Record is one persisted ballot. SealedChoice is the AES-GCM sealed
// candidate selection; the plaintext never leaves the cast path.
type Record struct {
	ID           string     `json:"id"`
	AccountID    string     `json:"accountId"`
	ElectionID   string     `json:"electionId"`
	SealedChoice []byte     `json:"-"`
	RiskTier     fraud.Tier `json:"riskTier"`
	Probability  float64    `json:"probability"`
	Flagged      bool       `json:"flagged"` // true for review-tier votes, audited later
	CastAt       time.Time  `json:"castAt"`
}

// CastRequest is the payload of a cast-vote call plus the per-request
// behavioral signals the fraud engine reads.
type CastRequest struct {
	ElectionID        string  `json:"electionId" binding:"required"`
	Choice            string  `json:"choice" binding:"required"`
	SessionDuration   float64 `json:"sessionDuration"`
	PageViews         int     `json:"pageViews"`
	TimeOnPage        float64 `json:"timeOnPage"`
	IPAddress         string  `json:"-"`
	DeviceFingerprint string  `json:"-"`
}

// Store persists vote records. Insert must fail with ErrAlreadyVoted when a
// record for the same account and election exists, even under concurrent
// inserts.
type Store interface {
	Insert(ctx context.Context, r *Record) error
	HasVoted(ctx context.Context, accountID, electionID string) (bool, error)
	CountByAccount(ctx context.Context, accountID string) (int, error)
	ListByElection(ctx context.Context, electionID string, limit int) ([]*Record, error)
	ListFlagged(ctx context.Context, limit int) ([]*Record, error)
}
