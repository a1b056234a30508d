// Package identity exposes the identity-verification signal the fraud
// pipeline consumes. Face capture and matching happen outside this system;
// here we accept the check's outcome, persist the flag, and log the event.
package identity

import (
	"context"
	"fmt"

	"github.com/electio/votegate/internal/account"
	"github.com/electio/votegate/internal/behavior"
)

// Verifier reports whether an account passed identity verification.
type Verifier interface {
	IsVerified(ctx context.Context, accountID string) (bool, error)
}

// CheckResult is the outcome of one external identity check.
type CheckResult struct {
	AccountID        string  `json:"accountId"`
	Verified         bool    `json:"verified"`
	FaceDistance     float64 `json:"faceDistance"`
	VerificationTime float64 `json:"verificationTime"` // seconds
}

// Service records identity-check outcomes against accounts.
type Service struct {
	accounts *account.Service
	recorder *behavior.Recorder
}

// NewService creates an identity service.
func NewService(accounts *account.Service, recorder *behavior.Recorder) *Service {
	return &Service{accounts: accounts, recorder: recorder}
}

// RecordCheck persists the verified flag and logs the check for the
// anomaly scanner (verification time and face distance are its features).
func (s *Service) RecordCheck(ctx context.Context, result *CheckResult) error {
	a, err := s.accounts.Get(ctx, result.AccountID)
	if err != nil {
		return fmt.Errorf("load account: %w", err)
	}

	if err := s.accounts.SetIdentityVerified(ctx, a, result.Verified); err != nil {
		return fmt.Errorf("persist verified flag: %w", err)
	}

	s.recorder.Record(ctx, a.ID, behavior.ActionIdentityCheck, map[string]interface{}{
		"verified":          result.Verified,
		"face_distance":     result.FaceDistance,
		"verification_time": result.VerificationTime,
	})
	return nil
}

// IsVerified implements Verifier against the account store.
func (s *Service) IsVerified(ctx context.Context, accountID string) (bool, error) {
	a, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		return false, err
	}
	return a.IdentityVerified, nil
}
