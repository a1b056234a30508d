package vote

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/electio/votegate/internal/account"
	"github.com/electio/votegate/internal/behavior"
	"github.com/electio/votegate/internal/fraud"
	"github.com/electio/votegate/internal/metrics"
	"github.com/electio/votegate/internal/realtime"
)

// Service runs the cast-vote pipeline: eligibility, duplicate check, fraud
// screening, sealing, persistence.
type Service struct {
	store    Store
	engine   *fraud.Engine
	accounts *account.Service
	sealer   Sealer
	recorder *behavior.Recorder
	hub      *realtime.Hub
	logger   *slog.Logger

	requireIdentity bool
	now             func() time.Time
}

// NewService creates a vote service. hub may be nil.
func NewService(store Store, engine *fraud.Engine, accounts *account.Service, sealer Sealer, recorder *behavior.Recorder, hub *realtime.Hub, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		engine:   engine,
		accounts: accounts,
		sealer:   sealer,
		recorder: recorder,
		hub:      hub,
		logger:   logger,
		now:      time.Now,
	}
}

// WithRequireIdentity makes unverified accounts ineligible to vote.
func (s *Service) WithRequireIdentity(require bool) *Service {
	s.requireIdentity = require
	return s
}

// Cast runs one vote attempt end to end. The duplicate check runs before
// scoring; a blocked attempt returns the assessment alongside ErrHighRisk so
// callers can report the tier without exposing the raw score internals.
func (s *Service) Cast(ctx context.Context, accountID string, req *CastRequest) (*Record, *fraud.Assessment, error) {
	acct, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		return nil, nil, err
	}

	if s.requireIdentity && !acct.IdentityVerified {
		metrics.VotesTotal.WithLabelValues("ineligible").Inc()
		return nil, nil, ErrIdentityRequired
	}

	voted, err := s.store.HasVoted(ctx, accountID, req.ElectionID)
	if err != nil {
		return nil, nil, fmt.Errorf("duplicate check: %w", err)
	}
	if voted {
		metrics.VotesTotal.WithLabelValues("duplicate").Inc()
		return nil, nil, ErrAlreadyVoted
	}

	assessment, err := s.engine.Assess(ctx, acct, &fraud.Attempt{
		AccountID:         accountID,
		ElectionID:        req.ElectionID,
		IPAddress:         req.IPAddress,
		DeviceFingerprint: req.DeviceFingerprint,
		SessionDuration:   req.SessionDuration,
		PageViews:         req.PageViews,
		TimeOnPage:        req.TimeOnPage,
		At:                s.now(),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("fraud assessment: %w", err)
	}

	s.broadcastDecision(assessment)

	if assessment.Action == fraud.ActionBlock {
		metrics.VotesTotal.WithLabelValues("blocked").Inc()
		s.logger.Warn("vote blocked by fraud screening",
			"account_id", accountID,
			"election_id", req.ElectionID,
			"probability", assessment.Probability)
		return nil, assessment, ErrHighRisk
	}

	sealed, err := s.sealer.Seal([]byte(req.Choice))
	if err != nil {
		return nil, assessment, fmt.Errorf("seal ballot: %w", err)
	}

	record := &Record{
		ID:           "vote_" + uuid.NewString(),
		AccountID:    accountID,
		ElectionID:   req.ElectionID,
		SealedChoice: sealed,
		RiskTier:     assessment.Tier,
		Probability:  assessment.Probability,
		Flagged:      assessment.Action == fraud.ActionReview,
		CastAt:       s.now(),
	}

	// The unique constraint closes the check-then-insert race.
	if err := s.store.Insert(ctx, record); err != nil {
		if err == ErrAlreadyVoted {
			metrics.VotesTotal.WithLabelValues("duplicate").Inc()
		}
		return nil, assessment, err
	}

	outcome := "cast"
	if record.Flagged {
		outcome = "review"
	}
	metrics.VotesTotal.WithLabelValues(outcome).Inc()

	s.recorder.Record(ctx, accountID, behavior.ActionCastVote, map[string]interface{}{
		"election_id":        req.ElectionID,
		"ip_address":         req.IPAddress,
		"device_fingerprint": req.DeviceFingerprint,
		"session_duration":   req.SessionDuration,
		"time_spent":         req.TimeOnPage,
		"page_views":         req.PageViews,
	})

	if s.hub != nil {
		s.hub.Broadcast(&realtime.Event{
			Type:      realtime.EventVoteCast,
			Timestamp: record.CastAt,
			Data: map[string]interface{}{
				"voteId":     record.ID,
				"electionId": record.ElectionID,
				"tier":       string(record.RiskTier),
				"flagged":    record.Flagged,
			},
		})
	}

	return record, assessment, nil
}

// Unseal decrypts a stored ballot choice for tallying.
func (s *Service) Unseal(r *Record) (string, error) {
	plain, err := s.sealer.Open(r.SealedChoice)
	if err != nil {
		return "", fmt.Errorf("open ballot: %w", err)
	}
	return string(plain), nil
}

func (s *Service) broadcastDecision(a *fraud.Assessment) {
	if s.hub == nil {
		return
	}
	s.hub.BroadcastRiskDecision(map[string]interface{}{
		"assessmentId": a.ID,
		"electionId":   a.ElectionID,
		"tier":         string(a.Tier),
		"action":       string(a.Action),
		"probability":  a.Probability,
		"scorer":       a.Scorer,
	})
}
