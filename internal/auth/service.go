// Package auth orchestrates the login pipeline: lockout gate, credential
// check, one-time passcode challenge, session grant. Wrong passwords and
// wrong codes both feed the same per-account failure counter, and both are
// reported to the caller as plain "invalid credentials" so that neither
// emails nor codes can be enumerated.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/electio/votegate/internal/account"
	"github.com/electio/votegate/internal/behavior"
	"github.com/electio/votegate/internal/notify"
	"github.com/electio/votegate/internal/otp"
	"github.com/electio/votegate/internal/realtime"
	"github.com/electio/votegate/internal/session"
)

var (
	// ErrInvalidCredentials covers unknown email, wrong password, and
	// wrong or expired code alike.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrDeliveryFailed means the code was created but could not be sent.
	ErrDeliveryFailed = errors.New("could not deliver verification code")
)

// LockedError reports a lockout with its remaining duration.
type LockedError struct {
	RemainingSeconds int
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account locked, retry in %ds", e.RemainingSeconds)
}

// Session is the result of a completed authentication.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	AccountID string    `json:"accountId"`
	Role      string    `json:"role"`
}

// Service runs the authentication pipeline.
type Service struct {
	accounts *account.Service
	lockout  *account.LockoutPolicy
	codes    *otp.Authenticator
	sender   notify.Sender
	sessions *session.Manager
	recorder *behavior.Recorder
	hub      *realtime.Hub
	logger   *slog.Logger
}

// NewService creates an auth service. hub may be nil.
func NewService(
	accounts *account.Service,
	lockout *account.LockoutPolicy,
	codes *otp.Authenticator,
	sender notify.Sender,
	sessions *session.Manager,
	recorder *behavior.Recorder,
	hub *realtime.Hub,
	logger *slog.Logger,
) *Service {
	return &Service{
		accounts: accounts,
		lockout:  lockout,
		codes:    codes,
		sender:   sender,
		sessions: sessions,
		recorder: recorder,
		hub:      hub,
		logger:   logger,
	}
}

// Register creates a new voter account.
func (s *Service) Register(ctx context.Context, req *account.RegisterRequest) (*account.Account, error) {
	return s.accounts.Register(ctx, req)
}

// Login checks the password and, on success, issues and delivers a one-time
// passcode. The session is only granted after VerifyCode.
func (s *Service) Login(ctx context.Context, email, password string, meta *RequestMeta) error {
	acct, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		// Unknown email reports the same generic failure as a wrong
		// password, without touching any counter.
		return ErrInvalidCredentials
	}

	if err := s.gate(ctx, acct); err != nil {
		return err
	}

	if err := s.accounts.VerifyPassword(acct, password); err != nil {
		return s.fail(ctx, acct, "wrong_password", meta)
	}

	code, err := s.codes.Issue(ctx, acct.ID, "email")
	if err != nil {
		return fmt.Errorf("issue code: %w", err)
	}

	s.recorder.Record(ctx, acct.ID, behavior.ActionLogin, loginDetails("password_ok", meta))

	// Delivery failure is surfaced but the code record stands; the voter
	// can ask for a resend.
	if err := s.sender.SendCode(ctx, "email", acct.Email, code.Value); err != nil {
		s.logger.Error("code delivery failed", "account_id", acct.ID, "error", err)
		return ErrDeliveryFailed
	}
	return nil
}

// VerifyCode checks the submitted passcode and grants a session on success.
func (s *Service) VerifyCode(ctx context.Context, email, submitted string, meta *RequestMeta) (*Session, error) {
	acct, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	if err := s.gate(ctx, acct); err != nil {
		return nil, err
	}

	if err := s.codes.Verify(ctx, acct.ID, submitted); err != nil {
		switch err {
		case otp.ErrNotFound, otp.ErrExpired, otp.ErrInvalid:
			return nil, s.fail(ctx, acct, "wrong_code", meta)
		default:
			return nil, err
		}
	}

	// Full authentication: clear counters unconditionally.
	if err := s.lockout.RecordSuccess(ctx, acct); err != nil {
		return nil, err
	}

	token, expiresAt, err := s.sessions.Grant(acct.ID, acct.Email, string(acct.Role))
	if err != nil {
		return nil, fmt.Errorf("grant session: %w", err)
	}

	s.recorder.Record(ctx, acct.ID, behavior.ActionLogin, loginDetails("verified", meta))

	return &Session{
		Token:     token,
		ExpiresAt: expiresAt,
		AccountID: acct.ID,
		Role:      string(acct.Role),
	}, nil
}

// ResendCode issues a fresh passcode. Equivalent to the issue step of Login;
// it does not require an outstanding code.
func (s *Service) ResendCode(ctx context.Context, email string) error {
	acct, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		return ErrInvalidCredentials
	}

	if err := s.gate(ctx, acct); err != nil {
		return err
	}

	code, err := s.codes.Issue(ctx, acct.ID, "email")
	if err != nil {
		return fmt.Errorf("issue code: %w", err)
	}
	if err := s.sender.SendCode(ctx, "email", acct.Email, code.Value); err != nil {
		s.logger.Error("code delivery failed", "account_id", acct.ID, "error", err)
		return ErrDeliveryFailed
	}
	return nil
}

// gate rejects locked accounts, auto-expiring stale locks first.
func (s *Service) gate(ctx context.Context, acct *account.Account) error {
	state, err := s.lockout.CheckAccess(ctx, acct)
	if err != nil {
		return err
	}
	if state.Locked {
		return &LockedError{RemainingSeconds: state.RemainingSeconds}
	}
	return nil
}

// fail records an authentication failure and maps it to the generic error.
func (s *Service) fail(ctx context.Context, acct *account.Account, reason string, meta *RequestMeta) error {
	state, err := s.lockout.RecordFailure(ctx, acct)
	if err != nil {
		return err
	}

	details := loginDetails(reason, meta)
	details["failed_attempts"] = state.FailedAttempts
	s.recorder.Record(ctx, acct.ID, behavior.ActionLogin, details)

	if state.Locked {
		s.logger.Warn("account locked after repeated failures",
			"account_id", acct.ID, "failed_attempts", state.FailedAttempts)
		if s.hub != nil {
			s.hub.Broadcast(&realtime.Event{
				Type:      realtime.EventAccountLocked,
				Timestamp: time.Now(),
				Data: map[string]interface{}{
					"accountId":        acct.ID,
					"remainingSeconds": state.RemainingSeconds,
				},
			})
		}
		return &LockedError{RemainingSeconds: state.RemainingSeconds}
	}
	return ErrInvalidCredentials
}

// RequestMeta carries per-request client signals into the behavioral log.
type RequestMeta struct {
	IPAddress         string
	DeviceFingerprint string
	SessionDuration   float64
}

func loginDetails(outcome string, meta *RequestMeta) map[string]interface{} {
	details := map[string]interface{}{"outcome": outcome}
	if meta == nil {
		return details
	}
	if meta.IPAddress != "" {
		details["ip_address"] = meta.IPAddress
	}
	if meta.DeviceFingerprint != "" {
		details["device_fingerprint"] = meta.DeviceFingerprint
	}
	if meta.SessionDuration > 0 {
		details["session_duration"] = meta.SessionDuration
	}
	return details
}
