package account

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/electio/votegate/internal/idgen"
)

// Service provides account business logic: registration and credential checks.
type Service struct {
	store Store
}

// NewService creates a new account service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Register creates a new account with a bcrypt-hashed credential.
func (s *Service) Register(ctx context.Context, req *RegisterRequest) (*Account, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))

	if existing, err := s.store.GetByEmail(ctx, email); err == nil && existing != nil {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	role := Role(req.Role)
	switch role {
	case RoleVoter, RoleCandidate, RoleAdmin:
	default:
		role = RoleVoter
	}

	var birthDate time.Time
	if req.BirthDate != "" {
		birthDate, err = time.Parse("2006-01-02", req.BirthDate)
		if err != nil {
			return nil, fmt.Errorf("parse birth date: %w", err)
		}
	}

	now := time.Now()
	a := &Account{
		ID:           idgen.WithPrefix("acct_"),
		Email:        email,
		Name:         strings.TrimSpace(req.Name),
		Role:         role,
		PasswordHash: string(hash),
		BirthDate:    birthDate,
		// Login always demands a passcode second factor, so every account
		// is enrolled from the start. SetMFAEnabled can opt one out.
		MFAEnabled: true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.store.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}
	return a, nil
}

// Get returns an account by id.
func (s *Service) Get(ctx context.Context, id string) (*Account, error) {
	return s.store.Get(ctx, id)
}

// GetByEmail returns an account by normalized email.
func (s *Service) GetByEmail(ctx context.Context, email string) (*Account, error) {
	return s.store.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
}

// VerifyPassword checks a plaintext credential against the stored hash.
// Returns ErrInvalidCredentials on mismatch; callers report it generically
// to avoid enumeration.
func (s *Service) VerifyPassword(a *Account, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// SetIdentityVerified records the outcome of an identity check.
func (s *Service) SetIdentityVerified(ctx context.Context, a *Account, verified bool) error {
	if a.IdentityVerified == verified {
		return nil
	}
	a.IdentityVerified = verified
	a.UpdatedAt = time.Now()
	return s.store.Update(ctx, a)
}

// SetMFAEnabled toggles the second factor requirement for an account.
func (s *Service) SetMFAEnabled(ctx context.Context, a *Account, enabled bool) error {
	if a.MFAEnabled == enabled {
		return nil
	}
	a.MFAEnabled = enabled
	a.UpdatedAt = time.Now()
	return s.store.Update(ctx, a)
}
