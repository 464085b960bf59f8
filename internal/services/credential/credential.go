// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package credential implements registration, login evaluation, verification
// tokens, and the account lifecycle state machine.
package credential

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"codeberg.org/oliverandrich/scrimbase/internal/config"
	"codeberg.org/oliverandrich/scrimbase/internal/models"
	"codeberg.org/oliverandrich/scrimbase/internal/repository"
	"codeberg.org/oliverandrich/scrimbase/internal/services/email"
	"github.com/google/uuid"
)

var (
	ErrEmailTaken          = errors.New("email already registered")
	ErrInvalidEmail        = errors.New("invalid email format")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrAccountNotFound     = errors.New("account not found")
	ErrTokenInvalid        = errors.New("verification token invalid")
	ErrTokenExpired        = errors.New("verification token expired")
	ErrTokenUsed           = errors.New("verification token already used")
	ErrNameChangeThrottled = errors.New("display name changed too recently")
	ErrInvalidDisplayName  = errors.New("display name must be 1-32 characters")
	ErrNotOAuthFlow        = errors.New("account uses a provider login")
)

// SessionRevoker invalidates every live session of an account. Satisfied by
// the token service; password changes and lockouts bulk-revoke through it.
type SessionRevoker interface {
	RevokeAll(ctx context.Context, accountID string) error
}

// Service owns the account state machine and all credential flows.
type Service struct {
	repo     *repository.Repository
	emails   *email.Service
	sessions SessionRevoker
	cfg      *config.AuthConfig
}

// NewService creates a new credential service.
func NewService(repo *repository.Repository, emails *email.Service, sessions SessionRevoker, cfg *config.AuthConfig) *Service {
	return &Service{
		repo:     repo,
		emails:   emails,
		sessions: sessions,
		cfg:      cfg,
	}
}

// Register creates a password-based account in PENDING_VERIFICATION and emails
// a signup verification link. The returned boolean reports email delivery;
// registration succeeds either way so the caller can offer a resend.
func (s *Service) Register(ctx context.Context, address, password string) (*models.Account, bool, error) {
	address = strings.ToLower(strings.TrimSpace(address))
	if _, err := mail.ParseAddress(address); err != nil {
		return nil, false, ErrInvalidEmail
	}
	if err := ValidatePassword(password); err != nil {
		return nil, false, err
	}

	_, err := s.repo.GetAccountByEmail(ctx, address)
	if err == nil {
		return nil, false, ErrEmailTaken
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, false, fmt.Errorf("failed to check existing account: %w", err)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, false, fmt.Errorf("failed to hash password: %w", err)
	}

	account := &models.Account{
		ID:           uuid.NewString(),
		Email:        &address,
		PasswordHash: &hash,
		Status:       models.StatusPendingVerification,
		Provider:     models.ProviderPassword,
	}
	if err := s.repo.CreateAccount(ctx, account); err != nil {
		return nil, false, fmt.Errorf("failed to create account: %w", err)
	}

	delivered := s.issueAndSend(ctx, address, models.PurposeSignup)

	slog.Info("register_success", "account_id", account.ID, "email", address, "email_sent", delivered)
	return account, delivered, nil
}

// VerifyToken consumes a verification token. Expired and already-used tokens
// fail with distinct errors. A consumed SIGNUP token advances the account
// from PENDING_VERIFICATION to PENDING_PROFILE.
func (s *Service) VerifyToken(ctx context.Context, token string) (*models.VerificationToken, error) {
	vt, err := s.lookupLiveToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := s.repo.ConsumeVerificationToken(ctx, token); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Lost the race against a concurrent verification.
			return nil, ErrTokenUsed
		}
		return nil, fmt.Errorf("failed to consume token: %w", err)
	}

	if vt.Purpose == models.PurposeSignup {
		account, err := s.repo.GetAccountByEmail(ctx, vt.Email)
		if err != nil {
			return nil, fmt.Errorf("failed to load account: %w", err)
		}
		if account.Status == models.StatusPendingVerification {
			if err := s.repo.UpdateAccountStatus(ctx, account.ID, models.StatusPendingProfile); err != nil {
				return nil, fmt.Errorf("failed to update account status: %w", err)
			}
			slog.Info("email_verified", "account_id", account.ID)
		}
	}
	return vt, nil
}

// ResendVerification reissues the signup token for a PENDING_VERIFICATION
// account. Returns whether the email went out; unknown addresses and accounts
// past verification report false without error so the public boundary stays
// enumeration-safe.
func (s *Service) ResendVerification(ctx context.Context, address string) (bool, error) {
	address = strings.ToLower(strings.TrimSpace(address))
	account, err := s.repo.GetAccountByEmail(ctx, address)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if account.Status != models.StatusPendingVerification {
		return false, nil
	}
	return s.issueAndSend(ctx, address, models.PurposeSignup), nil
}

// SetDisplayName sets the display name. The first set moves a PENDING_PROFILE
// account to ACTIVE; later changes are throttled to one per 30 days.
func (s *Service) SetDisplayName(ctx context.Context, accountID, name string) (*models.Account, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > 32 {
		return nil, ErrInvalidDisplayName
	}

	account, err := s.repo.GetAccountByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}

	if account.DisplayName != nil && account.NameChangedAt != nil &&
		time.Since(*account.NameChangedAt) < 30*24*time.Hour {
		return nil, ErrNameChangeThrottled
	}

	if err := s.repo.UpdateAccountDisplayName(ctx, accountID, name); err != nil {
		return nil, fmt.Errorf("failed to update display name: %w", err)
	}
	if account.Status == models.StatusPendingProfile {
		if err := s.repo.UpdateAccountStatus(ctx, accountID, models.StatusActive); err != nil {
			return nil, fmt.Errorf("failed to activate account: %w", err)
		}
		slog.Info("profile_completed", "account_id", accountID)
	}
	return s.repo.GetAccountByID(ctx, accountID)
}

// GetAccount loads an account by id.
func (s *Service) GetAccount(ctx context.Context, accountID string) (*models.Account, error) {
	account, err := s.repo.GetAccountByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return account, nil
}

// lookupLiveToken fetches a token and checks consumption before expiry, so a
// token that is both consumed and expired reports "already used".
func (s *Service) lookupLiveToken(ctx context.Context, token string) (*models.VerificationToken, error) {
	vt, err := s.repo.GetVerificationToken(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, fmt.Errorf("failed to look up token: %w", err)
	}
	if vt.Consumed {
		return nil, ErrTokenUsed
	}
	if vt.Expired(time.Now()) {
		return nil, ErrTokenExpired
	}
	return vt, nil
}

// issueAndSend creates a fresh verification token (invalidating prior ones for
// the same purpose) and emails it. Returns whether delivery succeeded.
func (s *Service) issueAndSend(ctx context.Context, address string, purpose models.TokenPurpose) bool {
	token, err := newOpaqueToken()
	if err != nil {
		slog.Error("token_generation_failed", "error", err)
		return false
	}
	expiresAt := time.Now().Add(s.cfg.VerificationTokenTTL)
	if err := s.repo.CreateVerificationToken(ctx, address, token, purpose, expiresAt); err != nil {
		slog.Error("token_store_failed", "purpose", purpose, "error", err)
		return false
	}

	switch purpose {
	case models.PurposeSignup:
		return s.emails.SendSignupVerification(ctx, address, token)
	case models.PurposePasswordReset:
		return s.emails.SendPasswordReset(ctx, address, token)
	case models.PurposeUnlock:
		return s.emails.SendUnlock(ctx, address, token)
	case models.PurposeReactivate:
		return s.emails.SendReactivation(ctx, address, token)
	}
	return false
}

// newOpaqueToken returns 32 random bytes hex-encoded.
func newOpaqueToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func (s *Service) revokeSessions(ctx context.Context, accountID string) {
	if s.sessions == nil {
		return
	}
	if err := s.sessions.RevokeAll(ctx, accountID); err != nil {
		slog.Error("session_revocation_failed", "account_id", accountID, "error", err)
	}
}
