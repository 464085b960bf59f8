// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"codeberg.org/oliverandrich/scrimbase/internal/models"
	"codeberg.org/oliverandrich/scrimbase/internal/repository"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// LoginOutcome tags the result of a login evaluation. Every branch is an
// expected business outcome, not an error.
type LoginOutcome int

const (
	// LoginSuccess: credentials valid, account active.
	LoginSuccess LoginOutcome = iota
	// LoginNeedsProfile: credentials valid, display name still missing.
	LoginNeedsProfile
	// LoginFailure: unknown account, unverified email, or wrong password.
	// The reason is generic on the wire to avoid account enumeration.
	LoginFailure
	// LoginLocked: account locked; remediation goes through the unlock email.
	LoginLocked
	// LoginDormant: account dormant; remediation goes through the reactivation email.
	LoginDormant
	// LoginUnverified: the signup email was never confirmed.
	LoginUnverified
)

// LoginResult carries the outcome tag and, for Success/NeedsProfile, the account.
type LoginResult struct {
	Outcome LoginOutcome
	Account *models.Account
	Reason  string
}

func failure(reason string) *LoginResult { return &LoginResult{Outcome: LoginFailure, Reason: reason} }

// dummyHash is compared for unknown accounts so response timing does not leak
// whether an email is registered.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("dummy-password-for-timing"), bcrypt.DefaultCost)

// Login evaluates a password login. Store faults surface as errors; every
// expected outcome is a LoginResult variant.
func (s *Service) Login(ctx context.Context, address, password string) (*LoginResult, error) {
	address = strings.ToLower(strings.TrimSpace(address))

	account, err := s.repo.GetAccountByEmail(ctx, address)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			slog.Warn("login_failed", "email", address, "reason", "account_not_found")
			return failure("invalid email or password"), nil
		}
		return nil, fmt.Errorf("failed to load account: %w", err)
	}

	switch account.Status {
	case models.StatusPendingVerification:
		slog.Warn("login_failed", "account_id", account.ID, "reason", "email_unverified")
		return &LoginResult{Outcome: LoginUnverified, Reason: "verify your email address first"}, nil
	case models.StatusLocked:
		return &LoginResult{Outcome: LoginLocked, Reason: "account locked after too many failed attempts"}, nil
	case models.StatusDormant:
		return &LoginResult{Outcome: LoginDormant, Reason: "account dormant after prolonged inactivity"}, nil
	}

	if account.IsOAuth() {
		slog.Warn("login_failed", "account_id", account.ID, "reason", "provider_account")
		return failure("invalid email or password"), nil
	}

	if res, transitioned, err := s.checkDormancy(ctx, account); err != nil {
		return nil, err
	} else if transitioned {
		return res, nil
	}

	if bcrypt.CompareHashAndPassword([]byte(*account.PasswordHash), []byte(password)) != nil {
		return s.recordFailedAttempt(ctx, account)
	}

	if err := s.repo.RecordSuccessfulLogin(ctx, account.ID, time.Now()); err != nil {
		return nil, fmt.Errorf("failed to record login: %w", err)
	}
	account.FailedLogins = 0

	slog.Info("login_success", "account_id", account.ID)
	if account.Status == models.StatusPendingProfile {
		return &LoginResult{Outcome: LoginNeedsProfile, Account: account}, nil
	}
	return &LoginResult{Outcome: LoginSuccess, Account: account}, nil
}

// ProviderLogin resolves a login through an external provider identity,
// creating the account in PENDING_PROFILE on first contact.
func (s *Service) ProviderLogin(ctx context.Context, provider models.AuthProvider, externalID string, address *string) (*LoginResult, error) {
	account, err := s.repo.GetAccountByProviderID(ctx, provider, externalID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("failed to load account: %w", err)
		}
		account, err = s.createProviderAccount(ctx, provider, externalID, address)
		if err != nil {
			return nil, err
		}
		return &LoginResult{Outcome: LoginNeedsProfile, Account: account}, nil
	}

	switch account.Status {
	case models.StatusLocked:
		return &LoginResult{Outcome: LoginLocked, Reason: "account locked"}, nil
	case models.StatusDormant:
		return &LoginResult{Outcome: LoginDormant, Reason: "account dormant after prolonged inactivity"}, nil
	}

	if res, transitioned, err := s.checkDormancy(ctx, account); err != nil {
		return nil, err
	} else if transitioned {
		return res, nil
	}

	if err := s.repo.RecordSuccessfulLogin(ctx, account.ID, time.Now()); err != nil {
		return nil, fmt.Errorf("failed to record login: %w", err)
	}

	slog.Info("login_success", "account_id", account.ID, "provider", provider)
	if account.Status == models.StatusPendingProfile {
		return &LoginResult{Outcome: LoginNeedsProfile, Account: account}, nil
	}
	return &LoginResult{Outcome: LoginSuccess, Account: account}, nil
}

func (s *Service) createProviderAccount(ctx context.Context, provider models.AuthProvider, externalID string, address *string) (*models.Account, error) {
	account := &models.Account{
		ID:       uuid.NewString(),
		Email:    address,
		Status:   models.StatusPendingProfile,
		Provider: provider,
	}
	switch provider {
	case models.ProviderGoogle:
		account.GoogleID = &externalID
	case models.ProviderGitHub:
		account.GitHubID = &externalID
	default:
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
	if err := s.repo.CreateAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("failed to create provider account: %w", err)
	}
	slog.Info("provider_account_created", "account_id", account.ID, "provider", provider)
	return account, nil
}

// checkDormancy flips an inactive account to DORMANT at login time and issues
// the reactivation token. Returns transitioned=true when the caller should
// stop with the Dormant result.
func (s *Service) checkDormancy(ctx context.Context, account *models.Account) (*LoginResult, bool, error) {
	if account.Status != models.StatusActive || account.LastLoginAt == nil {
		return nil, false, nil
	}
	if time.Since(*account.LastLoginAt) < s.cfg.DormancyThreshold {
		return nil, false, nil
	}

	if err := s.repo.UpdateAccountStatus(ctx, account.ID, models.StatusDormant); err != nil {
		return nil, false, fmt.Errorf("failed to mark account dormant: %w", err)
	}
	s.revokeSessions(ctx, account.ID)
	if account.Email != nil {
		s.issueAndSend(ctx, *account.Email, models.PurposeReactivate)
	}
	slog.Info("account_dormant", "account_id", account.ID)
	return &LoginResult{Outcome: LoginDormant, Reason: "account dormant after prolonged inactivity"}, true, nil
}

// recordFailedAttempt bumps the failure counter atomically and flips the
// account to LOCKED when it crosses the threshold. Exactly one of the
// concurrent failing attempts observes the crossing and sends the unlock mail.
func (s *Service) recordFailedAttempt(ctx context.Context, account *models.Account) (*LoginResult, error) {
	count, err := s.repo.IncrementFailedLogins(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to record attempt: %w", err)
	}

	slog.Warn("login_failed", "account_id", account.ID, "reason", "invalid_password", "failed_logins", count)

	if count == int64(s.cfg.LockoutThreshold) {
		if err := s.repo.UpdateAccountStatus(ctx, account.ID, models.StatusLocked); err != nil {
			return nil, fmt.Errorf("failed to lock account: %w", err)
		}
		s.revokeSessions(ctx, account.ID)
		if account.Email != nil {
			s.issueAndSend(ctx, *account.Email, models.PurposeUnlock)
		}
		slog.Warn("account_locked", "account_id", account.ID)
		return &LoginResult{Outcome: LoginLocked, Reason: "account locked after too many failed attempts"}, nil
	}
	if count > int64(s.cfg.LockoutThreshold) {
		return &LoginResult{Outcome: LoginLocked, Reason: "account locked after too many failed attempts"}, nil
	}
	return failure("invalid email or password"), nil
}
