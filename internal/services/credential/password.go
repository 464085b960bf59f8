// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"codeberg.org/oliverandrich/scrimbase/internal/models"
	"codeberg.org/oliverandrich/scrimbase/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

var ErrWeakPassword = errors.New("password must be at least 8 characters and contain a letter and a digit")

// ValidatePassword enforces the password policy: at least 8 characters,
// at least one letter, at least one digit.
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return ErrWeakPassword
	}
	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter || !hasDigit {
		return ErrWeakPassword
	}
	return nil
}

// HashPassword hashes a password with bcrypt at the default cost.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether the password matches the stored hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// RequestPasswordReset issues a reset token for a password-based account.
// Provider accounts and unknown addresses fail; the HTTP boundary maps both
// to a generic success so addresses cannot be probed.
func (s *Service) RequestPasswordReset(ctx context.Context, address string) (bool, error) {
	address = strings.ToLower(strings.TrimSpace(address))
	account, err := s.repo.GetAccountByEmail(ctx, address)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, ErrAccountNotFound
		}
		return false, fmt.Errorf("failed to load account: %w", err)
	}
	if account.IsOAuth() {
		return false, ErrNotOAuthFlow
	}
	return s.issueAndSend(ctx, address, models.PurposePasswordReset), nil
}

// ResetPassword consumes a PASSWORD_RESET, UNLOCK, or REACTIVATE token and
// sets a new password. Completing the flow on a LOCKED or DORMANT account
// returns it to ACTIVE with a clean failure counter, and every live session
// is revoked.
func (s *Service) ResetPassword(ctx context.Context, token, password string) error {
	vt, err := s.lookupLiveToken(ctx, token)
	if err != nil {
		return err
	}
	if vt.Purpose == models.PurposeSignup {
		return ErrTokenInvalid
	}
	if err := ValidatePassword(password); err != nil {
		return err
	}

	account, err := s.repo.GetAccountByEmail(ctx, vt.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("failed to load account: %w", err)
	}
	if account.IsOAuth() {
		return ErrNotOAuthFlow
	}

	if err := s.repo.ConsumeVerificationToken(ctx, token); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrTokenUsed
		}
		return fmt.Errorf("failed to consume token: %w", err)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	if err := s.repo.UpdateAccountPassword(ctx, account.ID, hash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	if account.Status == models.StatusLocked || account.Status == models.StatusDormant {
		if err := s.repo.UpdateAccountStatus(ctx, account.ID, models.StatusActive); err != nil {
			return fmt.Errorf("failed to reactivate account: %w", err)
		}
		slog.Info("account_reactivated", "account_id", account.ID, "purpose", vt.Purpose)
	}
	if err := s.repo.ResetFailedLogins(ctx, account.ID); err != nil {
		return fmt.Errorf("failed to reset failure counter: %w", err)
	}
	s.revokeSessions(ctx, account.ID)

	slog.Info("password_reset", "account_id", account.ID)
	return nil
}

// ChangePassword changes the password of a logged-in account after verifying
// the current one. All live sessions are revoked afterwards.
func (s *Service) ChangePassword(ctx context.Context, accountID, current, next string) error {
	account, err := s.repo.GetAccountByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("failed to load account: %w", err)
	}
	if account.IsOAuth() || account.PasswordHash == nil {
		return ErrNotOAuthFlow
	}
	if !CheckPassword(*account.PasswordHash, current) {
		return ErrInvalidCredentials
	}
	if err := ValidatePassword(next); err != nil {
		return err
	}

	hash, err := HashPassword(next)
	if err != nil {
		return err
	}
	if err := s.repo.UpdateAccountPassword(ctx, accountID, hash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	s.revokeSessions(ctx, accountID)

	slog.Info("password_changed", "account_id", accountID)
	return nil
}
