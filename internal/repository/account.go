// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"time"

	"codeberg.org/oliverandrich/scrimbase/internal/models"
)

// CreateAccount inserts a new account.
func (r *Repository) CreateAccount(ctx context.Context, account *models.Account) error {
	now := time.Now()
	account.CreatedAt = now
	account.UpdatedAt = now
	_, err := r.db.NamedExecContext(ctx,
		`INSERT INTO accounts (id, email, password_hash, display_name, status, provider,
		                       google_id, github_id, failed_logins, last_login_at,
		                       name_changed_at, created_at, updated_at)
		 VALUES (:id, :email, :password_hash, :display_name, :status, :provider,
		         :google_id, :github_id, :failed_logins, :last_login_at,
		         :name_changed_at, :created_at, :updated_at)`,
		account)
	return err
}

// GetAccountByID retrieves an account by its ID.
func (r *Repository) GetAccountByID(ctx context.Context, id string) (*models.Account, error) {
	var account models.Account
	err := r.db.GetContext(ctx, &account, `SELECT * FROM accounts WHERE id = ?`, id)
	if err != nil {
		return nil, wrapError(err)
	}
	return &account, nil
}

// GetAccountByEmail retrieves an account by its email address.
func (r *Repository) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	var account models.Account
	err := r.db.GetContext(ctx, &account, `SELECT * FROM accounts WHERE email = ?`, email)
	if err != nil {
		return nil, wrapError(err)
	}
	return &account, nil
}

// GetAccountByProviderID retrieves an account by an external provider id.
func (r *Repository) GetAccountByProviderID(ctx context.Context, provider models.AuthProvider, externalID string) (*models.Account, error) {
	column := "google_id"
	if provider == models.ProviderGitHub {
		column = "github_id"
	}
	var account models.Account
	err := r.db.GetContext(ctx, &account, `SELECT * FROM accounts WHERE `+column+` = ?`, externalID)
	if err != nil {
		return nil, wrapError(err)
	}
	return &account, nil
}

// UpdateAccountStatus sets the lifecycle status of an account.
func (r *Repository) UpdateAccountStatus(ctx context.Context, id string, status models.AccountStatus) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now(), id)
	return err
}

// UpdateAccountPassword replaces the password hash.
func (r *Repository) UpdateAccountPassword(ctx context.Context, id, passwordHash string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET password_hash = ?, updated_at = ? WHERE id = ?`,
		passwordHash, time.Now(), id)
	return err
}

// UpdateAccountDisplayName sets the display name and stamps name_changed_at.
func (r *Repository) UpdateAccountDisplayName(ctx context.Context, id, displayName string) error {
	now := time.Now()
	_, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET display_name = ?, name_changed_at = ?, updated_at = ? WHERE id = ?`,
		displayName, now, now, id)
	return err
}

// IncrementFailedLogins bumps the consecutive-failure counter and returns the
// new value. The increment and read happen in one statement so two concurrent
// wrong-password attempts cannot observe the same count.
func (r *Repository) IncrementFailedLogins(ctx context.Context, id string) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count,
		`UPDATE accounts SET failed_logins = failed_logins + 1, updated_at = ?
		 WHERE id = ? RETURNING failed_logins`,
		time.Now(), id)
	if err != nil {
		return 0, wrapError(err)
	}
	return count, nil
}

// RecordSuccessfulLogin resets the failure counter and stamps last_login_at.
func (r *Repository) RecordSuccessfulLogin(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET failed_logins = 0, last_login_at = ?, updated_at = ? WHERE id = ?`,
		at, time.Now(), id)
	return err
}

// ResetFailedLogins clears the consecutive-failure counter without touching
// the login timestamp. Used when an unlock completes via password reset.
func (r *Repository) ResetFailedLogins(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET failed_logins = 0, updated_at = ? WHERE id = ?`,
		time.Now(), id)
	return err
}
