// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import "time"

// AccountStatus is the lifecycle state of an account.
type AccountStatus string

const (
	// StatusPendingVerification: registered with a password, email not yet proven.
	StatusPendingVerification AccountStatus = "pending_verification"
	// StatusPendingProfile: identity proven (email or provider), display name not set.
	StatusPendingProfile AccountStatus = "pending_profile"
	StatusActive         AccountStatus = "active"
	// StatusLocked: too many consecutive failed logins; unlock via email token.
	StatusLocked AccountStatus = "locked"
	// StatusDormant: no successful login for the inactivity threshold.
	StatusDormant AccountStatus = "dormant"
)

// AuthProvider identifies how an account authenticates.
type AuthProvider string

const (
	ProviderPassword AuthProvider = "password"
	ProviderGoogle   AuthProvider = "google"
	ProviderGitHub   AuthProvider = "github"
)

// Account is the identity root. Password-based accounts carry a bcrypt hash
// and no external ids; provider accounts carry exactly one external id and
// no hash.
type Account struct { //nolint:govet // fieldalignment: readability over optimization
	ID            string        `db:"id" json:"id"`
	Email         *string       `db:"email" json:"email"`
	PasswordHash  *string       `db:"password_hash" json:"-"`
	DisplayName   *string       `db:"display_name" json:"display_name"`
	Status        AccountStatus `db:"status" json:"status"`
	Provider      AuthProvider  `db:"provider" json:"provider"`
	GoogleID      *string       `db:"google_id" json:"-"`
	GitHubID      *string       `db:"github_id" json:"-"`
	FailedLogins  int64         `db:"failed_logins" json:"-"`
	LastLoginAt   *time.Time    `db:"last_login_at" json:"last_login_at"`
	NameChangedAt *time.Time    `db:"name_changed_at" json:"-"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updated_at"`
}

// IsOAuth reports whether the account authenticates through an external
// provider rather than a local password.
func (a *Account) IsOAuth() bool {
	return a.Provider != ProviderPassword
}

// ProfileRequired reports whether the account still has to complete
// profile setup before it becomes active.
func (a *Account) ProfileRequired() bool {
	return a.Status == StatusPendingProfile
}
