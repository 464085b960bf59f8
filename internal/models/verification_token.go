// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import "time"

// TokenPurpose declares what a verification token proves once consumed.
type TokenPurpose string

const (
	PurposeSignup        TokenPurpose = "signup"
	PurposePasswordReset TokenPurpose = "password_reset"
	PurposeUnlock        TokenPurpose = "unlock"
	PurposeReactivate    TokenPurpose = "reactivate"
)

// VerificationToken is a single-use capability proving control of an email
// address. At most one unconsumed token exists per (email, purpose).
type VerificationToken struct { //nolint:govet // fieldalignment: readability over optimization
	ID        int64        `db:"id" json:"id"`
	Email     string       `db:"email" json:"email"`
	Token     string       `db:"token" json:"-"`
	Purpose   TokenPurpose `db:"purpose" json:"purpose"`
	ExpiresAt time.Time    `db:"expires_at" json:"expires_at"`
	Consumed  bool         `db:"consumed" json:"consumed"`
	CreatedAt time.Time    `db:"created_at" json:"created_at"`
}

// Expired reports whether the token is past its expiry at the given instant.
func (t *VerificationToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
