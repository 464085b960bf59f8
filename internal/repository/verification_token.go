// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"time"

	"codeberg.org/oliverandrich/scrimbase/internal/models"
	"github.com/vinovest/sqlx"
)

// CreateVerificationToken stores a new verification token. Prior unconsumed
// tokens for the same (email, purpose) pair are invalidated in the same
// transaction, keeping at most one live token per pair.
func (r *Repository) CreateVerificationToken(ctx context.Context, email, token string, purpose models.TokenPurpose, expiresAt time.Time) error {
	return r.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM verification_tokens WHERE email = ? AND purpose = ? AND consumed = 0`,
			email, purpose); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO verification_tokens (email, token, purpose, expires_at) VALUES (?, ?, ?, ?)`,
			email, token, purpose, expiresAt)
		return err
	})
}

// GetVerificationToken retrieves a verification token by its opaque value.
func (r *Repository) GetVerificationToken(ctx context.Context, token string) (*models.VerificationToken, error) {
	var vt models.VerificationToken
	err := r.db.GetContext(ctx, &vt, `SELECT * FROM verification_tokens WHERE token = ?`, token)
	if err != nil {
		return nil, wrapError(err)
	}
	return &vt, nil
}

// ConsumeVerificationToken marks a token consumed. It reports ErrNotFound if
// the token was already consumed, so consumption happens exactly once even
// under concurrent verification attempts.
func (r *Repository) ConsumeVerificationToken(ctx context.Context, token string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE verification_tokens SET consumed = 1 WHERE token = ? AND consumed = 0`, token)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteExpiredVerificationTokens purges tokens past expiry, consumed or not.
func (r *Repository) DeleteExpiredVerificationTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM verification_tokens WHERE expires_at < ?`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
