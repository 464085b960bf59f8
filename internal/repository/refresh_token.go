// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"time"

	"codeberg.org/oliverandrich/scrimbase/internal/models"
	"github.com/vinovest/sqlx"
)

// CreateRefreshToken stores a new refresh token for an account.
func (r *Repository) CreateRefreshToken(ctx context.Context, accountID, token string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (account_id, token, expires_at) VALUES (?, ?, ?)`,
		accountID, token, expiresAt)
	return err
}

// GetRefreshToken retrieves a refresh token row by its opaque value.
func (r *Repository) GetRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	var rt models.RefreshToken
	err := r.db.GetContext(ctx, &rt, `SELECT * FROM refresh_tokens WHERE token = ?`, token)
	if err != nil {
		return nil, wrapError(err)
	}
	return &rt, nil
}

// RevokeRefreshToken marks a token revoked. The row is kept for audit;
// revoking an unknown or already revoked token is a no-op.
func (r *Repository) RevokeRefreshToken(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = 1 WHERE token = ?`, token)
	return err
}

// RevokeAccountRefreshTokens revokes every non-expired token of an account.
func (r *Repository) RevokeAccountRefreshTokens(ctx context.Context, accountID string, now time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = 1
		 WHERE account_id = ? AND revoked = 0 AND expires_at > ?`,
		accountID, now)
	return err
}

// CountActiveRefreshTokens counts non-revoked, non-expired tokens for an account.
func (r *Repository) CountActiveRefreshTokens(ctx context.Context, accountID string, now time.Time) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count,
		`SELECT count(*) FROM refresh_tokens
		 WHERE account_id = ? AND revoked = 0 AND expires_at > ?`,
		accountID, now)
	return count, err
}

// EvictRefreshTokensOverLimit revokes the oldest-issued active tokens until at
// most max remain. Count and eviction run in one transaction so concurrent
// logins cannot evict too many or too few sessions.
func (r *Repository) EvictRefreshTokensOverLimit(ctx context.Context, accountID string, max int64, now time.Time) (int64, error) {
	var evicted int64
	err := r.inTx(ctx, func(tx *sqlx.Tx) error {
		var count int64
		if err := tx.GetContext(ctx, &count,
			`SELECT count(*) FROM refresh_tokens
			 WHERE account_id = ? AND revoked = 0 AND expires_at > ?`,
			accountID, now); err != nil {
			return err
		}
		if count <= max {
			return nil
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE refresh_tokens SET revoked = 1 WHERE id IN (
			     SELECT id FROM refresh_tokens
			     WHERE account_id = ? AND revoked = 0 AND expires_at > ?
			     ORDER BY created_at ASC, id ASC
			     LIMIT ?)`,
			accountID, now, count-max)
		if err != nil {
			return err
		}
		evicted, err = res.RowsAffected()
		return err
	})
	return evicted, err
}

// DeleteExpiredRefreshTokens purges tokens past expiry, revoked or not.
func (r *Repository) DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE expires_at < ?`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
