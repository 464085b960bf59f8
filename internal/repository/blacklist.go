// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"time"
)

// BlacklistAccessToken records an access-token hash until the token's own
// expiry. Inserting the same hash twice is a no-op.
func (r *Repository) BlacklistAccessToken(ctx context.Context, tokenHash string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO access_token_blacklist (token_hash, expires_at) VALUES (?, ?)`,
		tokenHash, expiresAt)
	return err
}

// IsAccessTokenBlacklisted reports whether an access-token hash is on the deny list.
func (r *Repository) IsAccessTokenBlacklisted(ctx context.Context, tokenHash string) (bool, error) {
	var count int64
	err := r.db.GetContext(ctx, &count,
		`SELECT count(*) FROM access_token_blacklist WHERE token_hash = ?`, tokenHash)
	return count > 0, err
}

// DeleteExpiredBlacklistEntries purges entries whose tokens have expired anyway.
func (r *Repository) DeleteExpiredBlacklistEntries(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM access_token_blacklist WHERE expires_at < ?`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
