// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import "time"

// AccessTokenBlacklistEntry denies an otherwise-stateless access token before
// its natural expiry. Only the SHA-256 hash of the token is stored; the entry
// expires together with the token, so the sweeper can purge it safely.
type AccessTokenBlacklistEntry struct {
	TokenHash string    `db:"token_hash" json:"-"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
}
