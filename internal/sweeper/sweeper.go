// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package sweeper purges expired verification tokens, refresh tokens, and
// blacklist entries on a fixed interval.
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"codeberg.org/oliverandrich/scrimbase/internal/repository"
)

// Sweeper runs the periodic cleanup of expired auth rows.
type Sweeper struct {
	repo     *repository.Repository
	interval time.Duration
}

// New creates a sweeper with the given interval.
func New(repo *repository.Repository, interval time.Duration) *Sweeper {
	return &Sweeper{repo: repo, interval: interval}
}

// Run sweeps once immediately and then on every tick until the context is
// canceled. Store errors are logged and do not stop the loop.
func (s *Sweeper) Run(ctx context.Context) {
	s.Sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep purges every expired row once. Expired refresh tokens are deleted
// whether revoked or not; blacklist entries leave with the access tokens they
// denied.
func (s *Sweeper) Sweep(ctx context.Context) {
	now := time.Now()

	verifications, err := s.repo.DeleteExpiredVerificationTokens(ctx, now)
	if err != nil {
		slog.Error("sweep_failed", "table", "verification_tokens", "error", err)
	}
	refreshes, err := s.repo.DeleteExpiredRefreshTokens(ctx, now)
	if err != nil {
		slog.Error("sweep_failed", "table", "refresh_tokens", "error", err)
	}
	blacklisted, err := s.repo.DeleteExpiredBlacklistEntries(ctx, now)
	if err != nil {
		slog.Error("sweep_failed", "table", "access_token_blacklist", "error", err)
	}

	if verifications+refreshes+blacklisted > 0 {
		slog.Info("sweep_completed",
			"verification_tokens", verifications,
			"refresh_tokens", refreshes,
			"blacklist_entries", blacklisted)
	}
}
