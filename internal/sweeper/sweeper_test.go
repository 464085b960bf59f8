// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package sweeper_test

import (
	"context"
	"testing"
	"time"

	"codeberg.org/oliverandrich/scrimbase/internal/models"
	"codeberg.org/oliverandrich/scrimbase/internal/sweeper"
	"codeberg.org/oliverandrich/scrimbase/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepPurgesExpiredRows(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	account := testutil.NewTestAccount(t, repo, "player@example.com", models.StatusActive)

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	require.NoError(t, repo.CreateVerificationToken(ctx, "player@example.com", "expired-vt", models.PurposeSignup, past))
	require.NoError(t, repo.CreateVerificationToken(ctx, "other@example.com", "live-vt", models.PurposeSignup, future))
	require.NoError(t, repo.CreateRefreshToken(ctx, account.ID, "expired-rt", past))
	require.NoError(t, repo.CreateRefreshToken(ctx, account.ID, "live-rt", future))
	require.NoError(t, repo.BlacklistAccessToken(ctx, "expired-hash", past))
	require.NoError(t, repo.BlacklistAccessToken(ctx, "live-hash", future))

	sweeper.New(repo, time.Hour).Sweep(ctx)

	_, err := repo.GetVerificationToken(ctx, "expired-vt")
	assert.Error(t, err)
	_, err = repo.GetVerificationToken(ctx, "live-vt")
	assert.NoError(t, err)

	_, err = repo.GetRefreshToken(ctx, "expired-rt")
	assert.Error(t, err)
	_, err = repo.GetRefreshToken(ctx, "live-rt")
	assert.NoError(t, err)

	gone, err := repo.IsAccessTokenBlacklisted(ctx, "expired-hash")
	require.NoError(t, err)
	assert.False(t, gone)
	kept, err := repo.IsAccessTokenBlacklisted(ctx, "live-hash")
	require.NoError(t, err)
	assert.True(t, kept)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		sweeper.New(repo, 10*time.Millisecond).Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after context cancellation")
	}
}
