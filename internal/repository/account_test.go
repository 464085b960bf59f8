// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"codeberg.org/oliverandrich/scrimbase/internal/models"
	"codeberg.org/oliverandrich/scrimbase/internal/repository"
	"codeberg.org/oliverandrich/scrimbase/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountRoundTrip(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	account := testutil.NewTestAccount(t, repo, "player@example.com", models.StatusPendingVerification)

	byID, err := repo.GetAccountByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, account.ID, byID.ID)
	assert.Equal(t, models.StatusPendingVerification, byID.Status)
	assert.False(t, byID.CreatedAt.IsZero())

	byEmail, err := repo.GetAccountByEmail(ctx, "player@example.com")
	require.NoError(t, err)
	assert.Equal(t, account.ID, byEmail.ID)

	_, err = repo.GetAccountByEmail(ctx, "ghost@example.com")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestIncrementFailedLoginsIsAtomic(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	account := testutil.NewTestAccount(t, repo, "player@example.com", models.StatusActive)

	const attempts = 10
	counts := make([]int64, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			n, err := repo.IncrementFailedLogins(ctx, account.ID)
			require.NoError(t, err)
			counts[i] = n
		}(i)
	}
	wg.Wait()

	// Every increment observed a distinct counter value; no two racing
	// attempts read the same count.
	seen := map[int64]bool{}
	for _, n := range counts {
		assert.False(t, seen[n], "count %d returned twice", n)
		seen[n] = true
	}
	got, err := repo.GetAccountByID(ctx, account.ID)
	require.NoError(t, err)
	assert.EqualValues(t, attempts, got.FailedLogins)
}

func TestRecordSuccessfulLogin(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	account := testutil.NewTestAccount(t, repo, "player@example.com", models.StatusActive)

	_, err := repo.IncrementFailedLogins(ctx, account.ID)
	require.NoError(t, err)

	require.NoError(t, repo.RecordSuccessfulLogin(ctx, account.ID, time.Now()))

	got, err := repo.GetAccountByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Zero(t, got.FailedLogins)
	assert.NotNil(t, got.LastLoginAt)
}

func TestGetAccountByProviderID(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	googleID := "google-uid-1"
	account := &models.Account{
		ID:       "acc-1",
		Status:   models.StatusPendingProfile,
		Provider: models.ProviderGoogle,
		GoogleID: &googleID,
	}
	require.NoError(t, repo.CreateAccount(ctx, account))

	got, err := repo.GetAccountByProviderID(ctx, models.ProviderGoogle, googleID)
	require.NoError(t, err)
	assert.Equal(t, "acc-1", got.ID)

	_, err = repo.GetAccountByProviderID(ctx, models.ProviderGitHub, googleID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestConsumeVerificationTokenExactlyOnce(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	require.NoError(t, repo.CreateVerificationToken(ctx, "player@example.com", "tok-1",
		models.PurposeSignup, time.Now().Add(time.Hour)))

	require.NoError(t, repo.ConsumeVerificationToken(ctx, "tok-1"))
	assert.ErrorIs(t, repo.ConsumeVerificationToken(ctx, "tok-1"), repository.ErrNotFound)
}

func TestCreateVerificationTokenReplacesUnconsumed(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	future := time.Now().Add(time.Hour)

	require.NoError(t, repo.CreateVerificationToken(ctx, "player@example.com", "tok-1", models.PurposeSignup, future))
	require.NoError(t, repo.CreateVerificationToken(ctx, "player@example.com", "tok-2", models.PurposeSignup, future))

	_, err := repo.GetVerificationToken(ctx, "tok-1")
	assert.ErrorIs(t, err, repository.ErrNotFound, "reissue removes the older unconsumed token")
	_, err = repo.GetVerificationToken(ctx, "tok-2")
	assert.NoError(t, err)

	// A different purpose is untouched.
	require.NoError(t, repo.CreateVerificationToken(ctx, "player@example.com", "tok-3", models.PurposePasswordReset, future))
	_, err = repo.GetVerificationToken(ctx, "tok-2")
	assert.NoError(t, err)
}

func TestEvictRefreshTokensOverLimit(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	account := testutil.NewTestAccount(t, repo, "player@example.com", models.StatusActive)
	future := time.Now().Add(time.Hour)

	for _, tok := range []string{"rt-1", "rt-2", "rt-3"} {
		require.NoError(t, repo.CreateRefreshToken(ctx, account.ID, tok, future))
	}

	evicted, err := repo.EvictRefreshTokensOverLimit(ctx, account.ID, 2, time.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 1, evicted)

	oldest, err := repo.GetRefreshToken(ctx, "rt-1")
	require.NoError(t, err)
	assert.True(t, oldest.Revoked, "the oldest token goes first")

	count, err := repo.CountActiveRefreshTokens(ctx, account.ID, time.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	// Under the limit nothing moves.
	evicted, err = repo.EvictRefreshTokensOverLimit(ctx, account.ID, 2, time.Now())
	require.NoError(t, err)
	assert.Zero(t, evicted)
}

func TestBlacklistInsertIsIdempotent(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	future := time.Now().Add(time.Hour)

	require.NoError(t, repo.BlacklistAccessToken(ctx, "hash-1", future))
	require.NoError(t, repo.BlacklistAccessToken(ctx, "hash-1", future))

	listed, err := repo.IsAccessTokenBlacklisted(ctx, "hash-1")
	require.NoError(t, err)
	assert.True(t, listed)

	listed, err = repo.IsAccessTokenBlacklisted(ctx, "hash-2")
	require.NoError(t, err)
	assert.False(t, listed)
}
