// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package credential_test

import (
	"context"
	"testing"
	"time"

	"codeberg.org/oliverandrich/scrimbase/internal/models"
	"codeberg.org/oliverandrich/scrimbase/internal/services/credential"
	"codeberg.org/oliverandrich/scrimbase/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginSuccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	account := testutil.NewTestAccount(t, f.repo, "player@example.com", models.StatusActive)

	res, err := f.svc.Login(ctx, "player@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, credential.LoginSuccess, res.Outcome)
	require.NotNil(t, res.Account)
	assert.Equal(t, account.ID, res.Account.ID)

	got, err := f.repo.GetAccountByID(ctx, account.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.LastLoginAt)
}

func TestLoginNeedsProfile(t *testing.T) {
	f := newFixture(t)
	testutil.NewTestAccount(t, f.repo, "player@example.com", models.StatusPendingProfile)

	res, err := f.svc.Login(context.Background(), "player@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, credential.LoginNeedsProfile, res.Outcome)
	assert.NotNil(t, res.Account)
}

func TestLoginWrongPasswordBeforeProfileCheck(t *testing.T) {
	f := newFixture(t)
	testutil.NewTestAccount(t, f.repo, "player@example.com", models.StatusPendingProfile)

	res, err := f.svc.Login(context.Background(), "player@example.com", "wrongpass1")
	require.NoError(t, err)
	assert.Equal(t, credential.LoginFailure, res.Outcome,
		"a wrong password must not reveal the profile state")
}

func TestLoginUnknownEmail(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Login(context.Background(), "ghost@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, credential.LoginFailure, res.Outcome)
	assert.Equal(t, "invalid email or password", res.Reason)
}

func TestLoginUnverifiedEmail(t *testing.T) {
	f := newFixture(t)
	testutil.NewTestAccount(t, f.repo, "player@example.com", models.StatusPendingVerification)

	res, err := f.svc.Login(context.Background(), "player@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, credential.LoginUnverified, res.Outcome)
	assert.Contains(t, res.Reason, "verify")
}

func TestLoginLockoutAtThreshold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	account := testutil.NewTestAccount(t, f.repo, "player@example.com", models.StatusActive)

	for i := 0; i < 4; i++ {
		res, err := f.svc.Login(ctx, "player@example.com", "wrongpass1")
		require.NoError(t, err)
		assert.Equal(t, credential.LoginFailure, res.Outcome, "attempt %d must not lock yet", i+1)
	}

	res, err := f.svc.Login(ctx, "player@example.com", "wrongpass1")
	require.NoError(t, err)
	assert.Equal(t, credential.LoginLocked, res.Outcome, "fifth failure locks the account")

	got, err := f.repo.GetAccountByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusLocked, got.Status)

	// Exactly one unlock email went out and sessions were revoked once.
	var unlocks int
	for _, m := range f.sender.sent {
		if m.to == "player@example.com" {
			unlocks++
		}
	}
	assert.Equal(t, 1, unlocks)
	assert.Equal(t, []string{account.ID}, f.revoker.revoked)
}

func TestLoginWhileLocked(t *testing.T) {
	f := newFixture(t)
	testutil.NewTestAccount(t, f.repo, "player@example.com", models.StatusLocked)

	res, err := f.svc.Login(context.Background(), "player@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, credential.LoginLocked, res.Outcome,
		"correct password does not bypass a lock")
}

func TestLoginSuccessResetsCounter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	account := testutil.NewTestAccount(t, f.repo, "player@example.com", models.StatusActive)

	for i := 0; i < 4; i++ {
		_, err := f.svc.Login(ctx, "player@example.com", "wrongpass1")
		require.NoError(t, err)
	}

	res, err := f.svc.Login(ctx, "player@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, credential.LoginSuccess, res.Outcome)

	// The counter is clean: four more failures still do not lock.
	for i := 0; i < 4; i++ {
		res, err := f.svc.Login(ctx, "player@example.com", "wrongpass1")
		require.NoError(t, err)
		assert.Equal(t, credential.LoginFailure, res.Outcome)
	}
	got, err := f.repo.GetAccountByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, got.Status)
}

func TestLoginDormancyTransition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	account := testutil.NewTestAccount(t, f.repo, "player@example.com", models.StatusActive)

	_, err := f.repo.DB().ExecContext(ctx,
		`UPDATE accounts SET last_login_at = ? WHERE id = ?`,
		time.Now().Add(-200*24*time.Hour), account.ID)
	require.NoError(t, err)

	res, err := f.svc.Login(ctx, "player@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, credential.LoginDormant, res.Outcome)

	got, err := f.repo.GetAccountByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDormant, got.Status)
	assert.Equal(t, []string{account.ID}, f.revoker.revoked)

	vt := latestToken(t, f.repo, "player@example.com", models.PurposeReactivate)
	assert.False(t, vt.Consumed)
}

func TestLoginDormantAccount(t *testing.T) {
	f := newFixture(t)
	testutil.NewTestAccount(t, f.repo, "player@example.com", models.StatusDormant)

	res, err := f.svc.Login(context.Background(), "player@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, credential.LoginDormant, res.Outcome)
}

func TestProviderLoginCreatesAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	address := "player@example.com"

	res, err := f.svc.ProviderLogin(ctx, models.ProviderGoogle, "google-uid-1", &address)
	require.NoError(t, err)
	assert.Equal(t, credential.LoginNeedsProfile, res.Outcome)
	require.NotNil(t, res.Account)
	assert.Equal(t, models.StatusPendingProfile, res.Account.Status)
	assert.Equal(t, models.ProviderGoogle, res.Account.Provider)
}

func TestProviderLoginExistingAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	address := "player@example.com"

	first, err := f.svc.ProviderLogin(ctx, models.ProviderGitHub, "gh-uid-7", &address)
	require.NoError(t, err)

	_, err = f.svc.SetDisplayName(ctx, first.Account.ID, "ShadowStriker")
	require.NoError(t, err)

	second, err := f.svc.ProviderLogin(ctx, models.ProviderGitHub, "gh-uid-7", &address)
	require.NoError(t, err)
	assert.Equal(t, credential.LoginSuccess, second.Outcome)
	assert.Equal(t, first.Account.ID, second.Account.ID)
}

func TestPasswordLoginOnProviderAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	address := "player@example.com"

	_, err := f.svc.ProviderLogin(ctx, models.ProviderGoogle, "google-uid-1", &address)
	require.NoError(t, err)

	res, err := f.svc.Login(ctx, "player@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, credential.LoginFailure, res.Outcome,
		"provider accounts have no password to match")
}
