// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package credential_test

import (
	"context"
	"testing"

	"codeberg.org/oliverandrich/scrimbase/internal/models"
	"codeberg.org/oliverandrich/scrimbase/internal/services/credential"
	"codeberg.org/oliverandrich/scrimbase/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestPasswordReset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	testutil.NewTestAccount(t, f.repo, "player@example.com", models.StatusActive)

	sent, err := f.svc.RequestPasswordReset(ctx, "player@example.com")
	require.NoError(t, err)
	assert.True(t, sent)
	require.Len(t, f.sender.sent, 1)
	assert.Contains(t, f.sender.sent[0].body, "/auth/reset-password?token=")
}

func TestRequestPasswordResetUnknownEmail(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.RequestPasswordReset(context.Background(), "ghost@example.com")
	assert.ErrorIs(t, err, credential.ErrAccountNotFound)
}

func TestRequestPasswordResetProviderAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	address := "player@example.com"
	_, err := f.svc.ProviderLogin(ctx, models.ProviderGoogle, "google-uid-1", &address)
	require.NoError(t, err)

	_, err = f.svc.RequestPasswordReset(ctx, "player@example.com")
	assert.ErrorIs(t, err, credential.ErrNotOAuthFlow)
}

func TestResetPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	account := testutil.NewTestAccount(t, f.repo, "player@example.com", models.StatusActive)

	_, err := f.svc.RequestPasswordReset(ctx, "player@example.com")
	require.NoError(t, err)
	vt := latestToken(t, f.repo, "player@example.com", models.PurposePasswordReset)

	require.NoError(t, f.svc.ResetPassword(ctx, vt.Token, "newsecret9"))
	assert.Equal(t, []string{account.ID}, f.revoker.revoked, "reset invalidates all sessions")

	res, err := f.svc.Login(ctx, "player@example.com", "newsecret9")
	require.NoError(t, err)
	assert.Equal(t, credential.LoginSuccess, res.Outcome)

	res, err = f.svc.Login(ctx, "player@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, credential.LoginFailure, res.Outcome)
}

func TestResetPasswordTokenSingleUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	testutil.NewTestAccount(t, f.repo, "player@example.com", models.StatusActive)

	_, err := f.svc.RequestPasswordReset(ctx, "player@example.com")
	require.NoError(t, err)
	vt := latestToken(t, f.repo, "player@example.com", models.PurposePasswordReset)

	require.NoError(t, f.svc.ResetPassword(ctx, vt.Token, "newsecret9"))
	err = f.svc.ResetPassword(ctx, vt.Token, "another123")
	assert.ErrorIs(t, err, credential.ErrTokenUsed)
}

func TestResetPasswordWeakPasswordKeepsToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	testutil.NewTestAccount(t, f.repo, "player@example.com", models.StatusActive)

	_, err := f.svc.RequestPasswordReset(ctx, "player@example.com")
	require.NoError(t, err)
	vt := latestToken(t, f.repo, "player@example.com", models.PurposePasswordReset)

	err = f.svc.ResetPassword(ctx, vt.Token, "weak")
	assert.ErrorIs(t, err, credential.ErrWeakPassword)

	// The token survives the rejected attempt.
	require.NoError(t, f.svc.ResetPassword(ctx, vt.Token, "newsecret9"))
}

func TestResetPasswordUnlocksAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	account := testutil.NewTestAccount(t, f.repo, "player@example.com", models.StatusActive)

	// Lock the account through real failures.
	for i := 0; i < 5; i++ {
		_, err := f.svc.Login(ctx, "player@example.com", "wrongpass1")
		require.NoError(t, err)
	}
	got, err := f.repo.GetAccountByID(ctx, account.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusLocked, got.Status)

	vt := latestToken(t, f.repo, "player@example.com", models.PurposeUnlock)
	require.NoError(t, f.svc.ResetPassword(ctx, vt.Token, "newsecret9"))

	got, err = f.repo.GetAccountByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, got.Status)
	assert.Zero(t, got.FailedLogins, "unlock clears the failure counter")

	res, err := f.svc.Login(ctx, "player@example.com", "newsecret9")
	require.NoError(t, err)
	assert.Equal(t, credential.LoginSuccess, res.Outcome)
}

func TestResetPasswordReactivatesDormantAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	account := testutil.NewTestAccount(t, f.repo, "player@example.com", models.StatusDormant)

	_, err := f.svc.RequestPasswordReset(ctx, "player@example.com")
	require.NoError(t, err)
	vt := latestToken(t, f.repo, "player@example.com", models.PurposePasswordReset)

	require.NoError(t, f.svc.ResetPassword(ctx, vt.Token, "newsecret9"))

	got, err := f.repo.GetAccountByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, got.Status)
}

func TestResetPasswordRejectsSignupToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.Register(ctx, "player@example.com", "password123")
	require.NoError(t, err)
	vt := latestToken(t, f.repo, "player@example.com", models.PurposeSignup)

	err = f.svc.ResetPassword(ctx, vt.Token, "newsecret9")
	assert.ErrorIs(t, err, credential.ErrTokenInvalid)
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	account := testutil.NewTestAccount(t, f.repo, "player@example.com", models.StatusActive)

	require.NoError(t, f.svc.ChangePassword(ctx, account.ID, "password123", "newsecret9"))
	assert.Equal(t, []string{account.ID}, f.revoker.revoked)

	res, err := f.svc.Login(ctx, "player@example.com", "newsecret9")
	require.NoError(t, err)
	assert.Equal(t, credential.LoginSuccess, res.Outcome)
}

func TestChangePasswordWrongCurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	account := testutil.NewTestAccount(t, f.repo, "player@example.com", models.StatusActive)

	err := f.svc.ChangePassword(ctx, account.ID, "wrongpass1", "newsecret9")
	assert.ErrorIs(t, err, credential.ErrInvalidCredentials)
	assert.Empty(t, f.revoker.revoked)
}

func TestChangePasswordProviderAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	address := "player@example.com"
	res, err := f.svc.ProviderLogin(ctx, models.ProviderGoogle, "google-uid-1", &address)
	require.NoError(t, err)

	err = f.svc.ChangePassword(ctx, res.Account.ID, "password123", "newsecret9")
	assert.ErrorIs(t, err, credential.ErrNotOAuthFlow)
}
