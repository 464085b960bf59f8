// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package token_test

import (
	"context"
	"testing"
	"time"

	"codeberg.org/oliverandrich/scrimbase/internal/config"
	"codeberg.org/oliverandrich/scrimbase/internal/models"
	"codeberg.org/oliverandrich/scrimbase/internal/repository"
	"codeberg.org/oliverandrich/scrimbase/internal/services/token"
	"codeberg.org/oliverandrich/scrimbase/internal/testutil"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTokenService(t *testing.T) (*token.Service, *repository.Repository, *config.AuthConfig) {
	t.Helper()
	_, repo := testutil.NewTestDB(t)
	cfg := testutil.NewAuthConfig()
	return token.NewService(repo, cfg), repo, cfg
}

func newAccount(t *testing.T, repo *repository.Repository) *models.Account {
	t.Helper()
	return testutil.NewTestAccount(t, repo, "player@example.com", models.StatusActive)
}

func TestIssueSession(t *testing.T) {
	svc, repo, _ := newTokenService(t)
	account := newAccount(t, repo)
	ctx := context.Background()

	session, err := svc.IssueSession(ctx, account.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, session.AccessToken)
	assert.NotEmpty(t, session.RefreshToken)
	assert.True(t, session.AccessExpiresAt.Before(session.RefreshExpiresAt))

	accountID, err := svc.ResolvePrincipal(ctx, session.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, account.ID, accountID)
}

func TestResolvePrincipalBadSignature(t *testing.T) {
	svc, repo, cfg := newTokenService(t)
	account := newAccount(t, repo)
	ctx := context.Background()

	claims := jwt.MapClaims{
		"account_id": account.ID,
		"exp":        time.Now().Add(cfg.AccessTokenTTL).Unix(),
	}
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("wrong-secret"))
	require.NoError(t, err)

	_, err = svc.ResolvePrincipal(ctx, forged)
	assert.ErrorIs(t, err, token.ErrAccessTokenInvalid)
}

func TestResolvePrincipalExpired(t *testing.T) {
	svc, repo, cfg := newTokenService(t)
	account := newAccount(t, repo)
	ctx := context.Background()

	claims := jwt.MapClaims{
		"account_id": account.ID,
		"exp":        time.Now().Add(-time.Minute).Unix(),
	}
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWTSecret))
	require.NoError(t, err)

	_, err = svc.ResolvePrincipal(ctx, expired)
	assert.ErrorIs(t, err, token.ErrAccessTokenExpired,
		"expiry is reported distinctly so clients know to refresh")
}

func TestResolvePrincipalGarbage(t *testing.T) {
	svc, _, _ := newTokenService(t)

	_, err := svc.ResolvePrincipal(context.Background(), "not.a.jwt")
	assert.ErrorIs(t, err, token.ErrAccessTokenInvalid)
}

func TestRefreshRotatesToken(t *testing.T) {
	svc, repo, _ := newTokenService(t)
	account := newAccount(t, repo)
	ctx := context.Background()

	first, err := svc.IssueSession(ctx, account.ID)
	require.NoError(t, err)

	second, err := svc.Refresh(ctx, first.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	// The old token died in the rotation.
	_, err = svc.Refresh(ctx, first.RefreshToken)
	assert.ErrorIs(t, err, token.ErrSessionExpired)

	// The new one stays live.
	_, err = svc.Refresh(ctx, second.RefreshToken)
	assert.NoError(t, err)
}

func TestRefreshUnknownToken(t *testing.T) {
	svc, _, _ := newTokenService(t)

	_, err := svc.Refresh(context.Background(), "never-issued")
	assert.ErrorIs(t, err, token.ErrSessionExpired)
}

func TestRefreshExpiredToken(t *testing.T) {
	svc, repo, _ := newTokenService(t)
	account := newAccount(t, repo)
	ctx := context.Background()

	session, err := svc.IssueSession(ctx, account.ID)
	require.NoError(t, err)

	_, err = repo.DB().ExecContext(ctx,
		`UPDATE refresh_tokens SET expires_at = ? WHERE token = ?`,
		time.Now().Add(-time.Minute), session.RefreshToken)
	require.NoError(t, err)

	_, err = svc.Refresh(ctx, session.RefreshToken)
	assert.ErrorIs(t, err, token.ErrSessionExpired)
}

func TestSessionLimitEvictsOldest(t *testing.T) {
	svc, repo, cfg := newTokenService(t)
	account := newAccount(t, repo)
	ctx := context.Background()

	sessions := make([]*token.Session, 0, cfg.SessionLimit+1)
	for i := 0; i < cfg.SessionLimit+1; i++ {
		s, err := svc.IssueSession(ctx, account.ID)
		require.NoError(t, err)
		sessions = append(sessions, s)
	}

	// The oldest session was evicted to stay within the limit.
	_, err := svc.Refresh(ctx, sessions[0].RefreshToken)
	assert.ErrorIs(t, err, token.ErrSessionExpired)

	count, err := repo.CountActiveRefreshTokens(ctx, account.ID, time.Now())
	require.NoError(t, err)
	assert.EqualValues(t, cfg.SessionLimit, count)
}

func TestRevokeSingleSession(t *testing.T) {
	svc, repo, _ := newTokenService(t)
	account := newAccount(t, repo)
	ctx := context.Background()

	session, err := svc.IssueSession(ctx, account.ID)
	require.NoError(t, err)
	other, err := svc.IssueSession(ctx, account.ID)
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(ctx, session.RefreshToken, session.AccessToken))

	_, err = svc.Refresh(ctx, session.RefreshToken)
	assert.ErrorIs(t, err, token.ErrSessionExpired)

	_, err = svc.ResolvePrincipal(ctx, session.AccessToken)
	assert.ErrorIs(t, err, token.ErrAccessTokenInvalid,
		"blacklisted access token is rejected before its natural expiry")

	// The other session is untouched.
	_, err = svc.ResolvePrincipal(ctx, other.AccessToken)
	assert.NoError(t, err)
}

func TestRevokeIsIdempotent(t *testing.T) {
	svc, repo, _ := newTokenService(t)
	account := newAccount(t, repo)
	ctx := context.Background()

	session, err := svc.IssueSession(ctx, account.ID)
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(ctx, session.RefreshToken, session.AccessToken))
	require.NoError(t, svc.Revoke(ctx, session.RefreshToken, session.AccessToken))
	require.NoError(t, svc.Revoke(ctx, "unknown-token", ""))
}

func TestRevokeAll(t *testing.T) {
	svc, repo, _ := newTokenService(t)
	account := newAccount(t, repo)
	ctx := context.Background()

	first, err := svc.IssueSession(ctx, account.ID)
	require.NoError(t, err)
	second, err := svc.IssueSession(ctx, account.ID)
	require.NoError(t, err)

	require.NoError(t, svc.RevokeAll(ctx, account.ID))

	_, err = svc.Refresh(ctx, first.RefreshToken)
	assert.ErrorIs(t, err, token.ErrSessionExpired)
	_, err = svc.Refresh(ctx, second.RefreshToken)
	assert.ErrorIs(t, err, token.ErrSessionExpired)
}
