// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers_test

import (
	"testing"
	"time"

	"codeberg.org/oliverandrich/scrimbase/internal/config"
	"codeberg.org/oliverandrich/scrimbase/internal/testutil"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var oauthTestConfig = config.OAuthConfig{
	GoogleClientID:     "google-client",
	GoogleClientSecret: "google-secret",
	GitHubClientID:     "github-client",
	GitHubClientSecret: "github-secret",
}

// expiredAccessToken signs a token with the shared test secret that expired
// a minute ago.
func expiredAccessToken(t *testing.T, accountID string) string {
	t.Helper()
	cfg := testutil.NewAuthConfig()
	claims := jwt.MapClaims{
		"account_id": accountID,
		"sub":        accountID,
		"exp":        time.Now().Add(-time.Minute).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWTSecret))
	require.NoError(t, err)
	return signed
}
