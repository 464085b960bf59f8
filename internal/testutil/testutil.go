// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package testutil provides test helpers and fixtures.
package testutil

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/oliverandrich/scrimbase/internal/config"
	"codeberg.org/oliverandrich/scrimbase/internal/database"
	"codeberg.org/oliverandrich/scrimbase/internal/models"
	"codeberg.org/oliverandrich/scrimbase/internal/repository"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"github.com/vinovest/sqlx"
	"golang.org/x/crypto/bcrypt"
)

// NewTestDB creates a throwaway SQLite database for tests. A file in
// t.TempDir() instead of :memory: keeps the schema visible across pooled
// connections.
// Returns both the database connection and the repository for convenience.
func NewTestDB(t *testing.T) (*sqlx.DB, *repository.Repository) {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	repo := repository.New(db)
	return db, repo
}

// NewAuthConfig returns an auth configuration with the production defaults,
// suitable for exercising services in tests.
func NewAuthConfig() *config.AuthConfig {
	return &config.AuthConfig{
		JWTSecret:            "test-secret-key-for-signing",
		AccessTokenTTL:       30 * time.Minute,
		RefreshTokenTTL:      14 * 24 * time.Hour,
		VerificationTokenTTL: 15 * time.Minute,
		LockoutThreshold:     5,
		DormancyThreshold:    180 * 24 * time.Hour,
		SessionLimit:         5,
		SweepInterval:        time.Hour,
	}
}

// NewTestAccount creates an account in the database. Pass the wanted status;
// the account gets a password hash for "password123", computed at the
// minimum bcrypt cost to keep tests fast.
func NewTestAccount(t *testing.T, repo *repository.Repository, address string, status models.AccountStatus) *models.Account {
	t.Helper()
	ctx := context.Background()
	raw, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	require.NoError(t, err)
	hash := string(raw)
	account := &models.Account{
		ID:           uuid.NewString(),
		Email:        &address,
		PasswordHash: &hash,
		Status:       status,
		Provider:     models.ProviderPassword,
	}
	require.NoError(t, repo.CreateAccount(ctx, account))
	return account
}

// NewEchoContext creates an Echo context for handler tests.
func NewEchoContext(e *echo.Echo, method, path string, body io.Reader) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, path, body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return c, rec
}

// NewEchoContextWithHeaders creates an Echo context with custom headers.
func NewEchoContextWithHeaders(e *echo.Echo, method, path string, body io.Reader, headers map[string]string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, path, body)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return c, rec
}

// NewRequest creates an HTTP request for testing.
func NewRequest(method, path string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}
