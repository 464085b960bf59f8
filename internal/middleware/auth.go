// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package middleware provides Echo middleware for bearer-token authentication.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"codeberg.org/oliverandrich/scrimbase/internal/auth"
	"codeberg.org/oliverandrich/scrimbase/internal/models"
	"codeberg.org/oliverandrich/scrimbase/internal/repository"
	"codeberg.org/oliverandrich/scrimbase/internal/services/token"
	"github.com/labstack/echo/v4"
)

// AccountLoader loads the full account behind a verified token.
type AccountLoader interface {
	GetAccountByID(ctx context.Context, id string) (*models.Account, error)
}

// errorBody is the JSON shape of an authentication failure. The code field
// tells clients whether a refresh is worth attempting.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var (
	expiredBody = errorBody{Error: "access token expired", Code: "token_expired"}
	invalidBody = errorBody{Error: "access token invalid", Code: "token_invalid"}
)

// RequireAuth verifies the bearer token and loads the account into the
// request context. Expired tokens answer with code "token_expired" so clients
// know to refresh; every other failure answers "token_invalid".
func RequireAuth(tokens *token.Service, accounts AccountLoader) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := bearerToken(c.Request())
			if raw == "" {
				return c.JSON(http.StatusUnauthorized, invalidBody)
			}

			accountID, err := tokens.ResolvePrincipal(c.Request().Context(), raw)
			if err != nil {
				if errors.Is(err, token.ErrAccessTokenExpired) {
					return c.JSON(http.StatusUnauthorized, expiredBody)
				}
				if errors.Is(err, token.ErrAccessTokenInvalid) {
					return c.JSON(http.StatusUnauthorized, invalidBody)
				}
				return err
			}

			account, err := accounts.GetAccountByID(c.Request().Context(), accountID)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return c.JSON(http.StatusUnauthorized, invalidBody)
				}
				return err
			}

			ctx := auth.WithAccount(c.Request().Context(), account)
			ctx = auth.WithAccessToken(ctx, raw)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// RequireActive rejects accounts outside the ACTIVE state. It must run after
// RequireAuth.
func RequireActive() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			account := auth.GetAccount(c.Request().Context())
			if account == nil {
				return c.JSON(http.StatusUnauthorized, invalidBody)
			}
			if account.Status != models.StatusActive {
				return c.JSON(http.StatusForbidden, map[string]string{
					"error": "account is not active",
					"code":  "account_" + string(account.Status),
				})
			}
			return next(c)
		}
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get(echo.HeaderAuthorization)
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return header[len(prefix):]
	}
	return ""
}
