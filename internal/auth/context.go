// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package auth provides authentication context helpers.
package auth

import (
	"context"

	"codeberg.org/oliverandrich/scrimbase/internal/ctxkeys"
	"codeberg.org/oliverandrich/scrimbase/internal/models"
)

// WithAccount returns a context carrying the authenticated account.
func WithAccount(ctx context.Context, account *models.Account) context.Context {
	return context.WithValue(ctx, ctxkeys.Account{}, account)
}

// GetAccount returns the authenticated account from the context, or nil if
// not authenticated.
func GetAccount(ctx context.Context) *models.Account {
	if account, ok := ctx.Value(ctxkeys.Account{}).(*models.Account); ok {
		return account
	}
	return nil
}

// WithAccessToken returns a context carrying the raw bearer token.
func WithAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, ctxkeys.AccessToken{}, token)
}

// GetAccessToken returns the raw bearer token of the request, or "".
func GetAccessToken(ctx context.Context) string {
	if token, ok := ctx.Value(ctxkeys.AccessToken{}).(string); ok {
		return token
	}
	return ""
}

// IsAuthenticated returns true if the context has an authenticated account.
func IsAuthenticated(ctx context.Context) bool {
	return GetAccount(ctx) != nil
}
