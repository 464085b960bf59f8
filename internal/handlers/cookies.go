// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// setRefreshCookie stores the refresh token in a signed HttpOnly cookie so
// browser clients survive page reloads without keeping the token in script
// reach.
func (h *AuthHandlers) setRefreshCookie(c echo.Context, refreshToken string) {
	encoded, err := h.cookies.Encode(h.cfg.CookieName, refreshToken)
	if err != nil {
		slog.Error("cookie_encode_failed", "error", err)
		return
	}
	c.SetCookie(&http.Cookie{
		Name:     h.cfg.CookieName,
		Value:    encoded,
		Path:     "/api/auth",
		MaxAge:   int(h.cfg.RefreshTokenTTL / time.Second),
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// readRefreshCookie returns the refresh token from the signed cookie, or ""
// when absent or tampered with.
func (h *AuthHandlers) readRefreshCookie(c echo.Context) string {
	cookie, err := c.Cookie(h.cfg.CookieName)
	if err != nil {
		return ""
	}
	var refreshToken string
	if err := h.cookies.Decode(h.cfg.CookieName, cookie.Value, &refreshToken); err != nil {
		return ""
	}
	return refreshToken
}

func (h *AuthHandlers) clearRefreshCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     h.cfg.CookieName,
		Value:    "",
		Path:     "/api/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
