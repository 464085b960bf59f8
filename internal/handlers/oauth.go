// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"codeberg.org/oliverandrich/scrimbase/internal/models"
	"codeberg.org/oliverandrich/scrimbase/internal/services/credential"
	"codeberg.org/oliverandrich/scrimbase/internal/services/oauth"
	"github.com/labstack/echo/v4"
)

const oauthStateCookie = "_scrimbase_oauth_state"

// OAuthRedirect sends the client to the provider's authorization page. The
// CSRF state rides in a short-lived signed cookie.
func (h *AuthHandlers) OAuthRedirect(c echo.Context) error {
	provider := models.AuthProvider(c.Param("provider"))

	state, err := h.oauth.StateToken()
	if err != nil {
		slog.Error("oauth_state_failed", "error", err)
		return errorJSON(c, http.StatusInternalServerError, "oauth setup failed")
	}

	url, err := h.oauth.AuthURL(provider, state)
	if err != nil {
		return errorJSON(c, http.StatusNotFound, "unknown provider")
	}

	encoded, err := h.cookies.Encode(oauthStateCookie, state)
	if err != nil {
		slog.Error("oauth_state_failed", "error", err)
		return errorJSON(c, http.StatusInternalServerError, "oauth setup failed")
	}
	c.SetCookie(&http.Cookie{
		Name:     oauthStateCookie,
		Value:    encoded,
		Path:     "/api/auth/oauth",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	return c.Redirect(http.StatusTemporaryRedirect, url)
}

// OAuthCallback finishes the provider flow: state check, code exchange,
// find-or-create, session.
func (h *AuthHandlers) OAuthCallback(c echo.Context) error {
	provider := models.AuthProvider(c.Param("provider"))

	state := c.QueryParam("state")
	cookie, err := c.Cookie(oauthStateCookie)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "missing oauth state")
	}
	var expected string
	if err := h.cookies.Decode(oauthStateCookie, cookie.Value, &expected); err != nil || state == "" || state != expected {
		return errorJSON(c, http.StatusBadRequest, "oauth state mismatch")
	}

	code := c.QueryParam("code")
	if code == "" {
		return errorJSON(c, http.StatusBadRequest, "missing authorization code")
	}

	identity, err := h.oauth.Exchange(c.Request().Context(), provider, code)
	if err != nil {
		if errors.Is(err, oauth.ErrUnknownProvider) {
			return errorJSON(c, http.StatusNotFound, "unknown provider")
		}
		slog.Error("oauth_exchange_failed", "provider", provider, "error", err)
		return errorJSON(c, http.StatusBadGateway, "provider login failed")
	}

	res, err := h.credentials.ProviderLogin(c.Request().Context(), identity.Provider, identity.ExternalID, identity.Email)
	if err != nil {
		slog.Error("oauth_login_failed", "provider", provider, "error", err)
		return errorJSON(c, http.StatusInternalServerError, "provider login failed")
	}

	switch res.Outcome {
	case credential.LoginSuccess, credential.LoginNeedsProfile:
		return h.respondWithSession(c, res.Account)
	case credential.LoginLocked:
		return errorCodeJSON(c, http.StatusForbidden, "locked", res.Reason)
	case credential.LoginDormant:
		return errorCodeJSON(c, http.StatusForbidden, "dormant", res.Reason)
	default:
		return errorJSON(c, http.StatusUnauthorized, "provider login failed")
	}
}
