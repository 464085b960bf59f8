// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"codeberg.org/oliverandrich/scrimbase/internal/auth"
	"codeberg.org/oliverandrich/scrimbase/internal/config"
	"codeberg.org/oliverandrich/scrimbase/internal/models"
	"codeberg.org/oliverandrich/scrimbase/internal/services/credential"
	"codeberg.org/oliverandrich/scrimbase/internal/services/oauth"
	"codeberg.org/oliverandrich/scrimbase/internal/services/token"
	"github.com/gorilla/securecookie"
	"github.com/labstack/echo/v4"
)

// AuthHandlers contains handlers for authentication and session lifecycle.
type AuthHandlers struct {
	credentials *credential.Service
	tokens      *token.Service
	oauth       *oauth.Service
	cookies     *securecookie.SecureCookie
	cfg         *config.AuthConfig
}

// NewAuth creates a new AuthHandlers instance.
func NewAuth(credentials *credential.Service, tokens *token.Service, oauthSvc *oauth.Service, cookies *securecookie.SecureCookie, cfg *config.AuthConfig) *AuthHandlers {
	return &AuthHandlers{
		credentials: credentials,
		tokens:      tokens,
		oauth:       oauthSvc,
		cookies:     cookies,
		cfg:         cfg,
	}
}

// TokenResponse is the session payload returned by login, refresh, and the
// OAuth callback.
type TokenResponse struct {
	AccessToken     string  `json:"access_token"`
	RefreshToken    string  `json:"refresh_token"`
	AccountID       string  `json:"account_id"`
	DisplayName     *string `json:"display_name"`
	Status          string  `json:"status"`
	ProfileRequired bool    `json:"profile_required"`
}

func newTokenResponse(session *token.Session, account *models.Account) *TokenResponse {
	return &TokenResponse{
		AccessToken:     session.AccessToken,
		RefreshToken:    session.RefreshToken,
		AccountID:       account.ID,
		DisplayName:     account.DisplayName,
		Status:          string(account.Status),
		ProfileRequired: account.ProfileRequired(),
	}
}

// RegisterRequest is the request body for account registration.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register creates a new password-based account.
func (h *AuthHandlers) Register(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request")
	}

	account, sent, err := h.credentials.Register(c.Request().Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, credential.ErrEmailTaken):
		return errorJSON(c, http.StatusConflict, "email already registered")
	case errors.Is(err, credential.ErrInvalidEmail):
		return errorJSON(c, http.StatusUnprocessableEntity, "invalid email address")
	case errors.Is(err, credential.ErrWeakPassword):
		return errorJSON(c, http.StatusUnprocessableEntity, err.Error())
	case err != nil:
		slog.Error("register_failed", "error", err)
		return errorJSON(c, http.StatusInternalServerError, "registration failed")
	}

	return c.JSON(http.StatusCreated, map[string]any{
		"account_id":              account.ID,
		"verification_email_sent": sent,
	})
}

// TokenRequest is the request body carrying a verification token.
type TokenRequest struct {
	Token string `json:"token"`
}

// VerifyEmail consumes a verification token. The status codes separate
// expired (refetchable) from used and unknown tokens.
func (h *AuthHandlers) VerifyEmail(c echo.Context) error {
	var req TokenRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request")
	}

	vt, err := h.credentials.VerifyToken(c.Request().Context(), req.Token)
	switch {
	case errors.Is(err, credential.ErrTokenExpired):
		return errorCodeJSON(c, http.StatusGone, "token_expired", "verification token expired")
	case errors.Is(err, credential.ErrTokenUsed):
		return errorCodeJSON(c, http.StatusConflict, "token_used", "verification token already used")
	case errors.Is(err, credential.ErrTokenInvalid):
		return errorCodeJSON(c, http.StatusNotFound, "token_invalid", "verification token invalid")
	case err != nil:
		slog.Error("verify_email_failed", "error", err)
		return errorJSON(c, http.StatusInternalServerError, "verification failed")
	}

	return c.JSON(http.StatusOK, map[string]string{
		"purpose": string(vt.Purpose),
	})
}

// EmailRequest is the request body carrying only an email address.
type EmailRequest struct {
	Email string `json:"email"`
}

// ResendVerification reissues the signup verification email. The answer is
// the same whether or not the address exists.
func (h *AuthHandlers) ResendVerification(c echo.Context) error {
	var req EmailRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request")
	}

	if _, err := h.credentials.ResendVerification(c.Request().Context(), req.Email); err != nil {
		slog.Error("resend_verification_failed", "error", err)
	}
	return c.JSON(http.StatusOK, map[string]string{
		"message": "if the address is pending verification, a new email was sent",
	})
}

// LoginRequest is the request body for login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login evaluates credentials and mints a session.
func (h *AuthHandlers) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request")
	}

	res, err := h.credentials.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		slog.Error("login_failed", "error", err)
		return errorJSON(c, http.StatusInternalServerError, "login failed")
	}

	switch res.Outcome {
	case credential.LoginSuccess, credential.LoginNeedsProfile:
		return h.respondWithSession(c, res.Account)
	case credential.LoginLocked:
		return errorCodeJSON(c, http.StatusForbidden, "locked", res.Reason)
	case credential.LoginDormant:
		return errorCodeJSON(c, http.StatusForbidden, "dormant", res.Reason)
	case credential.LoginUnverified:
		return errorCodeJSON(c, http.StatusForbidden, "verify_email", res.Reason)
	default:
		return errorJSON(c, http.StatusUnauthorized, res.Reason)
	}
}

// RefreshRequest is the request body for a token refresh. Browser clients can
// omit it and rely on the signed cookie instead.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh rotates a refresh token into a new session. A 401 here is
// terminal; the client has to log in again.
func (h *AuthHandlers) Refresh(c echo.Context) error {
	var req RefreshRequest
	_ = c.Bind(&req)
	if req.RefreshToken == "" {
		req.RefreshToken = h.readRefreshCookie(c)
	}
	if req.RefreshToken == "" {
		return errorCodeJSON(c, http.StatusUnauthorized, "session_expired", "no refresh token presented")
	}

	session, err := h.tokens.Refresh(c.Request().Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, token.ErrSessionExpired) {
			h.clearRefreshCookie(c)
			return errorCodeJSON(c, http.StatusUnauthorized, "session_expired", "session expired")
		}
		slog.Error("refresh_failed", "error", err)
		return errorJSON(c, http.StatusInternalServerError, "refresh failed")
	}

	accountID, err := h.tokens.ResolvePrincipal(c.Request().Context(), session.AccessToken)
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, "refresh failed")
	}
	account, err := h.credentials.GetAccount(c.Request().Context(), accountID)
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, "refresh failed")
	}

	h.setRefreshCookie(c, session.RefreshToken)
	return c.JSON(http.StatusOK, newTokenResponse(session, account))
}

// Logout revokes the presented refresh token and blacklists the bearer access
// token. It answers 200 even for dead sessions.
func (h *AuthHandlers) Logout(c echo.Context) error {
	var req RefreshRequest
	_ = c.Bind(&req)
	if req.RefreshToken == "" {
		req.RefreshToken = h.readRefreshCookie(c)
	}

	access := auth.GetAccessToken(c.Request().Context())
	if access == "" {
		access = bearerFromHeader(c)
	}

	if err := h.tokens.Revoke(c.Request().Context(), req.RefreshToken, access); err != nil {
		slog.Error("logout_failed", "error", err)
		return errorJSON(c, http.StatusInternalServerError, "logout failed")
	}
	h.clearRefreshCookie(c)
	return c.JSON(http.StatusOK, map[string]string{"message": "logged out"})
}

// LogoutAll revokes every session of the authenticated account.
func (h *AuthHandlers) LogoutAll(c echo.Context) error {
	account := auth.GetAccount(c.Request().Context())
	if account == nil {
		return errorJSON(c, http.StatusUnauthorized, "authentication required")
	}

	if err := h.tokens.RevokeAll(c.Request().Context(), account.ID); err != nil {
		slog.Error("logout_all_failed", "error", err)
		return errorJSON(c, http.StatusInternalServerError, "logout failed")
	}
	if access := auth.GetAccessToken(c.Request().Context()); access != "" {
		if err := h.tokens.BlacklistAccessToken(c.Request().Context(), access); err != nil {
			slog.Error("logout_all_failed", "error", err)
		}
	}
	h.clearRefreshCookie(c)
	return c.JSON(http.StatusOK, map[string]string{"message": "all sessions revoked"})
}

// PasswordForgot requests a password reset email. The answer never reveals
// whether the address exists or belongs to a provider account.
func (h *AuthHandlers) PasswordForgot(c echo.Context) error {
	var req EmailRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request")
	}

	if _, err := h.credentials.RequestPasswordReset(c.Request().Context(), req.Email); err != nil {
		if !errors.Is(err, credential.ErrAccountNotFound) && !errors.Is(err, credential.ErrNotOAuthFlow) {
			slog.Error("password_forgot_failed", "error", err)
		}
	}
	return c.JSON(http.StatusOK, map[string]string{
		"message": "if the address is registered, a reset email was sent",
	})
}

// PasswordResetRequest is the request body for completing a password reset.
type PasswordResetRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

// PasswordReset completes a reset, unlock, or reactivation flow.
func (h *AuthHandlers) PasswordReset(c echo.Context) error {
	var req PasswordResetRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request")
	}

	err := h.credentials.ResetPassword(c.Request().Context(), req.Token, req.NewPassword)
	switch {
	case errors.Is(err, credential.ErrTokenExpired):
		return errorCodeJSON(c, http.StatusGone, "token_expired", "token expired")
	case errors.Is(err, credential.ErrTokenUsed):
		return errorCodeJSON(c, http.StatusConflict, "token_used", "token already used")
	case errors.Is(err, credential.ErrTokenInvalid):
		return errorCodeJSON(c, http.StatusNotFound, "token_invalid", "token invalid")
	case errors.Is(err, credential.ErrWeakPassword):
		return errorJSON(c, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, credential.ErrNotOAuthFlow):
		return errorJSON(c, http.StatusConflict, "account uses a provider login")
	case errors.Is(err, credential.ErrAccountNotFound):
		return errorCodeJSON(c, http.StatusNotFound, "token_invalid", "token invalid")
	case err != nil:
		slog.Error("password_reset_failed", "error", err)
		return errorJSON(c, http.StatusInternalServerError, "password reset failed")
	}

	return c.JSON(http.StatusOK, map[string]string{"message": "password updated"})
}

// PasswordChangeRequest is the request body for an authenticated password change.
type PasswordChangeRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// PasswordChange changes the password of the authenticated account. All
// sessions are revoked; the client must log in again.
func (h *AuthHandlers) PasswordChange(c echo.Context) error {
	account := auth.GetAccount(c.Request().Context())
	if account == nil {
		return errorJSON(c, http.StatusUnauthorized, "authentication required")
	}

	var req PasswordChangeRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request")
	}

	err := h.credentials.ChangePassword(c.Request().Context(), account.ID, req.CurrentPassword, req.NewPassword)
	switch {
	case errors.Is(err, credential.ErrInvalidCredentials):
		return errorJSON(c, http.StatusForbidden, "current password is wrong")
	case errors.Is(err, credential.ErrWeakPassword):
		return errorJSON(c, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, credential.ErrNotOAuthFlow):
		return errorJSON(c, http.StatusConflict, "account uses a provider login")
	case err != nil:
		slog.Error("password_change_failed", "error", err)
		return errorJSON(c, http.StatusInternalServerError, "password change failed")
	}

	h.clearRefreshCookie(c)
	return c.JSON(http.StatusOK, map[string]string{"message": "password updated"})
}

// ProfileRequest is the request body for setting the display name.
type ProfileRequest struct {
	DisplayName string `json:"display_name"`
}

// Profile sets the display name. The first set completes onboarding and
// activates the account.
func (h *AuthHandlers) Profile(c echo.Context) error {
	account := auth.GetAccount(c.Request().Context())
	if account == nil {
		return errorJSON(c, http.StatusUnauthorized, "authentication required")
	}

	var req ProfileRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request")
	}

	updated, err := h.credentials.SetDisplayName(c.Request().Context(), account.ID, req.DisplayName)
	switch {
	case errors.Is(err, credential.ErrInvalidDisplayName):
		return errorJSON(c, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, credential.ErrNameChangeThrottled):
		return errorCodeJSON(c, http.StatusConflict, "name_change_throttled", "display name changed too recently")
	case err != nil:
		slog.Error("profile_update_failed", "error", err)
		return errorJSON(c, http.StatusInternalServerError, "profile update failed")
	}

	return c.JSON(http.StatusOK, map[string]any{
		"account_id":   updated.ID,
		"display_name": updated.DisplayName,
		"status":       updated.Status,
	})
}

// respondWithSession mints a session for the account and writes the token
// response plus the signed refresh cookie.
func (h *AuthHandlers) respondWithSession(c echo.Context, account *models.Account) error {
	session, err := h.tokens.IssueSession(c.Request().Context(), account.ID)
	if err != nil {
		slog.Error("session_issue_failed", "error", err)
		return errorJSON(c, http.StatusInternalServerError, "login failed")
	}
	h.setRefreshCookie(c, session.RefreshToken)
	return c.JSON(http.StatusOK, newTokenResponse(session, account))
}

func bearerFromHeader(c echo.Context) string {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	const prefix = "Bearer "
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return ""
}
