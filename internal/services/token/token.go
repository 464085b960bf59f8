// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package token issues and verifies session credentials: short-lived JWT
// access tokens paired with opaque refresh tokens persisted per account.
package token

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"codeberg.org/oliverandrich/scrimbase/internal/config"
	"codeberg.org/oliverandrich/scrimbase/internal/repository"
	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrSessionExpired is terminal: the refresh token is gone and the client
	// must authenticate from scratch.
	ErrSessionExpired = errors.New("session expired")
	// ErrAccessTokenExpired marks an access token past its exp claim but
	// otherwise well-formed, so the client knows a refresh is worth trying.
	ErrAccessTokenExpired = errors.New("access token expired")
	// ErrAccessTokenInvalid covers bad signatures, malformed tokens, and
	// blacklisted tokens.
	ErrAccessTokenInvalid = errors.New("access token invalid")
)

// Claims are the JWT claims carried by an access token.
type Claims struct {
	AccountID string `json:"account_id"`
	jwt.RegisteredClaims
}

// Session is the credential pair handed to a client after authentication.
type Session struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// Service mints, refreshes, and revokes sessions.
type Service struct {
	repo *repository.Repository
	cfg  *config.AuthConfig
}

// NewService creates a new token service.
func NewService(repo *repository.Repository, cfg *config.AuthConfig) *Service {
	return &Service{repo: repo, cfg: cfg}
}

// IssueSession mints a fresh access/refresh pair for an account. When the
// account exceeds its session limit the oldest refresh tokens are revoked so
// at most the configured number stay live.
func (s *Service) IssueSession(ctx context.Context, accountID string) (*Session, error) {
	now := time.Now()

	access, accessExp, err := s.signAccessToken(accountID, now)
	if err != nil {
		return nil, err
	}

	refresh, err := newRefreshToken()
	if err != nil {
		return nil, err
	}
	refreshExp := now.Add(s.cfg.RefreshTokenTTL)
	if err := s.repo.CreateRefreshToken(ctx, accountID, refresh, refreshExp); err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	evicted, err := s.repo.EvictRefreshTokensOverLimit(ctx, accountID, int64(s.cfg.SessionLimit), now)
	if err != nil {
		return nil, fmt.Errorf("failed to enforce session limit: %w", err)
	}
	if evicted > 0 {
		slog.Info("sessions_evicted", "account_id", accountID, "count", evicted)
	}

	return &Session{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// Refresh trades a live refresh token for a new session. The presented token
// is revoked in the exchange; an unknown, revoked, or expired token fails
// terminally with ErrSessionExpired.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	rt, err := s.repo.GetRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionExpired
		}
		return nil, fmt.Errorf("failed to look up refresh token: %w", err)
	}
	if !rt.Valid(time.Now()) {
		return nil, ErrSessionExpired
	}

	if err := s.repo.RevokeRefreshToken(ctx, refreshToken); err != nil {
		return nil, fmt.Errorf("failed to rotate refresh token: %w", err)
	}

	session, err := s.IssueSession(ctx, rt.AccountID)
	if err != nil {
		return nil, err
	}
	slog.Debug("session_refreshed", "account_id", rt.AccountID)
	return session, nil
}

// Revoke ends a single session: the refresh token is revoked and the paired
// access token is blacklisted for its remaining lifetime. Revoking an
// already-dead session is a no-op.
func (s *Service) Revoke(ctx context.Context, refreshToken, accessToken string) error {
	if refreshToken != "" {
		if err := s.repo.RevokeRefreshToken(ctx, refreshToken); err != nil {
			return fmt.Errorf("failed to revoke refresh token: %w", err)
		}
	}
	if accessToken != "" {
		if err := s.BlacklistAccessToken(ctx, accessToken); err != nil {
			return err
		}
	}
	return nil
}

// RevokeAll revokes every live refresh token of an account. In-flight access
// tokens age out within the access TTL.
func (s *Service) RevokeAll(ctx context.Context, accountID string) error {
	if err := s.repo.RevokeAccountRefreshTokens(ctx, accountID, time.Now()); err != nil {
		return fmt.Errorf("failed to revoke sessions: %w", err)
	}
	slog.Info("sessions_revoked", "account_id", accountID)
	return nil
}

// BlacklistAccessToken denies an access token for the rest of its lifetime.
// Tokens that are already expired or unreadable are ignored.
func (s *Service) BlacklistAccessToken(ctx context.Context, accessToken string) error {
	claims, err := s.parseAccessToken(accessToken)
	if err != nil {
		return nil
	}
	exp := time.Now().Add(s.cfg.AccessTokenTTL)
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}
	if err := s.repo.BlacklistAccessToken(ctx, hashToken(accessToken), exp); err != nil {
		return fmt.Errorf("failed to blacklist access token: %w", err)
	}
	return nil
}

// ResolvePrincipal verifies an access token and returns the account it was
// minted for. Expired tokens fail with ErrAccessTokenExpired so callers can
// hint the client to refresh; every other failure is ErrAccessTokenInvalid.
func (s *Service) ResolvePrincipal(ctx context.Context, accessToken string) (string, error) {
	claims, err := s.parseAccessToken(accessToken)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrAccessTokenExpired
		}
		return "", ErrAccessTokenInvalid
	}

	blacklisted, err := s.repo.IsAccessTokenBlacklisted(ctx, hashToken(accessToken))
	if err != nil {
		return "", fmt.Errorf("failed to check blacklist: %w", err)
	}
	if blacklisted {
		return "", ErrAccessTokenInvalid
	}
	return claims.AccountID, nil
}

func (s *Service) signAccessToken(accountID string, now time.Time) (string, time.Time, error) {
	exp := now.Add(s.cfg.AccessTokenTTL)
	claims := &Claims{
		AccountID: accountID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, exp, nil
}

func (s *Service) parseAccessToken(accessToken string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(accessToken, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func newRefreshToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}
