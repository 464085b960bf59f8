// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package client is the Go client for the Scrimbase auth API. The
// Coordinator keeps a session fresh with single-flight refreshes; the
// Watcher notifies idle clients about expiry.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrSessionExpired is terminal: the refresh token was rejected and the user
// has to log in again.
var ErrSessionExpired = errors.New("session expired")

// Session mirrors the token response of the server.
type Session struct {
	AccessToken     string  `json:"access_token"`
	RefreshToken    string  `json:"refresh_token"`
	AccountID       string  `json:"account_id"`
	DisplayName     *string `json:"display_name"`
	Status          string  `json:"status"`
	ProfileRequired bool    `json:"profile_required"`
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Message    string `json:"error"`
	Code       string `json:"code"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// Client talks to the auth endpoints.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the server at baseURL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// Login authenticates with email and password.
func (c *Client) Login(ctx context.Context, email, password string) (*Session, error) {
	var session Session
	err := c.post(ctx, "/api/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, &session)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// Register creates an account. The returned flag reports whether the
// verification email went out.
func (c *Client) Register(ctx context.Context, email, password string) (string, bool, error) {
	var resp struct {
		AccountID             string `json:"account_id"`
		VerificationEmailSent bool   `json:"verification_email_sent"`
	}
	err := c.post(ctx, "/api/auth/register", map[string]string{
		"email":    email,
		"password": password,
	}, &resp)
	if err != nil {
		return "", false, err
	}
	return resp.AccountID, resp.VerificationEmailSent, nil
}

// Refresh trades a refresh token for a new session. A 401 maps to
// ErrSessionExpired.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	var session Session
	err := c.post(ctx, "/api/auth/refresh", map[string]string{
		"refresh_token": refreshToken,
	}, &session)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
			return nil, ErrSessionExpired
		}
		return nil, err
	}
	return &session, nil
}

// Logout revokes the session server-side.
func (c *Client) Logout(ctx context.Context, refreshToken string) error {
	return c.post(ctx, "/api/auth/logout", map[string]string{
		"refresh_token": refreshToken,
	}, nil)
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		_ = json.Unmarshal(data, apiErr)
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
