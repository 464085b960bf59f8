// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package oauth resolves external identities through Google and GitHub.
package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"codeberg.org/oliverandrich/scrimbase/internal/config"
	"codeberg.org/oliverandrich/scrimbase/internal/models"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"
)

var ErrUnknownProvider = errors.New("unknown oauth provider")

// Identity is the provider-side identity of an authenticated user.
type Identity struct {
	Provider   models.AuthProvider
	ExternalID string
	Email      *string
}

// Service holds the provider configurations. A provider with no client id
// configured is treated as unknown.
type Service struct {
	google *oauth2.Config
	github *oauth2.Config
}

// NewService builds provider configurations with callbacks under baseURL.
func NewService(cfg *config.OAuthConfig, baseURL string) *Service {
	s := &Service{}
	if cfg.GoogleClientID != "" {
		s.google = &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			Endpoint:     google.Endpoint,
			RedirectURL:  baseURL + "/api/auth/oauth/google/callback",
			Scopes:       []string{"openid", "email", "profile"},
		}
	}
	if cfg.GitHubClientID != "" {
		s.github = &oauth2.Config{
			ClientID:     cfg.GitHubClientID,
			ClientSecret: cfg.GitHubClientSecret,
			Endpoint:     github.Endpoint,
			RedirectURL:  baseURL + "/api/auth/oauth/github/callback",
			Scopes:       []string{"user:email"},
		}
	}
	return s
}

// StateToken returns a fresh CSRF state for the authorization redirect.
func (s *Service) StateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// AuthURL returns the provider's authorization URL carrying the state.
func (s *Service) AuthURL(provider models.AuthProvider, state string) (string, error) {
	conf, err := s.conf(provider)
	if err != nil {
		return "", err
	}
	return conf.AuthCodeURL(state, oauth2.AccessTypeOffline), nil
}

// Exchange trades the authorization code for a token and fetches the identity
// behind it.
func (s *Service) Exchange(ctx context.Context, provider models.AuthProvider, code string) (*Identity, error) {
	conf, err := s.conf(provider)
	if err != nil {
		return nil, err
	}
	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}

	client := conf.Client(ctx, tok)
	switch provider {
	case models.ProviderGoogle:
		return fetchGoogleIdentity(client)
	case models.ProviderGitHub:
		return fetchGitHubIdentity(client)
	}
	return nil, ErrUnknownProvider
}

func (s *Service) conf(provider models.AuthProvider) (*oauth2.Config, error) {
	switch provider {
	case models.ProviderGoogle:
		if s.google != nil {
			return s.google, nil
		}
	case models.ProviderGitHub:
		if s.github != nil {
			return s.github, nil
		}
	}
	return nil, ErrUnknownProvider
}

func fetchGoogleIdentity(client *http.Client) (*Identity, error) {
	var payload struct {
		Sub   string `json:"sub"`
		Email string `json:"email"`
	}
	if err := getJSON(client, "https://openidconnect.googleapis.com/v1/userinfo", &payload); err != nil {
		return nil, err
	}
	if payload.Sub == "" {
		return nil, errors.New("google userinfo returned no subject")
	}
	id := &Identity{Provider: models.ProviderGoogle, ExternalID: payload.Sub}
	if payload.Email != "" {
		id.Email = &payload.Email
	}
	return id, nil
}

func fetchGitHubIdentity(client *http.Client) (*Identity, error) {
	var payload struct {
		ID    int64  `json:"id"`
		Email string `json:"email"`
	}
	if err := getJSON(client, "https://api.github.com/user", &payload); err != nil {
		return nil, err
	}
	if payload.ID == 0 {
		return nil, errors.New("github user endpoint returned no id")
	}
	id := &Identity{Provider: models.ProviderGitHub, ExternalID: strconv.FormatInt(payload.ID, 10)}
	if payload.Email != "" {
		id.Email = &payload.Email
	}
	return id, nil
}

func getJSON(client *http.Client, url string, out any) error {
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
