// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package server wires configuration, storage, services, and the HTTP API
// together and runs the process.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/oliverandrich/scrimbase/internal/config"
	"codeberg.org/oliverandrich/scrimbase/internal/database"
	"codeberg.org/oliverandrich/scrimbase/internal/handlers"
	"codeberg.org/oliverandrich/scrimbase/internal/i18n"
	"codeberg.org/oliverandrich/scrimbase/internal/middleware"
	"codeberg.org/oliverandrich/scrimbase/internal/repository"
	"codeberg.org/oliverandrich/scrimbase/internal/services/credential"
	"codeberg.org/oliverandrich/scrimbase/internal/services/email"
	"codeberg.org/oliverandrich/scrimbase/internal/services/oauth"
	"codeberg.org/oliverandrich/scrimbase/internal/services/token"
	"codeberg.org/oliverandrich/scrimbase/internal/sweeper"
	"github.com/gorilla/securecookie"
	"github.com/labstack/echo/v4"
	"github.com/urfave/cli/v3"
)

// Run starts the server with the given CLI command.
func Run(ctx context.Context, cmd *cli.Command) error {
	cfg := config.NewFromCLI(cmd)
	setupLogger(cfg.Log.Level, cfg.Log.Format)

	slog.Info("starting server",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"base_url", cfg.Server.BaseURL,
	)

	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth JWT secret is required")
	}

	// Database (migrations run on open)
	db, err := database.Open(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("failed to close database", "error", closeErr)
		}
	}()

	// i18n
	if initErr := i18n.Init(); initErr != nil {
		return fmt.Errorf("failed to init i18n: %w", initErr)
	}

	repo := repository.New(db)

	// Email delivery falls back to logging when SMTP is unconfigured.
	var sender email.Sender
	if cfg.SMTP.Host != "" {
		smtpSender, smtpErr := email.NewSMTPSender(&cfg.SMTP)
		if smtpErr != nil {
			return fmt.Errorf("failed to configure SMTP: %w", smtpErr)
		}
		sender = smtpSender
	} else {
		slog.Warn("no SMTP host configured, logging outgoing mail instead")
		sender = email.LogSender{}
	}
	emails := email.NewService(sender, cfg.Server.BaseURL)

	// Services
	tokens := token.NewService(repo, &cfg.Auth)
	credentials := credential.NewService(repo, emails, tokens, &cfg.Auth)
	oauthSvc := oauth.NewService(&cfg.OAuth, cfg.Server.BaseURL)
	cookies := newSecureCookie(&cfg.Auth)

	// Echo
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	setupMiddleware(e, cfg)
	setupRoutes(e, repo, credentials, tokens, oauthSvc, cookies, &cfg.Auth)

	// Background sweeper
	sweepCtx, cancelSweep := context.WithCancel(ctx)
	defer cancelSweep()
	go sweeper.New(repo, cfg.Auth.SweepInterval).Run(sweepCtx)

	return startWithGracefulShutdown(e, cfg)
}

// newSecureCookie builds the signer for the refresh cookie. Without a
// configured hash key a random one is generated, which invalidates cookies
// across restarts.
func newSecureCookie(cfg *config.AuthConfig) *securecookie.SecureCookie {
	key := []byte(cfg.CookieHashKey)
	if len(key) == 0 {
		slog.Warn("no cookie hash key configured, refresh cookies will not survive restarts")
		key = securecookie.GenerateRandomKey(32)
	}
	return securecookie.New(key, nil)
}

func setupRoutes(
	e *echo.Echo,
	repo *repository.Repository,
	credentials *credential.Service,
	tokens *token.Service,
	oauthSvc *oauth.Service,
	cookies *securecookie.SecureCookie,
	authCfg *config.AuthConfig,
) {
	h := handlers.New(repo)
	ah := handlers.NewAuth(credentials, tokens, oauthSvc, cookies, authCfg)

	e.GET("/health", h.Health)

	api := e.Group("/api/auth")
	api.POST("/register", ah.Register)
	api.POST("/verify-email", ah.VerifyEmail)
	api.POST("/resend-verification", ah.ResendVerification)
	api.POST("/login", ah.Login)
	api.POST("/refresh", ah.Refresh)
	api.POST("/logout", ah.Logout)
	api.POST("/password/forgot", ah.PasswordForgot)
	api.POST("/password/reset", ah.PasswordReset)
	api.GET("/oauth/:provider", ah.OAuthRedirect)
	api.GET("/oauth/:provider/callback", ah.OAuthCallback)

	authed := api.Group("", middleware.RequireAuth(tokens, repo))
	authed.POST("/logout-all", ah.LogoutAll)
	authed.POST("/profile", ah.Profile)
	// Locked and dormant accounts change passwords through the email flow.
	authed.POST("/password/change", ah.PasswordChange, middleware.RequireActive())
}

func startWithGracefulShutdown(e *echo.Echo, cfg *config.Config) error {
	// Setup TLS
	tlsResult, err := SetupTLS(cfg)
	if err != nil {
		return fmt.Errorf("TLS setup failed: %w", err)
	}

	// Channel for server errors
	errChan := make(chan error, 2)

	// HTTP redirect server for ACME mode
	var httpServer *http.Server

	switch tlsResult.Mode {
	case TLSModeOff:
		// Plain HTTP on configured port
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		go func() {
			slog.Info("Server running", "url", cfg.Server.BaseURL)
			if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- err
			}
		}()

	case TLSModeACME:
		// HTTPS on :443
		go func() {
			slog.Info("Server running", "url", cfg.Server.BaseURL)
			if err := startTLSServer(e, ":443", tlsResult.TLSConfig); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- err
			}
		}()

		// HTTP redirect server on :80
		httpServer = &http.Server{
			Addr:              ":80",
			Handler:           tlsResult.HTTPHandler,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			slog.Info("HTTP→HTTPS redirect active", "addr", ":80")
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- err
			}
		}()

	case TLSModeSelfSigned, TLSModeManual:
		// HTTPS on configured port
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		go func() {
			slog.Info("Server running", "url", cfg.Server.BaseURL)
			if err := startTLSServer(e, addr, tlsResult.TLSConfig); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- err
			}
		}()
	}

	// Wait for interrupt signal or error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		slog.Info("shutting down server")
	case err := <-errChan:
		slog.Error("server error", "error", err)
		return err
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Shutdown main server
	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown main server", "error", err)
	}

	// Shutdown HTTP redirect server if running
	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("failed to shutdown HTTP redirect server", "error", err)
		}
	}

	slog.Info("server stopped")
	return nil
}

// startTLSServer starts the Echo server with a custom TLS configuration.
func startTLSServer(e *echo.Echo, addr string, tlsConfig *tls.Config) error {
	lc := &net.ListenConfig{}
	ln, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return err
	}
	e.TLSListener = tls.NewListener(ln, tlsConfig)
	e.TLSServer.TLSConfig = tlsConfig
	return e.Server.Serve(e.TLSListener)
}
