// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package config

import (
	"fmt"
	"strings"
	"time"

	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"
)

var configFile = altsrc.StringSourcer("config.toml")

type Config struct { //nolint:govet // fieldalignment not critical for config structs
	Server   ServerConfig
	Log      LogConfig
	Database DatabaseConfig
	TLS      TLSConfig
	SMTP     SMTPConfig
	Auth     AuthConfig
	OAuth    OAuthConfig
}

type TLSConfig struct {
	Mode     string // auto, acme, selfsigned, manual, off
	CertDir  string // Directory for auto-generated certificates
	Email    string // ACME email for Let's Encrypt
	CertFile string // Path to certificate file (manual mode)
	KeyFile  string // Path to private key file (manual mode)
}

type ServerConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Host        string
	Port        int
	BaseURL     string
	MaxBodySize int // in MB
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text, json
}

type DatabaseConfig struct {
	DSN string
}

type SMTPConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Host     string
	Port     int
	From     string
	FromName string
	Username string
	Password string
	TLS      bool
}

type AuthConfig struct { //nolint:govet // fieldalignment not critical for config structs
	JWTSecret            string        // HMAC secret for signing access tokens (HS256)
	AccessTokenTTL       time.Duration // access-token lifetime
	RefreshTokenTTL      time.Duration // refresh-token lifetime
	VerificationTokenTTL time.Duration // email verification token lifetime
	LockoutThreshold     int           // consecutive failures before lockout
	DormancyThreshold    time.Duration // inactivity before an account goes dormant
	SessionLimit         int           // max concurrent sessions per account
	SweepInterval        time.Duration // maintenance sweeper interval
	CookieName           string        // refresh-token cookie name for browser clients
	CookieHashKey        string        // 32-byte hex key for cookie HMAC signing
	CookieSecure         bool          // HTTPS-only cookie
}

type OAuthConfig struct {
	GoogleClientID     string
	GoogleClientSecret string
	GitHubClientID     string
	GitHubClientSecret string
}

func NewFromCLI(cmd *cli.Command) *Config {
	cfg := &Config{
		Server: ServerConfig{
			Host:        cmd.String("host"),
			Port:        int(cmd.Int("port")),
			BaseURL:     cmd.String("base-url"),
			MaxBodySize: int(cmd.Int("max-body-size")),
		},
		Log: LogConfig{
			Level:  cmd.String("log-level"),
			Format: cmd.String("log-format"),
		},
		Database: DatabaseConfig{
			DSN: cmd.String("database-dsn"),
		},
		TLS: TLSConfig{
			Mode:     cmd.String("tls-mode"),
			CertDir:  cmd.String("tls-cert-dir"),
			Email:    cmd.String("tls-email"),
			CertFile: cmd.String("tls-cert-file"),
			KeyFile:  cmd.String("tls-key-file"),
		},
		SMTP: SMTPConfig{
			Host:     cmd.String("smtp-host"),
			Port:     int(cmd.Int("smtp-port")),
			From:     cmd.String("smtp-from"),
			FromName: cmd.String("smtp-from-name"),
			Username: cmd.String("smtp-username"),
			Password: cmd.String("smtp-password"),
			TLS:      cmd.Bool("smtp-tls"),
		},
		Auth: AuthConfig{
			JWTSecret:            cmd.String("jwt-secret"),
			AccessTokenTTL:       time.Duration(cmd.Int("access-token-ttl")) * time.Minute,
			RefreshTokenTTL:      time.Duration(cmd.Int("refresh-token-ttl")) * 24 * time.Hour,
			VerificationTokenTTL: time.Duration(cmd.Int("verification-token-ttl")) * time.Minute,
			LockoutThreshold:     int(cmd.Int("lockout-threshold")),
			DormancyThreshold:    time.Duration(cmd.Int("dormancy-threshold")) * 24 * time.Hour,
			SessionLimit:         int(cmd.Int("session-limit")),
			SweepInterval:        time.Duration(cmd.Int("sweep-interval")) * time.Minute,
			CookieName:           cmd.String("refresh-cookie-name"),
			CookieHashKey:        cmd.String("refresh-cookie-hash-key"),
			CookieSecure:         cmd.Bool("refresh-cookie-secure"),
		},
		OAuth: OAuthConfig{
			GoogleClientID:     cmd.String("oauth-google-client-id"),
			GoogleClientSecret: cmd.String("oauth-google-client-secret"),
			GitHubClientID:     cmd.String("oauth-github-client-id"),
			GitHubClientSecret: cmd.String("oauth-github-client-secret"),
		},
	}

	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = buildBaseURL(cfg)
	}

	return cfg
}

func buildBaseURL(cfg *Config) string {
	host := cfg.Server.Host
	port := cfg.Server.Port
	mode := strings.ToLower(cfg.TLS.Mode)

	// Determine if TLS will be used
	useTLS := shouldUseTLS(mode, host)

	scheme := "http"
	if useTLS {
		scheme = "https"
	}

	// ACME mode always uses port 443
	if mode == "acme" {
		return fmt.Sprintf("https://%s", host)
	}

	// Hide default ports in URL
	if (scheme == "http" && port == 80) || (scheme == "https" && port == 443) {
		return fmt.Sprintf("%s://%s", scheme, host)
	}
	return fmt.Sprintf("%s://%s:%d", scheme, host, port)
}

func shouldUseTLS(mode, host string) bool {
	switch mode {
	case "off":
		return false
	case "acme", "selfsigned", "manual":
		return true
	default: // "auto" or empty
		return !IsLocalhost(host)
	}
}

// IsLocalhost checks if the host is a localhost address.
func IsLocalhost(host string) bool {
	switch host {
	case "", "localhost", "127.0.0.1", "::1":
		return true
	}
	// Check for *.localhost subdomains (e.g., app.localhost)
	return strings.HasSuffix(host, ".localhost")
}

func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "host",
			Value:   "localhost",
			Usage:   "Host to bind to",
			Sources: cli.NewValueSourceChain(cli.EnvVar("HOST"), toml.TOML("server.host", configFile)),
		},
		&cli.IntFlag{
			Name:    "port",
			Value:   8080,
			Usage:   "Port to listen on",
			Sources: cli.NewValueSourceChain(cli.EnvVar("PORT"), toml.TOML("server.port", configFile)),
		},
		&cli.StringFlag{
			Name:    "base-url",
			Usage:   "Base URL for the application",
			Sources: cli.NewValueSourceChain(cli.EnvVar("BASE_URL"), toml.TOML("server.base_url", configFile)),
		},
		&cli.IntFlag{
			Name:    "max-body-size",
			Value:   1,
			Usage:   "Maximum request body size in MB",
			Sources: cli.NewValueSourceChain(cli.EnvVar("MAX_BODY_SIZE"), toml.TOML("server.max_body_size", configFile)),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Value:   "info",
			Usage:   "Log level (debug, info, warn, error)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("LOG_LEVEL"), toml.TOML("log.level", configFile)),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Value:   "text",
			Usage:   "Log format (text, json)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("LOG_FORMAT"), toml.TOML("log.format", configFile)),
		},
		&cli.StringFlag{
			Name:    "database-dsn",
			Value:   "./data/app.db",
			Usage:   "Database DSN",
			Sources: cli.NewValueSourceChain(cli.EnvVar("DATABASE_DSN"), toml.TOML("database.dsn", configFile)),
		},
		&cli.StringFlag{
			Name:    "tls-mode",
			Value:   "auto",
			Usage:   "TLS mode (auto, acme, selfsigned, manual, off)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TLS_MODE"), toml.TOML("tls.mode", configFile)),
		},
		&cli.StringFlag{
			Name:    "tls-cert-dir",
			Value:   "./data/certs",
			Usage:   "Directory for auto-generated certificates",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TLS_CERT_DIR"), toml.TOML("tls.cert_dir", configFile)),
		},
		&cli.StringFlag{
			Name:    "tls-email",
			Usage:   "Email for ACME/Let's Encrypt registration",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TLS_EMAIL"), toml.TOML("tls.email", configFile)),
		},
		&cli.StringFlag{
			Name:    "tls-cert-file",
			Usage:   "Path to TLS certificate file (manual mode)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TLS_CERT_FILE"), toml.TOML("tls.cert_file", configFile)),
		},
		&cli.StringFlag{
			Name:    "tls-key-file",
			Usage:   "Path to TLS private key file (manual mode)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TLS_KEY_FILE"), toml.TOML("tls.key_file", configFile)),
		},
		// SMTP flags
		&cli.StringFlag{
			Name:    "smtp-host",
			Usage:   "SMTP server host",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_HOST"), toml.TOML("smtp.host", configFile)),
		},
		&cli.IntFlag{
			Name:    "smtp-port",
			Value:   587,
			Usage:   "SMTP server port",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_PORT"), toml.TOML("smtp.port", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-from",
			Usage:   "Sender address for outgoing mail",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_FROM"), toml.TOML("smtp.from", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-from-name",
			Value:   "Scrimbase",
			Usage:   "Sender display name for outgoing mail",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_FROM_NAME"), toml.TOML("smtp.from_name", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-username",
			Usage:   "SMTP username",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_USERNAME"), toml.TOML("smtp.username", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-password",
			Usage:   "SMTP password",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_PASSWORD"), toml.TOML("smtp.password", configFile)),
		},
		&cli.BoolFlag{
			Name:    "smtp-tls",
			Value:   true,
			Usage:   "Require TLS for SMTP",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_TLS"), toml.TOML("smtp.tls", configFile)),
		},
		// Auth flags
		&cli.StringFlag{
			Name:    "jwt-secret",
			Usage:   "HMAC secret for signing access tokens",
			Sources: cli.NewValueSourceChain(cli.EnvVar("JWT_SECRET"), toml.TOML("auth.jwt_secret", configFile)),
		},
		&cli.IntFlag{
			Name:    "access-token-ttl",
			Value:   30,
			Usage:   "Access token lifetime in minutes",
			Sources: cli.NewValueSourceChain(cli.EnvVar("ACCESS_TOKEN_TTL"), toml.TOML("auth.access_token_ttl", configFile)),
		},
		&cli.IntFlag{
			Name:    "refresh-token-ttl",
			Value:   14,
			Usage:   "Refresh token lifetime in days",
			Sources: cli.NewValueSourceChain(cli.EnvVar("REFRESH_TOKEN_TTL"), toml.TOML("auth.refresh_token_ttl", configFile)),
		},
		&cli.IntFlag{
			Name:    "verification-token-ttl",
			Value:   15,
			Usage:   "Email verification token lifetime in minutes",
			Sources: cli.NewValueSourceChain(cli.EnvVar("VERIFICATION_TOKEN_TTL"), toml.TOML("auth.verification_token_ttl", configFile)),
		},
		&cli.IntFlag{
			Name:    "lockout-threshold",
			Value:   5,
			Usage:   "Consecutive failed logins before lockout",
			Sources: cli.NewValueSourceChain(cli.EnvVar("LOCKOUT_THRESHOLD"), toml.TOML("auth.lockout_threshold", configFile)),
		},
		&cli.IntFlag{
			Name:    "dormancy-threshold",
			Value:   180,
			Usage:   "Days of inactivity before an account goes dormant",
			Sources: cli.NewValueSourceChain(cli.EnvVar("DORMANCY_THRESHOLD"), toml.TOML("auth.dormancy_threshold", configFile)),
		},
		&cli.IntFlag{
			Name:    "session-limit",
			Value:   5,
			Usage:   "Max concurrent sessions per account",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SESSION_LIMIT"), toml.TOML("auth.session_limit", configFile)),
		},
		&cli.IntFlag{
			Name:    "sweep-interval",
			Value:   60,
			Usage:   "Maintenance sweeper interval in minutes",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SWEEP_INTERVAL"), toml.TOML("auth.sweep_interval", configFile)),
		},
		&cli.StringFlag{
			Name:    "refresh-cookie-name",
			Value:   "_scrimbase_refresh",
			Usage:   "Refresh-token cookie name for browser clients",
			Sources: cli.NewValueSourceChain(cli.EnvVar("REFRESH_COOKIE_NAME"), toml.TOML("auth.refresh_cookie_name", configFile)),
		},
		&cli.StringFlag{
			Name:    "refresh-cookie-hash-key",
			Usage:   "Refresh-token cookie hash key (32-byte hex, auto-generated if empty in dev)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("REFRESH_COOKIE_HASH_KEY"), toml.TOML("auth.refresh_cookie_hash_key", configFile)),
		},
		&cli.BoolFlag{
			Name:    "refresh-cookie-secure",
			Usage:   "HTTPS only refresh-token cookie",
			Sources: cli.NewValueSourceChain(cli.EnvVar("REFRESH_COOKIE_SECURE"), toml.TOML("auth.refresh_cookie_secure", configFile)),
		},
		// OAuth flags
		&cli.StringFlag{
			Name:    "oauth-google-client-id",
			Usage:   "Google OAuth client id",
			Sources: cli.NewValueSourceChain(cli.EnvVar("OAUTH_GOOGLE_CLIENT_ID"), toml.TOML("oauth.google_client_id", configFile)),
		},
		&cli.StringFlag{
			Name:    "oauth-google-client-secret",
			Usage:   "Google OAuth client secret",
			Sources: cli.NewValueSourceChain(cli.EnvVar("OAUTH_GOOGLE_CLIENT_SECRET"), toml.TOML("oauth.google_client_secret", configFile)),
		},
		&cli.StringFlag{
			Name:    "oauth-github-client-id",
			Usage:   "GitHub OAuth client id",
			Sources: cli.NewValueSourceChain(cli.EnvVar("OAUTH_GITHUB_CLIENT_ID"), toml.TOML("oauth.github_client_id", configFile)),
		},
		&cli.StringFlag{
			Name:    "oauth-github-client-secret",
			Usage:   "GitHub OAuth client secret",
			Sources: cli.NewValueSourceChain(cli.EnvVar("OAUTH_GITHUB_CLIENT_SECRET"), toml.TOML("oauth.github_client_secret", configFile)),
		},
	}
}
