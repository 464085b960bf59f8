// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package email composes and delivers authentication emails. Delivery is
// best-effort: callers receive a boolean, never an error, because account
// flows must succeed even when the mail backend is down.
package email

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"codeberg.org/oliverandrich/scrimbase/internal/config"
	"codeberg.org/oliverandrich/scrimbase/internal/i18n"
	"github.com/wneessen/go-mail"
)

// Sender delivers a single message. Implemented by SMTPSender in production
// and by stubs in tests.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Service builds localized authentication emails and hands them to a Sender.
type Service struct {
	sender  Sender
	baseURL string
}

// NewService creates a new email service.
func NewService(sender Sender, baseURL string) *Service {
	return &Service{
		sender:  sender,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

// SendSignupVerification sends the account-confirmation email. Returns
// whether delivery succeeded.
func (s *Service) SendSignupVerification(ctx context.Context, to, token string) bool {
	subject := i18n.T(ctx, "email_signup_subject")
	body := i18n.TData(ctx, "email_signup_body", map[string]any{
		"VerifyURL": s.link("/auth/verify-email", token),
	})
	return s.deliver(ctx, to, subject, body)
}

// SendPasswordReset sends the password-reset email.
func (s *Service) SendPasswordReset(ctx context.Context, to, token string) bool {
	subject := i18n.T(ctx, "email_password_reset_subject")
	body := i18n.TData(ctx, "email_password_reset_body", map[string]any{
		"ResetURL": s.link("/auth/reset-password", token),
	})
	return s.deliver(ctx, to, subject, body)
}

// SendUnlock sends the account-locked email with the unlock link.
func (s *Service) SendUnlock(ctx context.Context, to, token string) bool {
	subject := i18n.T(ctx, "email_unlock_subject")
	body := i18n.TData(ctx, "email_unlock_body", map[string]any{
		"UnlockURL": s.link("/auth/unlock", token),
	})
	return s.deliver(ctx, to, subject, body)
}

// SendReactivation sends the dormant-account email with the reactivation link.
func (s *Service) SendReactivation(ctx context.Context, to, token string) bool {
	subject := i18n.T(ctx, "email_reactivate_subject")
	body := i18n.TData(ctx, "email_reactivate_body", map[string]any{
		"ReactivateURL": s.link("/auth/reactivate", token),
	})
	return s.deliver(ctx, to, subject, body)
}

func (s *Service) link(path, token string) string {
	return fmt.Sprintf("%s%s?token=%s", s.baseURL, path, url.QueryEscape(token))
}

func (s *Service) deliver(ctx context.Context, to, subject, body string) bool {
	if err := s.sender.Send(ctx, to, subject, body); err != nil {
		slog.Warn("email_delivery_failed", "to", to, "subject", subject, "error", err)
		return false
	}
	return true
}

// SMTPSender sends mail via SMTP using go-mail.
type SMTPSender struct {
	cfg *config.SMTPConfig
}

// NewSMTPSender validates the SMTP configuration and returns a sender.
func NewSMTPSender(cfg *config.SMTPConfig) (*SMTPSender, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("SMTP host is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("SMTP from address is required")
	}
	return &SMTPSender{cfg: cfg}, nil
}

// Send delivers a single plain-text message.
func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) error {
	msg := mail.NewMsg()

	if s.cfg.FromName != "" {
		if err := msg.FromFormat(s.cfg.FromName, s.cfg.From); err != nil {
			return fmt.Errorf("setting from address: %w", err)
		}
	} else {
		if err := msg.From(s.cfg.From); err != nil {
			return fmt.Errorf("setting from address: %w", err)
		}
	}

	if err := msg.To(to); err != nil {
		return fmt.Errorf("setting to address: %w", err)
	}

	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	// Build client options
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
	}

	// Configure TLS based on config and port
	if s.cfg.TLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
		// Use implicit TLS (SSL) for port 465, STARTTLS for others
		if s.cfg.Port == 465 {
			opts = append(opts, mail.WithSSL())
		}
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}

	// Add authentication if credentials are provided
	if s.cfg.Username != "" && s.cfg.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}

	client, err := mail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("creating mail client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("sending email: %w", err)
	}

	return nil
}

// LogSender writes outgoing mail to the log instead of delivering it. Used
// when no SMTP host is configured, so local development works without a
// mail server.
type LogSender struct{}

// Send logs the message.
func (LogSender) Send(_ context.Context, to, subject, body string) error {
	slog.Info("email_logged", "to", to, "subject", subject, "body", body)
	return nil
}
