// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package email delivers sign-in links.
package email

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"codeberg.org/oliverandrich/go-magiclink/internal/config"
	"codeberg.org/oliverandrich/go-magiclink/internal/i18n"
	"github.com/wneessen/go-mail"
)

// Service sends magic-link emails via SMTP.
type Service struct {
	cfg     *config.SMTPConfig
	linkTTL time.Duration
}

// NewService creates a new email service. linkTTL is only used to tell the
// recipient how long the link is valid.
func NewService(cfg *config.SMTPConfig, linkTTL time.Duration) (*Service, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("SMTP host is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("SMTP from address is required")
	}

	return &Service{cfg: cfg, linkTTL: linkTTL}, nil
}

// SendMagicLink sends the sign-in link to toEmail in the locale of ctx.
func (s *Service) SendMagicLink(ctx context.Context, toEmail, link string) error {
	msg, err := s.BuildMessage(ctx, toEmail, link)
	if err != nil {
		return err
	}
	return s.send(msg)
}

// BuildMessage renders the magic-link email without sending it.
func (s *Service) BuildMessage(ctx context.Context, toEmail, link string) (*mail.Msg, error) {
	msg := mail.NewMsg()

	if s.cfg.FromName != "" {
		if err := msg.FromFormat(s.cfg.FromName, s.cfg.From); err != nil {
			return nil, fmt.Errorf("setting from address: %w", err)
		}
	} else {
		if err := msg.From(s.cfg.From); err != nil {
			return nil, fmt.Errorf("setting from address: %w", err)
		}
	}

	if err := msg.To(toEmail); err != nil {
		return nil, fmt.Errorf("setting to address: %w", err)
	}

	msg.Subject(i18n.T(ctx, "email_magiclink_subject"))
	msg.SetBodyString(mail.TypeTextPlain, i18n.TData(ctx, "email_magiclink_body", map[string]any{
		"Link":    link,
		"Minutes": int(s.linkTTL.Minutes()),
	}))

	return msg, nil
}

// send delivers a message via SMTP using go-mail.
func (s *Service) send(msg *mail.Msg) error {
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

	if err := client.DialAndSend(msg); err != nil {
		return fmt.Errorf("sending email: %w", err)
	}

	return nil
}

// LogSender writes links to the log instead of sending them. It is used
// when no SMTP host is configured.
type LogSender struct{}

// SendMagicLink logs the link.
func (LogSender) SendMagicLink(ctx context.Context, toEmail, link string) error {
	slog.WarnContext(ctx, "smtp not configured, magic link not sent", "email", toEmail, "link", link)
	return nil
}
