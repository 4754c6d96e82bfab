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
	Store    StoreConfig
	Auth     AuthConfig
	Session  SessionConfig
	SMTP     SMTPConfig
}

type ServerConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Host        string
	Port        int
	BaseURL     string
	FrontendURL string // Where users land after redirects; defaults to BaseURL
	MaxBodySize int    // in MB
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text, json
}

type DatabaseConfig struct {
	DSN string
}

// StoreConfig selects the ephemeral key-value store.
type StoreConfig struct {
	RedisURL  string // empty selects the in-memory store
	KeyPrefix string
}

// AuthConfig holds token lifetimes and redirect targets.
type AuthConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Secret       string // token signing secret, at least 32 bytes
	Issuer       string
	MagicLinkTTL time.Duration
	GraceTTL     time.Duration // how long a used magic link stays observable
	ExpiredTTL   time.Duration // how long an expired magic link stays observable
	HandoffTTL   time.Duration
	AccessTTL    time.Duration
	RefreshDays  int
	BcryptCost   int
	AppScheme    string // deep-link scheme of the mobile app, e.g. "myapp"
	ErrorPath    string // frontend path that renders sign-in failures
}

// RefreshTTL is the lifetime of a refresh credential.
func (a AuthConfig) RefreshTTL() time.Duration {
	return time.Duration(a.RefreshDays) * 24 * time.Hour
}

type SessionConfig struct { //nolint:govet // fieldalignment not critical
	HashKey  string // 32-byte hex string for HMAC signing
	BlockKey string // 32-byte hex string for AES encryption (optional)
}

// SMTPConfig configures outbound mail. An empty Host logs links instead of sending them.
type SMTPConfig struct { //nolint:govet // fieldalignment not critical
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	TLS      bool
}

func NewFromCLI(cmd *cli.Command) *Config {
	cfg := &Config{
		Server: ServerConfig{
			Host:        cmd.String("host"),
			Port:        int(cmd.Int("port")),
			BaseURL:     cmd.String("base-url"),
			FrontendURL: cmd.String("frontend-url"),
			MaxBodySize: int(cmd.Int("max-body-size")),
		},
		Log: LogConfig{
			Level:  cmd.String("log-level"),
			Format: cmd.String("log-format"),
		},
		Database: DatabaseConfig{
			DSN: cmd.String("database-dsn"),
		},
		Store: StoreConfig{
			RedisURL:  cmd.String("redis-url"),
			KeyPrefix: cmd.String("store-key-prefix"),
		},
		Auth: AuthConfig{
			Secret:       cmd.String("auth-secret"),
			Issuer:       cmd.String("auth-issuer"),
			MagicLinkTTL: cmd.Duration("magiclink-ttl"),
			GraceTTL:     cmd.Duration("magiclink-grace-ttl"),
			ExpiredTTL:   cmd.Duration("magiclink-expired-ttl"),
			HandoffTTL:   cmd.Duration("handoff-ttl"),
			AccessTTL:    cmd.Duration("access-token-ttl"),
			RefreshDays:  int(cmd.Int("refresh-days")),
			BcryptCost:   int(cmd.Int("bcrypt-cost")),
			AppScheme:    cmd.String("app-scheme"),
			ErrorPath:    cmd.String("auth-error-path"),
		},
		Session: SessionConfig{
			HashKey:  cmd.String("session-hash-key"),
			BlockKey: cmd.String("session-block-key"),
		},
		SMTP: SMTPConfig{
			Host:     cmd.String("smtp-host"),
			Port:     int(cmd.Int("smtp-port")),
			Username: cmd.String("smtp-username"),
			Password: cmd.String("smtp-password"),
			From:     cmd.String("smtp-from"),
			FromName: cmd.String("smtp-from-name"),
			TLS:      cmd.Bool("smtp-tls"),
		},
	}

	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = buildBaseURL(cfg)
	}
	cfg.Server.BaseURL = strings.TrimSuffix(cfg.Server.BaseURL, "/")

	if cfg.Server.FrontendURL == "" {
		cfg.Server.FrontendURL = cfg.Server.BaseURL
	}
	cfg.Server.FrontendURL = strings.TrimSuffix(cfg.Server.FrontendURL, "/")

	return cfg
}

// SecureCookies reports whether cookies must carry the Secure attribute.
func (c *Config) SecureCookies() bool {
	return strings.HasPrefix(c.Server.BaseURL, "https://")
}

func buildBaseURL(cfg *Config) string {
	host := cfg.Server.Host
	port := cfg.Server.Port

	scheme := "https"
	if IsLocalhost(host) {
		scheme = "http"
	}

	// Hide default ports in URL
	if (scheme == "http" && port == 80) || (scheme == "https" && port == 443) {
		return fmt.Sprintf("%s://%s", scheme, host)
	}
	return fmt.Sprintf("%s://%s:%d", scheme, host, port)
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
			Usage:   "Public base URL of this service (used in emailed links)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("BASE_URL"), toml.TOML("server.base_url", configFile)),
		},
		&cli.StringFlag{
			Name:    "frontend-url",
			Usage:   "Base URL of the web frontend (defaults to base-url)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("FRONTEND_URL"), toml.TOML("server.frontend_url", configFile)),
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
		// Ephemeral store flags
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "Redis URL for short-lived auth state (in-memory store if empty)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("REDIS_URL"), toml.TOML("store.redis_url", configFile)),
		},
		&cli.StringFlag{
			Name:    "store-key-prefix",
			Value:   "auth:",
			Usage:   "Prefix for all ephemeral store keys",
			Sources: cli.NewValueSourceChain(cli.EnvVar("STORE_KEY_PREFIX"), toml.TOML("store.key_prefix", configFile)),
		},
		// Auth flags
		&cli.StringFlag{
			Name:    "auth-secret",
			Usage:   "Token signing secret (at least 32 bytes, auto-generated if empty in dev)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("AUTH_SECRET"), toml.TOML("auth.secret", configFile)),
		},
		&cli.StringFlag{
			Name:    "auth-issuer",
			Value:   "go-magiclink",
			Usage:   "Issuer claim of signed tokens",
			Sources: cli.NewValueSourceChain(cli.EnvVar("AUTH_ISSUER"), toml.TOML("auth.issuer", configFile)),
		},
		&cli.DurationFlag{
			Name:    "magiclink-ttl",
			Value:   15 * time.Minute,
			Usage:   "Lifetime of a magic link",
			Sources: cli.NewValueSourceChain(cli.EnvVar("MAGICLINK_TTL"), toml.TOML("auth.magiclink_ttl", configFile)),
		},
		&cli.DurationFlag{
			Name:    "magiclink-grace-ttl",
			Value:   60 * time.Second,
			Usage:   "How long a used magic link is remembered",
			Sources: cli.NewValueSourceChain(cli.EnvVar("MAGICLINK_GRACE_TTL"), toml.TOML("auth.magiclink_grace_ttl", configFile)),
		},
		&cli.DurationFlag{
			Name:    "magiclink-expired-ttl",
			Value:   24 * time.Hour,
			Usage:   "How long an expired, unused magic link is remembered",
			Sources: cli.NewValueSourceChain(cli.EnvVar("MAGICLINK_EXPIRED_TTL"), toml.TOML("auth.magiclink_expired_ttl", configFile)),
		},
		&cli.DurationFlag{
			Name:    "handoff-ttl",
			Value:   120 * time.Second,
			Usage:   "Lifetime of a cross-device handoff request",
			Sources: cli.NewValueSourceChain(cli.EnvVar("HANDOFF_TTL"), toml.TOML("auth.handoff_ttl", configFile)),
		},
		&cli.DurationFlag{
			Name:    "access-token-ttl",
			Value:   time.Hour,
			Usage:   "Lifetime of an access token",
			Sources: cli.NewValueSourceChain(cli.EnvVar("ACCESS_TOKEN_TTL"), toml.TOML("auth.access_token_ttl", configFile)),
		},
		&cli.IntFlag{
			Name:    "refresh-days",
			Value:   30,
			Usage:   "Lifetime of a refresh credential in days",
			Sources: cli.NewValueSourceChain(cli.EnvVar("REFRESH_DAYS"), toml.TOML("auth.refresh_days", configFile)),
		},
		&cli.IntFlag{
			Name:    "bcrypt-cost",
			Value:   10,
			Usage:   "bcrypt cost for refresh credential hashes",
			Sources: cli.NewValueSourceChain(cli.EnvVar("BCRYPT_COST"), toml.TOML("auth.bcrypt_cost", configFile)),
		},
		&cli.StringFlag{
			Name:    "app-scheme",
			Value:   "magiclink",
			Usage:   "URL scheme of the mobile app for deep links",
			Sources: cli.NewValueSourceChain(cli.EnvVar("APP_SCHEME"), toml.TOML("auth.app_scheme", configFile)),
		},
		&cli.StringFlag{
			Name:    "auth-error-path",
			Value:   "/auth/error",
			Usage:   "Frontend path that renders sign-in failures",
			Sources: cli.NewValueSourceChain(cli.EnvVar("AUTH_ERROR_PATH"), toml.TOML("auth.error_path", configFile)),
		},
		// Session flags
		&cli.StringFlag{
			Name:    "session-hash-key",
			Usage:   "Cookie hash key (32-byte hex, auto-generated if empty in dev)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SESSION_HASH_KEY"), toml.TOML("session.hash_key", configFile)),
		},
		&cli.StringFlag{
			Name:    "session-block-key",
			Usage:   "Cookie block key for encryption (32-byte hex, optional)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SESSION_BLOCK_KEY"), toml.TOML("session.block_key", configFile)),
		},
		// SMTP flags
		&cli.StringFlag{
			Name:    "smtp-host",
			Usage:   "SMTP server host (links are logged if empty)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_HOST"), toml.TOML("smtp.host", configFile)),
		},
		&cli.IntFlag{
			Name:    "smtp-port",
			Value:   587,
			Usage:   "SMTP server port",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_PORT"), toml.TOML("smtp.port", configFile)),
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
		&cli.StringFlag{
			Name:    "smtp-from",
			Value:   "noreply@localhost",
			Usage:   "Sender address",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_FROM"), toml.TOML("smtp.from", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-from-name",
			Usage:   "Sender display name",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_FROM_NAME"), toml.TOML("smtp.from_name", configFile)),
		},
		&cli.BoolFlag{
			Name:    "smtp-tls",
			Value:   true,
			Usage:   "Require TLS for SMTP",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_TLS"), toml.TOML("smtp.tls", configFile)),
		},
	}
}
