// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/urfave/cli/v3"
)

func TestIsLocalhost(t *testing.T) {
	tests := []struct {
		host     string
		expected bool
	}{
		{"", true},
		{"localhost", true},
		{"127.0.0.1", true},
		{"::1", true},
		{"app.localhost", true},
		{"sub.domain.localhost", true},
		{"example.com", false},
		{"www.example.com", false},
		{"192.168.1.1", false},
		{"localhost.com", false}, // not a real localhost
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsLocalhost(tt.host))
		})
	}
}

func TestBuildBaseURL(t *testing.T) {
	tests := []struct {
		name     string
		server   ServerConfig
		expected string
	}{
		{"localhost default port", ServerConfig{Host: "localhost", Port: 80}, "http://localhost"},
		{"localhost custom port", ServerConfig{Host: "localhost", Port: 8080}, "http://localhost:8080"},
		{"remote host default port", ServerConfig{Host: "example.com", Port: 443}, "https://example.com"},
		{"remote host custom port", ServerConfig{Host: "example.com", Port: 8443}, "https://example.com:8443"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, buildBaseURL(&Config{Server: tt.server}))
		})
	}
}

func TestSecureCookies(t *testing.T) {
	assert.True(t, (&Config{Server: ServerConfig{BaseURL: "https://example.com"}}).SecureCookies())
	assert.False(t, (&Config{Server: ServerConfig{BaseURL: "http://localhost:8080"}}).SecureCookies())
}

func TestRefreshTTL(t *testing.T) {
	assert.Equal(t, 30*24*time.Hour, AuthConfig{RefreshDays: 30}.RefreshTTL())
}

func TestFlags(t *testing.T) {
	flags := Flags()

	assert.NotEmpty(t, flags)

	flagNames := make(map[string]bool)
	for _, f := range flags {
		for _, name := range f.Names() {
			flagNames[name] = true
		}
	}

	for _, name := range []string{
		"host", "port", "base-url", "frontend-url", "log-level", "database-dsn",
		"redis-url", "store-key-prefix", "auth-secret", "magiclink-ttl", "handoff-ttl",
		"access-token-ttl", "refresh-days", "app-scheme", "session-hash-key", "smtp-host",
	} {
		assert.True(t, flagNames[name], "should have %s flag", name)
	}
}

func TestNewFromCLI(t *testing.T) {
	app := &cli.Command{
		Name:  "test",
		Flags: Flags(),
		Action: func(_ context.Context, cmd *cli.Command) error {
			cfg := NewFromCLI(cmd)

			assert.NotNil(t, cfg)
			assert.Equal(t, "localhost", cfg.Server.Host)
			assert.Equal(t, 8080, cfg.Server.Port)
			assert.Equal(t, "info", cfg.Log.Level)
			assert.Equal(t, "text", cfg.Log.Format)

			assert.Equal(t, "http://localhost:8080", cfg.Server.BaseURL)
			assert.Equal(t, cfg.Server.BaseURL, cfg.Server.FrontendURL)

			assert.Empty(t, cfg.Store.RedisURL)
			assert.Equal(t, "auth:", cfg.Store.KeyPrefix)

			assert.Equal(t, 15*time.Minute, cfg.Auth.MagicLinkTTL)
			assert.Equal(t, 60*time.Second, cfg.Auth.GraceTTL)
			assert.Equal(t, 24*time.Hour, cfg.Auth.ExpiredTTL)
			assert.Equal(t, 120*time.Second, cfg.Auth.HandoffTTL)
			assert.Equal(t, time.Hour, cfg.Auth.AccessTTL)
			assert.Equal(t, 30, cfg.Auth.RefreshDays)
			assert.Equal(t, "/auth/error", cfg.Auth.ErrorPath)

			assert.Equal(t, 587, cfg.SMTP.Port)
			assert.True(t, cfg.SMTP.TLS)

			return nil
		},
	}

	err := app.Run(context.Background(), []string{"test"})
	assert.NoError(t, err)
}

func TestNewFromCLI_WithCustomValues(t *testing.T) {
	app := &cli.Command{
		Name:  "test",
		Flags: Flags(),
		Action: func(_ context.Context, cmd *cli.Command) error {
			cfg := NewFromCLI(cmd)

			assert.Equal(t, "0.0.0.0", cfg.Server.Host)
			assert.Equal(t, 9000, cfg.Server.Port)
			assert.Equal(t, "https://api.example.com", cfg.Server.BaseURL)
			assert.Equal(t, "https://app.example.com", cfg.Server.FrontendURL)
			assert.Equal(t, "debug", cfg.Log.Level)
			assert.Equal(t, "./data/test.db", cfg.Database.DSN)
			assert.Equal(t, "redis://localhost:6379/0", cfg.Store.RedisURL)
			assert.Equal(t, 5*time.Minute, cfg.Auth.MagicLinkTTL)

			return nil
		},
	}

	args := []string{
		"test",
		"--host", "0.0.0.0",
		"--port", "9000",
		"--base-url", "https://api.example.com/",
		"--frontend-url", "https://app.example.com/",
		"--log-level", "debug",
		"--database-dsn", "./data/test.db",
		"--redis-url", "redis://localhost:6379/0",
		"--magiclink-ttl", "5m",
	}
	err := app.Run(context.Background(), args)
	assert.NoError(t, err)
}
