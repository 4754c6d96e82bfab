// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/oliverandrich/go-magiclink/internal/config"
	"codeberg.org/oliverandrich/go-magiclink/internal/database"
	"codeberg.org/oliverandrich/go-magiclink/internal/device"
	"codeberg.org/oliverandrich/go-magiclink/internal/handlers"
	"codeberg.org/oliverandrich/go-magiclink/internal/i18n"
	"codeberg.org/oliverandrich/go-magiclink/internal/kvstore"
	"codeberg.org/oliverandrich/go-magiclink/internal/repository"
	"codeberg.org/oliverandrich/go-magiclink/internal/services/email"
	"codeberg.org/oliverandrich/go-magiclink/internal/services/handoff"
	"codeberg.org/oliverandrich/go-magiclink/internal/services/magiclink"
	"codeberg.org/oliverandrich/go-magiclink/internal/services/refresh"
	"codeberg.org/oliverandrich/go-magiclink/internal/services/session"
	"codeberg.org/oliverandrich/go-magiclink/internal/token"
	"github.com/labstack/echo/v4"
	"github.com/urfave/cli/v3"
)

// JanitorInterval is how often expired refresh credentials are purged.
const JanitorInterval = 10 * time.Minute

// Run starts the server with the given CLI command.
func Run(ctx context.Context, cmd *cli.Command) error {
	cfg := config.NewFromCLI(cmd)
	setupLogger(cfg.Log.Level, cfg.Log.Format)

	slog.Info("starting server",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"base_url", cfg.Server.BaseURL,
		"frontend_url", cfg.Server.FrontendURL,
	)

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

	// Ephemeral store
	store, err := openStore(ctx, &cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Error("failed to close store", "error", closeErr)
		}
	}()

	// i18n
	if initErr := i18n.Init(); initErr != nil {
		return fmt.Errorf("failed to init i18n: %w", initErr)
	}

	deps, err := newDependencies(cfg, repository.New(db), store)
	if err != nil {
		return err
	}

	// Echo
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	setupMiddleware(e, cfg)
	setupRoutes(e, deps)

	janitorCtx, stopJanitor := context.WithCancel(ctx)
	defer stopJanitor()
	go deps.refresh.RunJanitor(janitorCtx, JanitorInterval)

	return startWithGracefulShutdown(e, cfg)
}

// dependencies bundles the services the routes are built from.
type dependencies struct {
	repo    *repository.Repository
	refresh *refresh.Manager
	auth    *handlers.AuthHandlers
}

func newDependencies(cfg *config.Config, repo *repository.Repository, store kvstore.Store) (*dependencies, error) {
	codec, err := token.NewCodec(tokenSecret(cfg.Auth.Secret), cfg.Auth.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to create token codec: %w", err)
	}

	sender, err := newSender(cfg)
	if err != nil {
		return nil, err
	}

	sessions, err := session.NewManager(&cfg.Session, cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL(), cfg.SecureCookies())
	if err != nil {
		return nil, fmt.Errorf("failed to create session manager: %w", err)
	}

	keys := kvstore.NewKeyspace(cfg.Store.KeyPrefix)
	links := magiclink.NewAuthenticator(store, keys, codec, sender, &cfg.Auth, cfg.Server.BaseURL)
	broker := handoff.NewBroker(store, keys, cfg.Auth.HandoffTTL)
	refreshMgr := refresh.NewManager(repo, codec, &cfg.Auth)

	return &dependencies{
		repo:    repo,
		refresh: refreshMgr,
		auth:    handlers.NewAuth(repo, links, broker, refreshMgr, sessions, device.UserAgentClassifier{}, cfg),
	}, nil
}

// openStore connects to Redis when a URL is configured and falls back to
// the in-process store otherwise.
func openStore(ctx context.Context, cfg *config.StoreConfig) (kvstore.Store, error) {
	if cfg.RedisURL == "" {
		slog.Warn("no redis url configured, using in-memory store; auth state is lost on restart")
		return kvstore.NewMemoryStore(time.Minute), nil
	}
	return kvstore.NewRedisStore(ctx, cfg.RedisURL)
}

// newSender returns the SMTP sender, or a sender that only logs links when
// no SMTP host is configured.
func newSender(cfg *config.Config) (magiclink.Sender, error) {
	if cfg.SMTP.Host == "" {
		slog.Warn("no smtp host configured, magic links are written to the log")
		return email.LogSender{}, nil
	}
	svc, err := email.NewService(&cfg.SMTP, cfg.Auth.MagicLinkTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create email service: %w", err)
	}
	return svc, nil
}

// tokenSecret returns the configured signing secret or a random one.
func tokenSecret(secret string) []byte {
	if len(secret) >= 32 {
		return []byte(secret)
	}
	if secret != "" {
		slog.Warn("auth secret shorter than 32 bytes, using a random secret")
	} else {
		slog.Warn("auth secret not configured, using a random secret; tokens will not survive a restart")
	}
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return b
}

func startWithGracefulShutdown(e *echo.Echo, cfg *config.Config) error {
	errChan := make(chan error, 1)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	go func() {
		slog.Info("Server running", "url", cfg.Server.BaseURL)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown server", "error", err)
	}

	slog.Info("server stopped")
	return nil
}
