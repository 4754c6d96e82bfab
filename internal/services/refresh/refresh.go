// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package refresh manages long-lived, rotating refresh credentials and the
// short-lived access tokens minted alongside them.
package refresh

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"codeberg.org/oliverandrich/go-magiclink/internal/config"
	"codeberg.org/oliverandrich/go-magiclink/internal/repository"
	"codeberg.org/oliverandrich/go-magiclink/internal/token"
	"golang.org/x/crypto/bcrypt"
)

// SecretLength is the number of random bytes in a refresh secret.
const SecretLength = 32

// ErrInvalidCredential is returned when a refresh secret does not match any
// live credential of the user, or an access token cannot be verified.
var ErrInvalidCredential = errors.New("invalid credential")

// Credentials is the result of a successful issue or rotation. The refresh
// secret is only ever available here; it is not stored.
type Credentials struct { //nolint:govet // fieldalignment: readability over optimization
	UserID           int64
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshSecret    string
	RefreshExpiresAt time.Time
}

// Manager issues, validates, revokes and rotates refresh credentials.
type Manager struct {
	repo      *repository.Repository
	codec     *token.Codec
	accessTTL time.Duration
	validFor  time.Duration
	cost      int
	now       func() time.Time
}

// NewManager creates a refresh credential manager.
func NewManager(repo *repository.Repository, codec *token.Codec, cfg *config.AuthConfig) *Manager {
	cost := cfg.BcryptCost
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	return &Manager{
		repo:      repo,
		codec:     codec,
		accessTTL: cfg.AccessTTL,
		validFor:  cfg.RefreshTTL(),
		cost:      cost,
		now:       time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Issue creates a new refresh credential and access token for userID.
func (m *Manager) Issue(ctx context.Context, userID int64) (*Credentials, error) {
	secret, hash, err := m.newSecret()
	if err != nil {
		return nil, err
	}

	expiresAt := m.now().Add(m.validFor)
	if _, err := m.repo.CreateRefreshToken(ctx, userID, hash, expiresAt); err != nil {
		return nil, fmt.Errorf("storing refresh credential: %w", err)
	}

	creds, err := m.withAccessToken(userID, secret, expiresAt)
	if err != nil {
		return nil, err
	}
	slog.Info("refresh_issued", "user_id", userID)
	return creds, nil
}

// Validate reports whether secret matches a live credential of userID.
func (m *Manager) Validate(ctx context.Context, userID int64, secret string) (bool, error) {
	toks, err := m.repo.GetActiveRefreshTokens(ctx, userID, m.now())
	if err != nil {
		return false, fmt.Errorf("loading refresh credentials: %w", err)
	}
	for _, tok := range toks {
		if matchSecret(tok.TokenHash, secret) {
			return true, nil
		}
	}
	return false, nil
}

// Revoke deletes every live credential of userID that matches secret and
// returns how many were deleted.
func (m *Manager) Revoke(ctx context.Context, userID int64, secret string) (int, error) {
	toks, err := m.repo.GetActiveRefreshTokens(ctx, userID, m.now())
	if err != nil {
		return 0, fmt.Errorf("loading refresh credentials: %w", err)
	}

	var ids []int64
	for _, tok := range toks {
		if matchSecret(tok.TokenHash, secret) {
			ids = append(ids, tok.ID)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}

	if err := m.repo.DeleteRefreshTokens(ctx, ids...); err != nil {
		return 0, fmt.Errorf("deleting refresh credentials: %w", err)
	}
	slog.Info("refresh_revoked", "user_id", userID, "count", len(ids))
	return len(ids), nil
}

// Rotate atomically replaces the credential matching oldSecret with a new one.
// Returns ErrInvalidCredential if oldSecret is unknown, expired or was
// already rotated.
func (m *Manager) Rotate(ctx context.Context, userID int64, oldSecret string) (*Credentials, error) {
	secret, hash, err := m.newSecret()
	if err != nil {
		return nil, err
	}

	now := m.now()
	expiresAt := now.Add(m.validFor)
	_, err = m.repo.RotateRefreshToken(ctx, userID, now,
		func(tokenHash string) bool { return matchSecret(tokenHash, oldSecret) },
		hash, expiresAt)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInvalidCredential
	}
	if err != nil {
		return nil, fmt.Errorf("rotating refresh credential: %w", err)
	}

	creds, err := m.withAccessToken(userID, secret, expiresAt)
	if err != nil {
		return nil, err
	}
	slog.Info("refresh_rotated", "user_id", userID)
	return creds, nil
}

// RevokeAll clears every refresh credential of userID.
func (m *Manager) RevokeAll(ctx context.Context, userID int64) (int64, error) {
	n, err := m.repo.DeleteUserRefreshTokens(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("deleting refresh credentials: %w", err)
	}
	slog.Info("refresh_revoked_all", "user_id", userID, "count", n)
	return n, nil
}

// Authenticate verifies an access token and returns the user it was minted for.
func (m *Manager) Authenticate(raw string) (int64, error) {
	claims, err := m.codec.VerifyKind(raw, token.KindAccess)
	if err != nil {
		return 0, ErrInvalidCredential
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return 0, ErrInvalidCredential
	}
	return userID, nil
}

// PurgeExpired deletes credentials that are past their expiry.
func (m *Manager) PurgeExpired(ctx context.Context) (int64, error) {
	return m.repo.DeleteExpiredRefreshTokens(ctx, m.now())
}

// RunJanitor purges expired credentials every interval until ctx is done.
func (m *Manager) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := m.PurgeExpired(ctx)
			if err != nil {
				slog.Error("failed to purge expired refresh credentials", "error", err)
				continue
			}
			if n > 0 {
				slog.Debug("purged expired refresh credentials", "count", n)
			}
		}
	}
}

func (m *Manager) withAccessToken(userID int64, secret string, refreshExpiresAt time.Time) (*Credentials, error) {
	claims := token.Claims{Kind: token.KindAccess}
	claims.Subject = strconv.FormatInt(userID, 10)

	issuedAt := m.now()
	access, err := m.codec.Issue(claims, m.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("issuing access token: %w", err)
	}

	return &Credentials{
		UserID:           userID,
		AccessToken:      access,
		AccessExpiresAt:  issuedAt.Add(m.accessTTL),
		RefreshSecret:    secret,
		RefreshExpiresAt: refreshExpiresAt,
	}, nil
}

// newSecret returns a random secret and its bcrypt hash.
func (m *Manager) newSecret() (string, string, error) {
	b := make([]byte, SecretLength)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("failed to generate secret: %w", err)
	}
	secret := base64.RawURLEncoding.EncodeToString(b)

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), m.cost)
	if err != nil {
		return "", "", fmt.Errorf("failed to hash secret: %w", err)
	}
	return secret, string(hash), nil
}

func matchSecret(hash, secret string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}
