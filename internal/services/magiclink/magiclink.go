// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package magiclink issues, validates and revokes single-use sign-in links.
package magiclink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"codeberg.org/oliverandrich/go-magiclink/internal/config"
	"codeberg.org/oliverandrich/go-magiclink/internal/kvstore"
	"codeberg.org/oliverandrich/go-magiclink/internal/token"
)

var (
	// ErrUsedOrRevoked is returned when no live record exists for a token.
	ErrUsedOrRevoked = errors.New("magic link used or revoked")
	// ErrExpired is returned when the token or its record has expired.
	ErrExpired = errors.New("magic link expired")
	// ErrInvalid is returned for malformed tokens or tokens of the wrong kind.
	ErrInvalid = errors.New("invalid magic link")
	// ErrStoreWrite is returned when the store rejects a write.
	ErrStoreWrite = errors.New("store write failed")
	// ErrDelivery wraps errors of the Sender.
	ErrDelivery = errors.New("magic link delivery failed")
)

// ValidatePath is the route that emailed links point to.
const ValidatePath = "/auth/magiclink/validate"

// DefaultExpiredTTL is used when no expired-link retention is configured.
const DefaultExpiredTTL = 24 * time.Hour

// Sender delivers a sign-in link to an email address.
type Sender interface {
	SendMagicLink(ctx context.Context, email, link string) error
}

// Link describes an issued magic link.
type Link struct {
	ExpiresIn time.Duration
	ExpiresAt time.Time
}

// Authenticator owns the single-use and expiry state of magic links.
type Authenticator struct {
	store   kvstore.Store
	keys    kvstore.Keyspace
	codec   *token.Codec
	sender  Sender
	baseURL string
	ttl     time.Duration
	grace   time.Duration
	expired time.Duration
	now     func() time.Time
}

// NewAuthenticator creates an Authenticator. Links point at baseURL.
func NewAuthenticator(
	store kvstore.Store,
	keys kvstore.Keyspace,
	codec *token.Codec,
	sender Sender,
	cfg *config.AuthConfig,
	baseURL string,
) *Authenticator {
	expired := cfg.ExpiredTTL
	if expired <= 0 {
		expired = DefaultExpiredTTL
	}
	expired = max(expired, cfg.GraceTTL)

	return &Authenticator{
		store:   store,
		keys:    keys,
		codec:   codec,
		sender:  sender,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		ttl:     cfg.MagicLinkTTL,
		grace:   cfg.GraceTTL,
		expired: expired,
		now:     time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (a *Authenticator) WithClock(now func() time.Time) *Authenticator {
	a.now = now
	return a
}

// NormalizeEmail trims and lower-cases an address so that every key derived
// from it is stable.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// RequestLink issues a new link for email, registers it and sends it.
// Delivery errors are wrapped in ErrDelivery.
func (a *Authenticator) RequestLink(ctx context.Context, email string) (*Link, error) {
	email = NormalizeEmail(email)
	now := a.now()

	claims := token.Claims{Kind: token.KindMagicLink, Email: email}
	claims.Subject = email
	raw, err := a.codec.Issue(claims, a.ttl)
	if err != nil {
		return nil, err
	}

	rec := &linkRecord{
		Header:    kvstore.CurrentHeader(),
		Email:     email,
		Status:    linkActive,
		IssuedAt:  now,
		ExpiresAt: now.Add(a.ttl),
	}
	data, err := kvstore.EncodeRecord(rec)
	if err != nil {
		return nil, err
	}
	// Records outlive the link so that a late click is reported as expired
	// rather than unknown.
	if err := a.store.Set(ctx, a.keys.MagicLink(raw), data, a.retention()); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreWrite, err)
	}
	a.pruneIndex(ctx, email, now)
	if err := a.store.SetAdd(ctx, a.keys.EmailIndex(email), raw, a.retention()); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreWrite, err)
	}
	if err := a.setStatus(ctx, email, StatusPending); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreWrite, err)
	}

	if err := a.sender.SendMagicLink(ctx, email, a.linkURL(raw)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDelivery, err)
	}

	slog.Info("magiclink_requested", "email", email, "expires_at", rec.ExpiresAt)
	return &Link{ExpiresIn: a.ttl, ExpiresAt: rec.ExpiresAt}, nil
}

// Validate consumes a link and returns the email it was issued for.
// Errors are ErrUsedOrRevoked, ErrExpired or ErrInvalid, in that priority.
func (a *Authenticator) Validate(ctx context.Context, raw string) (string, error) {
	key := a.keys.MagicLink(raw)

	data, err := a.store.Get(ctx, key)
	if errors.Is(err, kvstore.ErrNotFound) {
		return "", ErrUsedOrRevoked
	}
	if err != nil {
		return "", fmt.Errorf("loading magic link: %w", err)
	}

	var rec linkRecord
	if err := kvstore.DecodeRecord(data, &rec); err != nil {
		slog.Warn("discarding unreadable magic link record", "error", err)
		return "", ErrInvalid
	}
	if rec.Status != linkActive {
		return "", ErrUsedOrRevoked
	}

	claims, err := a.codec.VerifyKind(raw, token.KindMagicLink)
	switch {
	case errors.Is(err, token.ErrExpired):
		a.expire(ctx, raw, rec.Email)
		return "", ErrExpired
	case err != nil:
		return "", ErrInvalid
	case claims.Email != rec.Email:
		return "", ErrInvalid
	}

	now := a.now()
	if !now.Before(rec.ExpiresAt) {
		a.expire(ctx, raw, rec.Email)
		return "", ErrExpired
	}

	rec.Status = linkUsed
	rec.LastUsedAt = &now
	next, err := kvstore.EncodeRecord(&rec)
	if err != nil {
		return "", err
	}

	swapped, err := a.store.CompareAndSwap(ctx, key, data, next, a.grace)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrStoreWrite, err)
	}
	if !swapped {
		return "", ErrUsedOrRevoked
	}

	// The link is consumed at this point. Index and status are advisory.
	if _, err := a.store.SetRemove(ctx, a.keys.EmailIndex(rec.Email), raw); err != nil {
		slog.Error("failed to prune email index", "email", rec.Email, "error", err)
	}
	if err := a.setStatus(ctx, rec.Email, StatusValidated); err != nil {
		slog.Error("failed to record login status", "email", rec.Email, "error", err)
	}

	slog.Info("magiclink_validated", "email", rec.Email)
	return rec.Email, nil
}

// Revoke invalidates every outstanding link for email. It reports false
// when there was nothing to revoke.
func (a *Authenticator) Revoke(ctx context.Context, email string) (bool, error) {
	email = NormalizeEmail(email)
	indexKey := a.keys.EmailIndex(email)

	tokens, err := a.store.SetMembers(ctx, indexKey)
	if err != nil {
		return false, fmt.Errorf("loading email index: %w", err)
	}
	if len(tokens) == 0 {
		return false, nil
	}

	keys := make([]string, 0, len(tokens)+2)
	for _, t := range tokens {
		keys = append(keys, a.keys.MagicLink(t))
	}
	keys = append(keys, indexKey, a.keys.LoginStatus(email))

	if err := a.store.Del(ctx, keys...); err != nil {
		return false, fmt.Errorf("%w: %w", ErrStoreWrite, err)
	}

	slog.Info("magiclink_revoked", "email", email, "count", len(tokens))
	return true, nil
}

// Status returns the polling status of a sign-in for email.
func (a *Authenticator) Status(ctx context.Context, email string) (LoginStatus, error) {
	data, err := a.store.Get(ctx, a.keys.LoginStatus(NormalizeEmail(email)))
	if errors.Is(err, kvstore.ErrNotFound) {
		return StatusNotStarted, nil
	}
	if err != nil {
		return "", fmt.Errorf("loading login status: %w", err)
	}

	var rec statusRecord
	if err := kvstore.DecodeRecord(data, &rec); err != nil {
		return "", err
	}
	return rec.Status, nil
}

func (a *Authenticator) retention() time.Duration {
	return a.ttl + a.expired
}

// pruneIndex drops index members whose link is gone, used or past its
// expiry. Failures are logged since the index is rebuilt on every request.
func (a *Authenticator) pruneIndex(ctx context.Context, email string, now time.Time) {
	indexKey := a.keys.EmailIndex(email)
	members, err := a.store.SetMembers(ctx, indexKey)
	if err != nil {
		slog.Error("failed to load email index", "email", email, "error", err)
		return
	}

	for _, raw := range members {
		if a.live(ctx, raw, now) {
			continue
		}
		if _, err := a.store.SetRemove(ctx, indexKey, raw); err != nil {
			slog.Error("failed to prune email index", "email", email, "error", err)
			return
		}
	}
}

// live reports whether raw still refers to an active, unexpired record.
func (a *Authenticator) live(ctx context.Context, raw string, now time.Time) bool {
	data, err := a.store.Get(ctx, a.keys.MagicLink(raw))
	if err != nil {
		return !errors.Is(err, kvstore.ErrNotFound)
	}
	var rec linkRecord
	if err := kvstore.DecodeRecord(data, &rec); err != nil {
		return false
	}
	return rec.Status == linkActive && now.Before(rec.ExpiresAt)
}

func (a *Authenticator) setStatus(ctx context.Context, email string, status LoginStatus) error {
	data, err := kvstore.EncodeRecord(&statusRecord{Header: kvstore.CurrentHeader(), Status: status})
	if err != nil {
		return err
	}
	return a.store.Set(ctx, a.keys.LoginStatus(email), data, a.retention())
}

// expire drops a stale record and its index entry.
func (a *Authenticator) expire(ctx context.Context, raw, email string) {
	if err := a.store.Del(ctx, a.keys.MagicLink(raw)); err != nil {
		slog.Error("failed to delete expired magic link", "error", err)
	}
	if _, err := a.store.SetRemove(ctx, a.keys.EmailIndex(email), raw); err != nil {
		slog.Error("failed to prune email index", "email", email, "error", err)
	}
}

func (a *Authenticator) linkURL(raw string) string {
	return a.baseURL + ValidatePath + "?token=" + url.QueryEscape(raw)
}
