// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package handoff lets a second device continue a sign-in that was started
// by clicking a magic link on another device.
package handoff

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"codeberg.org/oliverandrich/go-magiclink/internal/kvstore"
	"github.com/google/uuid"
)

// ErrStoreWrite is returned when the store rejects a handoff request.
var ErrStoreWrite = errors.New("store write failed")

// Status is the progress of a handoff request as seen by a polling device.
type Status string

const (
	StatusPending       Status = "pending"
	StatusAuthenticated Status = "authenticated"
	StatusUnknown       Status = "unknown"
)

type request struct {
	kvstore.Header
	UserID    int64     `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

type statusRecord struct {
	kvstore.Header
	Status Status `json:"status"`
	Token  string `json:"token,omitempty"`
}

// State is the polled state of a request. Token is only set once the
// request was completed.
type State struct {
	Status Status
	Token  string
}

// Broker maps short-lived opaque request ids to user ids.
type Broker struct {
	store kvstore.Store
	keys  kvstore.Keyspace
	ttl   time.Duration
	now   func() time.Time
}

// NewBroker creates a broker whose requests live for ttl by default.
func NewBroker(store kvstore.Store, keys kvstore.Keyspace, ttl time.Duration) *Broker {
	return &Broker{store: store, keys: keys, ttl: ttl, now: time.Now}
}

// StoreRequest registers a request for userID and returns its id. A ttl of
// zero uses the broker default.
func (b *Broker) StoreRequest(ctx context.Context, userID int64, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = b.ttl
	}
	id := uuid.NewString()

	data, err := kvstore.EncodeRecord(&request{
		Header:    kvstore.CurrentHeader(),
		UserID:    userID,
		CreatedAt: b.now(),
	})
	if err != nil {
		return "", err
	}
	if err := b.store.Set(ctx, b.keys.Handoff(id), data, ttl); err != nil {
		return "", fmt.Errorf("%w: %w", ErrStoreWrite, err)
	}
	if err := b.setStatus(ctx, id, statusRecord{Status: StatusPending}, ttl); err != nil {
		return "", fmt.Errorf("%w: %w", ErrStoreWrite, err)
	}

	slog.Debug("handoff_stored", "user_id", userID, "ttl", ttl)
	return id, nil
}

// ConsumeRequest returns the user id of a request and removes it. The
// second boolean is false if the request is unknown, expired or was
// already consumed.
func (b *Broker) ConsumeRequest(ctx context.Context, id string) (int64, bool, error) {
	if id == "" {
		return 0, false, nil
	}

	data, err := b.store.GetDel(ctx, b.keys.Handoff(id))
	if errors.Is(err, kvstore.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("consuming handoff request: %w", err)
	}

	var req request
	if err := kvstore.DecodeRecord(data, &req); err != nil {
		slog.Warn("discarding unreadable handoff request", "error", err)
		return 0, false, nil
	}
	return req.UserID, true, nil
}

// MarkComplete records that the request was exchanged for accessToken, so
// a polling device can pick it up until the status key expires.
func (b *Broker) MarkComplete(ctx context.Context, id, accessToken string) error {
	ttl, err := b.store.TTL(ctx, b.keys.HandoffStatus(id))
	if err != nil && !errors.Is(err, kvstore.ErrNotFound) {
		return fmt.Errorf("loading handoff status: %w", err)
	}
	if ttl <= 0 {
		ttl = b.ttl
	}

	rec := statusRecord{Status: StatusAuthenticated, Token: accessToken}
	if err := b.setStatus(ctx, id, rec, ttl); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreWrite, err)
	}
	return nil
}

// GetStatus returns the polled state of a request.
func (b *Broker) GetStatus(ctx context.Context, id string) (State, error) {
	data, err := b.store.Get(ctx, b.keys.HandoffStatus(id))
	if errors.Is(err, kvstore.ErrNotFound) {
		return State{Status: StatusUnknown}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("loading handoff status: %w", err)
	}

	var rec statusRecord
	if err := kvstore.DecodeRecord(data, &rec); err != nil {
		return State{}, err
	}
	return State{Status: rec.Status, Token: rec.Token}, nil
}

func (b *Broker) setStatus(ctx context.Context, id string, rec statusRecord, ttl time.Duration) error {
	rec.Header = kvstore.CurrentHeader()
	data, err := kvstore.EncodeRecord(&rec)
	if err != nil {
		return err
	}
	return b.store.Set(ctx, b.keys.HandoffStatus(id), data, ttl)
}
