// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package kvstore provides the ephemeral key-value store holding all
// short-lived authentication state. Every key carries a time to live.
package kvstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key does not exist or has expired.
var ErrNotFound = errors.New("key not found")

// Store is a TTL-capable key-value store. Each individual call is atomic.
type Store interface {
	// Get returns the value stored at key.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value at key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Del removes the given keys. Missing keys are ignored.
	Del(ctx context.Context, keys ...string) error
	// TTL returns the remaining time to live of key.
	TTL(ctx context.Context, key string) (time.Duration, error)

	// GetDel returns the value at key and removes it in one step.
	GetDel(ctx context.Context, key string) ([]byte, error)
	// CompareAndSwap replaces the value at key with next only if it
	// currently equals prev. It reports whether the swap happened.
	CompareAndSwap(ctx context.Context, key string, prev, next []byte, ttl time.Duration) (bool, error)

	// SetAdd adds member to the set at key and resets the set's TTL.
	SetAdd(ctx context.Context, key, member string, ttl time.Duration) error
	// SetRemove removes member from the set at key and returns the number
	// of members left. An emptied set is deleted.
	SetRemove(ctx context.Context, key, member string) (int64, error)
	// SetMembers returns the members of the set at key.
	SetMembers(ctx context.Context, key string) ([]string, error)

	Close() error
}
