// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package auth exposes the current authenticated user id to downstream code.
package auth

import (
	"context"

	"codeberg.org/oliverandrich/go-magiclink/internal/ctxkeys"
)

// WithUserID returns a context carrying the authenticated user id.
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, ctxkeys.UserID{}, userID)
}

// GetUserID returns the authenticated user id, or 0 if not authenticated.
func GetUserID(ctx context.Context) int64 {
	if id, ok := ctx.Value(ctxkeys.UserID{}).(int64); ok {
		return id
	}
	return 0
}

// IsAuthenticated returns true if the context has an authenticated user.
func IsAuthenticated(ctx context.Context) bool {
	return GetUserID(ctx) != 0
}
