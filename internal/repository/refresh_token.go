// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"fmt"
	"time"

	"codeberg.org/oliverandrich/go-magiclink/internal/models"
)

// CreateRefreshToken stores a new refresh token hash for a user.
func (r *Repository) CreateRefreshToken(ctx context.Context, userID int64, tokenHash string, expiresAt time.Time) (*models.RefreshToken, error) {
	var tok models.RefreshToken
	err := r.db.GetContext(ctx, &tok,
		`INSERT INTO refresh_tokens (user_id, token_hash, expires_at, created_at) VALUES (?, ?, ?, ?) RETURNING *`,
		userID, tokenHash, expiresAt.UTC(), time.Now().UTC())
	if err != nil {
		return nil, err
	}
	return &tok, nil
}

// GetActiveRefreshTokens returns the refresh tokens of a user that have not expired at now.
func (r *Repository) GetActiveRefreshTokens(ctx context.Context, userID int64, now time.Time) ([]models.RefreshToken, error) {
	var toks []models.RefreshToken
	err := r.db.SelectContext(ctx, &toks,
		`SELECT * FROM refresh_tokens WHERE user_id = ? AND expires_at > ? ORDER BY id DESC`,
		userID, now.UTC())
	if err != nil {
		return nil, err
	}
	return toks, nil
}

// DeleteRefreshTokens deletes refresh tokens by ID.
func (r *Repository) DeleteRefreshTokens(ctx context.Context, ids ...int64) error {
	for _, id := range ids {
		if _, err := r.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE id = ?`, id); err != nil {
			return err
		}
	}
	return nil
}

// DeleteUserRefreshTokens deletes all refresh tokens for a user.
func (r *Repository) DeleteUserRefreshTokens(ctx context.Context, userID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE user_id = ?`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteExpiredRefreshTokens deletes tokens that expired before now.
func (r *Repository) DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE expires_at <= ?`, now.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// RotateRefreshToken replaces the first active token of userID whose hash
// satisfies matches with a new token, inside one transaction. It returns
// ErrNotFound if no token matches or the matched token was consumed
// concurrently; in that case nothing is changed.
func (r *Repository) RotateRefreshToken(
	ctx context.Context,
	userID int64,
	now time.Time,
	matches func(tokenHash string) bool,
	newHash string,
	expiresAt time.Time,
) (*models.RefreshToken, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin rotation: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var active []models.RefreshToken
	err = tx.SelectContext(ctx, &active,
		`SELECT * FROM refresh_tokens WHERE user_id = ? AND expires_at > ? ORDER BY id DESC`,
		userID, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("load active tokens: %w", err)
	}

	var matchedID int64
	for _, tok := range active {
		if matches(tok.TokenHash) {
			matchedID = tok.ID
			break
		}
	}
	if matchedID == 0 {
		return nil, ErrNotFound
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE id = ?`, matchedID)
	if err != nil {
		return nil, fmt.Errorf("delete rotated token: %w", err)
	}
	if affected, affErr := res.RowsAffected(); affErr != nil || affected != 1 {
		return nil, ErrNotFound
	}

	var fresh models.RefreshToken
	err = tx.GetContext(ctx, &fresh,
		`INSERT INTO refresh_tokens (user_id, token_hash, expires_at, created_at) VALUES (?, ?, ?, ?) RETURNING *`,
		userID, newHash, expiresAt.UTC(), now.UTC())
	if err != nil {
		return nil, fmt.Errorf("insert rotated token: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit rotation: %w", err)
	}
	return &fresh, nil
}
