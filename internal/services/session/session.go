// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package session manages the auth_token and refresh_token cookies.
package session

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"codeberg.org/oliverandrich/go-magiclink/internal/config"
	"github.com/gorilla/securecookie"
)

const (
	// AccessCookieName carries the short-lived access token.
	AccessCookieName = "auth_token"
	// RefreshCookieName carries the encoded refresh credential.
	RefreshCookieName = "refresh_token"
)

// RefreshData is the payload of the refresh cookie.
type RefreshData struct {
	UserID int64
	Secret string
}

// Manager creates and parses auth cookies.
type Manager struct {
	codec      *securecookie.SecureCookie
	accessTTL  time.Duration
	refreshTTL time.Duration
	secure     bool
}

// NewManager creates a cookie manager. The refresh cookie is signed with the
// configured hash key and, if a block key is set, encrypted.
func NewManager(cfg *config.SessionConfig, accessTTL, refreshTTL time.Duration, secure bool) (*Manager, error) {
	hashKey, err := decodeKey(cfg.HashKey, "hash")
	if err != nil {
		return nil, err
	}
	if hashKey == nil {
		hashKey = securecookie.GenerateRandomKey(32)
		if hashKey == nil {
			return nil, fmt.Errorf("failed to generate session hash key")
		}
		slog.Warn("session hash key not configured, using a random key; refresh cookies will not survive a restart")
	}

	blockKey, err := decodeKey(cfg.BlockKey, "block")
	if err != nil {
		return nil, err
	}

	codec := securecookie.New(hashKey, blockKey)
	codec.MaxAge(int(refreshTTL.Seconds()))

	return &Manager{
		codec:      codec,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		secure:     secure,
	}, nil
}

// AccessCookie returns the cookie carrying an access token.
func (m *Manager) AccessCookie(accessToken string) *http.Cookie {
	return m.cookie(AccessCookieName, accessToken, int(m.accessTTL.Seconds()))
}

// RefreshCookie returns the cookie carrying a refresh credential.
func (m *Manager) RefreshCookie(userID int64, secret string) (*http.Cookie, error) {
	encoded, err := m.codec.Encode(RefreshCookieName, RefreshData{UserID: userID, Secret: secret})
	if err != nil {
		return nil, fmt.Errorf("encoding refresh cookie: %w", err)
	}
	return m.cookie(RefreshCookieName, encoded, int(m.refreshTTL.Seconds())), nil
}

// ParseRefresh returns the refresh credential of the request, or nil if the
// cookie is missing or cannot be decoded.
func (m *Manager) ParseRefresh(r *http.Request) *RefreshData {
	cookie, err := r.Cookie(RefreshCookieName)
	if err != nil {
		return nil
	}

	var data RefreshData
	if err := m.codec.Decode(RefreshCookieName, cookie.Value, &data); err != nil {
		return nil
	}
	if data.UserID <= 0 || data.Secret == "" {
		return nil
	}
	return &data
}

// AccessToken returns the access token of the request, taken from the
// Authorization bearer header or the access cookie.
func (m *Manager) AccessToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(tok)
		}
	}
	if cookie, err := r.Cookie(AccessCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// Clear returns cookies that remove both auth cookies.
func (m *Manager) Clear() []*http.Cookie {
	return []*http.Cookie{
		m.cookie(AccessCookieName, "", -1),
		m.cookie(RefreshCookieName, "", -1),
	}
}

func (m *Manager) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// decodeKey decodes a hex key. An empty string yields a nil key.
func decodeKey(s, kind string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid session %s key: %w", kind, err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("session %s key must be 32 bytes, got %d", kind, len(key))
	}
	return key, nil
}
