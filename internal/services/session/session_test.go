// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package session_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"codeberg.org/oliverandrich/go-magiclink/internal/config"
	"codeberg.org/oliverandrich/go-magiclink/internal/services/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validHashKey is a valid 32-byte hex-encoded key for testing
const validHashKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

// validBlockKey is a valid 32-byte hex-encoded key for encryption testing
const validBlockKey = "fedcba9876543210fedcba9876543210fedcba9876543210fedcba9876543210"

const (
	accessTTL  = time.Hour
	refreshTTL = 30 * 24 * time.Hour
)

func newTestConfig() *config.SessionConfig {
	return &config.SessionConfig{HashKey: validHashKey}
}

func newManager(t *testing.T, cfg *config.SessionConfig, secure bool) *session.Manager {
	t.Helper()
	mgr, err := session.NewManager(cfg, accessTTL, refreshTTL, secure)
	require.NoError(t, err)
	return mgr
}

func TestNewManager(t *testing.T) {
	mgr, err := session.NewManager(newTestConfig(), accessTTL, refreshTTL, false)

	require.NoError(t, err)
	assert.NotNil(t, mgr)
}

func TestNewManager_WithBlockKey(t *testing.T) {
	cfg := newTestConfig()
	cfg.BlockKey = validBlockKey

	mgr, err := session.NewManager(cfg, accessTTL, refreshTTL, true)

	require.NoError(t, err)
	assert.NotNil(t, mgr)
}

func TestNewManager_InvalidKeys(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.SessionConfig
		wantErr string
	}{
		{"hash key not hex", &config.SessionConfig{HashKey: "not-hex-encoded"}, "invalid session hash key"},
		{"hash key wrong length", &config.SessionConfig{HashKey: "0123456789abcdef"}, "must be 32 bytes"},
		{"block key not hex", &config.SessionConfig{HashKey: validHashKey, BlockKey: "not-hex-encoded"}, "invalid session block key"},
		{"block key wrong length", &config.SessionConfig{HashKey: validHashKey, BlockKey: "0123456789abcdef"}, "must be 32 bytes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := session.NewManager(tt.cfg, accessTTL, refreshTTL, false)

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewManager_DevMode_GeneratesKey(t *testing.T) {
	mgr, err := session.NewManager(&config.SessionConfig{}, accessTTL, refreshTTL, false)

	require.NoError(t, err)
	assert.NotNil(t, mgr)
}

func TestAccessCookie(t *testing.T) {
	mgr := newManager(t, newTestConfig(), false)

	cookie := mgr.AccessCookie("jwt")

	assert.Equal(t, session.AccessCookieName, cookie.Name)
	assert.Equal(t, "jwt", cookie.Value)
	assert.Equal(t, "/", cookie.Path)
	assert.Equal(t, 3600, cookie.MaxAge)
	assert.True(t, cookie.HttpOnly)
	assert.False(t, cookie.Secure)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
}

func TestRefreshCookie(t *testing.T) {
	mgr := newManager(t, newTestConfig(), true)

	cookie, err := mgr.RefreshCookie(123, "secret")

	require.NoError(t, err)
	assert.Equal(t, session.RefreshCookieName, cookie.Name)
	assert.NotEmpty(t, cookie.Value)
	assert.NotContains(t, cookie.Value, "secret")
	assert.Equal(t, 30*24*3600, cookie.MaxAge)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
}

func TestParseRefresh(t *testing.T) {
	cfg := newTestConfig()
	cfg.BlockKey = validBlockKey
	mgr := newManager(t, cfg, false)

	cookie, err := mgr.RefreshCookie(123, "secret")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.AddCookie(cookie)

	data := mgr.ParseRefresh(req)

	require.NotNil(t, data)
	assert.Equal(t, int64(123), data.UserID)
	assert.Equal(t, "secret", data.Secret)
}

func TestParseRefresh_NoCookie(t *testing.T) {
	mgr := newManager(t, newTestConfig(), false)
	req := httptest.NewRequest(http.MethodPost, "/", nil)

	assert.Nil(t, mgr.ParseRefresh(req))
}

func TestParseRefresh_InvalidCookie(t *testing.T) {
	mgr := newManager(t, newTestConfig(), false)
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.AddCookie(&http.Cookie{Name: session.RefreshCookieName, Value: "invalid-cookie-value"})

	assert.Nil(t, mgr.ParseRefresh(req))
}

func TestParseRefresh_TamperedCookie(t *testing.T) {
	mgr := newManager(t, newTestConfig(), false)
	cookie, err := mgr.RefreshCookie(123, "secret")
	require.NoError(t, err)

	cookie.Value = cookie.Value[:len(cookie.Value)-5] + "XXXXX"
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.AddCookie(cookie)

	assert.Nil(t, mgr.ParseRefresh(req))
}

func TestParseRefresh_DifferentManager(t *testing.T) {
	mgr1 := newManager(t, newTestConfig(), false)
	cookie, err := mgr1.RefreshCookie(123, "secret")
	require.NoError(t, err)

	mgr2 := newManager(t, &config.SessionConfig{HashKey: validBlockKey}, false)
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.AddCookie(cookie)

	assert.Nil(t, mgr2.ParseRefresh(req))
}

func TestAccessToken(t *testing.T) {
	mgr := newManager(t, newTestConfig(), false)

	t.Run("bearer header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer abc")
		assert.Equal(t, "abc", mgr.AccessToken(req))
	})

	t.Run("cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(mgr.AccessCookie("def"))
		assert.Equal(t, "def", mgr.AccessToken(req))
	})

	t.Run("header wins over cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer abc")
		req.AddCookie(mgr.AccessCookie("def"))
		assert.Equal(t, "abc", mgr.AccessToken(req))
	})

	t.Run("none", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Basic xyz")
		assert.Empty(t, mgr.AccessToken(req))
	})
}

func TestClear(t *testing.T) {
	mgr := newManager(t, newTestConfig(), true)

	cookies := mgr.Clear()

	require.Len(t, cookies, 2)
	names := []string{cookies[0].Name, cookies[1].Name}
	assert.ElementsMatch(t, []string{session.AccessCookieName, session.RefreshCookieName}, names)
	for _, c := range cookies {
		assert.Empty(t, c.Value)
		assert.Equal(t, "/", c.Path)
		assert.Equal(t, -1, c.MaxAge)
		assert.True(t, c.HttpOnly)
		assert.True(t, c.Secure)
		assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	}
}
