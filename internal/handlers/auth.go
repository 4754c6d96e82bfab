// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"net/url"

	"codeberg.org/oliverandrich/go-magiclink/internal/auth"
	"codeberg.org/oliverandrich/go-magiclink/internal/config"
	"codeberg.org/oliverandrich/go-magiclink/internal/device"
	"codeberg.org/oliverandrich/go-magiclink/internal/i18n"
	"codeberg.org/oliverandrich/go-magiclink/internal/models"
	"codeberg.org/oliverandrich/go-magiclink/internal/repository"
	"codeberg.org/oliverandrich/go-magiclink/internal/services/handoff"
	"codeberg.org/oliverandrich/go-magiclink/internal/services/magiclink"
	"codeberg.org/oliverandrich/go-magiclink/internal/services/refresh"
	"codeberg.org/oliverandrich/go-magiclink/internal/services/session"
	"github.com/labstack/echo/v4"
	"github.com/skip2/go-qrcode"
)

// QRCodeSize is the edge length of generated QR images in pixels.
const QRCodeSize = 256

// AuthHandlers contains handlers for passwordless authentication.
type AuthHandlers struct {
	repo     *repository.Repository
	links    *magiclink.Authenticator
	broker   *handoff.Broker
	refresh  *refresh.Manager
	sessions *session.Manager
	devices  device.Classifier
	cfg      *config.Config
}

// NewAuth creates a new AuthHandlers instance.
func NewAuth(
	repo *repository.Repository,
	links *magiclink.Authenticator,
	broker *handoff.Broker,
	refreshMgr *refresh.Manager,
	sessions *session.Manager,
	devices device.Classifier,
	cfg *config.Config,
) *AuthHandlers {
	return &AuthHandlers{
		repo:     repo,
		links:    links,
		broker:   broker,
		refresh:  refreshMgr,
		sessions: sessions,
		devices:  devices,
		cfg:      cfg,
	}
}

// EmailRequest is the request body of endpoints keyed by email.
type EmailRequest struct {
	Email string `json:"email"`
}

// ContinueRequest is the request body for continuing a handoff.
type ContinueRequest struct {
	RequestID string `json:"requestId"`
}

// bindEmail reads and checks the email of the request body. It writes the
// error response itself and returns ok=false if the email is unusable.
func bindEmail(c echo.Context) (string, bool, error) {
	var req EmailRequest
	if err := c.Bind(&req); err != nil || req.Email == "" {
		return "", false, jsonError(c, http.StatusBadRequest, CodeEmailRequired)
	}
	addr, err := mail.ParseAddress(req.Email)
	if err != nil {
		return "", false, jsonError(c, http.StatusBadRequest, CodeInvalidEmail)
	}
	return addr.Address, true, nil
}

// RequestMagicLink issues a magic link and emails it.
func (h *AuthHandlers) RequestMagicLink(c echo.Context) error {
	email, ok, err := bindEmail(c)
	if !ok {
		return err
	}

	ctx := c.Request().Context()
	link, err := h.links.RequestLink(ctx, email)
	switch {
	case errors.Is(err, magiclink.ErrStoreWrite):
		slog.Error("failed to store magic link", "error", err)
		return jsonError(c, http.StatusInternalServerError, CodeStoreWriteFailed)
	case errors.Is(err, magiclink.ErrDelivery):
		slog.Error("failed to deliver magic link", "error", err)
		return jsonError(c, http.StatusInternalServerError, CodeEmailDeliveryFailed)
	case err != nil:
		slog.Error("failed to issue magic link", "error", err)
		return jsonError(c, http.StatusInternalServerError, CodeUnknownError)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success":   true,
		"message":   i18n.T(ctx, "magiclink_sent"),
		"expiresIn": int(link.ExpiresIn.Seconds()),
	})
}

// ValidateMagicLink consumes a magic link and redirects the browser. Mobile
// devices are sent to the app, everything else to the handoff page.
func (h *AuthHandlers) ValidateMagicLink(c echo.Context) error {
	raw := c.QueryParam("token")
	if raw == "" {
		return h.redirectError(c, ReasonInvalidToken)
	}

	ctx := c.Request().Context()
	email, err := h.links.Validate(ctx, raw)
	switch {
	case errors.Is(err, magiclink.ErrUsedOrRevoked):
		return h.redirectError(c, ReasonUsedToken)
	case errors.Is(err, magiclink.ErrExpired):
		return h.redirectError(c, ReasonExpiredToken)
	case errors.Is(err, magiclink.ErrInvalid):
		return h.redirectError(c, ReasonInvalidToken)
	case err != nil:
		slog.Error("failed to validate magic link", "error", err)
		return h.redirectError(c, ReasonUnknownError)
	}

	user, created, err := h.repo.GetOrCreateUserByEmail(ctx, email)
	if err != nil {
		slog.Error("failed to load user for magic link", "email", email, "error", err)
		return h.redirectError(c, ReasonSessionNotFound)
	}
	if created {
		slog.Info("user_created", "user_id", user.ID)
	}

	requestID, err := h.broker.StoreRequest(ctx, user.ID, 0)
	if err != nil {
		slog.Error("failed to store handoff request", "user_id", user.ID, "error", err)
		return h.redirectError(c, ReasonUnknownError)
	}

	if h.devices.Classify(c.Request().UserAgent()) == device.Mobile {
		q := url.Values{"token": {raw}, "requestId": {requestID}}
		return c.Redirect(http.StatusFound, h.appLink("auth/callback", q))
	}

	q := url.Values{"requestId": {requestID}}
	return c.Redirect(http.StatusFound, h.cfg.Server.FrontendURL+"/auth/qr?"+q.Encode())
}

// QRCode renders a PNG that opens the app on the continuation step.
func (h *AuthHandlers) QRCode(c echo.Context) error {
	requestID := c.QueryParam("requestId")
	if requestID == "" {
		return jsonError(c, http.StatusBadRequest, CodeRequestIDRequired)
	}

	scanURL := h.appLink("auth/continue", url.Values{"requestId": {requestID}})
	png, err := qrcode.Encode(scanURL, qrcode.Medium, QRCodeSize)
	if err != nil {
		slog.Error("failed to encode QR code", "error", err)
		return jsonError(c, http.StatusInternalServerError, CodeQREncodeFailed)
	}

	c.Response().Header().Set("Cache-Control", "no-store")
	return c.Blob(http.StatusOK, "image/png", png)
}

// HandoffStatus reports whether a handoff request was completed.
func (h *AuthHandlers) HandoffStatus(c echo.Context) error {
	requestID := c.QueryParam("requestId")
	if requestID == "" {
		return jsonError(c, http.StatusBadRequest, CodeRequestIDRequired)
	}

	state, err := h.broker.GetStatus(c.Request().Context(), requestID)
	if err != nil {
		slog.Error("failed to load handoff status", "error", err)
		return jsonError(c, http.StatusInternalServerError, CodeUnknownError)
	}

	body := map[string]any{"status": state.Status}
	if state.Status == handoff.StatusAuthenticated {
		body["token"] = state.Token
	}
	return c.JSON(http.StatusOK, body)
}

// Continue exchanges a handoff request id for access and refresh cookies.
func (h *AuthHandlers) Continue(c echo.Context) error {
	var req ContinueRequest
	if err := c.Bind(&req); err != nil || req.RequestID == "" {
		return jsonError(c, http.StatusBadRequest, CodeInvalidOrExpired)
	}

	ctx := c.Request().Context()
	userID, ok, err := h.broker.ConsumeRequest(ctx, req.RequestID)
	if err != nil {
		slog.Error("failed to consume handoff request", "error", err)
		return jsonError(c, http.StatusInternalServerError, CodeUnknownError)
	}
	if !ok {
		return jsonError(c, http.StatusBadRequest, CodeInvalidOrExpired)
	}

	user, err := h.repo.GetUserByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return jsonError(c, http.StatusNotFound, CodeUserNotFound)
	}
	if err != nil {
		slog.Error("failed to load user", "user_id", userID, "error", err)
		return jsonError(c, http.StatusInternalServerError, CodeUnknownError)
	}

	creds, err := h.SignIn(c, user)
	if err != nil {
		slog.Error("failed to sign in", "user_id", user.ID, "error", err)
		return jsonError(c, http.StatusInternalServerError, CodeUnknownError)
	}

	if err := h.broker.MarkComplete(ctx, req.RequestID, creds.AccessToken); err != nil {
		slog.Warn("failed to mark handoff complete", "error", err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"user":    user.Profile(),
	})
}

// SignIn issues an access token and a refresh credential for user and sets
// both cookies. Every front door that establishes an identity ends here.
func (h *AuthHandlers) SignIn(c echo.Context, user *models.User) (*refresh.Credentials, error) {
	creds, err := h.refresh.Issue(c.Request().Context(), user.ID)
	if err != nil {
		return nil, err
	}
	if err := h.setCookies(c, creds); err != nil {
		return nil, err
	}
	slog.Info("signed_in", "user_id", user.ID)
	return creds, nil
}

// RefreshToken rotates the refresh credential from the refresh cookie.
func (h *AuthHandlers) RefreshToken(c echo.Context) error {
	data := h.sessions.ParseRefresh(c.Request())
	if data == nil {
		return jsonError(c, http.StatusUnauthorized, CodeInvalidRefreshToken)
	}

	creds, err := h.refresh.Rotate(c.Request().Context(), data.UserID, data.Secret)
	if errors.Is(err, refresh.ErrInvalidCredential) {
		h.clearCookies(c)
		return jsonError(c, http.StatusUnauthorized, CodeInvalidRefreshToken)
	}
	if err != nil {
		slog.Error("failed to rotate refresh credential", "user_id", data.UserID, "error", err)
		return jsonError(c, http.StatusInternalServerError, CodeUnknownError)
	}

	if err := h.setCookies(c, creds); err != nil {
		slog.Error("failed to set auth cookies", "error", err)
		return jsonError(c, http.StatusInternalServerError, CodeUnknownError)
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true})
}

// Revoke invalidates all outstanding magic links of an email.
func (h *AuthHandlers) Revoke(c echo.Context) error {
	email, ok, err := bindEmail(c)
	if !ok {
		return err
	}

	ctx := c.Request().Context()
	revoked, err := h.links.Revoke(ctx, email)
	if err != nil {
		slog.Error("failed to revoke magic links", "error", err)
		return jsonError(c, http.StatusInternalServerError, CodeStoreWriteFailed)
	}

	message := i18n.T(ctx, "magiclink_nothing_to_revoke")
	if revoked {
		message = i18n.T(ctx, "magiclink_revoked")
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"message": message,
		"revoked": revoked,
	})
}

// Poll reports the sign-in status of an email.
func (h *AuthHandlers) Poll(c echo.Context) error {
	email, ok, err := bindEmail(c)
	if !ok {
		return err
	}

	status, err := h.links.Status(c.Request().Context(), email)
	if err != nil {
		slog.Error("failed to load login status", "error", err)
		return jsonError(c, http.StatusInternalServerError, CodeUnknownError)
	}
	return c.JSON(http.StatusOK, map[string]any{"status": status})
}

// Logout revokes the presented refresh credential and clears the cookies.
func (h *AuthHandlers) Logout(c echo.Context) error {
	ctx := c.Request().Context()
	if data := h.sessions.ParseRefresh(c.Request()); data != nil {
		if _, err := h.refresh.Revoke(ctx, data.UserID, data.Secret); err != nil {
			slog.Error("failed to revoke refresh credential", "user_id", data.UserID, "error", err)
			return jsonError(c, http.StatusInternalServerError, CodeUnknownError)
		}
	}

	h.clearCookies(c)
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"message": i18n.T(ctx, "logged_out"),
	})
}

// Me returns the profile of the authenticated user.
func (h *AuthHandlers) Me(c echo.Context) error {
	ctx := c.Request().Context()
	user, err := h.repo.GetUserByID(ctx, auth.GetUserID(ctx))
	if errors.Is(err, repository.ErrNotFound) {
		return jsonError(c, http.StatusNotFound, CodeUserNotFound)
	}
	if err != nil {
		slog.Error("failed to load user", "error", err)
		return jsonError(c, http.StatusInternalServerError, CodeUnknownError)
	}
	return c.JSON(http.StatusOK, map[string]any{"user": user.Profile()})
}

// RequireAuth rejects requests without a valid access token and exposes
// the user id via auth.GetUserID.
func (h *AuthHandlers) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := h.refresh.Authenticate(h.sessions.AccessToken(c.Request()))
		if err != nil {
			return jsonError(c, http.StatusUnauthorized, CodeUnauthorized)
		}
		ctx := auth.WithUserID(c.Request().Context(), userID)
		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}

func (h *AuthHandlers) setCookies(c echo.Context, creds *refresh.Credentials) error {
	refreshCookie, err := h.sessions.RefreshCookie(creds.UserID, creds.RefreshSecret)
	if err != nil {
		return err
	}
	c.SetCookie(h.sessions.AccessCookie(creds.AccessToken))
	c.SetCookie(refreshCookie)
	return nil
}

func (h *AuthHandlers) clearCookies(c echo.Context) {
	for _, cookie := range h.sessions.Clear() {
		c.SetCookie(cookie)
	}
}

func (h *AuthHandlers) redirectError(c echo.Context, reason string) error {
	q := url.Values{"reason": {reason}}
	return c.Redirect(http.StatusFound, h.cfg.Server.FrontendURL+h.cfg.Auth.ErrorPath+"?"+q.Encode())
}

// appLink builds a deep link into the mobile app.
func (h *AuthHandlers) appLink(path string, q url.Values) string {
	return h.cfg.Auth.AppScheme + "://" + path + "?" + q.Encode()
}
