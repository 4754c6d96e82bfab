// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"github.com/labstack/echo/v4"
)

// Error codes returned in JSON bodies.
const (
	CodeEmailRequired       = "email_required"
	CodeInvalidEmail        = "invalid_email"
	CodeRequestIDRequired   = "request_id_required"
	CodeStoreWriteFailed    = "store_write_failed"
	CodeEmailDeliveryFailed = "email_delivery_failed"
	CodeInvalidOrExpired    = "invalid_or_expired_session"
	CodeUserNotFound        = "user_not_found"
	CodeInvalidRefreshToken = "invalid_refresh_token"
	CodeUnauthorized        = "unauthorized"
	CodeQREncodeFailed      = "qr_encode_failed"
	CodeUnknownError        = "unknown_error"
)

// Redirect reasons passed to the frontend error page.
const (
	ReasonInvalidToken    = "invalid_token"
	ReasonExpiredToken    = "expired_token"
	ReasonUsedToken       = "used_token"
	ReasonSessionNotFound = "session_not_found"
	ReasonUnknownError    = "unknown_error"
)

// jsonError writes a failure body with the given code.
func jsonError(c echo.Context, status int, code string) error {
	return c.JSON(status, map[string]any{
		"success": false,
		"error":   code,
	})
}
