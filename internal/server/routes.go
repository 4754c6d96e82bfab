// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"codeberg.org/oliverandrich/go-magiclink/internal/handlers"
	"codeberg.org/oliverandrich/go-magiclink/internal/services/magiclink"
	"github.com/labstack/echo/v4"
)

func setupRoutes(e *echo.Echo, deps *dependencies) {
	h := handlers.New(deps.repo)
	a := deps.auth

	e.GET("/health", h.Health)

	g := e.Group("/auth")

	// Magic links
	g.POST("/magiclink", a.RequestMagicLink)
	e.GET(magiclink.ValidatePath, a.ValidateMagicLink)
	g.POST("/magiclink/revoke", a.Revoke)
	g.POST("/poll", a.Poll)

	// Cross-device handoff
	g.GET("/qr", a.QRCode)
	g.GET("/qr/status", a.HandoffStatus)
	g.POST("/continue", a.Continue)

	// Credentials
	g.POST("/refresh-token", a.RefreshToken)
	g.POST("/logout", a.Logout)
	g.GET("/me", a.Me, a.RequireAuth)
}
