// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package magiclink

import (
	"time"

	"codeberg.org/oliverandrich/go-magiclink/internal/kvstore"
)

type linkState string

const (
	linkActive linkState = "active"
	linkUsed   linkState = "used"
)

// linkRecord is stored under the magic-link key of each issued token.
type linkRecord struct { //nolint:govet // fieldalignment: readability over optimization
	kvstore.Header
	Email      string     `json:"email"`
	Status     linkState  `json:"status"`
	IssuedAt   time.Time  `json:"issuedAt"`
	ExpiresAt  time.Time  `json:"expiresAt"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
}

// LoginStatus is what a polling client sees for an email.
type LoginStatus string

const (
	StatusNotStarted LoginStatus = "not_started"
	StatusPending    LoginStatus = "pending"
	StatusValidated  LoginStatus = "validated"
)

type statusRecord struct {
	kvstore.Header
	Status LoginStatus `json:"status"`
}
