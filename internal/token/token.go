// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package token issues and verifies signed, time-bound tokens.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrExpired is returned when the signature is valid but the token has expired.
	ErrExpired = errors.New("token expired")
	// ErrInvalid is returned for every other verification failure.
	ErrInvalid = errors.New("invalid token")
)

// Kind distinguishes what a token may be used for.
type Kind string

const (
	KindMagicLink Kind = "magiclink"
	KindAccess    Kind = "access"
)

// Claims is the payload carried by every token.
type Claims struct {
	jwt.RegisteredClaims
	Kind  Kind   `json:"kind"`
	Email string `json:"email,omitempty"`
}

// Codec signs and verifies tokens with a shared HMAC secret.
type Codec struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewCodec creates a codec. The secret must be at least 32 bytes.
func NewCodec(secret []byte, issuer string) (*Codec, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("token secret must be at least 32 bytes, got %d", len(secret))
	}
	return &Codec{secret: secret, issuer: issuer, now: time.Now}, nil
}

// WithClock replaces the time source. Intended for tests.
func (c *Codec) WithClock(now func() time.Time) *Codec {
	c.now = now
	return c
}

// Issue signs the claims with the given time to live. IssuedAt, ExpiresAt,
// Issuer and a random ID are filled in.
func (c *Codec) Issue(claims Claims, ttl time.Duration) (string, error) {
	now := c.now()
	claims.ID = uuid.NewString()
	claims.Issuer = c.issuer
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, issuer and expiry. Failures are reduced to
// ErrExpired or ErrInvalid.
func (c *Codec) Verify(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, c.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	switch {
	case err == nil:
		return claims, nil
	case errors.Is(err, jwt.ErrTokenExpired) && c.signatureValid(raw):
		return claims, ErrExpired
	default:
		return nil, ErrInvalid
	}
}

// signatureValid reports whether raw carries a valid signature from this
// codec, ignoring time-based claims.
func (c *Codec) signatureValid(raw string) bool {
	_, err := jwt.ParseWithClaims(raw, &Claims{}, c.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	return err == nil
}

// VerifyKind verifies the token and additionally requires the given kind.
func (c *Codec) VerifyKind(raw string, kind Kind) (*Claims, error) {
	claims, err := c.Verify(raw)
	if err != nil {
		return claims, err
	}
	if claims.Kind != kind {
		return nil, ErrInvalid
	}
	return claims, nil
}

func (c *Codec) keyFunc(_ *jwt.Token) (any, error) {
	return c.secret, nil
}
