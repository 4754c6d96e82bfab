// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models_test

import (
	"encoding/json"
	"testing"
	"time"

	"codeberg.org/oliverandrich/go-magiclink/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUser_Profile(t *testing.T) {
	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	user := &models.User{
		ID:        7,
		Email:     "foo@example.com",
		Phone:     "+49123",
		Name:      "Foo",
		TimeZone:  "Europe/Berlin",
		Onboarded: true,
		CreatedAt: created,
		UpdatedAt: created,
	}

	profile := user.Profile()

	assert.Equal(t, int64(7), profile.ID)
	assert.Equal(t, "foo@example.com", profile.Email)
	assert.Equal(t, "Europe/Berlin", profile.TimeZone)
	assert.True(t, profile.Onboarded)
}

func TestProfile_JSONFieldNames(t *testing.T) {
	user := &models.User{ID: 1, Email: "foo@example.com"}

	data, err := json.Marshal(user.Profile())
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	for _, key := range []string{"id", "email", "phone", "name", "timeZone", "createdAt", "updatedAt", "onboarded"} {
		assert.Contains(t, fields, key)
	}
}

