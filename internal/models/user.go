// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import (
	"time"
)

// User is an account, keyed by email. Accounts are created on first sign-in.
type User struct { //nolint:govet // fieldalignment: readability over optimization
	ID        int64     `db:"id"`
	Email     string    `db:"email"`
	Phone     string    `db:"phone"`
	Name      string    `db:"name"`
	TimeZone  string    `db:"time_zone"`
	Onboarded bool      `db:"onboarded"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Profile is the public representation of a user returned by the API.
type Profile struct { //nolint:govet // fieldalignment: readability over optimization
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Name      string    `json:"name"`
	TimeZone  string    `json:"timeZone"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Onboarded bool      `json:"onboarded"`
}

// Profile returns the public view of the user.
func (u *User) Profile() Profile {
	return Profile{
		ID:        u.ID,
		Email:     u.Email,
		Phone:     u.Phone,
		Name:      u.Name,
		TimeZone:  u.TimeZone,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
		Onboarded: u.Onboarded,
	}
}
