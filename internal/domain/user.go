// Package domain contains core business types and interfaces.
//
// This file defines the User domain type. It is the principal attached to
// authenticated requests and is decoupled from the repository row type.
package domain

import (
	"database/sql"
	"time"
)

// User represents an account that can log in.
type User struct {
	ID           int64
	Username     string
	PasswordHash string // Never expose this in API responses
	Authorities  []string
	Enabled      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PrimaryAuthority returns the authority written to the login response body.
//
// Authorities are stored as an ordered list, so the first entry is always
// the same one for a given user. Returns "" when the user has none.
func (u *User) PrimaryAuthority() string {
	if len(u.Authorities) == 0 {
		return ""
	}
	return u.Authorities[0]
}

// UserSeed is one entry of a user import file. Password is the raw
// password and is hashed by the service before storage.
type UserSeed struct {
	Username    string   `yaml:"username"`
	Password    string   `yaml:"password"`
	Authorities []string `yaml:"authorities"`
	Enabled     *bool    `yaml:"enabled"`
}

// IsEnabled defaults to true when the seed does not say otherwise.
func (s UserSeed) IsEnabled() bool {
	if s.Enabled == nil {
		return true
	}
	return *s.Enabled
}

// =============================================================================
// Conversion helpers from repository types
// =============================================================================

// NullInt64 converts an optional id to sql.NullInt64.
func NullInt64(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{Valid: false}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}
