// Package domain contains core business types and interfaces.
//
// This file defines the decoded form of the auth cookie.
package domain

import (
	"time"
)

// DefaultTokenLifetime is the payload expiry applied when no cookie max age
// is configured. The cookie itself is then a session cookie, but the server
// still refuses the token after this long.
const DefaultTokenLifetime = 4 * time.Hour

// AuthToken is the content of a decrypted auth cookie.
//
// A token is re-derived from the cookie on every request and never stored.
// A zero ExpiresAt means the token does not expire; the encoder always
// embeds an expiry, so decoded tokens carry one.
type AuthToken struct {
	UserID    int64
	ExpiresAt time.Time
}

// HasExpiry reports whether the token carries an expiry instant.
func (t AuthToken) HasExpiry() bool {
	return !t.ExpiresAt.IsZero()
}

// IsExpired returns true if now is strictly after the embedded expiry.
func (t AuthToken) IsExpired(now time.Time) bool {
	return t.HasExpiry() && now.After(t.ExpiresAt)
}
