package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUser_PrimaryAuthority(t *testing.T) {
	tests := []struct {
		name        string
		authorities []string
		want        string
	}{
		{"none", nil, ""},
		{"single", []string{"USER"}, "USER"},
		{"first of many", []string{"ADMIN", "USER"}, "ADMIN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := &User{Authorities: tt.authorities}
			assert.Equal(t, tt.want, u.PrimaryAuthority())
		})
	}
}

func TestUserSeed_IsEnabled(t *testing.T) {
	disabled := false

	assert.True(t, UserSeed{}.IsEnabled())
	assert.False(t, UserSeed{Enabled: &disabled}.IsEnabled())
}

func TestNullInt64(t *testing.T) {
	id := int64(5)

	assert.False(t, NullInt64(nil).Valid)
	assert.Equal(t, int64(5), NullInt64(&id).Int64)
	assert.True(t, NullInt64(&id).Valid)
}

func TestAuthToken_IsExpired(t *testing.T) {
	expiry := time.Date(2024, time.March, 9, 18, 30, 15, 0, time.UTC)
	tok := AuthToken{UserID: 1, ExpiresAt: expiry}

	assert.False(t, tok.IsExpired(expiry.Add(-time.Second)))
	assert.False(t, tok.IsExpired(expiry), "the expiry instant itself is still valid")
	assert.True(t, tok.IsExpired(expiry.Add(time.Second)))

	never := AuthToken{UserID: 1}
	assert.False(t, never.HasExpiry())
	assert.False(t, never.IsExpired(expiry.Add(100*365*24*time.Hour)))
}

func TestErrorHelpers(t *testing.T) {
	cause := errors.New("cipher: message authentication failed")
	err := TokenInvalid("token.Decode", cause)

	assert.Equal(t, EUNAUTHORIZED, ErrorCode(err))
	assert.Equal(t, "Authentication required", ErrorMessage(err))
	assert.Equal(t, "token.Decode", ErrorOp(err))
	assert.ErrorIs(t, err, ErrTokenInvalid)
	assert.ErrorIs(t, err, cause)

	assert.ErrorIs(t, TokenExpired("op"), ErrTokenExpired)
	assert.ErrorIs(t, CredentialRejected("op"), ErrCredentialRejected)

	notFound := UserNotFound("op", 7)
	assert.ErrorIs(t, notFound, ErrUserNotFound)
	assert.Equal(t, ENOTFOUND, ErrorCode(notFound))
}

func TestErrorMessage_HidesInternalDetails(t *testing.T) {
	err := Internal(errors.New("pq: connection refused"), "Queries.GetUserByID", "Database query failed")

	assert.Equal(t, EINTERNAL, ErrorCode(err))
	assert.NotContains(t, ErrorMessage(err), "pq:")
	assert.Equal(t, EINTERNAL, ErrorCode(errors.New("plain")))
	assert.Empty(t, ErrorCode(nil))
}
