package service

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/DukeRupert/stateless/internal/domain"
	"github.com/DukeRupert/stateless/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// =============================================================================
// Mock Querier Implementation
// =============================================================================

type mockQuerier struct {
	users     map[string]repository.User
	events    []repository.CreateLoginEventParams
	upserts   []repository.UpsertUserParams
	lookupErr error
	eventErr  error
}

func newMockQuerier(users ...repository.User) *mockQuerier {
	m := &mockQuerier{users: make(map[string]repository.User)}
	for _, u := range users {
		m.users[u.Username] = u
	}
	return m
}

func (m *mockQuerier) GetUserByID(ctx context.Context, id int64) (repository.User, error) {
	if m.lookupErr != nil {
		return repository.User{}, m.lookupErr
	}
	for _, u := range m.users {
		if u.ID == id {
			return u, nil
		}
	}
	return repository.User{}, sql.ErrNoRows
}

func (m *mockQuerier) GetUserByUsername(ctx context.Context, username string) (repository.User, error) {
	if m.lookupErr != nil {
		return repository.User{}, m.lookupErr
	}
	u, ok := m.users[username]
	if !ok {
		return repository.User{}, sql.ErrNoRows
	}
	return u, nil
}

func (m *mockQuerier) UpsertUser(ctx context.Context, arg repository.UpsertUserParams) (repository.User, error) {
	m.upserts = append(m.upserts, arg)
	return repository.User{Username: arg.Username, PasswordHash: arg.PasswordHash, Authorities: arg.Authorities, Enabled: arg.Enabled}, nil
}

func (m *mockQuerier) CreateLoginEvent(ctx context.Context, arg repository.CreateLoginEventParams) error {
	m.events = append(m.events, arg)
	return m.eventErr
}

// =============================================================================
// Test Helpers
// =============================================================================

func newTestService(q repository.Querier) *userService {
	svc := NewUserService(q, slog.New(slog.NewTextHandler(io.Discard, nil))).(*userService)
	svc.hashCost = bcrypt.MinCost
	return svc
}

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func testUser(t *testing.T) repository.User {
	return repository.User{
		ID:           7,
		Username:     "alice",
		PasswordHash: hashPassword(t, "correct horse"),
		Authorities:  []string{"ADMIN", "USER"},
		Enabled:      true,
	}
}

// =============================================================================
// Authenticate
// =============================================================================

func TestAuthenticate_Success(t *testing.T) {
	q := newMockQuerier(testUser(t))
	svc := newTestService(q)

	user, err := svc.Authenticate(context.Background(), "  Alice ", "correct horse", "203.0.113.9")
	require.NoError(t, err)

	assert.Equal(t, int64(7), user.ID)
	assert.Equal(t, "ADMIN", user.PrimaryAuthority())
	assert.Empty(t, user.PasswordHash, "password hash must be cleared")

	require.Len(t, q.events, 1)
	assert.True(t, q.events[0].Succeeded)
	assert.True(t, q.events[0].UserID.Valid)
	assert.Equal(t, "203.0.113.9", q.events[0].ClientIP.IPNet.IP.String())
}

func TestAuthenticate_Rejections(t *testing.T) {
	disabled := testUser(t)
	disabled.Enabled = false

	tests := []struct {
		name     string
		user     repository.User
		username string
		password string
	}{
		{"unknown user", testUser(t), "bob", "correct horse"},
		{"wrong password", testUser(t), "alice", "wrong"},
		{"disabled account", disabled, "alice", "correct horse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := newMockQuerier(tt.user)
			svc := newTestService(q)

			user, err := svc.Authenticate(context.Background(), tt.username, tt.password, "")
			assert.Nil(t, user)
			assert.ErrorIs(t, err, domain.ErrCredentialRejected)
			assert.Equal(t, domain.EUNAUTHORIZED, domain.ErrorCode(err))

			require.Len(t, q.events, 1)
			assert.False(t, q.events[0].Succeeded)
			assert.False(t, q.events[0].ClientIP.Valid)
		})
	}
}

func TestAuthenticate_StoreFailureIsInternal(t *testing.T) {
	q := newMockQuerier()
	q.lookupErr = errors.New("connection refused")
	svc := newTestService(q)

	_, err := svc.Authenticate(context.Background(), "alice", "pw", "")
	assert.Equal(t, domain.EINTERNAL, domain.ErrorCode(err))
	assert.NotErrorIs(t, err, domain.ErrCredentialRejected)
}

func TestAuthenticate_AuditFailureDoesNotBlockLogin(t *testing.T) {
	q := newMockQuerier(testUser(t))
	q.eventErr = errors.New("table missing")
	svc := newTestService(q)

	user, err := svc.Authenticate(context.Background(), "alice", "correct horse", "")
	require.NoError(t, err)
	assert.Equal(t, int64(7), user.ID)
}

// =============================================================================
// GetByID
// =============================================================================

func TestGetByID(t *testing.T) {
	disabled := testUser(t)
	disabled.ID = 8
	disabled.Username = "mallory"
	disabled.Enabled = false

	q := newMockQuerier(testUser(t), disabled)
	svc := newTestService(q)

	user, err := svc.GetByID(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, []string{"ADMIN", "USER"}, user.Authorities)

	_, err = svc.GetByID(context.Background(), 99)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	_, err = svc.GetByID(context.Background(), 8)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

// =============================================================================
// ImportUsers
// =============================================================================

func TestImportUsers(t *testing.T) {
	q := newMockQuerier()
	svc := newTestService(q)
	disabled := false

	n, err := svc.ImportUsers(context.Background(), []domain.UserSeed{
		{Username: "Admin", Password: "admin-password", Authorities: []string{" ADMIN ", ""}},
		{Username: "guest", Password: "guest-password", Enabled: &disabled},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.Len(t, q.upserts, 2)
	assert.Equal(t, "admin", q.upserts[0].Username)
	assert.Equal(t, []string{"ADMIN"}, q.upserts[0].Authorities)
	assert.True(t, q.upserts[0].Enabled)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(q.upserts[0].PasswordHash), []byte("admin-password")))
	assert.False(t, q.upserts[1].Enabled)
}

func TestImportUsers_ValidatesBeforeWriting(t *testing.T) {
	tests := []struct {
		name string
		seed domain.UserSeed
	}{
		{"missing username", domain.UserSeed{Username: "  ", Password: "long-enough"}},
		{"short password", domain.UserSeed{Username: "bob", Password: "short"}},
		{"long password", domain.UserSeed{Username: "bob", Password: strings.Repeat("a", 73)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := newMockQuerier()
			svc := newTestService(q)

			_, err := svc.ImportUsers(context.Background(), []domain.UserSeed{
				{Username: "ok", Password: "long-enough"},
				tt.seed,
			})
			assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
			assert.Empty(t, q.upserts)
		})
	}
}

func TestNormalizeUsername(t *testing.T) {
	assert.Equal(t, "alice", NormalizeUsername("  ALICE\t"))
	assert.Equal(t, "strasse", NormalizeUsername("STRASSE"))
}

func TestParseInet(t *testing.T) {
	v4 := parseInet("192.0.2.1")
	assert.True(t, v4.Valid)
	ones, bits := v4.IPNet.Mask.Size()
	assert.Equal(t, 32, ones)
	assert.Equal(t, 32, bits)

	v6 := parseInet("2001:db8::1")
	assert.True(t, v6.Valid)
	ones, _ = v6.IPNet.Mask.Size()
	assert.Equal(t, 128, ones)

	assert.False(t, parseInet("not-an-ip").Valid)
}
