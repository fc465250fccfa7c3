package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sqlc-dev/pqtype"
)

// User is a row of the users table.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	Authorities  pq.StringArray
	Enabled      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

const userColumns = `id, username, password_hash, authorities, enabled, created_at, updated_at`

func scanUser(row *sql.Row) (User, error) {
	var u User
	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.PasswordHash,
		&u.Authorities,
		&u.Enabled,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	return u, err
}

const getUserByID = `-- name: GetUserByID :one
SELECT ` + userColumns + ` FROM users WHERE id = $1`

// GetUserByID returns sql.ErrNoRows when no user has the id.
func (q *Queries) GetUserByID(ctx context.Context, id int64) (User, error) {
	return scanUser(q.db.QueryRowContext(ctx, getUserByID, id))
}

const getUserByUsername = `-- name: GetUserByUsername :one
SELECT ` + userColumns + ` FROM users WHERE username = $1`

// GetUserByUsername returns sql.ErrNoRows when no user has the username.
func (q *Queries) GetUserByUsername(ctx context.Context, username string) (User, error) {
	return scanUser(q.db.QueryRowContext(ctx, getUserByUsername, username))
}

const upsertUser = `-- name: UpsertUser :one
INSERT INTO users (username, password_hash, authorities, enabled)
VALUES ($1, $2, $3, $4)
ON CONFLICT (username) DO UPDATE
SET password_hash = EXCLUDED.password_hash,
    authorities   = EXCLUDED.authorities,
    enabled       = EXCLUDED.enabled,
    updated_at    = NOW()
RETURNING ` + userColumns

// UpsertUserParams holds the columns written by UpsertUser.
type UpsertUserParams struct {
	Username     string
	PasswordHash string
	Authorities  []string
	Enabled      bool
}

// UpsertUser inserts a user or replaces the credentials of an existing one.
func (q *Queries) UpsertUser(ctx context.Context, arg UpsertUserParams) (User, error) {
	return scanUser(q.db.QueryRowContext(ctx, upsertUser,
		arg.Username,
		arg.PasswordHash,
		pq.Array(arg.Authorities),
		arg.Enabled,
	))
}

const createLoginEvent = `-- name: CreateLoginEvent :exec
INSERT INTO login_events (id, user_id, username, client_ip, succeeded)
VALUES ($1, $2, $3, $4, $5)`

// CreateLoginEventParams holds the columns written by CreateLoginEvent.
type CreateLoginEventParams struct {
	ID        uuid.UUID
	UserID    sql.NullInt64
	Username  string
	ClientIP  pqtype.Inet
	Succeeded bool
}

// CreateLoginEvent appends a login attempt to the audit table.
func (q *Queries) CreateLoginEvent(ctx context.Context, arg CreateLoginEventParams) error {
	_, err := q.db.ExecContext(ctx, createLoginEvent,
		arg.ID,
		arg.UserID,
		arg.Username,
		arg.ClientIP,
		arg.Succeeded,
	)
	return err
}
