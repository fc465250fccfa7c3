// Package repository contains the database queries for users and login
// events. It follows the layout sqlc generates: a DBTX abstraction, a
// Queries type and a Querier interface for mocking.
package repository

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	PrepareContext(context.Context, string) (*sql.Stmt, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

// New creates Queries on top of a connection pool or transaction.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// Queries runs the application's SQL.
type Queries struct {
	db DBTX
}

// WithTx returns Queries bound to tx.
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{
		db: tx,
	}
}

// Querier is the set of queries used by the service layer.
type Querier interface {
	GetUserByID(ctx context.Context, id int64) (User, error)
	GetUserByUsername(ctx context.Context, username string) (User, error)
	UpsertUser(ctx context.Context, arg UpsertUserParams) (User, error)
	CreateLoginEvent(ctx context.Context, arg CreateLoginEventParams) error
}

var _ Querier = (*Queries)(nil)
