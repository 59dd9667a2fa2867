package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the slice of pgx used by the post store and schema setup.
// *pgxpool.Pool, pgx.Tx and pgxmock pools all satisfy it.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ErrOffline is returned by Offline for every call.
var ErrOffline = errors.New("database not connected")

// Offline stands in for a pool that could not be opened at startup, so
// reads and writes fail as unavailable instead of dereferencing nil.
type Offline struct{}

func (Offline) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, ErrOffline
}

func (Offline) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, ErrOffline
}

func (Offline) QueryRow(context.Context, string, ...any) pgx.Row {
	return offlineRow{}
}

type offlineRow struct{}

func (offlineRow) Scan(...any) error { return ErrOffline }
