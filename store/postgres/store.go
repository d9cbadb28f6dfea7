// Package postgres implements the entitlement and quota stores on pgx/v5.
// The schema is created by pg.Migrate.
package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrymomot/paywall/pkg/entitlement"
	"github.com/dmitrymomot/paywall/pkg/quota"
)

// DB is the subset of *pgxpool.Pool used by the stores. pgx.Tx satisfies it too.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements entitlement.UserStore and entitlement.Ledger.
type Store struct {
	db  DB
	now func() time.Time
}

// QuotaStore implements quota.Store.
type QuotaStore struct {
	db DB
}

var (
	_ entitlement.UserStore = (*Store)(nil)
	_ entitlement.Ledger    = (*Store)(nil)
	_ quota.Store           = (*QuotaStore)(nil)
)

func New(db DB) *Store {
	if db == nil {
		panic("postgres store: db is required")
	}
	return &Store{db: db, now: time.Now}
}

func NewQuotaStore(db DB) *QuotaStore {
	if db == nil {
		panic("postgres store: db is required")
	}
	return &QuotaStore{db: db}
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
