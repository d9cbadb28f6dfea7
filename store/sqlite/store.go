// Package sqlite implements the entitlement and quota stores on database/sql
// with the modernc.org/sqlite driver. Open the database with pkg/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/dmitrymomot/paywall/pkg/entitlement"
	"github.com/dmitrymomot/paywall/pkg/quota"
)

// conn is satisfied by both *sql.DB and *sql.Tx.
type conn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements entitlement.UserStore and entitlement.Ledger.
type Store struct {
	db   *sql.DB
	conn conn
	now  func() time.Time
}

// QuotaStore implements quota.Store.
type QuotaStore struct {
	db  *sql.DB
	now func() time.Time
}

var (
	_ entitlement.UserStore = (*Store)(nil)
	_ entitlement.Ledger    = (*Store)(nil)
	_ quota.Store           = (*QuotaStore)(nil)
)

// New wraps an open database. The schema must already be applied.
func New(db *sql.DB) *Store {
	if db == nil {
		panic("sqlite store: db is required")
	}
	return &Store{db: db, conn: db, now: time.Now}
}

// NewQuotaStore wraps an open database for quota counters.
func NewQuotaStore(db *sql.DB) *QuotaStore {
	if db == nil {
		panic("sqlite store: db is required")
	}
	return &QuotaStore{db: db, now: time.Now}
}

func nullableNanos(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}

func fromNanos(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(0, v.Int64).UTC()
	return &t
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
