package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/paywall/pkg/entitlement"
	"github.com/dmitrymomot/paywall/pkg/httpserver"
	"github.com/dmitrymomot/paywall/pkg/pg"
	"github.com/dmitrymomot/paywall/pkg/quota"
	"github.com/dmitrymomot/paywall/pkg/redis"
	"github.com/dmitrymomot/paywall/pkg/sqlite"
	"github.com/dmitrymomot/paywall/store/postgres"
	"github.com/dmitrymomot/paywall/store/redisquota"
	storesqlite "github.com/dmitrymomot/paywall/store/sqlite"
)

// userLedger is implemented by the relational stores.
type userLedger interface {
	entitlement.UserStore
	entitlement.Ledger
	CreateUser(ctx context.Context, state entitlement.SubscriptionState) error
}

// stores holds the opened storage backends.
type stores struct {
	users   userLedger
	quota   quota.Store
	checks  []httpserver.Check
	closers []func() error
}

func (s *stores) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	return errors.Join(errs...)
}

// openStores connects the configured drivers and applies migrations.
func openStores(ctx context.Context, cfg Config, log *slog.Logger) (*stores, error) {
	s := &stores{}

	switch cfg.StoreDriver {
	case driverPostgres:
		pool, err := openPostgres(ctx, cfg.Postgres, log)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func() error { pool.Close(); return nil })
		s.checks = append(s.checks, httpserver.Check{Name: "postgres", Fn: pg.Healthcheck(pool)})
		s.users = postgres.New(pool)
		s.quota = postgres.NewQuotaStore(pool)

	case driverSQLite:
		db, err := openSQLite(ctx, cfg.SQLite)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, db.Close)
		s.checks = append(s.checks, httpserver.Check{Name: "sqlite", Fn: sqlite.Healthcheck(db)})
		s.users = storesqlite.New(db)
		s.quota = storesqlite.NewQuotaStore(db)
	}

	if cfg.QuotaStore == driverRedis {
		client, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		s.closers = append(s.closers, client.Close)
		s.checks = append(s.checks, httpserver.Check{Name: "redis", Fn: redis.Healthcheck(client)})
		s.quota = newRedisQuota(client, cfg.Redis)
	}

	return s, nil
}

func openPostgres(ctx context.Context, cfg pg.Config, log *slog.Logger) (*pgxpool.Pool, error) {
	pool, err := pg.Connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pg.Migrate(ctx, pool, cfg, log); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate postgres: %w", err)
	}
	return pool, nil
}

// openSQLite opens the database; the schema is applied on open.
func openSQLite(ctx context.Context, cfg sqlite.Config) (*sql.DB, error) {
	db, err := sqlite.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return db, nil
}

func newRedisQuota(client goredis.Cmdable, cfg redis.Config) *redisquota.Store {
	return redisquota.New(client, redisquota.WithKeyPrefix(cfg.KeyPrefix))
}
