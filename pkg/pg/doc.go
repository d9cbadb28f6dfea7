// Package pg bootstraps the PostgreSQL layer on pgx/v5.
//
// Connect opens a *pgxpool.Pool from Config (populated from PG_* environment
// variables), retrying while the database comes up. Migrate applies the
// embedded goose migrations creating the users, webhook_events and
// quota_counters tables. Healthcheck returns a readiness probe.
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, cfg, log); err != nil {
//		return err
//	}
//
// IsNotFoundError and IsDuplicateKeyError classify pgx errors for store code.
package pg
