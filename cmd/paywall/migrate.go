package main

import (
	"github.com/spf13/cobra"

	"github.com/dmitrymomot/paywall/pkg/logger"
)

func newMigrateCmd(load func() (Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			log := newLogger(cfg)
			ctx := cmd.Context()

			switch cfg.StoreDriver {
			case driverPostgres:
				pool, err := openPostgres(ctx, cfg.Postgres, log)
				if err != nil {
					return err
				}
				pool.Close()
			case driverSQLite:
				db, err := openSQLite(ctx, cfg.SQLite)
				if err != nil {
					return err
				}
				if err := db.Close(); err != nil {
					log.ErrorContext(ctx, "Failed to close sqlite", logger.Error(err))
				}
			}

			log.InfoContext(ctx, "Migrations applied", "driver", cfg.StoreDriver)
			return nil
		},
	}
}
