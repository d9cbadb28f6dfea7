package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/paywall/api"
	"github.com/dmitrymomot/paywall/pkg/entitlement"
	"github.com/dmitrymomot/paywall/pkg/httpserver"
	"github.com/dmitrymomot/paywall/pkg/logger"
	"github.com/dmitrymomot/paywall/pkg/metrics"
	"github.com/dmitrymomot/paywall/pkg/quota"
	"github.com/dmitrymomot/paywall/store/s3archive"
)

func newServeCmd(load func() (Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, newLogger(cfg))
		},
	}
}

func serve(ctx context.Context, cfg Config, log *slog.Logger) error {
	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.ErrorContext(ctx, "Failed to close stores", logger.Error(err))
		}
	}()

	var (
		reg        *prometheus.Registry
		collectors *metrics.Collectors
	)
	entOpts := []entitlement.Option{entitlement.WithLogger(log.With(logger.Component("entitlement")))}
	quotaOpts := []quota.Option{quota.WithLogger(log.With(logger.Component("quota")))}
	if cfg.MetricsEnabled {
		reg = prometheus.NewRegistry()
		metrics.RegisterRuntime(reg)
		collectors = metrics.New(reg)
		entOpts = append(entOpts, entitlement.WithObserver(collectors))
		quotaOpts = append(quotaOpts, quota.WithObserver(collectors))
	}
	if cfg.QuotaStrict {
		quotaOpts = append(quotaOpts, quota.WithStrictEnforcement())
	}

	if cfg.Archive.Enabled() {
		archive, err := s3archive.New(ctx, cfg.Archive)
		if err != nil {
			return err
		}
		entOpts = append(entOpts, entitlement.WithRawArchive(archive))
		log.InfoContext(ctx, "Raw webhook archive enabled", slog.String("bucket", cfg.Archive.Bucket))
	}

	types, err := cfg.Billing.EventTypes()
	if err != nil {
		return err
	}

	ledger, err := quota.NewLedger(ctx, quota.NewYAMLSource(cfg.QuotaLimitsFile), st.quota, quotaOpts...)
	if err != nil {
		return fmt.Errorf("load quota limits from %s: %w", cfg.QuotaLimitsFile, err)
	}

	deps := api.Deps{
		Resolver:      entitlement.NewResolver(types, st.users, st.users, entOpts...),
		Reconciler:    entitlement.NewReconciler(st.users, cfg.Billing.SignalConfig(), entOpts...),
		Quota:         ledger,
		Users:         st.users,
		Identity:      api.HeaderIdentity(),
		WebhookSecret: cfg.Billing.WebhookSecret,
		Metrics:       collectors,
		ReadyChecks:   st.checks,
		Logger:        log.With(logger.Component("api")),
	}
	if cfg.Billing.WebhookSecret == "" {
		log.WarnContext(ctx, "BILLING_WEBHOOK_SECRET is empty, webhook requests are not authenticated")
	}

	g, ctx := errgroup.WithContext(ctx)

	if reg != nil {
		if cfg.MetricsAddr == "" {
			deps.MetricsHandler = metrics.Handler(reg)
		} else {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler(reg))
			metricsSrv := httpserver.New(
				httpserver.WithAddr(cfg.MetricsAddr),
				httpserver.WithLogger(log.With(logger.Component("metrics"))),
			)
			g.Go(func() error { return metricsSrv.Run(ctx, mux) })
		}
	}

	apiSrv := httpserver.NewFromConfig(cfg.HTTP, httpserver.WithLogger(log.With(logger.Component("http"))))
	g.Go(func() error { return apiSrv.Run(ctx, api.NewRouter(deps)) })

	log.InfoContext(ctx, "Paywall service starting",
		slog.String("store", cfg.StoreDriver),
		slog.String("quota_store", cfg.QuotaStore),
		slog.String("version", Version),
	)
	return g.Wait()
}
