package main

import (
	"fmt"
	"log/slog"

	"github.com/dmitrymomot/paywall/pkg/config"
	"github.com/dmitrymomot/paywall/pkg/entitlement"
	"github.com/dmitrymomot/paywall/pkg/httpserver"
	"github.com/dmitrymomot/paywall/pkg/logger"
	"github.com/dmitrymomot/paywall/pkg/pg"
	"github.com/dmitrymomot/paywall/pkg/redis"
	"github.com/dmitrymomot/paywall/pkg/requestid"
	"github.com/dmitrymomot/paywall/pkg/sqlite"
	"github.com/dmitrymomot/paywall/store/s3archive"
)

// Storage drivers.
const (
	driverPostgres = "postgres"
	driverSQLite   = "sqlite"
	driverRedis    = "redis"
)

// Config is the process configuration, read from the environment.
type Config struct {
	Env      string `env:"APP_ENV" envDefault:"development"`
	Service  string `env:"APP_NAME" envDefault:"paywall"`
	LogLevel string `env:"LOG_LEVEL"` // overrides the environment's default level

	StoreDriver string `env:"STORE_DRIVER" envDefault:"postgres"` // postgres or sqlite
	QuotaStore  string `env:"QUOTA_STORE"`                        // redis, or empty to use STORE_DRIVER

	QuotaLimitsFile string `env:"QUOTA_LIMITS_FILE" envDefault:"config/limits.yaml"`
	QuotaStrict     bool   `env:"QUOTA_STRICT" envDefault:"false"`

	MetricsEnabled bool   `env:"METRICS_ENABLED" envDefault:"true"`
	MetricsAddr    string `env:"METRICS_ADDR"` // separate listener; empty serves /metrics on the API

	Billing  BillingConfig
	HTTP     httpserver.Config
	Postgres pg.Config
	SQLite   sqlite.Config
	Redis    redis.Config
	Archive  s3archive.Config
}

// BillingConfig describes the billing provider integration.
type BillingConfig struct {
	WebhookSecret      string   `env:"BILLING_WEBHOOK_SECRET"`
	ActivationEvents   []string `env:"BILLING_ACTIVATION_EVENTS" envSeparator:","`
	DeactivationEvents []string `env:"BILLING_DEACTIVATION_EVENTS" envSeparator:","`
	BillingIssueEvent  string   `env:"BILLING_BILLING_ISSUE_EVENT"`
	ProductIDs         []string `env:"BILLING_PRODUCT_IDS" envSeparator:","`
	EntitlementID      string   `env:"BILLING_ENTITLEMENT_ID" envDefault:"premium"`
}

// EventTypes returns the configured classification, or the provider defaults
// when no event sets are configured.
func (c BillingConfig) EventTypes() (*entitlement.EventTypes, error) {
	if len(c.ActivationEvents) == 0 && len(c.DeactivationEvents) == 0 && c.BillingIssueEvent == "" {
		return entitlement.DefaultEventTypes(), nil
	}
	return entitlement.NewEventTypes(c.ActivationEvents, c.DeactivationEvents, c.BillingIssueEvent)
}

// SignalConfig returns the client sync detection settings.
func (c BillingConfig) SignalConfig() entitlement.SignalConfig {
	return entitlement.SignalConfig{EntitlementID: c.EntitlementID, ProductIDs: c.ProductIDs}
}

func loadConfig(files ...string) (Config, error) {
	cfg, err := config.Load[Config](files...)
	if err != nil {
		return Config{}, err
	}
	switch cfg.StoreDriver {
	case driverPostgres, driverSQLite:
	default:
		return Config{}, fmt.Errorf("unsupported STORE_DRIVER %q", cfg.StoreDriver)
	}
	switch cfg.QuotaStore {
	case "":
		cfg.QuotaStore = cfg.StoreDriver
	case driverRedis, cfg.StoreDriver:
	default:
		return Config{}, fmt.Errorf("QUOTA_STORE %q must be %q or match STORE_DRIVER", cfg.QuotaStore, driverRedis)
	}
	return cfg, nil
}

func newLogger(cfg Config) *slog.Logger {
	opts := []logger.Option{
		logger.WithEnvironment(cfg.Env, cfg.Service),
		logger.WithContextExtractors(requestid.LoggerExtractor()),
	}
	if cfg.LogLevel != "" {
		opts = append(opts, logger.WithLevel(logger.ParseLevel(cfg.LogLevel)))
	}
	log := logger.New(opts...)
	logger.SetAsDefault(log)
	return log
}
