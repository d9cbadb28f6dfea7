package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/paywall/handler"
	"github.com/dmitrymomot/paywall/pkg/entitlement"
	"github.com/dmitrymomot/paywall/pkg/httpserver"
	"github.com/dmitrymomot/paywall/pkg/metrics"
	"github.com/dmitrymomot/paywall/pkg/quota"
	"github.com/dmitrymomot/paywall/pkg/requestid"
)

// DefaultMaxBodyBytes limits webhook and sync request bodies.
const DefaultMaxBodyBytes int64 = 1 << 20

// Deps are the collaborators served by the router.
type Deps struct {
	Resolver   *entitlement.Resolver
	Reconciler *entitlement.Reconciler
	Quota      *quota.Ledger
	Users      entitlement.UserStore
	Identity   IdentityFunc

	// WebhookSecret is compared with the webhook Authorization header.
	// Empty disables the check.
	WebhookSecret string
	MaxBodyBytes  int64

	Metrics        *metrics.Collectors // optional
	MetricsHandler http.Handler        // optional, mounted at /metrics
	ReadyChecks    []httpserver.Check
	Logger         *slog.Logger
}

// NewRouter builds the HTTP API.
// Panics if a required dependency is missing.
func NewRouter(d Deps) http.Handler {
	if d.Resolver == nil || d.Reconciler == nil || d.Quota == nil || d.Users == nil {
		panic("api: resolver, reconciler, quota ledger and user store are required")
	}
	if d.Identity == nil {
		panic("api: identity func is required")
	}
	if d.MaxBodyBytes <= 0 {
		d.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if d.Logger == nil {
		d.Logger = slog.New(slog.DiscardHandler)
	}

	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Use(middleware.Recoverer)
	if d.Metrics != nil {
		r.Use(d.Metrics.Middleware)
	}
	r.Use(accessLog(d.Logger))

	r.NotFound(handler.Wrap(d.Logger, func(*http.Request) handler.Response {
		return handler.Error(handler.ErrNotFound)
	}))

	r.Get("/health/live", httpserver.Liveness())
	r.Get("/health/ready", httpserver.Readiness(d.Logger, 2*time.Second, d.ReadyChecks...))
	if d.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", d.MetricsHandler)
	}

	wh := &webhookHandler{resolver: d.Resolver, secret: d.WebhookSecret, limit: d.MaxBodyBytes, log: d.Logger}
	r.Post("/webhooks/billing", handler.Wrap(d.Logger, wh.handle))

	r.Group(func(r chi.Router) {
		r.Use(requireIdentity(d.Identity, d.Logger))

		sh := &syncHandler{reconciler: d.Reconciler, limit: d.MaxBodyBytes, log: d.Logger}
		r.Post("/v1/subscription/sync", handler.Wrap(d.Logger, sh.handle))

		qh := &quotaHandler{ledger: d.Quota, users: d.Users, log: d.Logger}
		r.Get("/v1/quota/{feature}", handler.Wrap(d.Logger, qh.status))
	})

	return r
}
