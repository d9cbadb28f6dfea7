// Package metrics exposes Prometheus collectors for webhook processing,
// client sync, quota decisions and HTTP requests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrymomot/paywall/pkg/entitlement"
	"github.com/dmitrymomot/paywall/pkg/quota"
)

const namespace = "paywall"

// Collectors implements entitlement.Observer and quota.Observer.
type Collectors struct {
	webhookEvents   *prometheus.CounterVec
	clientSyncs     *prometheus.CounterVec
	quotaDecisions  *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
}

var (
	_ entitlement.Observer = (*Collectors)(nil)
	_ quota.Observer       = (*Collectors)(nil)
)

// New creates the collectors and registers them with reg.
// Pass prometheus.NewRegistry() in tests to avoid global state.
func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "events_total",
			Help:      "Billing webhook events by classification and outcome.",
		}, []string{"classification", "outcome"}),

		clientSyncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "requests_total",
			Help:      "Client subscription syncs by matched signal and premium result.",
		}, []string{"signal", "premium"}),

		quotaDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "quota",
			Name:      "decisions_total",
			Help:      "Quota checks by feature, plan and result.",
		}, []string{"feature", "plan", "allowed"}),

		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration by route.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"method", "route", "status"}),

		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
	}

	reg.MustRegister(
		c.webhookEvents,
		c.clientSyncs,
		c.quotaDecisions,
		c.requestDuration,
		c.requestTotal,
	)
	return c
}

// RegisterRuntime adds Go runtime and process collectors to reg.
func RegisterRuntime(reg prometheus.Registerer) {
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

func (c *Collectors) WebhookProcessed(class entitlement.Classification, outcome string) {
	c.webhookEvents.WithLabelValues(string(class), outcome).Inc()
}

func (c *Collectors) ClientSynced(signal entitlement.SignalName, premium bool) {
	name := string(signal)
	if name == "" {
		name = "none"
	}
	c.clientSyncs.WithLabelValues(name, strconv.FormatBool(premium)).Inc()
}

func (c *Collectors) QuotaDecision(feature quota.Feature, plan string, allowed bool) {
	c.quotaDecisions.WithLabelValues(string(feature), plan, strconv.FormatBool(allowed)).Inc()
}

// Middleware records request counts and latency labelled by the chi route
// pattern, keeping label cardinality bounded.
func (c *Collectors) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		labels := []string{r.Method, route, strconv.Itoa(status)}
		c.requestTotal.WithLabelValues(labels...).Inc()
		c.requestDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the exposition format for g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
