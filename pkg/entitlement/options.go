package entitlement

import (
	"log/slog"
	"time"
)

// Observer receives outcome notifications for metrics. All methods must be safe
// for concurrent use.
type Observer interface {
	WebhookProcessed(class Classification, outcome string)
	ClientSynced(signal SignalName, premium bool)
}

// Webhook outcomes reported to the Observer.
const (
	OutcomeApplied   = "applied"
	OutcomeDuplicate = "duplicate"
	OutcomeUnmatched = "unmatched"
	OutcomeIgnored   = "ignored"
	OutcomeFailed    = "failed"
)

type noopObserver struct{}

func (noopObserver) WebhookProcessed(Classification, string) {}
func (noopObserver) ClientSynced(SignalName, bool)           {}

// Option configures a Resolver or Reconciler.
type Option func(*options)

type options struct {
	logger         *slog.Logger
	now            func() time.Time
	observer       Observer
	archive        RawArchive
	updateAttempts int
}

func defaultOptions() *options {
	return &options{
		logger:         slog.New(slog.DiscardHandler),
		now:            time.Now,
		observer:       noopObserver{},
		updateAttempts: defaultUpdateAttempts,
	}
}

func applyOptions(opts []Option) *options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithLogger sets the structured logger. Nil is ignored.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock overrides time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithObserver registers a metrics observer.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithRawArchive enables best-effort archiving of raw webhook payloads.
func WithRawArchive(a RawArchive) Option {
	return func(o *options) {
		o.archive = a
	}
}

// WithUpdateAttempts sets how many times a version conflict is retried.
func WithUpdateAttempts(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.updateAttempts = n
		}
	}
}
