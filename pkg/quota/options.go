package quota

import (
	"log/slog"
	"time"
)

// Observer receives quota decisions for metrics.
type Observer interface {
	QuotaDecision(feature Feature, plan string, allowed bool)
}

type noopObserver struct{}

func (noopObserver) QuotaDecision(Feature, string, bool) {}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides time.Now so period rollover can be tested.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(l *Ledger) {
		if log != nil {
			l.logger = log
		}
	}
}

func WithObserver(obs Observer) Option {
	return func(l *Ledger) {
		if obs != nil {
			l.observer = obs
		}
	}
}

// WithStrictEnforcement makes Gate reserve quota with a single conditional
// increment before running the operation, instead of check then increment.
func WithStrictEnforcement() Option {
	return func(l *Ledger) {
		l.strict = true
	}
}
