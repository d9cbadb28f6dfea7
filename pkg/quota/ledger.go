package quota

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/paywall/pkg/entitlement"
	"github.com/dmitrymomot/paywall/pkg/logger"
)

// Ledger meters per-user, per-feature usage in calendar-month periods.
//
// Check and Increment are two separate store calls: concurrent callers can
// both pass Check before either increments, so the limit may be overshot by
// the number of in-flight operations. Reserve and Release provide strict
// enforcement where that overshoot is not acceptable.
type Ledger struct {
	// limits is treated as immutable after construction.
	limits   Limits
	store    Store
	now      func() time.Time
	logger   *slog.Logger
	observer Observer
	strict   bool
}

// NewLedger loads and validates the limit table from src.
func NewLedger(ctx context.Context, src Source, store Store, opts ...Option) (*Ledger, error) {
	if store == nil {
		panic("quota: Store is required")
	}
	if src == nil {
		panic("quota: Source is required")
	}

	limits, err := src.Load(ctx)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadLimits, err)
	}
	if limits == nil {
		limits = make(Limits)
	}
	if err := validateLimits(limits); err != nil {
		return nil, err
	}

	l := &Ledger{
		limits:   limits,
		store:    store,
		now:      time.Now,
		logger:   slog.New(slog.DiscardHandler),
		observer: noopObserver{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Limit returns the configured monthly allowance.
func (l *Ledger) Limit(plan entitlement.Plan, feature Feature) (int64, error) {
	if plan == entitlement.PlanUnlimited {
		return Unlimited, nil
	}
	features, ok := l.limits[plan]
	if !ok {
		return 0, fmt.Errorf("%w: plan %q", ErrUnknownLimit, plan)
	}
	limit, ok := features[feature]
	if !ok {
		return 0, fmt.Errorf("%w: plan %q feature %q", ErrUnknownLimit, plan, feature)
	}
	return limit, nil
}

// Check reports whether one more operation fits in the current period.
// The unlimited plan and unlimited features never touch storage.
func (l *Ledger) Check(ctx context.Context, userID, tenantID uuid.UUID, plan entitlement.Plan, feature Feature) (Decision, error) {
	now := l.now()
	limit, err := l.Limit(plan, feature)
	if err != nil {
		return Decision{}, err
	}
	if limit == Unlimited {
		return unlimitedDecision(now, 0), nil
	}

	used, err := l.store.Get(ctx, l.key(userID, tenantID, feature, now))
	if err != nil {
		return Decision{}, errors.Join(ErrCounterStorage, err)
	}

	d := Decision{
		Allowed:  used < limit,
		Used:     used,
		Limit:    limit,
		ResetsAt: NextReset(now),
		Period:   PeriodKey(now),
	}
	l.observer.QuotaDecision(feature, string(plan), d.Allowed)
	return d, nil
}

// Increment records one successful operation in the current period.
// Call it only after the metered operation completed successfully.
func (l *Ledger) Increment(ctx context.Context, userID, tenantID uuid.UUID, feature Feature) error {
	key := l.key(userID, tenantID, feature, l.now())
	if _, err := l.store.Increment(ctx, key); err != nil {
		return errors.Join(ErrCounterStorage, err)
	}
	return nil
}

// Reserve atomically consumes one unit of quota if the limit allows it.
// A denied reservation returns Allowed=false and consumes nothing. Pair a
// successful reservation with Release, passing Decision.Period, when the
// operation fails.
func (l *Ledger) Reserve(ctx context.Context, userID, tenantID uuid.UUID, plan entitlement.Plan, feature Feature) (Decision, error) {
	now := l.now()
	limit, err := l.Limit(plan, feature)
	if err != nil {
		return Decision{}, err
	}

	key := l.key(userID, tenantID, feature, now)
	if limit == Unlimited {
		used, err := l.store.Increment(ctx, key)
		if err != nil {
			return Decision{}, errors.Join(ErrCounterStorage, err)
		}
		return unlimitedDecision(now, used), nil
	}

	used, ok, err := l.store.IncrementIfBelow(ctx, key, limit)
	if err != nil {
		return Decision{}, errors.Join(ErrCounterStorage, err)
	}

	d := Decision{
		Allowed:  ok,
		Used:     used,
		Limit:    limit,
		ResetsAt: NextReset(now),
		Period:   key.Period,
	}
	l.observer.QuotaDecision(feature, string(plan), d.Allowed)
	return d, nil
}

// Release returns a unit consumed by Reserve in period. The period comes from
// the reservation, so an operation that fails after the month rolls over
// still releases the counter it was charged to.
func (l *Ledger) Release(ctx context.Context, userID, tenantID uuid.UUID, feature Feature, period string) error {
	key := Key{UserID: userID, TenantID: tenantID, Feature: feature, Period: period}
	if err := l.store.Decrement(ctx, key); err != nil {
		return errors.Join(ErrCounterStorage, err)
	}
	return nil
}

// Gate runs op when quota allows it and meters it only on success.
// A denied request returns an *ExceededError wrapping ErrQuotaExceeded and op
// is not called. An error from op is returned unchanged and consumes nothing.
func (l *Ledger) Gate(ctx context.Context, req Request, op func(ctx context.Context) error) (Decision, error) {
	if l.strict {
		return l.gateStrict(ctx, req, op)
	}

	d, err := l.Check(ctx, req.UserID, req.TenantID, req.Plan, req.Feature)
	if err != nil {
		return Decision{}, err
	}
	if !d.Allowed {
		return d, exceeded(req.Feature, d)
	}

	if err := op(ctx); err != nil {
		return d, err
	}

	if err := l.Increment(ctx, req.UserID, req.TenantID, req.Feature); err != nil {
		// the operation already succeeded; the unit is lost, not the result
		l.logger.ErrorContext(ctx, "Failed to increment quota counter",
			logger.UserID(req.UserID),
			logger.Feature(string(req.Feature)),
			logger.Error(err),
		)
		return d, nil
	}
	if !d.Unlimited {
		d.Used++
	}
	return d, nil
}

func (l *Ledger) gateStrict(ctx context.Context, req Request, op func(ctx context.Context) error) (Decision, error) {
	d, err := l.Reserve(ctx, req.UserID, req.TenantID, req.Plan, req.Feature)
	if err != nil {
		return Decision{}, err
	}
	if !d.Allowed {
		return d, exceeded(req.Feature, d)
	}

	if err := op(ctx); err != nil {
		if rerr := l.Release(ctx, req.UserID, req.TenantID, req.Feature, d.Period); rerr != nil {
			l.logger.ErrorContext(ctx, "Failed to release quota reservation",
				logger.UserID(req.UserID),
				logger.Feature(string(req.Feature)),
				logger.Error(rerr),
			)
		}
		d.Used--
		return d, err
	}
	return d, nil
}

func (l *Ledger) key(userID, tenantID uuid.UUID, feature Feature, now time.Time) Key {
	return Key{UserID: userID, TenantID: tenantID, Feature: feature, Period: PeriodKey(now)}
}

func unlimitedDecision(now time.Time, used int64) Decision {
	return Decision{
		Allowed:   true,
		Used:      used,
		Limit:     Unlimited,
		ResetsAt:  NextReset(now),
		Unlimited: true,
		Period:    PeriodKey(now),
	}
}
