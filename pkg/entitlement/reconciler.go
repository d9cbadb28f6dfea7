package entitlement

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/dmitrymomot/paywall/pkg/logger"
)

// Reconciler is the client sync writer path. It infers entitlement from the
// payload the mobile app sends after a purchase completes and writes through
// the same versioned update as the webhook Resolver.
type Reconciler struct {
	users    UserStore
	cfg      SignalConfig
	signals  []Signal
	validate *validator.Validate
	opts     *options
}

// NewReconciler creates a Reconciler using DefaultSignals.
func NewReconciler(users UserStore, cfg SignalConfig, opts ...Option) *Reconciler {
	if users == nil {
		panic("entitlement: UserStore is required")
	}
	return &Reconciler{
		users:    users,
		cfg:      cfg,
		signals:  DefaultSignals(),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		opts:     applyOptions(opts),
	}
}

// Reconcile validates info, detects premium access and persists the result.
// Malformed payloads are rejected before any storage access.
func (r *Reconciler) Reconcile(ctx context.Context, userID uuid.UUID, info *CustomerInfo) (SyncResult, error) {
	if info == nil {
		return SyncResult{}, errors.Join(ErrMalformedCustomerInfo, errors.New("customer info is required"))
	}
	if err := r.validate.StructCtx(ctx, info); err != nil {
		return SyncResult{}, errors.Join(ErrMalformedCustomerInfo, err)
	}

	match, premium := DetectPremium(info, r.cfg, r.signals)
	now := r.opts.now()

	state, err := updateSubscription(ctx, r.users, userID, r.opts.updateAttempts,
		func(current SubscriptionState) (SubscriptionState, bool) {
			return ApplySync(current, match, premium, info.OriginalAppUserID, now)
		})
	if err != nil {
		return SyncResult{}, err
	}

	r.opts.observer.ClientSynced(match.Signal, premium)
	r.opts.logger.InfoContext(ctx, "Client subscription sync applied",
		logger.UserID(userID),
		slog.Bool("premium", premium),
		slog.String("signal", string(match.Signal)),
		slog.String("plan", string(state.Plan)),
		slog.String("status", string(state.Status)),
	)

	return SyncResult{
		Plan:      state.Plan,
		Status:    state.Status,
		ExpiresAt: state.ExpiresAt,
		Signal:    match.Signal,
	}, nil
}

// ApplySync returns the state resulting from a client sync.
// Without a premium signal only a premium user is marked expired; the plan
// itself is left for the webhook path to finalize.
func ApplySync(state SubscriptionState, match Match, premium bool, externalUserID string, now time.Time) (SubscriptionState, bool) {
	next := state

	if premium {
		next.Plan = upgradeTo(state.Plan, PlanPremium)
		if match.WillRenew() {
			next.Status = StatusActive
		} else {
			next.Status = StatusCanceled
		}
		if exp := match.ExpiresAt(); exp != nil {
			next.ExpiresAt = exp
		}
		next.ProductID = mergeString(state.ProductID, match.ProductID)
		next.Store = mergeString(state.Store, match.Store)
		if next.StartedAt == nil {
			started := now.UTC()
			if match.Entitlement != nil {
				if t := match.Entitlement.PurchasedAt(); t != nil {
					started = *t
				}
			}
			next.StartedAt = &started
		}
	} else if state.Plan == PlanPremium {
		next.Status = StatusExpired
	}

	next.ExternalUserID = mergeString(state.ExternalUserID, externalUserID)

	if sameState(state, next) {
		return state, false
	}
	next.UpdatedAt = now.UTC()
	return next, true
}

func sameState(a, b SubscriptionState) bool {
	return a.Plan == b.Plan &&
		a.Status == b.Status &&
		sameTime(a.StartedAt, b.StartedAt) &&
		sameTime(a.ExpiresAt, b.ExpiresAt) &&
		a.ProductID == b.ProductID &&
		a.Store == b.Store &&
		a.ExternalUserID == b.ExternalUserID &&
		a.OriginalTransactionID == b.OriginalTransactionID
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
