package entitlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// defaultUpdateAttempts bounds the read-apply-write loop on version conflicts.
const defaultUpdateAttempts = 3

// ApplyEvent returns the state that results from applying a classified webhook event.
// Deactivation leaves StartedAt and ExpiresAt untouched. Events classified as
// ClassOther never change the state.
func ApplyEvent(state SubscriptionState, event *WebhookEvent, now time.Time) (SubscriptionState, bool) {
	next := state

	switch event.Classification {
	case ClassActivation:
		next.Plan = upgradeTo(state.Plan, PlanPremium)
		next.Status = StatusActive
		next.ProductID = mergeString(state.ProductID, event.ProductID)
		next.Store = mergeString(state.Store, event.Store)
		next.ExpiresAt = event.ExpiresAt
		if next.StartedAt == nil {
			started := now.UTC()
			if event.PurchasedAt != nil {
				started = *event.PurchasedAt
			}
			next.StartedAt = &started
		}
		next.OriginalTransactionID = mergeString(state.OriginalTransactionID, event.OriginalTransactionID)
		next.ExternalUserID = mergeString(state.ExternalUserID, event.ExternalUserID)

	case ClassDeactivation:
		next.Plan = upgradeTo(state.Plan, PlanFree)
		next.Status = StatusExpired

	case ClassBillingIssue:
		next.Status = StatusCanceled

	default:
		return state, false
	}

	next.UpdatedAt = now.UTC()
	return next, true
}

// upgradeTo returns target unless the current plan is an administrative unlimited grant.
func upgradeTo(current, target Plan) Plan {
	if current == PlanUnlimited {
		return current
	}
	return target
}

// updateSubscription runs the read-apply-write loop against users, retrying
// when the other writer path changed the row in between.
func updateSubscription(ctx context.Context, users UserStore, userID uuid.UUID, attempts int, fn TransitionFunc) (SubscriptionState, error) {
	if attempts <= 0 {
		attempts = defaultUpdateAttempts
	}

	for range attempts {
		current, err := users.GetSubscription(ctx, userID)
		if err != nil {
			if errors.Is(err, ErrUserNotFound) {
				return SubscriptionState{}, err
			}
			return SubscriptionState{}, errors.Join(ErrStorage, fmt.Errorf("get subscription: %w", err))
		}

		next, changed := fn(current)
		if !changed {
			return current, nil
		}

		err = users.UpdateSubscription(ctx, userID, current, next)
		if err == nil {
			next.Version = current.Version + 1
			return next, nil
		}
		if !errors.Is(err, ErrConcurrentUpdate) {
			return SubscriptionState{}, errors.Join(ErrStorage, fmt.Errorf("update subscription: %w", err))
		}
	}

	return SubscriptionState{}, ErrConcurrentUpdate
}

// recordTransition claims event in the ledger and applies fn to the user's
// state in one store transaction, retrying on version conflicts. inserted is
// false when another delivery already claimed the event id; the state is
// left untouched in that case.
func recordTransition(ctx context.Context, users UserStore, ledger Ledger, event *WebhookEvent, attempts int, fn TransitionFunc) (bool, error) {
	if event.ResolvedUserID == nil {
		return false, errors.New("record transition: event has no resolved user")
	}
	if attempts <= 0 {
		attempts = defaultUpdateAttempts
	}

	for range attempts {
		current, err := users.GetSubscription(ctx, *event.ResolvedUserID)
		if err != nil {
			if errors.Is(err, ErrUserNotFound) {
				return false, err
			}
			return false, errors.Join(ErrStorage, fmt.Errorf("get subscription: %w", err))
		}

		var inserted bool
		if next, changed := fn(current); changed {
			inserted, err = ledger.RecordAndApply(ctx, event, current, next)
		} else {
			inserted, err = ledger.Record(ctx, event)
		}
		if err == nil {
			return inserted, nil
		}
		if !errors.Is(err, ErrConcurrentUpdate) {
			return false, errors.Join(ErrStorage, fmt.Errorf("record webhook event: %w", err))
		}
	}

	return false, ErrConcurrentUpdate
}
