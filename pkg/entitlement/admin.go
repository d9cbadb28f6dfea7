package entitlement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SetPlan assigns plan to a user outside of billing, e.g. a support grant.
// It is the only way to enter or leave PlanUnlimited. Paid plans become
// active; moving a paid user to free expires the subscription.
func SetPlan(ctx context.Context, users UserStore, userID uuid.UUID, plan Plan, now time.Time) (SubscriptionState, error) {
	if !plan.Valid() {
		return SubscriptionState{}, fmt.Errorf("%w: %q", ErrInvalidPlan, plan)
	}

	return updateSubscription(ctx, users, userID, defaultUpdateAttempts,
		func(current SubscriptionState) (SubscriptionState, bool) {
			next := current
			next.Plan = plan
			switch {
			case plan != PlanFree:
				next.Status = StatusActive
			case current.Plan != PlanFree:
				next.Status = StatusExpired
			}
			if next.Plan == current.Plan && next.Status == current.Status {
				return current, false
			}
			next.UpdatedAt = now.UTC()
			return next, true
		})
}
