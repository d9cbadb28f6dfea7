package entitlement_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/paywall/pkg/entitlement"
)

func TestSetPlan(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("grant unlimited survives deactivation", func(t *testing.T) {
		t.Parallel()
		users := newMemUsers()
		id := users.add(entitlement.SubscriptionState{Plan: entitlement.PlanPremium})

		state, err := entitlement.SetPlan(ctx, users, id, entitlement.PlanUnlimited, fixedNow)
		require.NoError(t, err)
		assert.Equal(t, entitlement.PlanUnlimited, state.Plan)
		assert.Equal(t, entitlement.StatusActive, state.Status)

		next, changed := entitlement.ApplyEvent(state, &entitlement.WebhookEvent{Classification: entitlement.ClassDeactivation}, fixedNow)
		require.True(t, changed)
		assert.Equal(t, entitlement.PlanUnlimited, next.Plan)
	})

	t.Run("revoke to free expires paid user", func(t *testing.T) {
		t.Parallel()
		users := newMemUsers()
		id := users.add(entitlement.SubscriptionState{Plan: entitlement.PlanUnlimited})

		state, err := entitlement.SetPlan(ctx, users, id, entitlement.PlanFree, fixedNow)
		require.NoError(t, err)
		assert.Equal(t, entitlement.PlanFree, state.Plan)
		assert.Equal(t, entitlement.StatusExpired, state.Status)
		assert.Equal(t, state, users.state(id))
	})

	t.Run("same plan is a no-op", func(t *testing.T) {
		t.Parallel()
		users := newMemUsers()
		id := users.add(entitlement.SubscriptionState{Plan: entitlement.PlanFree})

		_, err := entitlement.SetPlan(ctx, users, id, entitlement.PlanFree, fixedNow)
		require.NoError(t, err)
		assert.Zero(t, users.writeCount())
	})

	t.Run("invalid plan", func(t *testing.T) {
		t.Parallel()
		_, err := entitlement.SetPlan(ctx, newMemUsers(), uuid.New(), "gold", fixedNow)
		assert.ErrorIs(t, err, entitlement.ErrInvalidPlan)
	})

	t.Run("unknown user", func(t *testing.T) {
		t.Parallel()
		_, err := entitlement.SetPlan(ctx, newMemUsers(), uuid.New(), entitlement.PlanPremium, fixedNow)
		assert.ErrorIs(t, err, entitlement.ErrUserNotFound)
	})
}
