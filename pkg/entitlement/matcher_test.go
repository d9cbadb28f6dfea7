package entitlement_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/paywall/pkg/entitlement"
)

type mockUserStore struct {
	mock.Mock
}

func (m *mockUserStore) FindByExternalID(ctx context.Context, externalID string) (uuid.UUID, error) {
	args := m.Called(ctx, externalID)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

func (m *mockUserStore) Exists(ctx context.Context, userID uuid.UUID) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

func (m *mockUserStore) GetSubscription(ctx context.Context, userID uuid.UUID) (entitlement.SubscriptionState, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(entitlement.SubscriptionState), args.Error(1)
}

func (m *mockUserStore) UpdateSubscription(ctx context.Context, userID uuid.UUID, current, next entitlement.SubscriptionState) error {
	args := m.Called(ctx, userID, current, next)
	return args.Error(0)
}

func TestMatcher_Match(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("primary external id lookup", func(t *testing.T) {
		t.Parallel()
		users := newMemUsers()
		id := users.add(entitlement.SubscriptionState{ExternalUserID: "rc-123"})

		got, ok, err := entitlement.NewMatcher(users).Match(ctx, "rc-123")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, id, got)
	})

	t.Run("external id treated as primary key", func(t *testing.T) {
		t.Parallel()
		users := newMemUsers()
		id := users.add(entitlement.SubscriptionState{})

		got, ok, err := entitlement.NewMatcher(users).Match(ctx, id.String())
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, id, got)
	})

	t.Run("second candidate matches", func(t *testing.T) {
		t.Parallel()
		users := newMemUsers()
		id := users.add(entitlement.SubscriptionState{ExternalUserID: "orig"})

		got, ok, err := entitlement.NewMatcher(users).Match(ctx, "alias", "", "orig")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, id, got)
	})

	t.Run("unknown uuid and unknown alias", func(t *testing.T) {
		t.Parallel()
		users := newMemUsers()
		_, ok, err := entitlement.NewMatcher(users).Match(ctx, uuid.NewString(), "nobody")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("duplicate candidates are looked up once", func(t *testing.T) {
		t.Parallel()
		users := &mockUserStore{}
		users.On("FindByExternalID", ctx, "same").Return(uuid.Nil, entitlement.ErrUserNotFound).Once()

		_, ok, err := entitlement.NewMatcher(users).Match(ctx, "same", "same")
		require.NoError(t, err)
		assert.False(t, ok)
		users.AssertExpectations(t)
	})

	t.Run("storage failure", func(t *testing.T) {
		t.Parallel()
		users := &mockUserStore{}
		boom := errors.New("connection refused")
		users.On("FindByExternalID", ctx, "x").Return(uuid.Nil, boom)

		_, ok, err := entitlement.NewMatcher(users).Match(ctx, "x")
		assert.False(t, ok)
		assert.ErrorIs(t, err, boom)
	})
}
