package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/dmitrymomot/paywall/pkg/entitlement"
	"github.com/dmitrymomot/paywall/pkg/pg"
)

// CreateUser inserts a user row. Zero plan and status default to free and active.
func (s *Store) CreateUser(ctx context.Context, state entitlement.SubscriptionState) error {
	if state.Plan == "" {
		state.Plan = entitlement.PlanFree
	}
	if state.Status == "" {
		state.Status = entitlement.StatusActive
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO users (
			id, external_user_id, plan, status, started_at, expires_at,
			product_id, store, original_transaction_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		state.UserID, nullableString(state.ExternalUserID), string(state.Plan), string(state.Status),
		state.StartedAt, state.ExpiresAt, state.ProductID, state.Store, state.OriginalTransactionID,
	)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *Store) FindByExternalID(ctx context.Context, externalID string) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.db.QueryRow(ctx,
		`SELECT id FROM users WHERE external_user_id = $1`, externalID,
	).Scan(&id)
	if pg.IsNotFoundError(err) {
		return uuid.Nil, entitlement.ErrUserNotFound
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("find user by external id: %w", err)
	}
	return id, nil
}

func (s *Store) Exists(ctx context.Context, userID uuid.UUID) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check user exists: %w", err)
	}
	return exists, nil
}

func (s *Store) GetSubscription(ctx context.Context, userID uuid.UUID) (entitlement.SubscriptionState, error) {
	var (
		state        entitlement.SubscriptionState
		plan, status string
	)
	err := s.db.QueryRow(ctx, `
		SELECT id, COALESCE(external_user_id, ''), plan, status, started_at, expires_at,
		       product_id, store, original_transaction_id, version, updated_at
		FROM users WHERE id = $1`, userID,
	).Scan(
		&state.UserID, &state.ExternalUserID, &plan, &status, &state.StartedAt, &state.ExpiresAt,
		&state.ProductID, &state.Store, &state.OriginalTransactionID, &state.Version, &state.UpdatedAt,
	)
	if pg.IsNotFoundError(err) {
		return entitlement.SubscriptionState{}, entitlement.ErrUserNotFound
	}
	if err != nil {
		return entitlement.SubscriptionState{}, fmt.Errorf("get subscription: %w", err)
	}

	state.Plan = entitlement.Plan(plan)
	state.Status = entitlement.Status(status)
	state.StartedAt = utcPtr(state.StartedAt)
	state.ExpiresAt = utcPtr(state.ExpiresAt)
	state.UpdatedAt = state.UpdatedAt.UTC()
	return state, nil
}

// UpdateSubscription writes next in one statement guarded by the row version.
func (s *Store) UpdateSubscription(ctx context.Context, userID uuid.UUID, current, next entitlement.SubscriptionState) error {
	updatedAt := next.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = s.now()
	}

	tag, err := s.db.Exec(ctx, `
		UPDATE users SET
			plan = $1, status = $2, started_at = $3, expires_at = $4,
			product_id = $5, store = $6, external_user_id = $7, original_transaction_id = $8,
			version = version + 1, updated_at = $9
		WHERE id = $10 AND version = $11`,
		string(next.Plan), string(next.Status), next.StartedAt, next.ExpiresAt,
		next.ProductID, next.Store, nullableString(next.ExternalUserID), next.OriginalTransactionID,
		updatedAt.UTC(), userID, current.Version,
	)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return fmt.Errorf("update subscription: external user id %q is linked to another user: %w", next.ExternalUserID, err)
		}
		return fmt.Errorf("update subscription: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	exists, err := s.Exists(ctx, userID)
	if err != nil {
		return err
	}
	if !exists {
		return entitlement.ErrUserNotFound
	}
	return entitlement.ErrConcurrentUpdate
}
