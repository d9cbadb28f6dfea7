package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/paywall/pkg/entitlement"
)

const selectSubscription = `
	SELECT id, COALESCE(external_user_id, ''), plan, status, started_at, expires_at,
	       product_id, store, original_transaction_id, version, updated_at
	FROM users WHERE id = ?`

// CreateUser inserts a user row. Zero plan and status default to free and active.
func (s *Store) CreateUser(ctx context.Context, state entitlement.SubscriptionState) error {
	if state.Plan == "" {
		state.Plan = entitlement.PlanFree
	}
	if state.Status == "" {
		state.Status = entitlement.StatusActive
	}
	now := s.now().UTC().UnixNano()

	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO users (
			id, external_user_id, plan, status, started_at, expires_at,
			product_id, store, original_transaction_id, version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		state.UserID.String(), nullableString(state.ExternalUserID), string(state.Plan), string(state.Status),
		nullableNanos(state.StartedAt), nullableNanos(state.ExpiresAt),
		state.ProductID, state.Store, state.OriginalTransactionID, now, now,
	)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *Store) FindByExternalID(ctx context.Context, externalID string) (uuid.UUID, error) {
	var raw string
	err := s.conn.QueryRowContext(ctx,
		`SELECT id FROM users WHERE external_user_id = ?`, externalID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, entitlement.ErrUserNotFound
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("find user by external id: %w", err)
	}
	return uuid.Parse(raw)
}

func (s *Store) Exists(ctx context.Context, userID uuid.UUID) (bool, error) {
	var exists bool
	err := s.conn.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE id = ?)`, userID.String(),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check user exists: %w", err)
	}
	return exists, nil
}

func (s *Store) GetSubscription(ctx context.Context, userID uuid.UUID) (entitlement.SubscriptionState, error) {
	var (
		state            entitlement.SubscriptionState
		id, plan, status string
		started, expires sql.NullInt64
		updated          int64
	)
	err := s.conn.QueryRowContext(ctx, selectSubscription, userID.String()).Scan(
		&id, &state.ExternalUserID, &plan, &status, &started, &expires,
		&state.ProductID, &state.Store, &state.OriginalTransactionID, &state.Version, &updated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return entitlement.SubscriptionState{}, entitlement.ErrUserNotFound
	}
	if err != nil {
		return entitlement.SubscriptionState{}, fmt.Errorf("get subscription: %w", err)
	}

	state.UserID, err = uuid.Parse(id)
	if err != nil {
		return entitlement.SubscriptionState{}, fmt.Errorf("parse user id: %w", err)
	}
	state.Plan = entitlement.Plan(plan)
	state.Status = entitlement.Status(status)
	state.StartedAt = fromNanos(started)
	state.ExpiresAt = fromNanos(expires)
	state.UpdatedAt = time.Unix(0, updated).UTC()
	return state, nil
}

func (s *Store) UpdateSubscription(ctx context.Context, userID uuid.UUID, current, next entitlement.SubscriptionState) error {
	updatedAt := next.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = s.now()
	}

	res, err := s.conn.ExecContext(ctx, `
		UPDATE users SET
			plan = ?, status = ?, started_at = ?, expires_at = ?,
			product_id = ?, store = ?, external_user_id = ?, original_transaction_id = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		string(next.Plan), string(next.Status), nullableNanos(next.StartedAt), nullableNanos(next.ExpiresAt),
		next.ProductID, next.Store, nullableString(next.ExternalUserID), next.OriginalTransactionID,
		updatedAt.UTC().UnixNano(), userID.String(), current.Version,
	)
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	if n == 1 {
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
