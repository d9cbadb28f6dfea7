package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/paywall/pkg/entitlement"
	"github.com/dmitrymomot/paywall/pkg/pg"
)

const eventColumns = `
	event_id, event_type, classification, resolved_user_id, external_user_id,
	original_external_user_id, product_id, store, environment, price_cents, currency,
	expires_at, purchased_at, original_transaction_id, raw_payload, received_at`

const defaultListLimit = 100

func (s *Store) Record(ctx context.Context, e *entitlement.WebhookEvent) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		INSERT INTO webhook_events (`+eventColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (event_id) DO NOTHING`,
		e.EventID, e.EventType, string(e.Classification), e.ResolvedUserID, e.ExternalUserID,
		e.OriginalExternalUserID, e.ProductID, e.Store, e.Environment, e.PriceCents, e.Currency,
		e.ExpiresAt, e.PurchasedAt, e.OriginalTransactionID, e.RawPayload, e.ReceivedAt.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("insert webhook event: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// RecordAndApply claims the event id and writes the subscription state in one
// transaction. A conflicting insert waits for the other transaction and then
// affects no row, so at most one delivery writes.
func (s *Store) RecordAndApply(ctx context.Context, e *entitlement.WebhookEvent, current, next entitlement.SubscriptionState) (bool, error) {
	if e.ResolvedUserID == nil {
		return false, errors.New("record webhook event: resolved user id is required")
	}

	var inserted bool
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		txs := &Store{db: tx, now: s.now}
		ok, err := txs.Record(ctx, e)
		if err != nil || !ok {
			return err
		}
		if err := txs.UpdateSubscription(ctx, *e.ResolvedUserID, current, next); err != nil {
			return err
		}
		inserted = true
		return nil
	})
	if pg.IsSerializationError(err) {
		// rolled back; the caller re-reads the state and tries again
		return false, errors.Join(entitlement.ErrConcurrentUpdate, err)
	}
	if err != nil {
		return false, err
	}
	return inserted, nil
}

func (s *Store) Get(ctx context.Context, eventID string) (*entitlement.WebhookEvent, error) {
	row := s.db.QueryRow(ctx, `SELECT `+eventColumns+` FROM webhook_events WHERE event_id = $1`, eventID)
	e, err := scanEvent(row)
	if pg.IsNotFoundError(err) {
		return nil, entitlement.ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get webhook event: %w", err)
	}
	return e, nil
}

func (s *Store) ListUnmatched(ctx context.Context, since time.Time, limit int) ([]entitlement.WebhookEvent, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := s.db.Query(ctx, `
		SELECT `+eventColumns+` FROM webhook_events
		WHERE resolved_user_id IS NULL AND received_at >= $1
		ORDER BY received_at DESC
		LIMIT $2`, since.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("list unmatched webhook events: %w", err)
	}
	defer rows.Close()

	var events []entitlement.WebhookEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan webhook event: %w", err)
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list unmatched webhook events: %w", err)
	}
	return events, nil
}

func scanEvent(row pgx.Row) (*entitlement.WebhookEvent, error) {
	var (
		e     entitlement.WebhookEvent
		class string
	)
	err := row.Scan(
		&e.EventID, &e.EventType, &class, &e.ResolvedUserID, &e.ExternalUserID,
		&e.OriginalExternalUserID, &e.ProductID, &e.Store, &e.Environment, &e.PriceCents, &e.Currency,
		&e.ExpiresAt, &e.PurchasedAt, &e.OriginalTransactionID, &e.RawPayload, &e.ReceivedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Classification = entitlement.Classification(class)
	e.ExpiresAt = utcPtr(e.ExpiresAt)
	e.PurchasedAt = utcPtr(e.PurchasedAt)
	e.ReceivedAt = e.ReceivedAt.UTC()
	return &e, nil
}
