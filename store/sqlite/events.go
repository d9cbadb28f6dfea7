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

const eventColumns = `
	event_id, event_type, classification, resolved_user_id, external_user_id,
	original_external_user_id, product_id, store, environment, price_cents, currency,
	expires_at, purchased_at, original_transaction_id, raw_payload, received_at`

const defaultListLimit = 100

func (s *Store) Record(ctx context.Context, e *entitlement.WebhookEvent) (bool, error) {
	var resolved any
	if e.ResolvedUserID != nil {
		resolved = e.ResolvedUserID.String()
	}

	res, err := s.conn.ExecContext(ctx, `
		INSERT INTO webhook_events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (event_id) DO NOTHING`,
		e.EventID, e.EventType, string(e.Classification), resolved, e.ExternalUserID,
		e.OriginalExternalUserID, e.ProductID, e.Store, e.Environment, e.PriceCents, e.Currency,
		nullableNanos(e.ExpiresAt), nullableNanos(e.PurchasedAt), e.OriginalTransactionID,
		e.RawPayload, e.ReceivedAt.UTC().UnixNano(),
	)
	if err != nil {
		return false, fmt.Errorf("insert webhook event: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert webhook event: %w", err)
	}
	return n == 1, nil
}

// RecordAndApply claims the event id and writes the subscription state in one
// transaction; the insert takes the database write lock, so a concurrent
// delivery of the same id sees the row and writes nothing.
func (s *Store) RecordAndApply(ctx context.Context, e *entitlement.WebhookEvent, current, next entitlement.SubscriptionState) (bool, error) {
	if e.ResolvedUserID == nil {
		return false, errors.New("record webhook event: resolved user id is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	txs := &Store{db: s.db, conn: tx, now: s.now}
	inserted, err := txs.Record(ctx, e)
	if err != nil || !inserted {
		return false, err
	}
	if err := txs.UpdateSubscription(ctx, *e.ResolvedUserID, current, next); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit transaction: %w", err)
	}
	return true, nil
}

func (s *Store) Get(ctx context.Context, eventID string) (*entitlement.WebhookEvent, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM webhook_events WHERE event_id = ?`, eventID)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
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
	var sinceNanos int64
	if since.After(time.Unix(0, 0)) {
		sinceNanos = since.UnixNano()
	}

	rows, err := s.conn.QueryContext(ctx, `
		SELECT `+eventColumns+` FROM webhook_events
		WHERE resolved_user_id IS NULL AND received_at >= ?
		ORDER BY received_at DESC
		LIMIT ?`, sinceNanos, limit)
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

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (*entitlement.WebhookEvent, error) {
	var (
		e                 entitlement.WebhookEvent
		class             string
		resolved          sql.NullString
		expires, purchase sql.NullInt64
		received          int64
	)
	err := row.Scan(
		&e.EventID, &e.EventType, &class, &resolved, &e.ExternalUserID,
		&e.OriginalExternalUserID, &e.ProductID, &e.Store, &e.Environment, &e.PriceCents, &e.Currency,
		&expires, &purchase, &e.OriginalTransactionID, &e.RawPayload, &received,
	)
	if err != nil {
		return nil, err
	}

	e.Classification = entitlement.Classification(class)
	if resolved.Valid {
		id, err := uuid.Parse(resolved.String)
		if err != nil {
			return nil, fmt.Errorf("parse resolved user id: %w", err)
		}
		e.ResolvedUserID = &id
	}
	e.ExpiresAt = fromNanos(expires)
	e.PurchasedAt = fromNanos(purchase)
	e.ReceivedAt = time.Unix(0, received).UTC()
	return &e, nil
}
