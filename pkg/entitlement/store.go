package entitlement

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TransitionFunc computes the next subscription state from the current one.
// It must be pure: UpdateSubscription may call it more than once when the row
// changes between read and write. Returning changed=false skips the write.
type TransitionFunc func(current SubscriptionState) (next SubscriptionState, changed bool)

// UserStore defines the user persistence needed by both writer paths.
type UserStore interface {
	// FindByExternalID resolves the billing provider's user id to an internal user.
	// Returns ErrUserNotFound if no user is linked to externalID.
	FindByExternalID(ctx context.Context, externalID string) (uuid.UUID, error)

	// Exists reports whether a user with the given primary key exists.
	Exists(ctx context.Context, userID uuid.UUID) (bool, error)

	// GetSubscription returns the subscription state of a user.
	// Returns ErrUserNotFound if the user does not exist.
	GetSubscription(ctx context.Context, userID uuid.UUID) (SubscriptionState, error)

	// UpdateSubscription writes next with a single conditional update that only
	// succeeds while the stored version still equals current.Version; the stored
	// version is incremented by one.
	// Returns ErrConcurrentUpdate when the version changed since current was read.
	UpdateSubscription(ctx context.Context, userID uuid.UUID, current SubscriptionState, next SubscriptionState) error
}

// Ledger is the append-only, idempotent store of webhook events.
type Ledger interface {
	// Get returns a recorded event. Returns ErrEventNotFound if the id was never recorded.
	Get(ctx context.Context, eventID string) (*WebhookEvent, error)

	// Record inserts the event unless its id is already present.
	// inserted is false when another delivery recorded the id first.
	Record(ctx context.Context, event *WebhookEvent) (inserted bool, err error)

	// RecordAndApply inserts the event unless its id is already present and, in
	// the same transaction, writes next for *event.ResolvedUserID guarded by
	// current.Version. Nothing is written when inserted is false. On any error,
	// ErrConcurrentUpdate included, neither the event nor the state is stored.
	RecordAndApply(ctx context.Context, event *WebhookEvent, current, next SubscriptionState) (inserted bool, err error)

	// ListUnmatched returns events recorded without a resolved user, newest first.
	ListUnmatched(ctx context.Context, since time.Time, limit int) ([]WebhookEvent, error)
}

// RawArchive keeps a copy of raw payloads outside the database.
type RawArchive interface {
	Archive(ctx context.Context, event *WebhookEvent) error
}
