package entitlement

import (
	"time"

	"github.com/google/uuid"
)

// Plan is the tier gating feature availability and quota limits.
type Plan string

const (
	PlanFree      Plan = "free"
	PlanPremium   Plan = "premium"
	PlanUnlimited Plan = "unlimited" // administrative grant, never changed by billing signals
)

// Valid reports whether p is one of the known plans.
func (p Plan) Valid() bool {
	switch p {
	case PlanFree, PlanPremium, PlanUnlimited:
		return true
	}
	return false
}

// Status represents the current state of a user's subscription.
type Status string

const (
	StatusActive   Status = "active"
	StatusCanceled Status = "canceled" // still has access, flagged (billing issue or auto-renew off)
	StatusExpired  Status = "expired"
)

// Classification is the single, precomputed category of a provider event type.
type Classification string

const (
	ClassActivation   Classification = "activation"
	ClassDeactivation Classification = "deactivation"
	ClassBillingIssue Classification = "billing_issue"
	ClassOther        Classification = "other"
)

// WebhookEvent is the canonical, append-only audit record of one provider event.
// Rows are keyed by EventID and are never updated once recorded.
type WebhookEvent struct {
	EventID                string
	EventType              string
	Classification         Classification
	ResolvedUserID         *uuid.UUID // nil when the user could not be matched
	ExternalUserID         string
	OriginalExternalUserID string
	ProductID              string
	Store                  string
	Environment            string
	PriceCents             int64
	Currency               string
	ExpiresAt              *time.Time
	PurchasedAt            *time.Time
	OriginalTransactionID  string
	RawPayload             []byte // request body, stored verbatim
	ReceivedAt             time.Time
}

// SubscriptionState is the subscription part of the user record.
// It is shared by the webhook path and the client sync path.
type SubscriptionState struct {
	UserID                uuid.UUID
	Plan                  Plan
	Status                Status
	StartedAt             *time.Time // sticky: never overwritten once set
	ExpiresAt             *time.Time
	ProductID             string
	Store                 string
	ExternalUserID        string
	OriginalTransactionID string
	Version               int64
	UpdatedAt             time.Time
}

// Result is the outcome of handling one webhook delivery.
type Result struct {
	ProcessedNewly bool
	UserID         *uuid.UUID
	Error          string
}

// SyncResult is the outcome of a client sync.
type SyncResult struct {
	Plan      Plan
	Status    Status
	ExpiresAt *time.Time
	Signal    SignalName // empty when no premium signal matched
}

// mergeString keeps the prior value unless next is non-empty.
func mergeString(prior, next string) string {
	if next == "" {
		return prior
	}
	return next
}
