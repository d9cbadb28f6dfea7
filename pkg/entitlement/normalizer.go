package entitlement

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// webhookEnvelope is the subset of the provider payload consumed by the normalizer.
type webhookEnvelope struct {
	APIVersion string        `json:"api_version"`
	Event      *webhookEvent `json:"event"`
}

type webhookEvent struct {
	ID                       string   `json:"id"`
	Type                     string   `json:"type"`
	AppUserID                string   `json:"app_user_id"`
	OriginalAppUserID        string   `json:"original_app_user_id"`
	ProductID                string   `json:"product_id"`
	Store                    string   `json:"store"`
	Environment              string   `json:"environment"`
	PriceInPurchasedCurrency *float64 `json:"price_in_purchased_currency"`
	Currency                 string   `json:"currency"`
	ExpirationAtMs           *int64   `json:"expiration_at_ms"`
	PurchasedAtMs            *int64   `json:"purchased_at_ms"`
	OriginalTransactionID    string   `json:"original_transaction_id"`
}

// Normalizer maps raw provider payloads into WebhookEvent records.
type Normalizer struct {
	types *EventTypes
	now   func() time.Time
}

// NewNormalizer creates a normalizer classifying events with types.
// A nil types value falls back to DefaultEventTypes.
func NewNormalizer(types *EventTypes, now func() time.Time) *Normalizer {
	if types == nil {
		types = DefaultEventTypes()
	}
	if now == nil {
		now = time.Now
	}
	return &Normalizer{types: types, now: now}
}

// Normalize decodes body and returns the canonical event with its classification.
func (n *Normalizer) Normalize(body []byte) (*WebhookEvent, error) {
	var env webhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, errors.Join(ErrMalformedEvent, err)
	}
	if env.Event == nil {
		return nil, fmt.Errorf("%w: missing event object", ErrMalformedEvent)
	}

	raw := env.Event
	eventID := strings.TrimSpace(raw.ID)
	if eventID == "" {
		return nil, fmt.Errorf("%w: missing event id", ErrMalformedEvent)
	}

	externalID := strings.TrimSpace(raw.AppUserID)
	originalID := strings.TrimSpace(raw.OriginalAppUserID)
	if externalID == "" {
		externalID = originalID
	}

	payload := make([]byte, len(body))
	copy(payload, body)

	return &WebhookEvent{
		EventID:                eventID,
		EventType:              raw.Type,
		Classification:         n.types.Classify(raw.Type),
		ExternalUserID:         externalID,
		OriginalExternalUserID: originalID,
		ProductID:              raw.ProductID,
		Store:                  raw.Store,
		Environment:            raw.Environment,
		PriceCents:             toCents(raw.PriceInPurchasedCurrency),
		Currency:               raw.Currency,
		ExpiresAt:              fromUnixMillis(raw.ExpirationAtMs),
		PurchasedAt:            fromUnixMillis(raw.PurchasedAtMs),
		OriginalTransactionID:  raw.OriginalTransactionID,
		RawPayload:             payload,
		ReceivedAt:             n.now().UTC(),
	}, nil
}

func toCents(price *float64) int64 {
	if price == nil {
		return 0
	}
	return int64(math.Round(*price * 100))
}

func fromUnixMillis(ms *int64) *time.Time {
	if ms == nil || *ms <= 0 {
		return nil
	}
	t := time.UnixMilli(*ms).UTC()
	return &t
}
