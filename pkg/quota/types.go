package quota

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/paywall/pkg/entitlement"
)

// Feature identifies a metered operation, e.g. "photo" or "ocr".
type Feature string

// Unlimited as a limit value disables metering for a plan and feature.
const Unlimited int64 = -1

// Limits is the per-plan, per-feature monthly allowance table.
type Limits map[entitlement.Plan]map[Feature]int64

// Key addresses one monthly counter.
type Key struct {
	UserID   uuid.UUID
	TenantID uuid.UUID // uuid.Nil for single-tenant deployments
	Feature  Feature
	Period   string // calendar month in UTC, "2006-01"
}

// Request identifies the caller and the metered feature.
type Request struct {
	UserID   uuid.UUID
	TenantID uuid.UUID
	Plan     entitlement.Plan
	Feature  Feature
}

// Decision is the result of a quota check. A denied decision is not an error.
type Decision struct {
	Allowed   bool
	Used      int64
	Limit     int64 // Unlimited when metering is disabled
	ResetsAt  time.Time
	Unlimited bool
	Period    string // counter period the decision was made in, e.g. "2025-03"
}

// Remaining returns how many operations are left in the period, or -1 when unlimited.
func (d Decision) Remaining() int64 {
	if d.Unlimited || d.Limit == Unlimited {
		return -1
	}
	return max(d.Limit-d.Used, 0)
}

// Store persists monthly counters. Implementations must treat missing
// counters as zero and create them lazily.
type Store interface {
	// Get returns the counter value, 0 when absent.
	Get(ctx context.Context, key Key) (int64, error)

	// Increment adds one to the counter and returns the new value.
	Increment(ctx context.Context, key Key) (int64, error)

	// IncrementIfBelow adds one only while the counter is below limit, as a
	// single atomic operation. ok is false when the limit was already reached;
	// used is the counter value after the call.
	IncrementIfBelow(ctx context.Context, key Key, limit int64) (used int64, ok bool, err error)

	// Decrement subtracts one, never going below zero.
	Decrement(ctx context.Context, key Key) error
}

// Source loads the limit table.
type Source interface {
	Load(ctx context.Context) (Limits, error)
}
