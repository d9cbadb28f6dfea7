package quota

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrUnknownLimit       = errors.New("no quota limit configured for plan and feature")
	ErrQuotaExceeded      = errors.New("quota exceeded")
	ErrInvalidLimits      = errors.New("invalid quota limits configuration")
	ErrFailedToLoadLimits = errors.New("failed to load quota limits")
	ErrCounterStorage     = errors.New("quota counter storage failure")
)

// ExceededError carries the values a client needs to render a quota-exceeded response.
type ExceededError struct {
	Feature  Feature
	Used     int64
	Limit    int64
	ResetsAt time.Time
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("%s: %s used %d of %d, resets at %s",
		ErrQuotaExceeded, e.Feature, e.Used, e.Limit, e.ResetsAt.Format(time.RFC3339))
}

func (e *ExceededError) Unwrap() error {
	return ErrQuotaExceeded
}

func exceeded(feature Feature, d Decision) *ExceededError {
	return &ExceededError{Feature: feature, Used: d.Used, Limit: d.Limit, ResetsAt: d.ResetsAt}
}
