package entitlement

import "errors"

var (
	ErrMalformedEvent        = errors.New("malformed webhook event")
	ErrMalformedCustomerInfo = errors.New("malformed customer info payload")
	ErrInvalidEventTypes     = errors.New("invalid event type configuration")
	ErrInvalidPlan           = errors.New("invalid plan")

	ErrUserNotFound     = errors.New("user not found")
	ErrEventNotFound    = errors.New("webhook event not found")
	ErrConcurrentUpdate = errors.New("subscription state changed concurrently")

	ErrStorage = errors.New("entitlement storage failure")
)

// userNotFoundMessage is reported in Result.Error for unmatched webhook events.
const userNotFoundMessage = "user not found"
