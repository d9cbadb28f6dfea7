// Package entitlement converges billing signals into one subscription state per user.
//
// Two independent writer paths update the same record:
//
//   - Resolver handles provider webhooks. Each delivery is normalized,
//     classified once against the configured EventTypes, checked against the
//     idempotent Ledger, matched to an internal user and applied with ApplyEvent.
//   - Reconciler handles the mobile client's sync call after a purchase or
//     restore. Premium access is inferred with an ordered chain of pure Signal
//     detectors (see DefaultSignals) and applied with ApplySync.
//
// Both paths write through UserStore.UpdateSubscription, a conditional update
// on the row version. A conflicting write re-reads the row and re-applies the
// transition, so neither writer loses the other's changes, while the result
// stays last-applied-wins: an activation followed by a deactivation leaves the
// user on the free plan and the reverse order leaves them premium.
//
// The unlimited plan is an administrative grant. Billing transitions update
// its status and metadata but never its plan value.
//
// Basic usage:
//
//	types, err := entitlement.NewEventTypes(activation, deactivation, "BILLING_ISSUE")
//	if err != nil {
//		return err
//	}
//	resolver := entitlement.NewResolver(types, users, ledger,
//		entitlement.WithLogger(log),
//		entitlement.WithObserver(collectors),
//	)
//	res, err := resolver.Handle(ctx, body)
//
// Handle returns an error only for malformed payloads (ErrMalformedEvent) and
// persistence failures (ErrStorage). Duplicate deliveries and unmatched users
// are successful outcomes reported through Result.
package entitlement
