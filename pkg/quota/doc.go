// Package quota enforces per-feature monthly usage caps tied to a user's plan.
//
// Counters are keyed by user, tenant, feature and UTC calendar month. A new
// month starts every counter at zero lazily: older periods are never read.
// The limit table comes from a Source (in-memory or YAML); a limit of
// Unlimited (-1) disables metering for that plan and feature, and the
// unlimited plan bypasses the table and storage entirely on Check.
//
// The consumer contract is check, run, then increment on success only:
//
//	d, err := ledger.Gate(ctx, quota.Request{
//		UserID:  userID,
//		Plan:    plan,
//		Feature: "photo",
//	}, func(ctx context.Context) error {
//		return analyzePhoto(ctx, img)
//	})
//	var exceeded *quota.ExceededError
//	if errors.As(err, &exceeded) {
//		// respond 429 with exceeded.Used, exceeded.Limit, exceeded.ResetsAt
//	}
//
// The default path tolerates a small overshoot under concurrent load. With
// WithStrictEnforcement, Gate uses Reserve, a single conditional increment,
// and Release on failure.
package quota
