package postgres

import (
	"context"
	"fmt"

	"github.com/dmitrymomot/paywall/pkg/pg"
	"github.com/dmitrymomot/paywall/pkg/quota"
)

const upsertCounter = `
	INSERT INTO quota_counters (user_id, tenant_id, feature, period, used)
	VALUES ($1, $2, $3, $4, 1)
	ON CONFLICT (user_id, tenant_id, feature, period)
	DO UPDATE SET used = quota_counters.used + 1, updated_at = now()`

func (s *QuotaStore) Get(ctx context.Context, key quota.Key) (int64, error) {
	var used int64
	err := s.db.QueryRow(ctx, `
		SELECT used FROM quota_counters
		WHERE user_id = $1 AND tenant_id = $2 AND feature = $3 AND period = $4`,
		key.UserID, key.TenantID, string(key.Feature), key.Period,
	).Scan(&used)
	if pg.IsNotFoundError(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get quota counter: %w", err)
	}
	return used, nil
}

func (s *QuotaStore) Increment(ctx context.Context, key quota.Key) (int64, error) {
	var used int64
	err := s.db.QueryRow(ctx, upsertCounter+` RETURNING used`,
		key.UserID, key.TenantID, string(key.Feature), key.Period,
	).Scan(&used)
	if err != nil {
		return 0, fmt.Errorf("increment quota counter: %w", err)
	}
	return used, nil
}

// IncrementIfBelow is a single conditional upsert; the row lock taken by
// ON CONFLICT serializes concurrent reservations.
func (s *QuotaStore) IncrementIfBelow(ctx context.Context, key quota.Key, limit int64) (int64, bool, error) {
	if limit <= 0 {
		used, err := s.Get(ctx, key)
		return used, false, err
	}

	var used int64
	err := s.db.QueryRow(ctx, upsertCounter+` WHERE quota_counters.used < $5 RETURNING used`,
		key.UserID, key.TenantID, string(key.Feature), key.Period, limit,
	).Scan(&used)
	if pg.IsNotFoundError(err) {
		used, err := s.Get(ctx, key)
		return used, false, err
	}
	if err != nil {
		return 0, false, fmt.Errorf("reserve quota: %w", err)
	}
	return used, true, nil
}

func (s *QuotaStore) Decrement(ctx context.Context, key quota.Key) error {
	_, err := s.db.Exec(ctx, `
		UPDATE quota_counters SET used = used - 1, updated_at = now()
		WHERE user_id = $1 AND tenant_id = $2 AND feature = $3 AND period = $4 AND used > 0`,
		key.UserID, key.TenantID, string(key.Feature), key.Period,
	)
	if err != nil {
		return fmt.Errorf("release quota: %w", err)
	}
	return nil
}
