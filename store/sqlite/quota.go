package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrymomot/paywall/pkg/quota"
)

const upsertCounter = `
	INSERT INTO quota_counters (user_id, tenant_id, feature, period, used, updated_at)
	VALUES (?, ?, ?, ?, 1, ?)
	ON CONFLICT (user_id, tenant_id, feature, period)
	DO UPDATE SET used = quota_counters.used + 1, updated_at = excluded.updated_at`

func (s *QuotaStore) Get(ctx context.Context, key quota.Key) (int64, error) {
	var used int64
	err := s.db.QueryRowContext(ctx, `
		SELECT used FROM quota_counters
		WHERE user_id = ? AND tenant_id = ? AND feature = ? AND period = ?`,
		key.UserID.String(), key.TenantID.String(), string(key.Feature), key.Period,
	).Scan(&used)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get quota counter: %w", err)
	}
	return used, nil
}

func (s *QuotaStore) Increment(ctx context.Context, key quota.Key) (int64, error) {
	var used int64
	err := s.db.QueryRowContext(ctx, upsertCounter+` RETURNING used`,
		key.UserID.String(), key.TenantID.String(), string(key.Feature), key.Period,
		s.now().UTC().UnixNano(),
	).Scan(&used)
	if err != nil {
		return 0, fmt.Errorf("increment quota counter: %w", err)
	}
	return used, nil
}

func (s *QuotaStore) IncrementIfBelow(ctx context.Context, key quota.Key, limit int64) (int64, bool, error) {
	if limit <= 0 {
		used, err := s.Get(ctx, key)
		return used, false, err
	}

	var used int64
	err := s.db.QueryRowContext(ctx, upsertCounter+` WHERE quota_counters.used < ? RETURNING used`,
		key.UserID.String(), key.TenantID.String(), string(key.Feature), key.Period,
		s.now().UTC().UnixNano(), limit,
	).Scan(&used)
	if errors.Is(err, sql.ErrNoRows) {
		used, err := s.Get(ctx, key)
		return used, false, err
	}
	if err != nil {
		return 0, false, fmt.Errorf("reserve quota: %w", err)
	}
	return used, true, nil
}

func (s *QuotaStore) Decrement(ctx context.Context, key quota.Key) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE quota_counters SET used = used - 1, updated_at = ?
		WHERE user_id = ? AND tenant_id = ? AND feature = ? AND period = ? AND used > 0`,
		s.now().UTC().UnixNano(),
		key.UserID.String(), key.TenantID.String(), string(key.Feature), key.Period,
	)
	if err != nil {
		return fmt.Errorf("release quota: %w", err)
	}
	return nil
}
