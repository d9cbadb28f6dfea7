// Package redisquota implements quota.Store on Redis. Each counter is a plain
// integer key that expires a retention window after its period ends.
package redisquota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/paywall/pkg/quota"
)

// DefaultRetention keeps a finished period's counters for reporting.
const DefaultRetention = 400 * 24 * time.Hour

// incrementIfBelow increments KEYS[1] only while it is below ARGV[1] and
// sets its expiry on creation. Returns {used, allowed}.
var incrementIfBelow = redis.NewScript(`
local used = tonumber(redis.call("GET", KEYS[1]) or "0")
if used >= tonumber(ARGV[1]) then
	return {used, 0}
end
used = redis.call("INCR", KEYS[1])
if used == 1 then
	redis.call("EXPIREAT", KEYS[1], ARGV[2])
end
return {used, 1}
`)

// incrementWithExpiry increments KEYS[1] and sets its expiry to ARGV[1] on
// creation, so a counted unit never lacks an expiry.
var incrementWithExpiry = redis.NewScript(`
local used = redis.call("INCR", KEYS[1])
if used == 1 then
	redis.call("EXPIREAT", KEYS[1], ARGV[1])
end
return used
`)

// decrementFloor decrements KEYS[1] unless it is missing or zero.
var decrementFloor = redis.NewScript(`
local used = tonumber(redis.call("GET", KEYS[1]) or "0")
if used > 0 then
	return redis.call("DECR", KEYS[1])
end
return used
`)

// Store implements quota.Store.
type Store struct {
	client    redis.Cmdable
	prefix    string
	retention time.Duration
}

var _ quota.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithKeyPrefix namespaces keys, e.g. "paywall:".
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// WithRetention sets how long counters outlive their period.
func WithRetention(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.retention = d
		}
	}
}

func New(client redis.Cmdable, opts ...Option) *Store {
	if client == nil {
		panic("redisquota: client is required")
	}
	s := &Store{client: client, retention: DefaultRetention}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) key(k quota.Key) string {
	return fmt.Sprintf("%squota:%s:%s:%s:%s", s.prefix, k.Period, k.TenantID, k.UserID, k.Feature)
}

// expireAt returns the Unix time the counter for period expires.
func (s *Store) expireAt(period string) int64 {
	start, err := time.Parse("2006-01", period)
	if err != nil {
		return time.Now().Add(s.retention).Unix()
	}
	return quota.NextReset(start).Add(s.retention).Unix()
}

func (s *Store) Get(ctx context.Context, key quota.Key) (int64, error) {
	used, err := s.client.Get(ctx, s.key(key)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get quota counter: %w", err)
	}
	return used, nil
}

func (s *Store) Increment(ctx context.Context, key quota.Key) (int64, error) {
	used, err := incrementWithExpiry.Run(ctx, s.client, []string{s.key(key)}, s.expireAt(key.Period)).Int64()
	if err != nil {
		return 0, fmt.Errorf("increment quota counter: %w", err)
	}
	return used, nil
}

func (s *Store) IncrementIfBelow(ctx context.Context, key quota.Key, limit int64) (int64, bool, error) {
	res, err := incrementIfBelow.Run(ctx, s.client, []string{s.key(key)}, limit, s.expireAt(key.Period)).Int64Slice()
	if err != nil {
		return 0, false, fmt.Errorf("reserve quota: %w", err)
	}
	if len(res) != 2 {
		return 0, false, fmt.Errorf("reserve quota: unexpected script result %v", res)
	}
	return res[0], res[1] == 1, nil
}

func (s *Store) Decrement(ctx context.Context, key quota.Key) error {
	if err := decrementFloor.Run(ctx, s.client, []string{s.key(key)}).Err(); err != nil {
		return fmt.Errorf("release quota: %w", err)
	}
	return nil
}
