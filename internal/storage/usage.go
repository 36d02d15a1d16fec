package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Default daily-cap tracking values.
const (
	// DefaultUsageKeyTTL keeps counters one full window past their day so a
	// late callback can still release a slot.
	DefaultUsageKeyTTL = 48 * time.Hour

	usageKeyPrefix = "apply:used:"
)

// DailyUsageTracker coordinates the per-user daily submission cap across
// dispatcher instances using Redis. A slot is reserved before dispatch and
// released again if the attempt ends without a submitted application, so
// failed and skipped attempts never consume quota.
type DailyUsageTracker struct {
	redis  redis.Cmdable
	keyTTL time.Duration
	now    func() time.Time
}

// DailyUsageTrackerConfig holds configuration for the usage tracker.
type DailyUsageTrackerConfig struct {
	// Redis is the client for cross-instance coordination. Required.
	Redis redis.Cmdable

	// KeyTTL is the TTL for counter keys. Default: 48h.
	KeyTTL time.Duration

	// Now overrides the clock, for tests. Default: time.Now.
	Now func() time.Time
}

// NewDailyUsageTracker creates a new tracker.
func NewDailyUsageTracker(cfg *DailyUsageTrackerConfig) (*DailyUsageTracker, error) {
	if cfg == nil || cfg.Redis == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	keyTTL := cfg.KeyTTL
	if keyTTL == 0 {
		keyTTL = DefaultUsageKeyTTL
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &DailyUsageTracker{redis: cfg.Redis, keyTTL: keyTTL, now: now}, nil
}

// key returns the counter key for the current UTC day.
func (t *DailyUsageTracker) key(userID int64) string {
	return fmt.Sprintf("%s%d:%s", usageKeyPrefix, userID, t.now().UTC().Format("2006-01-02"))
}

// Reserve atomically claims one submission slot for the user. It returns
// false when the daily cap is already exhausted; the caller should park the
// entry in standby rather than fail it.
func (t *DailyUsageTracker) Reserve(ctx context.Context, userID int64, cap int) (bool, error) {
	if cap <= 0 {
		return false, nil
	}

	key := t.key(userID)
	used, err := t.redis.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to reserve submission slot: %w", err)
	}
	// Refresh the TTL on every reservation so the key always outlives its day.
	if err := t.redis.Expire(ctx, key, t.keyTTL).Err(); err != nil {
		return false, fmt.Errorf("failed to set usage key TTL: %w", err)
	}

	if used > int64(cap) {
		if err := t.redis.Decr(ctx, key).Err(); err != nil {
			return false, fmt.Errorf("failed to roll back over-cap reservation: %w", err)
		}
		return false, nil
	}

	return true, nil
}

// Release returns a previously reserved slot, used when an attempt ends
// failed or skipped. The counter never goes below zero.
func (t *DailyUsageTracker) Release(ctx context.Context, userID int64) error {
	key := t.key(userID)
	used, err := t.redis.Decr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("failed to release submission slot: %w", err)
	}
	if used < 0 {
		if err := t.redis.Set(ctx, key, 0, t.keyTTL).Err(); err != nil {
			return fmt.Errorf("failed to clamp usage counter: %w", err)
		}
	}
	return nil
}

// Used returns how many slots the user has consumed in the current window.
func (t *DailyUsageTracker) Used(ctx context.Context, userID int64) (int, error) {
	used, err := t.redis.Get(ctx, t.key(userID)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read usage counter: %w", err)
	}
	return used, nil
}
