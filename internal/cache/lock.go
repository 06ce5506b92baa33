package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Locker hands out short-lived cross-instance locks.
type Locker struct {
	rdb *redis.Client
}

// NewLocker creates a Locker.
func NewLocker(rdb *redis.Client) *Locker {
	return &Locker{rdb: rdb}
}

// TryLock claims key for ttl. It reports false when another holder has it.
// The lock is never released early; it simply expires.
func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.rdb.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
}
