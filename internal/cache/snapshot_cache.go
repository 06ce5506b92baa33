package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// setIfNewer writes the snapshot only when its timestamp is not older than
// the cached one. KEYS[1] hash key, ARGV[1] ts in unix microseconds, ARGV[2]
// data, ARGV[3] ttl seconds.
var setIfNewer = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'ts')
if cur and tonumber(cur) > tonumber(ARGV[1]) then
  return 0
end
redis.call('HSET', KEYS[1], 'ts', ARGV[1], 'data', ARGV[2])
redis.call('EXPIRE', KEYS[1], ARGV[3])
return 1
`)

// SnapshotCache keeps the newest snapshot of each session in Redis so
// recovery does not have to hit the snapshot log.
type SnapshotCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewSnapshotCache creates a SnapshotCache with the given entry TTL.
func NewSnapshotCache(rdb *redis.Client, ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{rdb: rdb, ttl: ttl}
}

// Put stores snap unless a newer snapshot is already cached. It reports
// whether the entry was written.
func (c *SnapshotCache) Put(ctx context.Context, snap *model.SessionSnapshot) (bool, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return false, fmt.Errorf("marshal snapshot: %w", err)
	}
	key := config.CacheKey.SessionLatestSnapshotKey(snap.SessionID.String())
	ttl := int64(c.ttl / time.Second)
	if ttl <= 0 {
		ttl = 1
	}

	n, err := setIfNewer.Run(ctx, c.rdb, []string{key}, snap.CreatedAt.UnixMicro(), data, ttl).Int()
	if err != nil {
		return false, fmt.Errorf("cache snapshot: %w", err)
	}
	return n == 1, nil
}

// Get returns the cached snapshot, or nil on a miss.
func (c *SnapshotCache) Get(ctx context.Context, sessionID uuid.UUID) (*model.SessionSnapshot, error) {
	key := config.CacheKey.SessionLatestSnapshotKey(sessionID.String())
	data, err := c.rdb.HGet(ctx, key, "data").Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cached snapshot: %w", err)
	}

	snap := &model.SessionSnapshot{}
	if err := json.Unmarshal(data, snap); err != nil {
		return nil, fmt.Errorf("unmarshal cached snapshot: %w", err)
	}
	return snap, nil
}

// Delete drops the cached snapshot of a session.
func (c *SnapshotCache) Delete(ctx context.Context, sessionID uuid.UUID) error {
	return c.rdb.Del(ctx, config.CacheKey.SessionLatestSnapshotKey(sessionID.String())).Err()
}
