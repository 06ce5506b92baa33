package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// ErrMalformedItem marks a queue entry that can never be decoded.
var ErrMalformedItem = errors.New("malformed queue item")

// SnapshotQueue hands snapshots to the persistence worker.
type SnapshotQueue struct {
	rdb *redis.Client
	key string
}

// NewSnapshotQueue creates a SnapshotQueue.
func NewSnapshotQueue(rdb *redis.Client) *SnapshotQueue {
	return &SnapshotQueue{rdb: rdb, key: config.WorkerKey.PersistSnapshotsQueue}
}

// Push appends snap to the persistence queue.
func (q *SnapshotQueue) Push(ctx context.Context, snap *model.SessionSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return q.rdb.RPush(ctx, q.key, data).Err()
}

// Pop blocks up to timeout for the next snapshot. It returns nil, nil when
// the queue stayed empty.
func (q *SnapshotQueue) Pop(ctx context.Context, timeout time.Duration) (*model.SessionSnapshot, error) {
	result, err := q.rdb.BLPop(ctx, timeout, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if len(result) < 2 {
		return nil, nil
	}

	var snap model.SessionSnapshot
	if err := json.Unmarshal([]byte(result[1]), &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedItem, err)
	}
	return &snap, nil
}

// Requeue pushes snaps back onto the queue in one round trip.
func (q *SnapshotQueue) Requeue(ctx context.Context, snaps []*model.SessionSnapshot) error {
	pipe := q.rdb.Pipeline()
	for _, snap := range snaps {
		data, err := json.Marshal(snap)
		if err != nil {
			return fmt.Errorf("marshal snapshot: %w", err)
		}
		pipe.RPush(ctx, q.key, data)
	}
	_, err := pipe.Exec(ctx)
	return err
}
