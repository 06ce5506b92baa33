package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// MonitorPublisher pushes session activity to the exam's monitor channel.
type MonitorPublisher struct {
	rdb *redis.Client
}

// NewMonitorPublisher creates a MonitorPublisher.
func NewMonitorPublisher(rdb *redis.Client) *MonitorPublisher {
	return &MonitorPublisher{rdb: rdb}
}

// Publish sends ev to every admin watching the exam.
func (p *MonitorPublisher) Publish(ctx context.Context, examID uuid.UUID, ev model.MonitorEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal monitor event: %w", err)
	}
	return p.rdb.Publish(ctx, config.CacheKey.ExamMonitorChannel(examID.String()), payload).Err()
}

// Subscribe opens a subscription on the exam's monitor channel. The caller
// closes it.
func (p *MonitorPublisher) Subscribe(ctx context.Context, examID uuid.UUID) *redis.PubSub {
	return p.rdb.Subscribe(ctx, config.CacheKey.ExamMonitorChannel(examID.String()))
}
