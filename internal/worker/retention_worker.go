package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/metrics"
	"github.com/stemsi/exstem-proctor/internal/repository"
)

// Locker claims a cross-instance lock for a duration.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// RetentionWorker trims the snapshot log of completed sessions down to the
// newest few rows per session. Only one instance sweeps per interval.
type RetentionWorker struct {
	store    repository.Store
	locker   Locker
	keep     int
	interval time.Duration
	log      zerolog.Logger
}

// NewRetentionWorker creates a RetentionWorker. locker may be nil for a
// single-instance deployment.
func NewRetentionWorker(store repository.Store, locker Locker, keep int, interval time.Duration, log zerolog.Logger) *RetentionWorker {
	return &RetentionWorker{
		store:    store,
		locker:   locker,
		keep:     keep,
		interval: interval,
		log:      log.With().Str("component", "retention_worker").Logger(),
	}
}

// Start sweeps every interval until ctx is cancelled.
func (w *RetentionWorker) Start(ctx context.Context) {
	if w.keep <= 0 || w.interval <= 0 {
		w.log.Info().Msg("Snapshot retention disabled")
		return
	}
	w.log.Info().Int("keep", w.keep).Dur("interval", w.interval).Msg("Worker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopped")
			return
		case <-ticker.C:
			if _, err := w.Sweep(ctx); err != nil && ctx.Err() == nil {
				w.log.Error().Err(err).Msg("Retention sweep failed")
			}
		}
	}
}

// Sweep runs one pruning pass and returns the number of rows deleted.
func (w *RetentionWorker) Sweep(ctx context.Context) (int64, error) {
	if w.locker != nil {
		// Hold the lock slightly shorter than the interval so the next tick
		// anywhere in the fleet can claim it again.
		ok, err := w.locker.TryLock(ctx, config.CacheKey.RetentionLockKey(), w.interval*9/10)
		if err != nil {
			return 0, err
		}
		if !ok {
			w.log.Debug().Msg("Another instance holds the retention lock")
			return 0, nil
		}
	}

	deleted, err := w.store.Snapshots().Prune(ctx, w.keep)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		metrics.SnapshotsPruned.Add(float64(deleted))
		w.log.Info().Int64("deleted", deleted).Msg("Pruned old snapshots")
	}
	return deleted, nil
}
