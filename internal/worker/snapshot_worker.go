package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/metrics"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository"
)

const (
	DefaultBatchSize    = 50
	DefaultBatchTimeout = 2 * time.Second
	PollTimeout         = 1 * time.Second // Must be >= 1s to satisfy Redis
	errorBackoff        = 3 * time.Second
	requeueBackoff      = 2 * time.Second
	shutdownFlush       = 5 * time.Second
)

// SnapshotSource is the queue the worker drains.
type SnapshotSource interface {
	Pop(ctx context.Context, timeout time.Duration) (*model.SessionSnapshot, error)
	Requeue(ctx context.Context, snaps []*model.SessionSnapshot) error
}

// SnapshotWorker persists queued WebSocket snapshots in batches: a COPY of
// the whole batch first, then row-by-row inserts, then requeue of rows that
// still failed. Rows PostgreSQL rejects on their content are dropped.
type SnapshotWorker struct {
	store        repository.Store
	source       SnapshotSource
	isMalformed  func(error) bool
	batchSize    int
	batchTimeout time.Duration
	sleep        func(time.Duration)
	log          zerolog.Logger
}

// NewSnapshotWorker creates a SnapshotWorker. isMalformed reports queue
// errors for entries that must be discarded rather than retried.
func NewSnapshotWorker(
	store repository.Store,
	source SnapshotSource,
	isMalformed func(error) bool,
	batchSize int,
	batchTimeout time.Duration,
	log zerolog.Logger,
) *SnapshotWorker {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if batchTimeout <= 0 {
		batchTimeout = DefaultBatchTimeout
	}
	return &SnapshotWorker{
		store:        store,
		source:       source,
		isMalformed:  isMalformed,
		batchSize:    batchSize,
		batchTimeout: batchTimeout,
		sleep:        time.Sleep,
		log:          log.With().Str("component", "snapshot_worker").Logger(),
	}
}

// Start runs until ctx is cancelled, then flushes what is buffered.
func (w *SnapshotWorker) Start(ctx context.Context) {
	w.log.Info().Int("batch_size", w.batchSize).Dur("batch_timeout", w.batchTimeout).Msg("Worker started")

	buffer := make([]*model.SessionSnapshot, 0, w.batchSize)
	lastFlush := time.Now()

	for {
		// 1. Flush on size or age.
		if len(buffer) > 0 && (len(buffer) >= w.batchSize || time.Since(lastFlush) >= w.batchTimeout) {
			w.flush(ctx, buffer)
			buffer = buffer[:0]
			lastFlush = time.Now()
		}

		// 2. Graceful shutdown.
		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		// 3. Fetch. Pop blocks for PollTimeout when the queue is empty.
		snap, err := w.source.Pop(ctx, PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				w.shutdown(buffer)
				return
			}
			if w.isMalformed != nil && w.isMalformed(err) {
				// Cannot ever succeed; log and discard.
				w.log.Error().Err(err).Msg("Discarding malformed snapshot")
				continue
			}
			w.log.Error().Err(err).Msg("Queue error, backing off")
			w.sleep(errorBackoff)
			continue
		}
		if snap == nil {
			continue
		}
		buffer = append(buffer, snap)
	}
}

func (w *SnapshotWorker) flush(ctx context.Context, batch []*model.SessionSnapshot) {
	if _, err := w.store.Snapshots().InsertBatch(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")
		w.fallbackInsert(ctx, batch)
		return
	}
	metrics.SnapshotsPersisted.WithLabelValues(metrics.SnapshotPathQueue).Add(float64(len(batch)))
	w.updateProgress(ctx, batch)
}

func (w *SnapshotWorker) fallbackInsert(ctx context.Context, batch []*model.SessionSnapshot) {
	requeue := make([]*model.SessionSnapshot, 0)
	stored := make([]*model.SessionSnapshot, 0, len(batch))

	for _, snap := range batch {
		if err := w.store.Snapshots().Insert(ctx, snap); err != nil {
			if isPermanent(err) {
				// Retrying cannot succeed, e.g. the session was deleted.
				w.log.Error().Err(err).Str("session_id", snap.SessionID.String()).Msg("Discarding rejected snapshot")
				continue
			}
			w.log.Error().Err(err).Str("session_id", snap.SessionID.String()).Msg("Insert failed, requeueing")
			requeue = append(requeue, snap)
			continue
		}
		metrics.SnapshotsPersisted.WithLabelValues(metrics.SnapshotPathSingle).Inc()
		stored = append(stored, snap)
	}
	w.updateProgress(ctx, stored)

	if len(requeue) == 0 {
		return
	}
	if err := w.source.Requeue(ctx, requeue); err != nil {
		w.log.Error().Err(err).Int("count", len(requeue)).Msg("CRITICAL: Failed to requeue snapshots. Data loss occurred.")
		return
	}
	w.log.Info().Int("count", len(requeue)).Msg("Requeued failed snapshots")
	// Avoid thrashing while the database is down.
	w.sleep(requeueBackoff)
}

// isPermanent reports whether err is a data exception (class 22) or an
// integrity constraint violation (class 23).
func isPermanent(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || len(pgErr.Code) < 2 {
		return false
	}
	class := pgErr.Code[:2]
	return class == "22" || class == "23"
}

// updateProgress mirrors the newest completion figure of each session onto
// its row. Sessions completed in the meantime are skipped.
func (w *SnapshotWorker) updateProgress(ctx context.Context, snaps []*model.SessionSnapshot) {
	latest := make(map[uuid.UUID]*model.SessionSnapshot, len(snaps))
	for _, snap := range snaps {
		if cur, ok := latest[snap.SessionID]; !ok || snap.CreatedAt.After(cur.CreatedAt) {
			latest[snap.SessionID] = snap
		}
	}
	for id, snap := range latest {
		err := w.store.Sessions().UpdateProgress(ctx, id, snap.CompletionPercentage)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			w.log.Warn().Err(err).Str("session_id", id.String()).Msg("Failed to update session progress")
		}
	}
}

func (w *SnapshotWorker) shutdown(buffer []*model.SessionSnapshot) {
	w.log.Info().Int("buffered", len(buffer)).Msg("Worker stopping, flushing remaining buffer")
	if len(buffer) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownFlush)
	defer cancel()
	w.flush(ctx, buffer)
}
