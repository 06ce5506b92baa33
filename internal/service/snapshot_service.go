package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/metrics"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository"
)

// SnapshotCache holds the newest snapshot per session.
type SnapshotCache interface {
	Put(ctx context.Context, snap *model.SessionSnapshot) (bool, error)
	Get(ctx context.Context, sessionID uuid.UUID) (*model.SessionSnapshot, error)
	Delete(ctx context.Context, sessionID uuid.UUID) error
}

// SnapshotQueue defers snapshot persistence to a background worker.
type SnapshotQueue interface {
	Push(ctx context.Context, snap *model.SessionSnapshot) error
}

// SnapshotService records client progress snapshots for recovery. The log
// is append-only; the newest row by created_at is the recovery point.
type SnapshotService struct {
	store repository.Store
	cache SnapshotCache
	queue SnapshotQueue
	now   func() time.Time
	log   zerolog.Logger
}

// NewSnapshotService creates a new SnapshotService. cache and queue may be
// nil; without a queue Enqueue writes synchronously.
func NewSnapshotService(store repository.Store, cache SnapshotCache, queue SnapshotQueue, log zerolog.Logger) *SnapshotService {
	return &SnapshotService{
		store: store,
		cache: cache,
		queue: queue,
		now:   func() time.Time { return time.Now().UTC() },
		log:   log.With().Str("component", "snapshot_service").Logger(),
	}
}

// Save persists a snapshot and the session's reported completion in one
// transaction, then refreshes the cache.
func (s *SnapshotService) Save(ctx context.Context, sessionID, studentID uuid.UUID, data model.SnapshotData) (*model.SessionSnapshot, error) {
	snap, err := model.NewSessionSnapshot(sessionID, data, s.now())
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}

	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		if _, err := ownedInProgress(ctx, tx, sessionID, studentID); err != nil {
			return err
		}
		if err := tx.Snapshots().Insert(ctx, snap); err != nil {
			return fmt.Errorf("insert snapshot: %w", err)
		}
		if err := tx.Sessions().UpdateProgress(ctx, sessionID, snap.CompletionPercentage); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrSessionCompleted
			}
			return fmt.Errorf("update progress: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.SnapshotsPersisted.WithLabelValues(metrics.SnapshotPathHTTP).Inc()
	s.cachePut(ctx, snap)
	return snap, nil
}

// Enqueue caches a snapshot and queues it for batched persistence. The
// caller gets the stamped snapshot back before it reaches the database.
func (s *SnapshotService) Enqueue(ctx context.Context, sessionID, studentID uuid.UUID, data model.SnapshotData) (*model.SessionSnapshot, error) {
	if s.queue == nil {
		return s.Save(ctx, sessionID, studentID, data)
	}

	if _, err := ownedInProgress(ctx, s.store, sessionID, studentID); err != nil {
		return nil, err
	}

	snap, err := model.NewSessionSnapshot(sessionID, data, s.now())
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	s.cachePut(ctx, snap)

	if err := s.queue.Push(ctx, snap); err != nil {
		return nil, fmt.Errorf("queue snapshot: %w", err)
	}
	return snap, nil
}

// Latest returns the newest snapshot of a session or nil if none exists.
// A cache miss falls back to the snapshot log and refills the cache.
func (s *SnapshotService) Latest(ctx context.Context, sessionID uuid.UUID) (*model.SessionSnapshot, error) {
	if s.cache != nil {
		snap, err := s.cache.Get(ctx, sessionID)
		if err != nil {
			s.log.Warn().Err(err).Str("session_id", sessionID.String()).Msg("Snapshot cache read failed, using database")
		} else if snap != nil {
			return snap, nil
		}
	}

	snap, err := s.store.Snapshots().Latest(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}

	if s.cache != nil {
		if _, err := s.cache.Put(ctx, snap); err != nil {
			s.log.Warn().Err(err).Str("session_id", sessionID.String()).Msg("Failed to refill snapshot cache")
		}
	}
	return snap, nil
}

// Forget drops the cached recovery point of a finished session.
func (s *SnapshotService) Forget(ctx context.Context, sessionID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, sessionID); err != nil {
		s.log.Warn().Err(err).Str("session_id", sessionID.String()).Msg("Failed to drop cached snapshot")
	}
}

func (s *SnapshotService) cachePut(ctx context.Context, snap *model.SessionSnapshot) {
	if s.cache == nil {
		return
	}
	if _, err := s.cache.Put(ctx, snap); err != nil {
		s.log.Warn().Err(err).Str("session_id", snap.SessionID.String()).Msg("Failed to cache snapshot")
	}
}

// ownedInProgress loads a session that belongs to studentID and still
// accepts writes.
func ownedInProgress(ctx context.Context, store repository.Store, sessionID, studentID uuid.UUID) (*model.ExamSession, error) {
	session, err := store.Sessions().GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	if session.StudentID != studentID {
		return nil, ErrSessionNotFound
	}
	if !session.InProgress() {
		return nil, ErrSessionCompleted
	}
	return session, nil
}
