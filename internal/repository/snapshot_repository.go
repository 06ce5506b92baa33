package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stemsi/exstem-proctor/internal/database"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// SnapshotRepository handles the append-only snapshot log.
type SnapshotRepository struct {
	db database.DBTX
}

// NewSnapshotRepository creates a new SnapshotRepository.
func NewSnapshotRepository(db database.DBTX) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Insert appends one snapshot and fills in its ID.
func (r *SnapshotRepository) Insert(ctx context.Context, s *model.SessionSnapshot) error {
	return r.db.QueryRow(ctx,
		`INSERT INTO session_snapshots (session_id, snapshot_data, responses_count, violations_count,
		                                completion_percentage, current_question_index, time_remaining, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		s.SessionID, []byte(s.Data), s.ResponsesCount, s.ViolationsCount,
		s.CompletionPercentage, s.CurrentQuestionIndex, s.TimeRemaining, s.CreatedAt,
	).Scan(&s.ID)
}

// InsertBatch bulk-loads snapshots with COPY. Either every row lands or none.
func (r *SnapshotRepository) InsertBatch(ctx context.Context, snaps []*model.SessionSnapshot) (int64, error) {
	rows := make([][]any, 0, len(snaps))
	for _, s := range snaps {
		rows = append(rows, []any{
			s.SessionID, []byte(s.Data), s.ResponsesCount, s.ViolationsCount,
			s.CompletionPercentage, s.CurrentQuestionIndex, s.TimeRemaining, s.CreatedAt,
		})
	}

	return r.db.CopyFrom(ctx,
		pgx.Identifier{"session_snapshots"},
		[]string{"session_id", "snapshot_data", "responses_count", "violations_count",
			"completion_percentage", "current_question_index", "time_remaining", "created_at"},
		pgx.CopyFromRows(rows),
	)
}

// Latest retrieves the newest snapshot of a session. Ties on created_at are
// broken by insertion order.
func (r *SnapshotRepository) Latest(ctx context.Context, sessionID uuid.UUID) (*model.SessionSnapshot, error) {
	s := &model.SessionSnapshot{}
	var data []byte
	err := r.db.QueryRow(ctx,
		`SELECT id, session_id, snapshot_data, responses_count, violations_count,
		        completion_percentage, current_question_index, time_remaining, created_at
		 FROM session_snapshots
		 WHERE session_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`, sessionID,
	).Scan(&s.ID, &s.SessionID, &data, &s.ResponsesCount, &s.ViolationsCount,
		&s.CompletionPercentage, &s.CurrentQuestionIndex, &s.TimeRemaining, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	s.Data = data
	return s, nil
}

// Prune deletes all but the newest keep snapshots of every completed
// session. In-progress sessions are never pruned.
func (r *SnapshotRepository) Prune(ctx context.Context, keep int) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM session_snapshots
		 WHERE id IN (
		   SELECT id FROM (
		     SELECT ss.id,
		            ROW_NUMBER() OVER (PARTITION BY ss.session_id ORDER BY ss.created_at DESC, ss.id DESC) AS rn
		     FROM session_snapshots ss
		     JOIN exam_sessions es ON es.id = ss.session_id
		     WHERE es.status = $2
		   ) ranked
		   WHERE rn > $1
		 )`, keep, model.SessionStatusCompleted)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
