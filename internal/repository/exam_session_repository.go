package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stemsi/exstem-proctor/internal/database"
	"github.com/stemsi/exstem-proctor/internal/model"
)

const sessionColumns = `id, session_code, student_id, exam_id, start_time, scheduled_end_time,
	end_time, actual_duration_seconds, status, completion_percentage, total_violations,
	score, submission_type, was_resumed, resume_count, browser_info, ip_address`

// ExamSessionRepository handles exam session data access.
type ExamSessionRepository struct {
	db database.DBTX
}

// NewExamSessionRepository creates a new ExamSessionRepository.
func NewExamSessionRepository(db database.DBTX) *ExamSessionRepository {
	return &ExamSessionRepository{db: db}
}

func scanSession(row pgx.Row, s *model.ExamSession) error {
	return row.Scan(&s.ID, &s.SessionCode, &s.StudentID, &s.ExamID, &s.StartTime, &s.ScheduledEndTime,
		&s.EndTime, &s.ActualDurationSeconds, &s.Status, &s.CompletionPercentage, &s.TotalViolations,
		&s.Score, &s.SubmissionType, &s.WasResumed, &s.ResumeCount, &s.BrowserInfo, &s.IPAddress)
}

// Create inserts a new in-progress session. When the partial unique index
// already holds an in-progress session for the pair, nothing is written and
// false is returned.
func (r *ExamSessionRepository) Create(ctx context.Context, s *model.ExamSession) (bool, error) {
	err := r.db.QueryRow(ctx,
		`INSERT INTO exam_sessions (session_code, student_id, exam_id, start_time, scheduled_end_time,
		                            status, browser_info, ip_address)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (student_id, exam_id) WHERE status = 'in_progress' DO NOTHING
		 RETURNING id`,
		s.SessionCode, s.StudentID, s.ExamID, s.StartTime, s.ScheduledEndTime,
		model.SessionStatusInProgress, s.BrowserInfo, s.IPAddress,
	).Scan(&s.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	s.Status = model.SessionStatusInProgress
	return true, nil
}

// GetByID retrieves a session by ID.
func (r *ExamSessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ExamSession, error) {
	s := &model.ExamSession{}
	if err := scanSession(r.db.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions WHERE id = $1`, id), s); err != nil {
		return nil, err
	}
	return s, nil
}

// GetByIDForUpdate retrieves a session and locks its row until the
// surrounding transaction ends.
func (r *ExamSessionRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.ExamSession, error) {
	s := &model.ExamSession{}
	if err := scanSession(r.db.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions WHERE id = $1 FOR UPDATE`, id), s); err != nil {
		return nil, err
	}
	return s, nil
}

// GetLatestInProgress retrieves the student's open attempt at an exam.
func (r *ExamSessionRepository) GetLatestInProgress(ctx context.Context, studentID, examID uuid.UUID) (*model.ExamSession, error) {
	s := &model.ExamSession{}
	err := scanSession(r.db.QueryRow(ctx,
		`SELECT `+sessionColumns+`
		 FROM exam_sessions
		 WHERE student_id = $1 AND exam_id = $2 AND status = $3
		 ORDER BY start_time DESC
		 LIMIT 1`,
		studentID, examID, model.SessionStatusInProgress), s)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// ListByExam retrieves every session of an exam, newest first.
func (r *ExamSessionRepository) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.ExamSession, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+sessionColumns+`
		 FROM exam_sessions
		 WHERE exam_id = $1
		 ORDER BY start_time DESC`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.ExamSession
	for rows.Next() {
		var s model.ExamSession
		if err := scanSession(rows, &s); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// IncrementViolations bumps the counter atomically and returns the new total.
// Completed sessions are not touched and yield pgx.ErrNoRows.
func (r *ExamSessionRepository) IncrementViolations(ctx context.Context, id uuid.UUID) (int, error) {
	var total int
	err := r.db.QueryRow(ctx,
		`UPDATE exam_sessions
		 SET total_violations = total_violations + 1
		 WHERE id = $1 AND status = $2
		 RETURNING total_violations`,
		id, model.SessionStatusInProgress,
	).Scan(&total)
	return total, err
}

// MarkResumed flags the session as resumed and returns the new resume count.
func (r *ExamSessionRepository) MarkResumed(ctx context.Context, id uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`UPDATE exam_sessions
		 SET was_resumed = TRUE, resume_count = resume_count + 1
		 WHERE id = $1 AND status = $2
		 RETURNING resume_count`,
		id, model.SessionStatusInProgress,
	).Scan(&count)
	return count, err
}

// UpdateProgress stores the client-reported completion of an open session.
func (r *ExamSessionRepository) UpdateProgress(ctx context.Context, id uuid.UUID, completion float64) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE exam_sessions SET completion_percentage = $2
		 WHERE id = $1 AND status = $3`,
		id, completion, model.SessionStatusInProgress)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// UpdateStats overwrites the denormalized counters with recomputed values.
func (r *ExamSessionRepository) UpdateStats(ctx context.Context, id uuid.UUID, completion float64, violations int) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE exam_sessions
		 SET completion_percentage = $2, total_violations = $3
		 WHERE id = $1`,
		id, completion, violations)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// Complete writes the terminal fields. Only an in-progress row is updated.
func (r *ExamSessionRepository) Complete(ctx context.Context, s *model.ExamSession) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE exam_sessions
		 SET status = $2, end_time = $3, actual_duration_seconds = $4, score = $5,
		     submission_type = $6, completion_percentage = $7, total_violations = $8
		 WHERE id = $1 AND status = $9`,
		s.ID, model.SessionStatusCompleted, s.EndTime, s.ActualDurationSeconds, s.Score,
		s.SubmissionType, s.CompletionPercentage, s.TotalViolations, model.SessionStatusInProgress)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	s.Status = model.SessionStatusCompleted
	return nil
}
