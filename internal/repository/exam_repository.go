package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stemsi/exstem-proctor/internal/database"
	"github.com/stemsi/exstem-proctor/internal/model"
)

const examColumns = `id, title, description, duration_minutes, max_violations,
	is_active, use_group_access, created_at, updated_at`

// ExamRepository handles exam data access.
type ExamRepository struct {
	db database.DBTX
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(db database.DBTX) *ExamRepository {
	return &ExamRepository{db: db}
}

func scanExam(row pgx.Row, e *model.Exam) error {
	return row.Scan(&e.ID, &e.Title, &e.Description, &e.DurationMinutes, &e.MaxViolations,
		&e.IsActive, &e.UseGroupAccess, &e.CreatedAt, &e.UpdatedAt)
}

// GetByID retrieves an exam by its UUID.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	e := &model.Exam{}
	err := scanExam(r.db.QueryRow(ctx,
		`SELECT `+examColumns+` FROM exams WHERE id = $1`, id), e)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// GetActive retrieves the single active exam.
func (r *ExamRepository) GetActive(ctx context.Context) (*model.Exam, error) {
	e := &model.Exam{}
	err := scanExam(r.db.QueryRow(ctx,
		`SELECT `+examColumns+` FROM exams WHERE is_active LIMIT 1`), e)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// List retrieves exams newest first with the total count for pagination.
func (r *ExamRepository) List(ctx context.Context, limit, offset int) ([]model.Exam, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM exams`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+examColumns+` FROM exams
		 ORDER BY created_at DESC
		 LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var exams []model.Exam
	for rows.Next() {
		var e model.Exam
		if err := scanExam(rows, &e); err != nil {
			return nil, 0, err
		}
		exams = append(exams, e)
	}
	return exams, total, rows.Err()
}

// Create inserts a new, inactive exam.
func (r *ExamRepository) Create(ctx context.Context, e *model.Exam) error {
	return r.db.QueryRow(ctx,
		`INSERT INTO exams (title, description, duration_minutes, max_violations, use_group_access)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, is_active, created_at, updated_at`,
		e.Title, e.Description, e.DurationMinutes, e.MaxViolations, e.UseGroupAccess,
	).Scan(&e.ID, &e.IsActive, &e.CreatedAt, &e.UpdatedAt)
}

// Update writes every editable column of e. Callers merge partial updates
// with model.ExamPatch first.
func (r *ExamRepository) Update(ctx context.Context, e *model.Exam) error {
	return r.db.QueryRow(ctx,
		`UPDATE exams
		 SET title = $1, description = $2, duration_minutes = $3,
		     max_violations = $4, use_group_access = $5, updated_at = NOW()
		 WHERE id = $6
		 RETURNING updated_at`,
		e.Title, e.Description, e.DurationMinutes, e.MaxViolations, e.UseGroupAccess, e.ID,
	).Scan(&e.UpdatedAt)
}

// Delete removes an exam; sessions, snapshots, events and responses cascade.
func (r *ExamRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM exams WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// DeactivateOthers clears the active flag on every exam except keepID.
func (r *ExamRepository) DeactivateOthers(ctx context.Context, keepID uuid.UUID) error {
	_, err := r.db.Exec(ctx,
		`UPDATE exams SET is_active = FALSE, updated_at = NOW()
		 WHERE is_active AND id <> $1`, keepID)
	return err
}

// SetActive flags one exam as active.
func (r *ExamRepository) SetActive(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE exams SET is_active = TRUE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
