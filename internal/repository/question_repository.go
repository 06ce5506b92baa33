package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stemsi/exstem-proctor/internal/database"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// QuestionRepository handles question data access.
type QuestionRepository struct {
	db database.DBTX
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(db database.DBTX) *QuestionRepository {
	return &QuestionRepository{db: db}
}

func scanQuestion(row pgx.Row, q *model.Question) error {
	return row.Scan(&q.ID, &q.ExamID, &q.QuestionText, &q.QuestionType,
		&q.Options, &q.CorrectOptionIndex, &q.OrderNum)
}

// Create inserts a new question.
func (r *QuestionRepository) Create(ctx context.Context, q *model.Question) error {
	options := q.Options
	if len(options) == 0 {
		options = []byte("[]")
	}
	return r.db.QueryRow(ctx,
		`INSERT INTO questions (exam_id, question_text, question_type, options, correct_option_index, order_num)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		q.ExamID, q.QuestionText, q.QuestionType, options, q.CorrectOptionIndex, q.OrderNum,
	).Scan(&q.ID)
}

// GetByID retrieves a question by its UUID.
func (r *QuestionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Question, error) {
	q := &model.Question{}
	err := scanQuestion(r.db.QueryRow(ctx,
		`SELECT id, exam_id, question_text, question_type, options, correct_option_index, order_num
		 FROM questions WHERE id = $1`, id), q)
	if err != nil {
		return nil, err
	}
	return q, nil
}

// ListByExam retrieves all questions of an exam in display order.
func (r *QuestionRepository) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, exam_id, question_text, question_type, options, correct_option_index, order_num
		 FROM questions WHERE exam_id = $1
		 ORDER BY order_num, id`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		if err := scanQuestion(rows, &q); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// CountByExam counts every question of an exam.
func (r *QuestionRepository) CountByExam(ctx context.Context, examID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM questions WHERE exam_id = $1`, examID).Scan(&n)
	return n, err
}

// CountScorableByExam counts the auto-graded (multiple-choice) questions.
func (r *QuestionRepository) CountScorableByExam(ctx context.Context, examID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM questions
		 WHERE exam_id = $1 AND question_type = $2`,
		examID, model.QuestionTypeMultipleChoice,
	).Scan(&n)
	return n, err
}
