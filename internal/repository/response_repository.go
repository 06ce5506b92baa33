package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stemsi/exstem-proctor/internal/database"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// ResponseRepository handles student answers.
type ResponseRepository struct {
	db database.DBTX
}

// NewResponseRepository creates a new ResponseRepository.
func NewResponseRepository(db database.DBTX) *ResponseRepository {
	return &ResponseRepository{db: db}
}

// Upsert saves an answer, replacing any earlier answer to the same question.
func (r *ResponseRepository) Upsert(ctx context.Context, resp *model.Response) error {
	return r.db.QueryRow(ctx,
		`INSERT INTO responses (session_id, question_id, response_text, response_option_index, is_correct, answered_at)
		 VALUES ($1, $2, $3, $4, $5, NOW())
		 ON CONFLICT (session_id, question_id) DO UPDATE
		 SET response_text = EXCLUDED.response_text,
		     response_option_index = EXCLUDED.response_option_index,
		     is_correct = EXCLUDED.is_correct,
		     answered_at = EXCLUDED.answered_at
		 RETURNING answered_at`,
		resp.SessionID, resp.QuestionID, resp.ResponseText, resp.ResponseOptionIndex, resp.IsCorrect,
	).Scan(&resp.AnsweredAt)
}

// ListBySession retrieves every answer of a session.
func (r *ResponseRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]model.Response, error) {
	rows, err := r.db.Query(ctx,
		`SELECT session_id, question_id, response_text, response_option_index, is_correct, answered_at
		 FROM responses WHERE session_id = $1
		 ORDER BY answered_at`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var responses []model.Response
	for rows.Next() {
		var resp model.Response
		if err := rows.Scan(&resp.SessionID, &resp.QuestionID, &resp.ResponseText,
			&resp.ResponseOptionIndex, &resp.IsCorrect, &resp.AnsweredAt); err != nil {
			return nil, err
		}
		responses = append(responses, resp)
	}
	return responses, rows.Err()
}

// CountAnswered counts the distinct questions answered in a session.
func (r *ResponseRepository) CountAnswered(ctx context.Context, sessionID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM responses WHERE session_id = $1`, sessionID,
	).Scan(&n)
	return n, err
}

// CountCorrect counts correctly answered multiple-choice questions.
func (r *ResponseRepository) CountCorrect(ctx context.Context, sessionID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*)
		 FROM responses r
		 JOIN questions q ON q.id = r.question_id
		 WHERE r.session_id = $1 AND q.question_type = $2 AND r.is_correct IS TRUE`,
		sessionID, model.QuestionTypeMultipleChoice,
	).Scan(&n)
	return n, err
}

// AggregateScore asks the database-side scoring function for the session
// score. It runs in a savepoint so a failure leaves the caller's
// transaction usable.
func (r *ResponseRepository) AggregateScore(ctx context.Context, sessionID uuid.UUID) (float64, error) {
	var score float64
	err := database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx,
			`SELECT calculate_session_score($1)::float8`, sessionID,
		).Scan(&score)
	})
	if err != nil {
		return 0, fmt.Errorf("calculate_session_score: %w", err)
	}
	return score, nil
}
