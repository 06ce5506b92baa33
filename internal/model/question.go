package model

import (
	"encoding/json"

	"github.com/google/uuid"
)

type QuestionType string

const (
	QuestionTypeMultipleChoice QuestionType = "multiple_choice"
	QuestionTypeText           QuestionType = "text"
)

// Question represents a single exam question. Only multiple-choice questions
// carry a correct option and count towards the score.
type Question struct {
	ID                 uuid.UUID       `json:"id"`
	ExamID             uuid.UUID       `json:"exam_id"`
	QuestionText       string          `json:"question_text"`
	QuestionType       QuestionType    `json:"question_type"`
	Options            json.RawMessage `json:"options"`
	CorrectOptionIndex *int            `json:"correct_option_index,omitempty"`
	OrderNum           int             `json:"order_num"`
}

// Scorable reports whether the question is auto-graded.
func (q *Question) Scorable() bool {
	return q.QuestionType == QuestionTypeMultipleChoice && q.CorrectOptionIndex != nil
}

// AddQuestionRequest is the payload for adding a question to an exam.
type AddQuestionRequest struct {
	QuestionText       string          `json:"question_text" binding:"required,notblank,max=2000"`
	QuestionType       string          `json:"question_type" binding:"required,oneof=multiple_choice text"`
	Options            json.RawMessage `json:"options"`
	CorrectOptionIndex *int            `json:"correct_option_index" binding:"omitempty,min=0"`
	OrderNum           int             `json:"order_num" binding:"min=0"`
}
