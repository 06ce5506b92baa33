package model

import (
	"time"

	"github.com/google/uuid"
)

// Response is a student's answer to a question. One row per
// (session, question); the last write wins.
type Response struct {
	SessionID           uuid.UUID `json:"session_id"`
	QuestionID          uuid.UUID `json:"question_id"`
	ResponseText        *string   `json:"response_text,omitempty"`
	ResponseOptionIndex *int      `json:"response_option_index,omitempty"`
	IsCorrect           *bool     `json:"-"`
	AnsweredAt          time.Time `json:"answered_at"`
}

// SaveResponseRequest is the payload for answering a question.
type SaveResponseRequest struct {
	QuestionID          string  `json:"question_id" binding:"required,uuid"`
	ResponseText        *string `json:"response_text" binding:"omitempty,max=10000"`
	ResponseOptionIndex *int    `json:"response_option_index" binding:"omitempty,min=0"`
}
