package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus enumerates exam session states. A session moves from
// in_progress to completed exactly once.
type SessionStatus string

const (
	SessionStatusInProgress SessionStatus = "in_progress"
	SessionStatusCompleted  SessionStatus = "completed"
)

// SubmissionType is the stored reason a session was completed.
type SubmissionType string

const (
	SubmissionManual          SubmissionType = "manual"
	SubmissionAutoTimeout     SubmissionType = "auto_timeout"
	SubmissionMaxViolations   SubmissionType = "max_violations"
	SubmissionAdminTerminated SubmissionType = "admin_terminated"
)

// Client-facing completion reasons.
const (
	ClientSubmitManual          = "manual"
	ClientSubmitTimeExpired     = "auto_time_expired"
	ClientSubmitViolationsLimit = "auto_violations"
)

// ParseClientSubmission maps the reason sent by the exam client to the
// stored submission type.
func ParseClientSubmission(reason string) (SubmissionType, bool) {
	switch reason {
	case ClientSubmitManual:
		return SubmissionManual, true
	case ClientSubmitTimeExpired:
		return SubmissionAutoTimeout, true
	case ClientSubmitViolationsLimit:
		return SubmissionMaxViolations, true
	default:
		return "", false
	}
}

// ExamSession represents one student's attempt at one exam.
type ExamSession struct {
	ID                    uuid.UUID       `json:"id"`
	SessionCode           string          `json:"session_code"`
	StudentID             uuid.UUID       `json:"student_id"`
	ExamID                uuid.UUID       `json:"exam_id"`
	StartTime             time.Time       `json:"start_time"`
	ScheduledEndTime      time.Time       `json:"scheduled_end_time"`
	EndTime               *time.Time      `json:"end_time,omitempty"`
	ActualDurationSeconds *int            `json:"actual_duration_seconds,omitempty"`
	Status                SessionStatus   `json:"status"`
	CompletionPercentage  float64         `json:"completion_percentage"`
	TotalViolations       int             `json:"total_violations"`
	Score                 *float64        `json:"score,omitempty"`
	SubmissionType        *SubmissionType `json:"submission_type,omitempty"`
	WasResumed            bool            `json:"was_resumed"`
	ResumeCount           int             `json:"resume_count"`
	BrowserInfo           string          `json:"browser_info,omitempty"`
	IPAddress             string          `json:"ip_address,omitempty"`
}

// InProgress reports whether the session still accepts snapshots,
// responses and violations.
func (s *ExamSession) InProgress() bool {
	return s.Status == SessionStatusInProgress
}

// RemainingSeconds returns the time left until the scheduled end, floored at 0.
func (s *ExamSession) RemainingSeconds(now time.Time) int {
	remaining := s.ScheduledEndTime.Sub(now)
	if remaining < 0 {
		return 0
	}
	return int(remaining.Seconds())
}

// SessionStats holds the recomputed denormalized counters of a session.
type SessionStats struct {
	AnsweredQuestions    int     `json:"answered_questions"`
	TotalQuestions       int     `json:"total_questions"`
	CompletionPercentage float64 `json:"completion_percentage"`
	TotalViolations      int     `json:"total_violations"`
}

// CreateSessionRequest is the payload for starting an exam.
type CreateSessionRequest struct {
	BrowserInfo string `json:"browser_info" binding:"omitempty,max=1000"`
}

// CompleteSessionRequest is the payload for finishing an exam.
type CompleteSessionRequest struct {
	SubmissionType string `json:"submission_type" binding:"required,oneof=manual auto_time_expired auto_violations"`
}

// CompletionResult is returned by session completion.
type CompletionResult struct {
	Session          *ExamSession      `json:"session"`
	Report           *ProctoringReport `json:"report,omitempty"`
	AlreadyCompleted bool              `json:"already_completed"`
}

// RecoveryData is what the client needs to offer "resume" after a reload.
type RecoveryData struct {
	Session          *ExamSession     `json:"session"`
	Snapshot         *SessionSnapshot `json:"snapshot"`
	CanRecover       bool             `json:"can_recover"`
	RemainingSeconds int              `json:"remaining_seconds"`
}
