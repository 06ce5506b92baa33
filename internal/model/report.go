package model

import (
	"time"

	"github.com/google/uuid"
)

// ReportStatus is the integrity verdict of a completed session.
type ReportStatus string

const (
	ReportClean            ReportStatus = "clean"
	ReportMinorIssues      ReportStatus = "minor_issues"
	ReportConcerning       ReportStatus = "concerning"
	ReportFlaggedForReview ReportStatus = "flagged_for_review"
)

// ProctoringReport is written once when a session completes.
type ProctoringReport struct {
	ID                   uuid.UUID        `json:"id"`
	SessionID            uuid.UUID        `json:"session_id"`
	StudentID            uuid.UUID        `json:"student_id"`
	ExamID               uuid.UUID        `json:"exam_id"`
	Status               ReportStatus     `json:"status"`
	TotalViolations      int              `json:"total_violations"`
	ViolationTypes       []string         `json:"violation_types"`
	SeverityBreakdown    map[Severity]int `json:"severity_breakdown"`
	FinalScore           float64          `json:"final_score"`
	CompletionPercentage float64          `json:"completion_percentage"`
	StartedAt            time.Time        `json:"started_at"`
	EndedAt              time.Time        `json:"ended_at"`
	CreatedAt            time.Time        `json:"created_at"`
}
