package model

import (
	"time"

	"github.com/google/uuid"
)

// MonitorEventType names the events pushed to the admin live monitor.
type MonitorEventType string

const (
	MonitorSessionStarted   MonitorEventType = "session_started"
	MonitorSessionResumed   MonitorEventType = "session_resumed"
	MonitorViolation        MonitorEventType = "violation"
	MonitorSessionCompleted MonitorEventType = "session_completed"
)

// MonitorEvent is published on the exam's monitor channel.
type MonitorEvent struct {
	Type            MonitorEventType `json:"type"`
	SessionID       uuid.UUID        `json:"session_id"`
	StudentID       uuid.UUID        `json:"student_id"`
	ViolationType   string           `json:"violation_type,omitempty"`
	Severity        Severity         `json:"severity,omitempty"`
	TotalViolations int              `json:"total_violations,omitempty"`
	Score           *float64         `json:"score,omitempty"`
	SubmissionType  SubmissionType   `json:"submission_type,omitempty"`
	At              time.Time        `json:"at"`
}
