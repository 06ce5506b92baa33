package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventKind discriminates the session timeline. Only violations count
// towards the session's violation counter.
type EventKind string

const (
	EventKindViolation EventKind = "violation"
	EventKindLifecycle EventKind = "lifecycle"
)

// Severity of a session event.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Lifecycle event types written by the session engine.
const (
	LifecycleExamStarted   = "Exam started"
	LifecycleExamResumed   = "Exam resumed"
	LifecycleExamCompleted = "Exam completed"
)

// SessionEvent is one entry of a session's append-only timeline.
type SessionEvent struct {
	ID             int64           `json:"id"`
	SessionID      uuid.UUID       `json:"session_id"`
	Kind           EventKind       `json:"kind"`
	EventType      string          `json:"violation_type"`
	Severity       Severity        `json:"severity"`
	Description    string          `json:"description,omitempty"`
	BrowserInfo    string          `json:"browser_info,omitempty"`
	DeviceInfo     string          `json:"device_info,omitempty"`
	AdditionalData json.RawMessage `json:"additional_data,omitempty"`
	DetectedAt     time.Time       `json:"detected_at"`
}

// LogViolationRequest is the payload for reporting a violation.
type LogViolationRequest struct {
	ViolationType  string          `json:"violation_type" binding:"required,notblank,max=100"`
	Severity       Severity        `json:"severity" binding:"omitempty,oneof=low medium high critical"`
	Description    string          `json:"description" binding:"omitempty,max=1000"`
	BrowserInfo    string          `json:"browser_info" binding:"omitempty,max=1000"`
	DeviceInfo     string          `json:"device_info" binding:"omitempty,max=1000"`
	AdditionalData json.RawMessage `json:"additional_data"`
}

// ViolationResult is the outcome of logging a violation.
type ViolationResult struct {
	ViolationID     int64     `json:"violation_id"`
	DetectedAt      time.Time `json:"detected_at"`
	Severity        Severity  `json:"severity"`
	TotalViolations int       `json:"total_violations"`
	ShouldTerminate bool      `json:"should_terminate"`
}
