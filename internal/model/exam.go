package model

import (
	"time"

	"github.com/google/uuid"
)

// Exam represents an exam entity. At most one exam is active at a time.
type Exam struct {
	ID              uuid.UUID `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	DurationMinutes int       `json:"duration_minutes"`
	MaxViolations   int       `json:"max_violations"`
	IsActive        bool      `json:"is_active"`
	UseGroupAccess  bool      `json:"use_group_access"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// CreateExamRequest is the payload for creating a new exam.
type CreateExamRequest struct {
	Title           string `json:"title" binding:"required,min=3,max=255"`
	Description     string `json:"description" binding:"omitempty,max=2000"`
	DurationMinutes int    `json:"duration_minutes" binding:"required,min=1,max=480"`
	MaxViolations   int    `json:"max_violations" binding:"omitempty,min=1,max=100"`
	UseGroupAccess  bool   `json:"use_group_access"`
}

// ExamPatch is a partial update: nil fields are left untouched.
type ExamPatch struct {
	Title           *string `json:"title" binding:"omitempty,min=3,max=255"`
	Description     *string `json:"description" binding:"omitempty,max=2000"`
	DurationMinutes *int    `json:"duration_minutes" binding:"omitempty,min=1,max=480"`
	MaxViolations   *int    `json:"max_violations" binding:"omitempty,min=1,max=100"`
	UseGroupAccess  *bool   `json:"use_group_access"`
}

// Empty reports whether the patch changes nothing.
func (p ExamPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.DurationMinutes == nil &&
		p.MaxViolations == nil && p.UseGroupAccess == nil
}

// Apply merges the set fields into e and reports whether anything changed.
// Activation is deliberately not patchable; it goes through Activate.
func (p ExamPatch) Apply(e *Exam) bool {
	changed := false
	if p.Title != nil && *p.Title != e.Title {
		e.Title = *p.Title
		changed = true
	}
	if p.Description != nil && *p.Description != e.Description {
		e.Description = *p.Description
		changed = true
	}
	if p.DurationMinutes != nil && *p.DurationMinutes != e.DurationMinutes {
		e.DurationMinutes = *p.DurationMinutes
		changed = true
	}
	if p.MaxViolations != nil && *p.MaxViolations != e.MaxViolations {
		e.MaxViolations = *p.MaxViolations
		changed = true
	}
	if p.UseGroupAccess != nil && *p.UseGroupAccess != e.UseGroupAccess {
		e.UseGroupAccess = *p.UseGroupAccess
		changed = true
	}
	return changed
}
