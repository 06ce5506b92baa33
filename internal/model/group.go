package model

import (
	"time"

	"github.com/google/uuid"
)

// StudentGroup gates access to exams that set UseGroupAccess.
type StudentGroup struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	MemberCount int       `json:"member_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// GroupMember is a membership row joined with the student's profile.
type GroupMember struct {
	GroupID   uuid.UUID `json:"group_id"`
	StudentID uuid.UUID `json:"student_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	AddedAt   time.Time `json:"added_at"`
}

// CreateGroupRequest is the payload for creating a student group.
type CreateGroupRequest struct {
	Name        string `json:"name" binding:"required,notblank,min=2,max=100"`
	Description string `json:"description" binding:"omitempty,max=500"`
}

// AddMembersRequest adds one or more students to a group.
type AddMembersRequest struct {
	StudentIDs []string `json:"student_ids" binding:"required,min=1,max=500,dive,uuid"`
}

// GrantExamRequest links a group to an exam.
type GrantExamRequest struct {
	ExamID string `json:"exam_id" binding:"required,uuid"`
}
