package model

import (
	"time"

	"github.com/google/uuid"
)

// Student represents a student user. IsAuthorized grants blanket access to
// exams that are not group-gated.
type Student struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	IsAuthorized bool      `json:"is_authorized"`
	CreatedAt    time.Time `json:"created_at"`
}

// StudentLoginRequest is the payload for student authentication.
type StudentLoginRequest struct {
	Email    string `json:"email" binding:"required,email,max=255"`
	Password string `json:"password" binding:"required,min=4,max=128"`
}

// StudentLoginResponse is returned after successful student login.
type StudentLoginResponse struct {
	Token   string  `json:"token"`
	Student Student `json:"student"`
}

// CreateStudentRequest is the payload for registering a student.
type CreateStudentRequest struct {
	Email        string `json:"email" binding:"required,email,max=255"`
	Name         string `json:"name" binding:"required,notblank,max=255"`
	Password     string `json:"password" binding:"required,min=6,max=128"`
	IsAuthorized bool   `json:"is_authorized"`
}

// SetAuthorizationRequest toggles a student's blanket exam authorization.
type SetAuthorizationRequest struct {
	IsAuthorized *bool `json:"is_authorized" binding:"required"`
}
