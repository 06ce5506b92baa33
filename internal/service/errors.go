package service

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// Domain errors. Handlers map them to HTTP statuses with errors.Is.
var (
	ErrAccessDeniedToExam    = errors.New("access denied to exam")
	ErrNoActiveExam          = errors.New("no active exam")
	ErrExamNotFound          = errors.New("exam not found")
	ErrSessionNotFound       = errors.New("exam session not found")
	ErrSessionCompleted      = errors.New("exam session is already completed")
	ErrGroupNotFound         = errors.New("group not found")
	ErrGroupNameExists       = errors.New("group name already exists")
	ErrStudentAlreadyInGroup = errors.New("student is already in the group")
	ErrStudentNotInGroup     = errors.New("student is not in the group")
	ErrStudentNotFound       = errors.New("student not found")
	ErrEmailExists           = errors.New("email already registered")
	ErrQuestionNotFound      = errors.New("question not found")
	ErrInvalidQuestion       = errors.New("multiple choice question needs options and a correct option")
	ErrInvalidSubmissionType = errors.New("invalid submission type")
	ErrUnauthorizedEmail     = errors.New("email is not authorized to sign in")
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrInvalidToken          = errors.New("invalid or expired token")
)

const pgUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
