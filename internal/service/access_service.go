package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stemsi/exstem-proctor/internal/repository"
)

// AccessService decides whether a student may take an exam. Every call reads
// the current grants; nothing is cached.
type AccessService struct {
	store repository.Store
}

// NewAccessService creates a new AccessService.
func NewAccessService(store repository.Store) *AccessService {
	return &AccessService{store: store}
}

// CanAccess reports whether the student may take the exam. Exams without
// group gating fall back to the student's authorization flag.
func (s *AccessService) CanAccess(ctx context.Context, studentID, examID uuid.UUID) (bool, error) {
	return canAccess(ctx, s.store, studentID, examID)
}

func canAccess(ctx context.Context, store repository.Store, studentID, examID uuid.UUID) (bool, error) {
	exam, err := store.Exams().GetByID(ctx, examID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrExamNotFound
		}
		return false, fmt.Errorf("get exam: %w", err)
	}

	if !exam.UseGroupAccess {
		student, err := store.Students().GetByID(ctx, studentID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return false, nil
			}
			return false, fmt.Errorf("get student: %w", err)
		}
		return student.IsAuthorized, nil
	}

	ok, err := store.Groups().HasExamAccess(ctx, studentID, examID)
	if err != nil {
		return false, fmt.Errorf("check group access: %w", err)
	}
	return ok, nil
}
