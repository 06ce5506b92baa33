package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository"
)

// PasswordHasher turns a plaintext password into a stored hash.
type PasswordHasher interface {
	HashPassword(password string) (string, error)
}

// AccountService manages student and admin accounts.
type AccountService struct {
	store  repository.Store
	hasher PasswordHasher
	log    zerolog.Logger
}

// NewAccountService creates a new AccountService.
func NewAccountService(store repository.Store, hasher PasswordHasher, log zerolog.Logger) *AccountService {
	return &AccountService{
		store:  store,
		hasher: hasher,
		log:    log.With().Str("component", "account_service").Logger(),
	}
}

// CreateStudent registers a student with a hashed password.
func (s *AccountService) CreateStudent(ctx context.Context, req model.CreateStudentRequest) (*model.Student, error) {
	hash, err := s.hasher.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	student := &model.Student{
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		Name:         strings.TrimSpace(req.Name),
		PasswordHash: hash,
		IsAuthorized: req.IsAuthorized,
	}
	if err := s.store.Students().Create(ctx, student); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("create student: %w", err)
	}

	s.log.Info().Str("student_id", student.ID.String()).Msg("Student created")
	return student, nil
}

// GetStudent retrieves a student by ID.
func (s *AccountService) GetStudent(ctx context.Context, id uuid.UUID) (*model.Student, error) {
	student, err := s.store.Students().GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStudentNotFound
		}
		return nil, fmt.Errorf("get student: %w", err)
	}
	return student, nil
}

// ListStudents returns a page of students and the total count.
func (s *AccountService) ListStudents(ctx context.Context, page, perPage int) ([]model.Student, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	if perPage > 100 {
		perPage = 100
	}

	students, total, err := s.store.Students().List(ctx, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}
	if students == nil {
		students = []model.Student{}
	}
	return students, total, nil
}

// SetAuthorized grants or withdraws blanket access to non-group exams.
func (s *AccountService) SetAuthorized(ctx context.Context, id uuid.UUID, authorized bool) (*model.Student, error) {
	if err := s.store.Students().SetAuthorized(ctx, id, authorized); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStudentNotFound
		}
		return nil, fmt.Errorf("set authorized: %w", err)
	}
	s.log.Info().Str("student_id", id.String()).Bool("authorized", authorized).Msg("Student authorization changed")
	return s.GetStudent(ctx, id)
}

// CreateAdmin registers an admin. Used by the create-admin command.
func (s *AccountService) CreateAdmin(ctx context.Context, email, name, password string) (*model.Admin, error) {
	hash, err := s.hasher.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	admin := &model.Admin{
		Email:        strings.ToLower(strings.TrimSpace(email)),
		Name:         strings.TrimSpace(name),
		PasswordHash: hash,
	}
	if err := s.store.Admins().Create(ctx, admin); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("create admin: %w", err)
	}

	s.log.Info().Str("admin_id", admin.ID.String()).Msg("Admin created")
	return admin, nil
}
