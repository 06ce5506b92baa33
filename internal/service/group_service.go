package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository"
)

// GroupService manages student groups and their exam grants.
type GroupService struct {
	store repository.Store
	log   zerolog.Logger
}

// NewGroupService creates a new GroupService.
func NewGroupService(store repository.Store, log zerolog.Logger) *GroupService {
	return &GroupService{
		store: store,
		log:   log.With().Str("component", "group_service").Logger(),
	}
}

// Create adds a group. Names are unique.
func (s *GroupService) Create(ctx context.Context, req model.CreateGroupRequest) (*model.StudentGroup, error) {
	g := &model.StudentGroup{Name: req.Name, Description: req.Description}
	if err := s.store.Groups().Create(ctx, g); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrGroupNameExists
		}
		return nil, fmt.Errorf("create group: %w", err)
	}
	return g, nil
}

// Get returns a group.
func (s *GroupService) Get(ctx context.Context, id uuid.UUID) (*model.StudentGroup, error) {
	return getGroup(ctx, s.store, id)
}

// List returns every group.
func (s *GroupService) List(ctx context.Context) ([]model.StudentGroup, error) {
	groups, err := s.store.Groups().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	if groups == nil {
		groups = []model.StudentGroup{}
	}
	return groups, nil
}

// Delete removes a group with its memberships and grants.
func (s *GroupService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.store.Groups().Delete(ctx, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrGroupNotFound
		}
		return fmt.Errorf("delete group: %w", err)
	}
	return nil
}

// AddMember adds one student to a group.
func (s *GroupService) AddMember(ctx context.Context, groupID, studentID uuid.UUID) error {
	return addMember(ctx, s.store, groupID, studentID)
}

// AddMembers adds several students in one transaction. Any failure,
// including an existing membership, adds nobody.
func (s *GroupService) AddMembers(ctx context.Context, groupID uuid.UUID, studentIDs []uuid.UUID) error {
	return s.store.WithTx(ctx, func(tx repository.Store) error {
		for _, id := range studentIDs {
			if err := addMember(ctx, tx, groupID, id); err != nil {
				return fmt.Errorf("student %s: %w", id, err)
			}
		}
		return nil
	})
}

func addMember(ctx context.Context, store repository.Store, groupID, studentID uuid.UUID) error {
	if _, err := getGroup(ctx, store, groupID); err != nil {
		return err
	}
	if _, err := store.Students().GetByID(ctx, studentID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrStudentNotFound
		}
		return fmt.Errorf("get student: %w", err)
	}

	added, err := store.Groups().AddMember(ctx, groupID, studentID)
	if err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	if !added {
		return ErrStudentAlreadyInGroup
	}
	return nil
}

// RemoveMember removes a student from a group.
func (s *GroupService) RemoveMember(ctx context.Context, groupID, studentID uuid.UUID) error {
	if _, err := getGroup(ctx, s.store, groupID); err != nil {
		return err
	}
	removed, err := s.store.Groups().RemoveMember(ctx, groupID, studentID)
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	if !removed {
		return ErrStudentNotInGroup
	}
	return nil
}

// ListMembers returns the students of a group.
func (s *GroupService) ListMembers(ctx context.Context, groupID uuid.UUID) ([]model.GroupMember, error) {
	if _, err := getGroup(ctx, s.store, groupID); err != nil {
		return nil, err
	}
	members, err := s.store.Groups().ListMembers(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	if members == nil {
		members = []model.GroupMember{}
	}
	return members, nil
}

// GrantExam gives a group access to an exam. Granting twice is harmless.
func (s *GroupService) GrantExam(ctx context.Context, groupID, examID uuid.UUID) error {
	if _, err := getGroup(ctx, s.store, groupID); err != nil {
		return err
	}
	if err := examExists(ctx, s.store, examID); err != nil {
		return err
	}
	if err := s.store.Groups().GrantExam(ctx, groupID, examID); err != nil {
		return fmt.Errorf("grant exam: %w", err)
	}
	s.log.Info().Str("group_id", groupID.String()).Str("exam_id", examID.String()).Msg("Exam access granted")
	return nil
}

// RevokeExam removes a group's access to an exam. Revoking a grant that
// does not exist is harmless.
func (s *GroupService) RevokeExam(ctx context.Context, groupID, examID uuid.UUID) error {
	if _, err := getGroup(ctx, s.store, groupID); err != nil {
		return err
	}
	if _, err := s.store.Groups().RevokeExam(ctx, groupID, examID); err != nil {
		return fmt.Errorf("revoke exam: %w", err)
	}
	s.log.Info().Str("group_id", groupID.String()).Str("exam_id", examID.String()).Msg("Exam access revoked")
	return nil
}

// ListGroupsForExam returns the groups granted an exam.
func (s *GroupService) ListGroupsForExam(ctx context.Context, examID uuid.UUID) ([]model.StudentGroup, error) {
	if err := examExists(ctx, s.store, examID); err != nil {
		return nil, err
	}
	groups, err := s.store.Groups().ListGroupsForExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("list exam groups: %w", err)
	}
	if groups == nil {
		groups = []model.StudentGroup{}
	}
	return groups, nil
}

func getGroup(ctx context.Context, store repository.Store, id uuid.UUID) (*model.StudentGroup, error) {
	g, err := store.Groups().GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrGroupNotFound
		}
		return nil, fmt.Errorf("get group: %w", err)
	}
	return g, nil
}
