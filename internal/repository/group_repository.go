package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stemsi/exstem-proctor/internal/database"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// GroupRepository handles student groups and the access join tables.
type GroupRepository struct {
	db database.DBTX
}

// NewGroupRepository creates a new GroupRepository.
func NewGroupRepository(db database.DBTX) *GroupRepository {
	return &GroupRepository{db: db}
}

// Create inserts a new group. A duplicate name surfaces as a unique
// violation (SQLSTATE 23505).
func (r *GroupRepository) Create(ctx context.Context, g *model.StudentGroup) error {
	return r.db.QueryRow(ctx,
		`INSERT INTO student_groups (name, description)
		 VALUES ($1, $2)
		 RETURNING id, created_at`,
		g.Name, g.Description,
	).Scan(&g.ID, &g.CreatedAt)
}

// GetByID retrieves a group with its member count.
func (r *GroupRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.StudentGroup, error) {
	g := &model.StudentGroup{}
	err := r.db.QueryRow(ctx,
		`SELECT g.id, g.name, g.description, g.created_at,
		        (SELECT COUNT(*) FROM group_members m WHERE m.group_id = g.id)
		 FROM student_groups g WHERE g.id = $1`, id,
	).Scan(&g.ID, &g.Name, &g.Description, &g.CreatedAt, &g.MemberCount)
	if err != nil {
		return nil, err
	}
	return g, nil
}

// List retrieves all groups ordered by name.
func (r *GroupRepository) List(ctx context.Context) ([]model.StudentGroup, error) {
	rows, err := r.db.Query(ctx,
		`SELECT g.id, g.name, g.description, g.created_at, COUNT(m.student_id)
		 FROM student_groups g
		 LEFT JOIN group_members m ON m.group_id = g.id
		 GROUP BY g.id
		 ORDER BY g.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []model.StudentGroup
	for rows.Next() {
		var g model.StudentGroup
		if err := rows.Scan(&g.ID, &g.Name, &g.Description, &g.CreatedAt, &g.MemberCount); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// Delete removes a group together with its memberships and grants.
func (r *GroupRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM student_groups WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// AddMember links a student to a group. Returns false if already a member.
func (r *GroupRepository) AddMember(ctx context.Context, groupID, studentID uuid.UUID) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO group_members (group_id, student_id)
		 VALUES ($1, $2)
		 ON CONFLICT (group_id, student_id) DO NOTHING`,
		groupID, studentID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// RemoveMember unlinks a student from a group. Returns false if not a member.
func (r *GroupRepository) RemoveMember(ctx context.Context, groupID, studentID uuid.UUID) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM group_members WHERE group_id = $1 AND student_id = $2`,
		groupID, studentID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ListMembers retrieves the members of a group.
func (r *GroupRepository) ListMembers(ctx context.Context, groupID uuid.UUID) ([]model.GroupMember, error) {
	rows, err := r.db.Query(ctx,
		`SELECT m.group_id, s.id, s.name, s.email, m.added_at
		 FROM group_members m
		 JOIN students s ON s.id = m.student_id
		 WHERE m.group_id = $1
		 ORDER BY s.name`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []model.GroupMember
	for rows.Next() {
		var m model.GroupMember
		if err := rows.Scan(&m.GroupID, &m.StudentID, &m.Name, &m.Email, &m.AddedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// GrantExam gives a group access to an exam. Granting twice is a no-op.
func (r *GroupRepository) GrantExam(ctx context.Context, groupID, examID uuid.UUID) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO exam_group_access (exam_id, group_id)
		 VALUES ($1, $2)
		 ON CONFLICT (exam_id, group_id) DO NOTHING`,
		examID, groupID)
	return err
}

// RevokeExam removes a group's access to an exam.
func (r *GroupRepository) RevokeExam(ctx context.Context, groupID, examID uuid.UUID) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM exam_group_access WHERE exam_id = $1 AND group_id = $2`,
		examID, groupID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ListGroupsForExam retrieves the groups granted access to an exam.
func (r *GroupRepository) ListGroupsForExam(ctx context.Context, examID uuid.UUID) ([]model.StudentGroup, error) {
	rows, err := r.db.Query(ctx,
		`SELECT g.id, g.name, g.description, g.created_at,
		        (SELECT COUNT(*) FROM group_members m WHERE m.group_id = g.id)
		 FROM exam_group_access a
		 JOIN student_groups g ON g.id = a.group_id
		 WHERE a.exam_id = $1
		 ORDER BY g.name`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []model.StudentGroup
	for rows.Next() {
		var g model.StudentGroup
		if err := rows.Scan(&g.ID, &g.Name, &g.Description, &g.CreatedAt, &g.MemberCount); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// HasExamAccess reports whether any group containing the student is
// granted the exam.
func (r *GroupRepository) HasExamAccess(ctx context.Context, studentID, examID uuid.UUID) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1
		   FROM group_members m
		   JOIN exam_group_access a ON a.group_id = m.group_id
		   WHERE m.student_id = $1 AND a.exam_id = $2
		 )`, studentID, examID,
	).Scan(&ok)
	return ok, err
}
