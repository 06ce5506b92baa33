package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stemsi/exstem-proctor/internal/database"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// StudentRepository handles student data access.
type StudentRepository struct {
	db database.DBTX
}

// NewStudentRepository creates a new StudentRepository.
func NewStudentRepository(db database.DBTX) *StudentRepository {
	return &StudentRepository{db: db}
}

// GetByID retrieves a student by ID.
func (r *StudentRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Student, error) {
	s := &model.Student{}
	err := r.db.QueryRow(ctx,
		`SELECT id, email, name, password_hash, is_authorized, created_at
		 FROM students WHERE id = $1`, id,
	).Scan(&s.ID, &s.Email, &s.Name, &s.PasswordHash, &s.IsAuthorized, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// GetByEmail retrieves a student by email, case-insensitively.
func (r *StudentRepository) GetByEmail(ctx context.Context, email string) (*model.Student, error) {
	s := &model.Student{}
	err := r.db.QueryRow(ctx,
		`SELECT id, email, name, password_hash, is_authorized, created_at
		 FROM students WHERE LOWER(email) = LOWER($1)`, email,
	).Scan(&s.ID, &s.Email, &s.Name, &s.PasswordHash, &s.IsAuthorized, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Create inserts a new student. PasswordHash must already be hashed.
func (r *StudentRepository) Create(ctx context.Context, s *model.Student) error {
	return r.db.QueryRow(ctx,
		`INSERT INTO students (email, name, password_hash, is_authorized)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		s.Email, s.Name, s.PasswordHash, s.IsAuthorized,
	).Scan(&s.ID, &s.CreatedAt)
}

// List returns a page of students ordered by name, plus the total count.
func (r *StudentRepository) List(ctx context.Context, limit, offset int) ([]model.Student, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM students`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, email, name, password_hash, is_authorized, created_at
		 FROM students ORDER BY name, id LIMIT $1 OFFSET $2`, limit, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var students []model.Student
	for rows.Next() {
		var s model.Student
		if err := rows.Scan(&s.ID, &s.Email, &s.Name, &s.PasswordHash, &s.IsAuthorized, &s.CreatedAt); err != nil {
			return nil, 0, err
		}
		students = append(students, s)
	}
	return students, total, rows.Err()
}

// SetAuthorized flips the blanket exam authorization flag. Returns
// pgx.ErrNoRows when the student does not exist.
func (r *StudentRepository) SetAuthorized(ctx context.Context, id uuid.UUID, authorized bool) error {
	tag, err := r.db.Exec(ctx, `UPDATE students SET is_authorized = $2 WHERE id = $1`, id, authorized)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
