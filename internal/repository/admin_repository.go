package repository

import (
	"context"

	"github.com/stemsi/exstem-proctor/internal/database"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// AdminRepository handles admin data access.
type AdminRepository struct {
	db database.DBTX
}

// NewAdminRepository creates a new AdminRepository.
func NewAdminRepository(db database.DBTX) *AdminRepository {
	return &AdminRepository{db: db}
}

// GetByEmail retrieves an admin by email, case-insensitively.
func (r *AdminRepository) GetByEmail(ctx context.Context, email string) (*model.Admin, error) {
	a := &model.Admin{}
	err := r.db.QueryRow(ctx,
		`SELECT id, email, name, password_hash, created_at
		 FROM admins WHERE LOWER(email) = LOWER($1)`, email,
	).Scan(&a.ID, &a.Email, &a.Name, &a.PasswordHash, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Create inserts a new admin.
func (r *AdminRepository) Create(ctx context.Context, a *model.Admin) error {
	return r.db.QueryRow(ctx,
		`INSERT INTO admins (email, name, password_hash)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		a.Email, a.Name, a.PasswordHash,
	).Scan(&a.ID, &a.CreatedAt)
}
