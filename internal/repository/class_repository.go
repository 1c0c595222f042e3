package repository

import (
	"context"

	"github.com/akademos/exam-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ClassRepository handles class data access.
type ClassRepository struct {
	pool *pgxpool.Pool
}

// NewClassRepository creates a new ClassRepository.
func NewClassRepository(pool *pgxpool.Pool) *ClassRepository {
	return &ClassRepository{pool: pool}
}

// GetByID retrieves a class by its id.
func (r *ClassRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Class, error) {
	c := &model.Class{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, school_id, name, grade_level, created_at
		 FROM classes WHERE id = $1`, id,
	).Scan(&c.ID, &c.SchoolID, &c.Name, &c.GradeLevel, &c.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return c, nil
}

// Create inserts a new class.
func (r *ClassRepository) Create(ctx context.Context, c *model.Class) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO classes (school_id, name, grade_level)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		c.SchoolID, c.Name, c.GradeLevel,
	).Scan(&c.ID, &c.CreatedAt)
}
