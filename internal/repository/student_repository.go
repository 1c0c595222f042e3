package repository

import (
	"context"

	"github.com/akademos/exam-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// StudentRepository handles student enrollment data access.
type StudentRepository struct {
	pool *pgxpool.Pool
}

// NewStudentRepository creates a new StudentRepository.
func NewStudentRepository(pool *pgxpool.Pool) *StudentRepository {
	return &StudentRepository{pool: pool}
}

// GetByUserID retrieves the student record linked to an account. Teacher
// accounts and orphaned logins have none.
func (r *StudentRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*model.Student, error) {
	s := &model.Student{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id, school_id, class_id, name, student_number, created_at, updated_at
		 FROM students WHERE user_id = $1`, userID,
	).Scan(&s.ID, &s.UserID, &s.SchoolID, &s.ClassID, &s.Name, &s.StudentNumber, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return s, nil
}

// GetByID retrieves a student by id.
func (r *StudentRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Student, error) {
	s := &model.Student{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id, school_id, class_id, name, student_number, created_at, updated_at
		 FROM students WHERE id = $1`, id,
	).Scan(&s.ID, &s.UserID, &s.SchoolID, &s.ClassID, &s.Name, &s.StudentNumber, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return s, nil
}

// Create inserts a new student enrollment.
func (r *StudentRepository) Create(ctx context.Context, s *model.Student) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO students (user_id, school_id, class_id, name, student_number)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at, updated_at`,
		s.UserID, s.SchoolID, s.ClassID, s.Name, s.StudentNumber,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}
