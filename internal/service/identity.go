package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/akademos/exam-backend/internal/model"
	"github.com/akademos/exam-backend/internal/repository"
)

// StudentResolver maps an authenticated identity to its canonical student
// record. Every student-facing operation resolves through here first; an
// account without a student record fails distinctly from a missing exam.
type StudentResolver struct {
	students StudentStore
}

// NewStudentResolver creates a new StudentResolver.
func NewStudentResolver(students StudentStore) *StudentResolver {
	return &StudentResolver{students: students}
}

// Resolve returns the student record behind the identity.
func (r *StudentResolver) Resolve(ctx context.Context, ident model.Identity) (*model.Student, error) {
	if ident.Role != model.RoleStudent {
		return nil, ErrStudentRecordNotFound
	}
	student, err := r.students.GetByUserID(ctx, ident.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrStudentRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolve student: %w", err)
	}
	if student.SchoolID != ident.SchoolID {
		return nil, ErrStudentRecordNotFound
	}
	return student, nil
}
