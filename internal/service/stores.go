package service

import (
	"context"
	"time"

	"github.com/akademos/exam-backend/internal/model"
	"github.com/akademos/exam-backend/internal/repository"
	"github.com/google/uuid"
)

// Store interfaces are declared here, on the consumer side, so services can
// be unit-tested against in-memory fakes. The pgx repositories satisfy them.

// UserStore provides account lookup for authentication.
type UserStore interface {
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
}

// StudentStore provides student record access.
type StudentStore interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*model.Student, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.Student, error)
}

// ClassStore provides class access.
type ClassStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Class, error)
}

// ExamStore provides exam persistence.
type ExamStore interface {
	Create(ctx context.Context, e *model.Exam) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
	Update(ctx context.Context, e *model.Exam) error
	SetPublished(ctx context.Context, id uuid.UUID, published bool, at *time.Time) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByAuthor(ctx context.Context, authorID uuid.UUID, page, perPage int) ([]model.ExamSummary, int64, error)
}

// AttemptStore provides attempt persistence.
type AttemptStore interface {
	Create(ctx context.Context, a *model.Attempt) error
	GetInProgress(ctx context.Context, examID, studentID uuid.UUID) (*model.Attempt, error)
	CountByExamAndStudent(ctx context.Context, examID, studentID uuid.UUID) (int, error)
	Expire(ctx context.Context, id uuid.UUID) error
	MergeAnswers(ctx context.Context, examID, studentID uuid.UUID, answers map[string]string, at time.Time) error
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)
}

// ResultStore provides result persistence.
type ResultStore interface {
	CreateForAttempt(ctx context.Context, res *model.Result, att *model.Attempt) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Result, error)
	GetByExamAndStudent(ctx context.Context, examID, studentID uuid.UUID) (*model.Result, error)
	Update(ctx context.Context, res *model.Result) error
	ListByExam(ctx context.Context, examID uuid.UUID, page, perPage int) ([]model.ResultSummary, int64, error)
	PendingReviewCount(ctx context.Context, examID uuid.UUID) (int64, error)
}

var (
	_ UserStore    = (*repository.UserRepository)(nil)
	_ StudentStore = (*repository.StudentRepository)(nil)
	_ ClassStore   = (*repository.ClassRepository)(nil)
	_ ExamStore    = (*repository.ExamRepository)(nil)
	_ AttemptStore = (*repository.AttemptRepository)(nil)
	_ ResultStore  = (*repository.ResultRepository)(nil)
)
