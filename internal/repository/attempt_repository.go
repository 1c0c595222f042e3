package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/akademos/exam-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AttemptRepository handles attempt data access.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// Create inserts a new in-progress attempt. The insert races against the
// partial unique index on (exam_id, student_id) for in-progress rows; when
// another request created the row first, ErrDuplicate is returned and the
// caller re-reads the winner to resume it.
func (r *AttemptRepository) Create(ctx context.Context, a *model.Attempt) error {
	answers, err := json.Marshal(answersOrEmpty(a.Answers))
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}

	err = r.pool.QueryRow(ctx,
		`INSERT INTO attempts
		   (exam_id, student_id, school_id, session_id, attempt_number, status, answers, started_at, expires_at, last_activity)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (exam_id, student_id) WHERE status = 'in-progress' DO NOTHING
		 RETURNING id`,
		a.ExamID, a.StudentID, a.SchoolID, a.SessionID, a.AttemptNumber,
		model.AttemptStatusInProgress, answers, a.StartedAt, a.ExpiresAt, a.LastActivity,
	).Scan(&a.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrDuplicate
	}
	return err
}

// GetInProgress retrieves the in-progress attempt for an exam-student pair.
// The caller decides whether the attempt is still live; a row past its
// deadline may simply not have been swept yet.
func (r *AttemptRepository) GetInProgress(ctx context.Context, examID, studentID uuid.UUID) (*model.Attempt, error) {
	a := &model.Attempt{}
	var answers []byte
	err := r.pool.QueryRow(ctx,
		`SELECT id, exam_id, student_id, school_id, session_id, attempt_number, status, answers, started_at, expires_at, last_activity
		 FROM attempts
		 WHERE exam_id = $1 AND student_id = $2 AND status = 'in-progress'`,
		examID, studentID).Scan(
		&a.ID, &a.ExamID, &a.StudentID, &a.SchoolID, &a.SessionID, &a.AttemptNumber,
		&a.Status, &answers, &a.StartedAt, &a.ExpiresAt, &a.LastActivity,
	)
	if err != nil {
		return nil, notFound(err)
	}
	if err := json.Unmarshal(answers, &a.Answers); err != nil {
		return nil, fmt.Errorf("unmarshal answers: %w", err)
	}
	if a.Answers == nil {
		a.Answers = map[string]string{}
	}
	return a, nil
}

// CountByExamAndStudent returns how many attempts the student has ever
// opened for the exam, whatever their status. Feeds the attempt-number
// sequence and the max-attempts gate.
func (r *AttemptRepository) CountByExamAndStudent(ctx context.Context, examID, studentID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM attempts WHERE exam_id = $1 AND student_id = $2`,
		examID, studentID).Scan(&n)
	return n, err
}

// Expire flips one overdue in-progress attempt to expired. Losing the race
// to the sweeper is fine, so zero affected rows is not an error.
func (r *AttemptRepository) Expire(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE attempts SET status = $1 WHERE id = $2 AND status = $3`,
		model.AttemptStatusExpired, id, model.AttemptStatusInProgress)
	return err
}

// MergeAnswers folds buffered answers into the stored map. The JSONB merge
// keeps keys that are absent from the new batch, so concurrent partial
// saves never erase each other. Attempts that concluded meanwhile are left
// alone: their final answer set was already fixed at submission.
func (r *AttemptRepository) MergeAnswers(ctx context.Context, examID, studentID uuid.UUID, answers map[string]string, at time.Time) error {
	if len(answers) == 0 {
		return r.touch(ctx, examID, studentID, at)
	}
	patch, err := json.Marshal(answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}
	_, err = r.pool.Exec(ctx,
		`UPDATE attempts
		 SET answers = COALESCE(answers, '{}'::jsonb) || $3::jsonb,
		     last_activity = GREATEST(last_activity, $4)
		 WHERE exam_id = $1 AND student_id = $2 AND status = $5`,
		examID, studentID, patch, at, model.AttemptStatusInProgress)
	return err
}

// touch bumps last_activity for heartbeat-only saves.
func (r *AttemptRepository) touch(ctx context.Context, examID, studentID uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE attempts
		 SET last_activity = GREATEST(last_activity, $3)
		 WHERE exam_id = $1 AND student_id = $2 AND status = $4`,
		examID, studentID, at, model.AttemptStatusInProgress)
	return err
}

// ExpireOverdue flips every in-progress attempt past its deadline to
// expired and returns how many rows changed. Liveness checks never wait
// for this; it only keeps the stored state honest.
func (r *AttemptRepository) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE attempts SET status = $1 WHERE status = $2 AND expires_at <= $3`,
		model.AttemptStatusExpired, model.AttemptStatusInProgress, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func answersOrEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
