package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/akademos/exam-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ResultRepository handles result data access.
type ResultRepository struct {
	pool *pgxpool.Pool
}

// NewResultRepository creates a new ResultRepository.
func NewResultRepository(pool *pgxpool.Pool) *ResultRepository {
	return &ResultRepository{pool: pool}
}

// CreateForAttempt writes the result and concludes its attempt in one
// transaction, so a crash can never leave a result behind with a live
// attempt. The unique constraint on (exam_id, student_id) makes submission
// idempotent: when a result already exists the insert returns no row and
// the whole transaction rolls back with ErrDuplicate.
func (r *ResultRepository) CreateForAttempt(ctx context.Context, res *model.Result, att *model.Attempt) error {
	answers, err := json.Marshal(res.Answers)
	if err != nil {
		return fmt.Errorf("marshal graded answers: %w", err)
	}
	finalAnswers, err := json.Marshal(answersOrEmpty(att.Answers))
	if err != nil {
		return fmt.Errorf("marshal attempt answers: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO results
		   (exam_id, student_id, school_id, session_id, attempt_number, answers, score, total_points,
		    percentage, status, auto_graded, pending_manual, skipped_sections, time_spent_seconds, submitted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 ON CONFLICT (exam_id, student_id) DO NOTHING
		 RETURNING id`,
		res.ExamID, res.StudentID, res.SchoolID, res.SessionID, res.AttemptNumber, answers,
		res.Score, res.TotalPoints, res.Percentage, res.Status, res.AutoGraded,
		res.PendingManual, res.SkippedSections, res.TimeSpentSeconds, res.SubmittedAt,
	).Scan(&res.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrDuplicate
	}
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx,
		`UPDATE attempts
		 SET status = $1, answers = $2, last_activity = $3
		 WHERE id = $4`,
		model.AttemptStatusSubmitted, finalAnswers, res.SubmittedAt, att.ID)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// GetByID retrieves a result by id.
func (r *ResultRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Result, error) {
	return r.get(ctx,
		resultColumns+` FROM results WHERE id = $1`, id)
}

// GetByExamAndStudent retrieves the result for an exam-student pair.
func (r *ResultRepository) GetByExamAndStudent(ctx context.Context, examID, studentID uuid.UUID) (*model.Result, error) {
	return r.get(ctx,
		resultColumns+` FROM results WHERE exam_id = $1 AND student_id = $2`, examID, studentID)
}

const resultColumns = `SELECT id, exam_id, student_id, school_id, session_id, attempt_number, answers, score,
	total_points, percentage, status, auto_graded, pending_manual, skipped_sections, time_spent_seconds, submitted_at`

func (r *ResultRepository) get(ctx context.Context, query string, args ...interface{}) (*model.Result, error) {
	res := &model.Result{}
	var answers []byte
	err := r.pool.QueryRow(ctx, query, args...).Scan(
		&res.ID, &res.ExamID, &res.StudentID, &res.SchoolID, &res.SessionID, &res.AttemptNumber,
		&answers, &res.Score, &res.TotalPoints, &res.Percentage, &res.Status, &res.AutoGraded,
		&res.PendingManual, &res.SkippedSections, &res.TimeSpentSeconds, &res.SubmittedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	if err := json.Unmarshal(answers, &res.Answers); err != nil {
		return nil, fmt.Errorf("unmarshal graded answers: %w", err)
	}
	return res, nil
}

// Update persists the regraded answer set and aggregates after a manual
// correction.
func (r *ResultRepository) Update(ctx context.Context, res *model.Result) error {
	answers, err := json.Marshal(res.Answers)
	if err != nil {
		return fmt.Errorf("marshal graded answers: %w", err)
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE results
		 SET answers = $1, score = $2, total_points = $3, percentage = $4, status = $5, pending_manual = $6
		 WHERE id = $7`,
		answers, res.Score, res.TotalPoints, res.Percentage, res.Status, res.PendingManual, res.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByExam retrieves result summaries for an exam with pagination,
// joined with student identity for the teacher's review table.
func (r *ResultRepository) ListByExam(ctx context.Context, examID uuid.UUID, page, perPage int) ([]model.ResultSummary, int64, error) {
	offset := (page - 1) * perPage

	var total int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM results WHERE exam_id = $1`, examID).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT r.id, r.exam_id, r.student_id, s.name, s.student_number, r.attempt_number,
		        r.score, r.total_points, r.percentage, r.status, r.pending_manual, r.submitted_at
		 FROM results r
		 JOIN students s ON r.student_id = s.id
		 WHERE r.exam_id = $1
		 ORDER BY s.name ASC
		 LIMIT $2 OFFSET $3`,
		examID, perPage, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var summaries []model.ResultSummary
	for rows.Next() {
		var s model.ResultSummary
		if err := rows.Scan(
			&s.ID, &s.ExamID, &s.StudentID, &s.StudentName, &s.StudentNumber, &s.AttemptNumber,
			&s.Score, &s.TotalPoints, &s.Percentage, &s.Status, &s.PendingManual, &s.SubmittedAt,
		); err != nil {
			return nil, 0, err
		}
		summaries = append(summaries, s)
	}
	return summaries, total, rows.Err()
}

// PendingReviewCount returns how many results of an exam still wait for
// manual grading.
func (r *ResultRepository) PendingReviewCount(ctx context.Context, examID uuid.UUID) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM results WHERE exam_id = $1 AND pending_manual > 0`,
		examID).Scan(&n)
	return n, err
}
