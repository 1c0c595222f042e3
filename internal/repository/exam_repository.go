package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/akademos/exam-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ExamRepository handles exam data access. The authored question material
// lives in a single JSONB definition column; it is opaque to SQL and only
// ever read or replaced whole.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

// Create inserts a new exam.
func (r *ExamRepository) Create(ctx context.Context, e *model.Exam) error {
	definition, err := json.Marshal(e.ExamDefinition)
	if err != nil {
		return fmt.Errorf("marshal definition: %w", err)
	}
	return r.pool.QueryRow(ctx,
		`INSERT INTO exams
		   (id, school_id, class_id, author_id, title, time_limit_minutes, start_time, due_date,
		    shuffle_questions, shuffle_options, max_attempts, definition, question_count)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 RETURNING created_at, updated_at`,
		e.ID, e.SchoolID, e.ClassID, e.AuthorID, e.Title, e.TimeLimitMinutes, e.StartTime, e.DueDate,
		e.ShuffleQuestions, e.ShuffleOptions, e.MaxAttempts, definition, e.ItemCount(),
	).Scan(&e.CreatedAt, &e.UpdatedAt)
}

// GetByID retrieves an exam by its UUID, definition included.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	e := &model.Exam{}
	var definition []byte
	err := r.pool.QueryRow(ctx,
		`SELECT id, school_id, class_id, author_id, title, time_limit_minutes, start_time, due_date,
		        shuffle_questions, shuffle_options, max_attempts, is_published, published_at,
		        definition, created_at, updated_at
		 FROM exams WHERE id = $1`, id,
	).Scan(&e.ID, &e.SchoolID, &e.ClassID, &e.AuthorID, &e.Title, &e.TimeLimitMinutes,
		&e.StartTime, &e.DueDate, &e.ShuffleQuestions, &e.ShuffleOptions, &e.MaxAttempts,
		&e.IsPublished, &e.PublishedAt, &definition, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	if err := json.Unmarshal(definition, &e.ExamDefinition); err != nil {
		return nil, fmt.Errorf("unmarshal definition: %w", err)
	}
	return e, nil
}

// Update replaces the mutable fields of an unpublished exam.
func (r *ExamRepository) Update(ctx context.Context, e *model.Exam) error {
	definition, err := json.Marshal(e.ExamDefinition)
	if err != nil {
		return fmt.Errorf("marshal definition: %w", err)
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE exams
		 SET class_id = $1, title = $2, time_limit_minutes = $3, start_time = $4, due_date = $5,
		     shuffle_questions = $6, shuffle_options = $7, max_attempts = $8,
		     definition = $9, question_count = $10, updated_at = NOW()
		 WHERE id = $11`,
		e.ClassID, e.Title, e.TimeLimitMinutes, e.StartTime, e.DueDate,
		e.ShuffleQuestions, e.ShuffleOptions, e.MaxAttempts, definition, e.ItemCount(), e.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetPublished flips the publication flag.
func (r *ExamRepository) SetPublished(ctx context.Context, id uuid.UUID, published bool, at *time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE exams SET is_published = $1, published_at = $2, updated_at = NOW() WHERE id = $3`,
		published, at, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes an exam. Attempts and results cascade in the schema.
func (r *ExamRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM exams WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByAuthor retrieves exam summaries for one author with pagination.
func (r *ExamRepository) ListByAuthor(ctx context.Context, authorID uuid.UUID, page, perPage int) ([]model.ExamSummary, int64, error) {
	offset := (page - 1) * perPage

	var total int64
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM exams WHERE author_id = $1`, authorID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT e.id, e.title, e.class_id, c.name, e.time_limit_minutes, e.question_count,
		        e.is_published, e.start_time, e.due_date, e.created_at
		 FROM exams e
		 JOIN classes c ON e.class_id = c.id
		 WHERE e.author_id = $1
		 ORDER BY e.created_at DESC
		 LIMIT $2 OFFSET $3`,
		authorID, perPage, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var summaries []model.ExamSummary
	for rows.Next() {
		var s model.ExamSummary
		if err := rows.Scan(&s.ID, &s.Title, &s.ClassID, &s.ClassName, &s.TimeLimitMinutes,
			&s.QuestionCount, &s.IsPublished, &s.StartTime, &s.DueDate, &s.CreatedAt); err != nil {
			return nil, 0, err
		}
		summaries = append(summaries, s)
	}
	return summaries, total, rows.Err()
}
