package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/akademos/exam-backend/internal/cache"
	"github.com/akademos/exam-backend/internal/config"
	"github.com/akademos/exam-backend/internal/grading"
	"github.com/akademos/exam-backend/internal/logger"
	"github.com/akademos/exam-backend/internal/model"
	"github.com/akademos/exam-backend/internal/repository"
	"github.com/akademos/exam-backend/internal/response"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ResultView is a result with its flat answers regrouped into sections for
// presentation. The flat list stays the stored truth; the grouping is
// re-derived on every read.
type ResultView struct {
	model.Result
	Sections []grading.SectionView `json:"sections"`
}

// ResultsPage is one page of a teacher's result listing.
type ResultsPage struct {
	Results       []model.ResultSummary `json:"results"`
	PendingReview int64                 `json:"pending_review"`
}

// ResultService serves graded results and manual corrections.
type ResultService struct {
	exams    ExamStore
	results  ResultStore
	resolver *StudentResolver
	cache    cache.Cache
	cfg      *config.Config
	log      zerolog.Logger
}

// NewResultService creates a new ResultService.
func NewResultService(
	exams ExamStore,
	results ResultStore,
	resolver *StudentResolver,
	c cache.Cache,
	cfg *config.Config,
	log zerolog.Logger,
) *ResultService {
	return &ResultService{
		exams:    exams,
		results:  results,
		resolver: resolver,
		cache:    c,
		cfg:      cfg,
		log:      logger.Component(log, "result_service"),
	}
}

// Get returns one result as a section-grouped view. Students see only their
// own results; teachers see results of exams they authored.
func (s *ResultService) Get(ctx context.Context, ident model.Identity, resultID uuid.UUID) (*ResultView, error) {
	view, err := s.loadView(ctx, resultID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeRead(ctx, ident, &view.Result); err != nil {
		return nil, err
	}
	return view, nil
}

// GetOwn returns the caller's result for an exam, located by exam rather
// than result id.
func (s *ResultService) GetOwn(ctx context.Context, ident model.Identity, examID uuid.UUID) (*ResultView, error) {
	student, err := s.resolver.Resolve(ctx, ident)
	if err != nil {
		return nil, err
	}
	res, err := s.results.GetByExamAndStudent(ctx, examID, student.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrResultNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get result: %w", err)
	}
	return s.Get(ctx, ident, res.ID)
}

// ListByExam returns one page of an exam's results for its author, joined
// with student identity and ordered by student name.
func (s *ResultService) ListByExam(ctx context.Context, ident model.Identity, examID uuid.UUID, page, perPage int) (*ResultsPage, *response.Pagination, error) {
	if _, err := s.authoredExam(ctx, ident, examID); err != nil {
		return nil, nil, err
	}

	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	if perPage > 100 {
		perPage = 100
	}

	summaries, total, err := s.results.ListByExam(ctx, examID, page, perPage)
	if err != nil {
		return nil, nil, fmt.Errorf("list results: %w", err)
	}
	if summaries == nil {
		summaries = []model.ResultSummary{}
	}
	pending, err := s.results.PendingReviewCount(ctx, examID)
	if err != nil {
		return nil, nil, fmt.Errorf("count pending reviews: %w", err)
	}

	totalItems := int(total)
	pagination := &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: totalItems,
		TotalPages: (totalItems + perPage - 1) / perPage,
	}
	return &ResultsPage{Results: summaries, PendingReview: pending}, pagination, nil
}

// GradeItem applies a manual score to one reviewable answer and recomputes
// the result's aggregates from scratch. Only the exam's author may grade.
func (s *ResultService) GradeItem(ctx context.Context, ident model.Identity, resultID uuid.UUID, req *model.GradeAnswerRequest) (*ResultView, error) {
	res, err := s.results.GetByID(ctx, resultID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrResultNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get result: %w", err)
	}
	if res.SchoolID != ident.SchoolID {
		return nil, ErrResultNotFound
	}
	if _, err := s.authoredExam(ctx, ident, res.ExamID); err != nil {
		return nil, err
	}

	if err := grading.ApplyManualGrade(res, req.QuestionID, *req.EarnedPoints, req.Feedback); err != nil {
		return nil, err
	}
	if err := s.results.Update(ctx, res); err != nil {
		return nil, fmt.Errorf("update result: %w", err)
	}

	if err := s.cache.Delete(ctx, config.CacheKey.ResultKey(resultID)); err != nil {
		s.log.Warn().Err(err).Str("result_id", resultID.String()).Msg("Result cache invalidation failed")
	}

	s.log.Info().
		Str("result_id", resultID.String()).
		Str("question_id", req.QuestionID).
		Int("earned_points", *req.EarnedPoints).
		Int("pending_manual", res.PendingManual).
		Str("status", string(res.Status)).
		Msg("Manual grade applied")

	return &ResultView{Result: *res, Sections: grading.Materialize(res.Answers)}, nil
}

// loadView reads a materialized result view through the cache.
func (s *ResultService) loadView(ctx context.Context, resultID uuid.UUID) (*ResultView, error) {
	key := config.CacheKey.ResultKey(resultID)
	if raw, ok, err := s.cache.Get(ctx, key); err == nil && ok {
		var view ResultView
		if err := json.Unmarshal(raw, &view); err == nil {
			return &view, nil
		}
	} else if err != nil {
		s.log.Warn().Err(err).Str("result_id", resultID.String()).Msg("Result cache read failed")
	}

	res, err := s.results.GetByID(ctx, resultID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrResultNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get result: %w", err)
	}

	view := &ResultView{Result: *res, Sections: grading.Materialize(res.Answers)}
	if raw, err := json.Marshal(view); err == nil {
		if err := s.cache.Set(ctx, key, raw, s.cfg.ResultCacheTTL); err != nil {
			s.log.Warn().Err(err).Str("result_id", resultID.String()).Msg("Result cache write failed")
		}
	}
	return view, nil
}

// authorizeRead scopes a result read to its school, its student and its
// exam's author.
func (s *ResultService) authorizeRead(ctx context.Context, ident model.Identity, res *model.Result) error {
	if res.SchoolID != ident.SchoolID {
		return ErrResultNotFound
	}
	if ident.IsTeacher() {
		_, err := s.authoredExam(ctx, ident, res.ExamID)
		return err
	}
	student, err := s.resolver.Resolve(ctx, ident)
	if err != nil {
		return err
	}
	if res.StudentID != student.ID {
		return ErrResultNotFound
	}
	return nil
}

// authoredExam loads an exam and verifies the caller wrote it.
func (s *ResultService) authoredExam(ctx context.Context, ident model.Identity, examID uuid.UUID) (*model.Exam, error) {
	exam, err := s.exams.GetByID(ctx, examID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrExamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	if exam.SchoolID != ident.SchoolID {
		return nil, ErrExamNotFound
	}
	if exam.AuthorID != ident.UserID {
		return nil, ErrNotExamAuthor
	}
	return exam, nil
}
