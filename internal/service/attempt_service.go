package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/akademos/exam-backend/internal/grading"
	"github.com/akademos/exam-backend/internal/logger"
	"github.com/akademos/exam-backend/internal/model"
	"github.com/akademos/exam-backend/internal/repository"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// AttemptService drives the attempt lifecycle: start, resume, autosave and
// submit. All cross-request coordination happens through storage constraints;
// this service holds no locks.
type AttemptService struct {
	exams    ExamStore
	attempts AttemptStore
	results  ResultStore
	resolver *StudentResolver
	buffer   AnswerBuffer
	log      zerolog.Logger
	now      func() time.Time
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(
	exams ExamStore,
	attempts AttemptStore,
	results ResultStore,
	resolver *StudentResolver,
	buffer AnswerBuffer,
	log zerolog.Logger,
) *AttemptService {
	return &AttemptService{
		exams:    exams,
		attempts: attempts,
		results:  results,
		resolver: resolver,
		buffer:   buffer,
		log:      logger.Component(log, "attempt_service"),
		now:      time.Now,
	}
}

// StartOrResume opens a new attempt or returns the live one. The call is
// idempotent: repeated and concurrent starts for the same exam and student
// all land on the same session.
func (s *AttemptService) StartOrResume(ctx context.Context, ident model.Identity, examID uuid.UUID) (*model.AttemptState, error) {
	student, err := s.resolver.Resolve(ctx, ident)
	if err != nil {
		return nil, err
	}
	exam, err := s.scopedExam(ctx, ident, examID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if !exam.IsPublished {
		return nil, ErrExamNotPublished
	}
	if exam.StartTime != nil && now.Before(*exam.StartTime) {
		return nil, ErrExamNotOpen
	}
	if exam.DueDate != nil && now.After(*exam.DueDate) {
		return nil, ErrExamClosed
	}
	if student.ClassID != exam.ClassID {
		return nil, ErrNotEnrolled
	}

	// A result ends the story for this exam and student. This check comes
	// before any attempt read, so a crash that left an in-progress row
	// behind a result still reads as completed.
	if _, err := s.results.GetByExamAndStudent(ctx, examID, student.ID); err == nil {
		return nil, ErrAlreadyCompleted
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("check result: %w", err)
	}

	att, err := s.attempts.GetInProgress(ctx, examID, student.ID)
	switch {
	case err == nil && att.Live(now):
		return s.resumeState(ctx, att, now)
	case err == nil:
		// Past its deadline but unswept. Flip it so the partial unique
		// index stops guarding the pair, then start fresh.
		if err := s.attempts.Expire(ctx, att.ID); err != nil {
			return nil, fmt.Errorf("expire stale attempt: %w", err)
		}
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("get attempt: %w", err)
	}

	prior, err := s.attempts.CountByExamAndStudent(ctx, examID, student.ID)
	if err != nil {
		return nil, fmt.Errorf("count attempts: %w", err)
	}
	number := prior + 1
	if exam.MaxAttempts != nil && number > *exam.MaxAttempts {
		return nil, ErrMaxAttemptsExceeded
	}

	fresh := &model.Attempt{
		ExamID:        examID,
		StudentID:     student.ID,
		SchoolID:      exam.SchoolID,
		SessionID:     uuid.New(),
		AttemptNumber: number,
		Status:        model.AttemptStatusInProgress,
		Answers:       map[string]string{},
		StartedAt:     now,
		ExpiresAt:     now.Add(exam.TimeLimit()),
		LastActivity:  now,
	}
	err = s.attempts.Create(ctx, fresh)
	if errors.Is(err, repository.ErrDuplicate) {
		// A concurrent start won the index race. Its attempt is the one.
		winner, werr := s.attempts.GetInProgress(ctx, examID, student.ID)
		if werr == nil {
			return s.resumeState(ctx, winner, now)
		}
		// The winner concluded in the meantime; re-check for its result.
		if _, rerr := s.results.GetByExamAndStudent(ctx, examID, student.ID); rerr == nil {
			return nil, ErrAlreadyCompleted
		}
		return nil, fmt.Errorf("read winning attempt: %w", werr)
	}
	if err != nil {
		return nil, fmt.Errorf("create attempt: %w", err)
	}

	s.log.Info().
		Str("exam_id", examID.String()).
		Str("student_id", student.ID.String()).
		Str("session_id", fresh.SessionID.String()).
		Int("attempt_number", fresh.AttemptNumber).
		Msg("Attempt started")

	return &model.AttemptState{
		SessionID:        fresh.SessionID,
		AttemptNumber:    fresh.AttemptNumber,
		StartedAt:        fresh.StartedAt,
		ExpiresAt:        fresh.ExpiresAt,
		RemainingSeconds: fresh.RemainingSeconds(now),
		Resumed:          false,
		Answers:          map[string]string{},
	}, nil
}

// Resume returns the live attempt's state, buffered answers folded in.
func (s *AttemptService) Resume(ctx context.Context, ident model.Identity, examID uuid.UUID) (*model.AttemptState, error) {
	student, err := s.resolver.Resolve(ctx, ident)
	if err != nil {
		return nil, err
	}

	now := s.now()
	att, err := s.attempts.GetInProgress(ctx, examID, student.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNoActiveAttempt
	}
	if err != nil {
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	if !att.Live(now) {
		return nil, ErrNoActiveAttempt
	}
	return s.resumeState(ctx, att, now)
}

// Autosave buffers a partial answer batch for the live attempt. Keys merge
// into what is already saved; an empty batch is a plain heartbeat.
func (s *AttemptService) Autosave(ctx context.Context, ident model.Identity, examID uuid.UUID, answers map[string]string) error {
	student, err := s.resolver.Resolve(ctx, ident)
	if err != nil {
		return err
	}

	att, err := s.attempts.GetInProgress(ctx, examID, student.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNoActiveAttempt
	}
	if err != nil {
		return fmt.Errorf("get attempt: %w", err)
	}
	if !att.Live(s.now()) {
		return ErrNoActiveAttempt
	}

	if err := s.buffer.Stage(ctx, examID, student.ID, answers); err != nil {
		return fmt.Errorf("stage answers: %w", err)
	}
	return nil
}

// Submit concludes the attempt: merges every answer layer, grades, persists
// the result and flips the attempt in one transaction. Safe to retry; the
// uniqueness of results per exam and student absorbs every race.
func (s *AttemptService) Submit(ctx context.Context, ident model.Identity, examID uuid.UUID, req *model.SubmitExamRequest) (*model.SubmitReceipt, error) {
	student, err := s.resolver.Resolve(ctx, ident)
	if err != nil {
		return nil, err
	}
	exam, err := s.scopedExam(ctx, ident, examID)
	if err != nil {
		return nil, err
	}

	if existing, err := s.results.GetByExamAndStudent(ctx, examID, student.ID); err == nil {
		return s.settleDuplicate(existing, req.AutoSubmit)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("check result: %w", err)
	}

	now := s.now()
	att, err := s.attempts.GetInProgress(ctx, examID, student.ID)
	if errors.Is(err, repository.ErrNotFound) {
		// No in-progress row, no result: the attempt was swept to expired
		// or never recorded. Synthesize one so the submission still counts.
		att, err = s.synthesizeAttempt(ctx, exam, student, now)
		if err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, fmt.Errorf("get attempt: %w", err)
	}

	buffered, err := s.buffer.Peek(ctx, examID, student.ID)
	if err != nil {
		s.log.Warn().Err(err).
			Str("exam_id", examID.String()).
			Str("student_id", student.ID.String()).
			Msg("Answer buffer unreadable at submit, using stored answers only")
		buffered = nil
	}
	finalAnswers := mergeAnswers(att.Answers, buffered, req.Answers)

	outcome := grading.Grade(&exam.ExamDefinition, finalAnswers)
	if outcome.SkippedSections > 0 {
		s.log.Warn().
			Str("exam_id", examID.String()).
			Int("skipped_sections", outcome.SkippedSections).
			Msg("Sections skipped during grading")
	}

	res := &model.Result{
		ExamID:           examID,
		StudentID:        student.ID,
		SchoolID:         exam.SchoolID,
		SessionID:        att.SessionID,
		AttemptNumber:    att.AttemptNumber,
		Answers:          outcome.Answers,
		Score:            outcome.Score,
		TotalPoints:      outcome.TotalPoints,
		Percentage:       outcome.Percentage,
		Status:           outcome.Status(),
		AutoGraded:       !outcome.RequiresReview,
		PendingManual:    outcome.PendingManual,
		SkippedSections:  outcome.SkippedSections,
		TimeSpentSeconds: req.TimeSpentSeconds,
		SubmittedAt:      now,
	}
	att.Answers = finalAnswers

	err = s.results.CreateForAttempt(ctx, res, att)
	if errors.Is(err, repository.ErrDuplicate) {
		existing, gerr := s.results.GetByExamAndStudent(ctx, examID, student.ID)
		if gerr != nil {
			return nil, fmt.Errorf("read racing result: %w", gerr)
		}
		return s.settleDuplicate(existing, req.AutoSubmit)
	}
	if err != nil {
		return nil, fmt.Errorf("persist result: %w", err)
	}

	if err := s.buffer.Clear(ctx, examID, student.ID); err != nil {
		s.log.Warn().Err(err).
			Str("exam_id", examID.String()).
			Str("student_id", student.ID.String()).
			Msg("Answer buffer clear failed")
	}

	s.log.Info().
		Str("exam_id", examID.String()).
		Str("student_id", student.ID.String()).
		Str("result_id", res.ID.String()).
		Int("score", res.Score).
		Int("total_points", res.TotalPoints).
		Bool("auto_submit", req.AutoSubmit).
		Str("status", string(res.Status)).
		Msg("Attempt submitted")

	return &model.SubmitReceipt{
		Status:         model.SubmitStatusSubmitted,
		ResultID:       res.ID,
		ResultStatus:   res.Status,
		Score:          res.Score,
		TotalPoints:    res.TotalPoints,
		Percentage:     res.Percentage,
		RequiresReview: outcome.RequiresReview,
		SubmittedAt:    res.SubmittedAt,
	}, nil
}

// settleDuplicate resolves a submit that found an existing result. A racing
// auto-submit dissolves into an acknowledgement; a manual duplicate is a
// conflict the caller must see.
func (s *AttemptService) settleDuplicate(existing *model.Result, autoSubmit bool) (*model.SubmitReceipt, error) {
	if !autoSubmit {
		return nil, ErrDuplicateSubmission
	}
	return &model.SubmitReceipt{
		Status:         model.SubmitStatusAlreadySubmitted,
		ResultID:       existing.ID,
		ResultStatus:   existing.Status,
		Score:          existing.Score,
		TotalPoints:    existing.TotalPoints,
		Percentage:     existing.Percentage,
		RequiresReview: existing.PendingManual > 0,
		SubmittedAt:    existing.SubmittedAt,
	}, nil
}

// synthesizeAttempt builds an attempt stand-in for a submission whose row is
// already expired or missing. It is never persisted as in-progress; the
// result transaction simply has no live row to flip.
func (s *AttemptService) synthesizeAttempt(ctx context.Context, exam *model.Exam, student *model.Student, now time.Time) (*model.Attempt, error) {
	prior, err := s.attempts.CountByExamAndStudent(ctx, exam.ID, student.ID)
	if err != nil {
		return nil, fmt.Errorf("count attempts: %w", err)
	}
	number := prior
	if number < 1 {
		number = 1
	}
	return &model.Attempt{
		ExamID:        exam.ID,
		StudentID:     student.ID,
		SchoolID:      exam.SchoolID,
		SessionID:     uuid.New(),
		AttemptNumber: number,
		Status:        model.AttemptStatusInProgress,
		Answers:       map[string]string{},
		StartedAt:     now,
		ExpiresAt:     now,
		LastActivity:  now,
	}, nil
}

// resumeState folds the buffered answers over the stored map and reports the
// attempt as resumed.
func (s *AttemptService) resumeState(ctx context.Context, att *model.Attempt, now time.Time) (*model.AttemptState, error) {
	buffered, err := s.buffer.Peek(ctx, att.ExamID, att.StudentID)
	if err != nil {
		s.log.Warn().Err(err).
			Str("session_id", att.SessionID.String()).
			Msg("Answer buffer unreadable at resume, serving stored answers")
		buffered = nil
	}
	return &model.AttemptState{
		SessionID:        att.SessionID,
		AttemptNumber:    att.AttemptNumber,
		StartedAt:        att.StartedAt,
		ExpiresAt:        att.ExpiresAt,
		RemainingSeconds: att.RemainingSeconds(now),
		Resumed:          true,
		Answers:          mergeAnswers(att.Answers, buffered),
	}, nil
}

// scopedExam loads an exam within the caller's school. Foreign exams read as
// absent.
func (s *AttemptService) scopedExam(ctx context.Context, ident model.Identity, examID uuid.UUID) (*model.Exam, error) {
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
	return exam, nil
}

// mergeAnswers overlays answer maps left to right, later layers winning.
func mergeAnswers(layers ...map[string]string) map[string]string {
	out := map[string]string{}
	for _, layer := range layers {
		for k, v := range layer {
			out[k] = v
		}
	}
	return out
}
