package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/akademos/exam-backend/internal/model"
	"github.com/google/uuid"
)

func TestStartCreatesAttempt(t *testing.T) {
	e := newEnv(t)
	exam := e.addExam(t, mixedDef())
	ctx := context.Background()

	state, err := e.attemptSvc.StartOrResume(ctx, e.student, exam.ID)
	if err != nil {
		t.Fatalf("StartOrResume: %v", err)
	}
	if state.Resumed {
		t.Error("fresh start reported as resumed")
	}
	if state.AttemptNumber != 1 {
		t.Errorf("attempt number = %d, want 1", state.AttemptNumber)
	}
	if state.SessionID == uuid.Nil {
		t.Error("session id not set")
	}
	if state.RemainingSeconds != 30*60 {
		t.Errorf("remaining = %d, want %d", state.RemainingSeconds, 30*60)
	}
	if len(state.Answers) != 0 {
		t.Errorf("fresh attempt carries answers: %v", state.Answers)
	}

	att := e.attempts.bySession(state.SessionID)
	if att == nil {
		t.Fatal("attempt not stored")
	}
	if att.Status != model.AttemptStatusInProgress {
		t.Errorf("status = %s, want in-progress", att.Status)
	}
}

func TestStartGates(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	hourAgo := e.nowAt.Add(-time.Hour)
	inAnHour := e.nowAt.Add(time.Hour)

	tests := []struct {
		name    string
		ident   model.Identity
		mutate  func(*model.Exam)
		wantErr error
	}{
		{
			name:    "unpublished",
			ident:   e.student,
			mutate:  func(x *model.Exam) { x.IsPublished = false; x.PublishedAt = nil },
			wantErr: ErrExamNotPublished,
		},
		{
			name:    "not yet open",
			ident:   e.student,
			mutate:  func(x *model.Exam) { x.StartTime = &inAnHour },
			wantErr: ErrExamNotOpen,
		},
		{
			name:    "past due date",
			ident:   e.student,
			mutate:  func(x *model.Exam) { x.DueDate = &hourAgo },
			wantErr: ErrExamClosed,
		},
		{
			name:    "wrong class",
			ident:   e.student,
			mutate:  func(x *model.Exam) { x.ClassID = e.otherClass },
			wantErr: ErrNotEnrolled,
		},
		{
			name:    "foreign school reads as absent",
			ident:   e.student,
			mutate:  func(x *model.Exam) { x.SchoolID = e.otherSchool },
			wantErr: ErrExamNotFound,
		},
		{
			name:    "teacher has no student record",
			ident:   e.teacher,
			mutate:  func(*model.Exam) {},
			wantErr: ErrStudentRecordNotFound,
		},
		{
			name:    "unknown account",
			ident:   model.Identity{UserID: uuid.New(), SchoolID: e.school, Role: model.RoleStudent},
			mutate:  func(*model.Exam) {},
			wantErr: ErrStudentRecordNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exam := e.addExam(t, mixedDef(), tt.mutate)
			_, err := e.attemptSvc.StartOrResume(ctx, tt.ident, exam.ID)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestStartUnknownExam(t *testing.T) {
	e := newEnv(t)
	_, err := e.attemptSvc.StartOrResume(context.Background(), e.student, uuid.New())
	if !errors.Is(err, ErrExamNotFound) {
		t.Fatalf("err = %v, want %v", err, ErrExamNotFound)
	}
}

func TestStartIsIdempotent(t *testing.T) {
	e := newEnv(t)
	exam := e.addExam(t, mixedDef())
	ctx := context.Background()

	first, err := e.attemptSvc.StartOrResume(ctx, e.student, exam.ID)
	if err != nil {
		t.Fatalf("first start: %v", err)
	}
	e.advance(5 * time.Minute)
	second, err := e.attemptSvc.StartOrResume(ctx, e.student, exam.ID)
	if err != nil {
		t.Fatalf("second start: %v", err)
	}

	if second.SessionID != first.SessionID {
		t.Errorf("session changed across starts: %s vs %s", first.SessionID, second.SessionID)
	}
	if !second.Resumed {
		t.Error("second start not reported as resumed")
	}
	if second.RemainingSeconds != 25*60 {
		t.Errorf("remaining = %d, want %d", second.RemainingSeconds, 25*60)
	}
}

func TestStartConflictResolvesToWinner(t *testing.T) {
	e := newEnv(t)
	exam := e.addExam(t, mixedDef())
	ctx := context.Background()

	winner, err := e.attemptSvc.StartOrResume(ctx, e.student, exam.ID)
	if err != nil {
		t.Fatalf("winning start: %v", err)
	}

	// Hide the live attempt from the next read so the loser walks into the
	// uniqueness conflict, exactly as with two interleaved requests.
	e.attempts.missNextGetInProgress = true

	loser, err := e.attemptSvc.StartOrResume(ctx, e.student, exam.ID)
	if err != nil {
		t.Fatalf("losing start: %v", err)
	}
	if loser.SessionID != winner.SessionID {
		t.Errorf("conflict did not resolve to winner: %s vs %s", loser.SessionID, winner.SessionID)
	}
	if !loser.Resumed {
		t.Error("conflict resolution not reported as resumed")
	}
}

func TestStartAfterCompletionRejected(t *testing.T) {
	e := newEnv(t)
	exam := e.addExam(t, autoDef())
	ctx := context.Background()

	if _, err := e.attemptSvc.StartOrResume(ctx, e.student, exam.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := e.attemptSvc.Submit(ctx, e.student, exam.ID, &model.SubmitExamRequest{
		Answers: map[string]string{"q1": "4", "q2": "9"},
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	_, err := e.attemptSvc.StartOrResume(ctx, e.student, exam.ID)
	if !errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("err = %v, want %v", err, ErrAlreadyCompleted)
	}
}

func TestStartReconciliationResultWins(t *testing.T) {
	e := newEnv(t)
	exam := e.addExam(t, autoDef())
	ctx := context.Background()

	if _, err := e.attemptSvc.StartOrResume(ctx, e.student, exam.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	// A result lands without the attempt ever flipping, as after a crash
	// between the two writes. Completion must still win.
	e.results.results = append(e.results.results, &model.Result{
		ID:        uuid.New(),
		ExamID:    exam.ID,
		StudentID: e.studentRec.ID,
		SchoolID:  e.school,
		Status:    model.ResultStatusGraded,
	})

	_, err := e.attemptSvc.StartOrResume(ctx, e.student, exam.ID)
	if !errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("err = %v, want %v", err, ErrAlreadyCompleted)
	}
}

func TestStartAfterExpiryOpensNextAttempt(t *testing.T) {
	e := newEnv(t)
	exam := e.addExam(t, mixedDef())
	ctx := context.Background()

	first, err := e.attemptSvc.StartOrResume(ctx, e.student, exam.ID)
	if err != nil {
		t.Fatalf("first start: %v", err)
	}
	e.advance(31 * time.Minute)

	second, err := e.attemptSvc.StartOrResume(ctx, e.student, exam.ID)
	if err != nil {
		t.Fatalf("restart after expiry: %v", err)
	}
	if second.SessionID == first.SessionID {
		t.Error("expired attempt resumed instead of replaced")
	}
	if second.AttemptNumber != 2 {
		t.Errorf("attempt number = %d, want 2", second.AttemptNumber)
	}

	old := e.attempts.bySession(first.SessionID)
	if old == nil {
		t.Fatal("old attempt gone")
	}
	if old.Status != model.AttemptStatusExpired {
		t.Errorf("old attempt status = %s, want expired", old.Status)
	}
}

func TestStartMaxAttemptsGate(t *testing.T) {
	e := newEnv(t)
	one := 1
	exam := e.addExam(t, mixedDef(), func(x *model.Exam) { x.MaxAttempts = &one })
	ctx := context.Background()

	if _, err := e.attemptSvc.StartOrResume(ctx, e.student, exam.ID); err != nil {
		t.Fatalf("first start: %v", err)
	}
	e.advance(31 * time.Minute)

	_, err := e.attemptSvc.StartOrResume(ctx, e.student, exam.ID)
	if !errors.Is(err, ErrMaxAttemptsExceeded) {
		t.Fatalf("err = %v, want %v", err, ErrMaxAttemptsExceeded)
	}
}

func TestResumeRequiresLiveAttempt(t *testing.T) {
	e := newEnv(t)
	exam := e.addExam(t, mixedDef())
	ctx := context.Background()

	if _, err := e.attemptSvc.Resume(ctx, e.student, exam.ID); !errors.Is(err, ErrNoActiveAttempt) {
		t.Fatalf("resume without attempt: err = %v, want %v", err, ErrNoActiveAttempt)
	}

	if _, err := e.attemptSvc.StartOrResume(ctx, e.student, exam.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	e.advance(31 * time.Minute)

	// Past the deadline the attempt is dead even though its stored status
	// still reads in-progress.
	if _, err := e.attemptSvc.Resume(ctx, e.student, exam.ID); !errors.Is(err, ErrNoActiveAttempt) {
		t.Fatalf("resume after deadline: err = %v, want %v", err, ErrNoActiveAttempt)
	}
}

func TestAutosaveMergesNeverReplaces(t *testing.T) {
	e := newEnv(t)
	exam := e.addExam(t, mixedDef())
	ctx := context.Background()

	if _, err := e.attemptSvc.StartOrResume(ctx, e.student, exam.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := e.attemptSvc.Autosave(ctx, e.student, exam.ID, map[string]string{"q1": "Paris"}); err != nil {
		t.Fatalf("first autosave: %v", err)
	}
	if err := e.attemptSvc.Autosave(ctx, e.student, exam.ID, map[string]string{"q3": "true"}); err != nil {
		t.Fatalf("second autosave: %v", err)
	}
	// Heartbeat payloads are fine.
	if err := e.attemptSvc.Autosave(ctx, e.student, exam.ID, nil); err != nil {
		t.Fatalf("heartbeat autosave: %v", err)
	}

	state, err := e.attemptSvc.Resume(ctx, e.student, exam.ID)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if state.Answers["q1"] != "Paris" || state.Answers["q3"] != "true" {
		t.Errorf("partial saves lost answers: %v", state.Answers)
	}
}

func TestAutosaveRequiresLiveAttempt(t *testing.T) {
	e := newEnv(t)
	exam := e.addExam(t, mixedDef())
	ctx := context.Background()

	err := e.attemptSvc.Autosave(ctx, e.student, exam.ID, map[string]string{"q1": "Paris"})
	if !errors.Is(err, ErrNoActiveAttempt) {
		t.Fatalf("err = %v, want %v", err, ErrNoActiveAttempt)
	}

	if _, err := e.attemptSvc.StartOrResume(ctx, e.student, exam.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	e.advance(31 * time.Minute)

	err = e.attemptSvc.Autosave(ctx, e.student, exam.ID, map[string]string{"q1": "Paris"})
	if !errors.Is(err, ErrNoActiveAttempt) {
		t.Fatalf("err after deadline = %v, want %v", err, ErrNoActiveAttempt)
	}
}

func TestSubmitGradesAndConcludes(t *testing.T) {
	e := newEnv(t)
	exam := e.addExam(t, mixedDef())
	ctx := context.Background()

	state, err := e.attemptSvc.StartOrResume(ctx, e.student, exam.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	e.advance(10 * time.Minute)

	receipt, err := e.attemptSvc.Submit(ctx, e.student, exam.ID, &model.SubmitExamRequest{
		Answers: map[string]string{
			"q1": "Paris",   // right
			"q2": "Mars",    // wrong
			"q3": "TRUE",    // right, case-insensitive
			"q4": "Because", // essay, pending review
		},
		TimeSpentSeconds: 600,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if receipt.Status != model.SubmitStatusSubmitted {
		t.Errorf("receipt status = %s, want submitted", receipt.Status)
	}
	if receipt.Score != 2 || receipt.TotalPoints != 3 {
		t.Errorf("score = %d/%d, want 2/3", receipt.Score, receipt.TotalPoints)
	}
	if receipt.Percentage != nil {
		t.Errorf("percentage = %v, want nil while review pending", *receipt.Percentage)
	}
	if !receipt.RequiresReview || receipt.ResultStatus != model.ResultStatusNeedsReview {
		t.Errorf("review flags wrong: requires=%v status=%s", receipt.RequiresReview, receipt.ResultStatus)
	}

	att := e.attempts.bySession(state.SessionID)
	if att == nil {
		t.Fatal("attempt missing after submit")
	}
	if att.Status != model.AttemptStatusSubmitted {
		t.Errorf("attempt status = %s, want submitted", att.Status)
	}

	res, err := e.results.GetByExamAndStudent(ctx, exam.ID, e.studentRec.ID)
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if res.TimeSpentSeconds != 600 {
		t.Errorf("time spent = %d, want 600", res.TimeSpentSeconds)
	}
	if res.AutoGraded {
		t.Error("result with pending essay marked auto-graded")
	}

	if buffered, _ := e.buffer.Peek(ctx, exam.ID, e.studentRec.ID); len(buffered) != 0 {
		t.Errorf("buffer not cleared: %v", buffered)
	}
}

func TestSubmitMergesAnswerLayers(t *testing.T) {
	e := newEnv(t)
	def := model.ExamDefinition{Questions: []model.Question{
		{ID: "q1", Text: "a", Type: model.QuestionTypeMultipleChoice, Options: []string{"stored", "x"}, CorrectAnswer: "stored", Points: 1},
		{ID: "q2", Text: "b", Type: model.QuestionTypeMultipleChoice, Options: []string{"buffered", "x"}, CorrectAnswer: "buffered", Points: 1},
		{ID: "q3", Text: "c", Type: model.QuestionTypeMultipleChoice, Options: []string{"final", "x"}, CorrectAnswer: "final", Points: 1},
	}}
	exam := e.addExam(t, def)
	ctx := context.Background()

	if _, err := e.attemptSvc.StartOrResume(ctx, e.student, exam.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	// Answers already persisted to the attempt row by the worker.
	if err := e.attempts.MergeAnswers(ctx, exam.ID, e.studentRec.ID,
		map[string]string{"q1": "stored", "q2": "x"}, e.nowAt); err != nil {
		t.Fatalf("seed stored answers: %v", err)
	}
	// Fresher answers still sitting in the buffer.
	if err := e.buffer.Stage(ctx, exam.ID, e.studentRec.ID,
		map[string]string{"q2": "buffered", "q3": "x"}); err != nil {
		t.Fatalf("seed buffer: %v", err)
	}

	// The submit payload itself carries the freshest value for q3.
	receipt, err := e.attemptSvc.Submit(ctx, e.student, exam.ID, &model.SubmitExamRequest{
		Answers: map[string]string{"q3": "final"},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if receipt.Score != 3 {
		t.Errorf("score = %d, want 3: layering must prefer buffer over row and payload over buffer", receipt.Score)
	}
}

func TestSubmitDuplicateManualRejected(t *testing.T) {
	e := newEnv(t)
	exam := e.addExam(t, autoDef())
	ctx := context.Background()
	req := &model.SubmitExamRequest{Answers: map[string]string{"q1": "4", "q2": "9"}}

	if _, err := e.attemptSvc.StartOrResume(ctx, e.student, exam.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := e.attemptSvc.Submit(ctx, e.student, exam.ID, req); err != nil {
		t.Fatalf("first submit: %v", err)
	}

	_, err := e.attemptSvc.Submit(ctx, e.student, exam.ID, req)
	if !errors.Is(err, ErrDuplicateSubmission) {
		t.Fatalf("err = %v, want %v", err, ErrDuplicateSubmission)
	}
	if n := len(e.results.results); n != 1 {
		t.Errorf("result count = %d, want 1", n)
	}
}

func TestSubmitDuplicateAutoAbsorbed(t *testing.T) {
	e := newEnv(t)
	exam := e.addExam(t, autoDef())
	ctx := context.Background()

	if _, err := e.attemptSvc.StartOrResume(ctx, e.student, exam.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	first, err := e.attemptSvc.Submit(ctx, e.student, exam.ID, &model.SubmitExamRequest{
		Answers: map[string]string{"q1": "4", "q2": "9"},
	})
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}

	second, err := e.attemptSvc.Submit(ctx, e.student, exam.ID, &model.SubmitExamRequest{
		Answers:    map[string]string{"q1": "3"},
		AutoSubmit: true,
	})
	if err != nil {
		t.Fatalf("auto-submit retry: %v", err)
	}
	if second.Status != model.SubmitStatusAlreadySubmitted {
		t.Errorf("retry status = %s, want already-submitted", second.Status)
	}
	if second.ResultID != first.ResultID {
		t.Errorf("retry points at a different result")
	}
	if second.Score != first.Score {
		t.Errorf("retry rescored: %d vs %d", second.Score, first.Score)
	}
	if n := len(e.results.results); n != 1 {
		t.Errorf("result count = %d, want 1", n)
	}
}

func TestSubmitInsertRaceSettles(t *testing.T) {
	e := newEnv(t)
	exam := e.addExam(t, autoDef())
	ctx := context.Background()

	if _, err := e.attemptSvc.StartOrResume(ctx, e.student, exam.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := e.attemptSvc.Submit(ctx, e.student, exam.ID, &model.SubmitExamRequest{
		Answers: map[string]string{"q1": "4", "q2": "9"},
	}); err != nil {
		t.Fatalf("first submit: %v", err)
	}

	// Hide the result from the pre-check so the retry reaches the insert
	// and hits the uniqueness conflict, as when two submits interleave.
	e.results.missNextGetByExam = true

	receipt, err := e.attemptSvc.Submit(ctx, e.student, exam.ID, &model.SubmitExamRequest{
		AutoSubmit: true,
	})
	if err != nil {
		t.Fatalf("racing auto-submit: %v", err)
	}
	if receipt.Status != model.SubmitStatusAlreadySubmitted {
		t.Errorf("status = %s, want already-submitted", receipt.Status)
	}

	e.results.missNextGetByExam = true
	_, err = e.attemptSvc.Submit(ctx, e.student, exam.ID, &model.SubmitExamRequest{})
	if !errors.Is(err, ErrDuplicateSubmission) {
		t.Fatalf("racing manual submit: err = %v, want %v", err, ErrDuplicateSubmission)
	}
}

func TestSubmitAfterSweepSynthesizes(t *testing.T) {
	e := newEnv(t)
	exam := e.addExam(t, autoDef())
	ctx := context.Background()

	if _, err := e.attemptSvc.StartOrResume(ctx, e.student, exam.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := e.attemptSvc.Autosave(ctx, e.student, exam.ID, map[string]string{"q1": "4"}); err != nil {
		t.Fatalf("autosave: %v", err)
	}
	e.advance(31 * time.Minute)
	if _, err := e.attempts.ExpireOverdue(ctx, e.nowAt); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	// The late auto-submit finds no in-progress row, only the buffer.
	receipt, err := e.attemptSvc.Submit(ctx, e.student, exam.ID, &model.SubmitExamRequest{
		Answers:    map[string]string{"q2": "9"},
		AutoSubmit: true,
	})
	if err != nil {
		t.Fatalf("submit after sweep: %v", err)
	}
	if receipt.Status != model.SubmitStatusSubmitted {
		t.Errorf("status = %s, want submitted", receipt.Status)
	}
	if receipt.Score != 2 {
		t.Errorf("score = %d, want 2: buffered and payload answers must both count", receipt.Score)
	}

	res, err := e.results.GetByExamAndStudent(ctx, exam.ID, e.studentRec.ID)
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if res.AttemptNumber != 1 {
		t.Errorf("attempt number = %d, want 1", res.AttemptNumber)
	}
}

func TestSubmitPastDeadlineStillConcludes(t *testing.T) {
	e := newEnv(t)
	exam := e.addExam(t, autoDef())
	ctx := context.Background()

	if _, err := e.attemptSvc.StartOrResume(ctx, e.student, exam.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	// Client timer fires at the deadline; the request lands a little after.
	e.advance(30*time.Minute + 15*time.Second)

	receipt, err := e.attemptSvc.Submit(ctx, e.student, exam.ID, &model.SubmitExamRequest{
		Answers:    map[string]string{"q1": "4", "q2": "9"},
		AutoSubmit: true,
	})
	if err != nil {
		t.Fatalf("late auto-submit: %v", err)
	}
	if receipt.Status != model.SubmitStatusSubmitted {
		t.Errorf("status = %s, want submitted", receipt.Status)
	}
	if receipt.Score != 2 {
		t.Errorf("score = %d, want 2", receipt.Score)
	}
}
