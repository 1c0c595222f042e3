package service

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/akademos/exam-backend/internal/cache"
	"github.com/akademos/exam-backend/internal/config"
	"github.com/akademos/exam-backend/internal/model"
	"github.com/akademos/exam-backend/internal/repository"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ─────────────────────────────────────────────────────────────────────────────
// In-memory stores. They mirror the storage guarantees the services lean on:
// the partial-uniqueness of in-progress attempts and the one-result-per-pair
// constraint.
// ─────────────────────────────────────────────────────────────────────────────

type fakeStudentStore struct {
	mu       sync.Mutex
	students map[uuid.UUID]*model.Student // by id
}

func newFakeStudentStore() *fakeStudentStore {
	return &fakeStudentStore{students: map[uuid.UUID]*model.Student{}}
}

func (f *fakeStudentStore) add(s *model.Student) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := *s
	f.students[s.ID] = &c
}

func (f *fakeStudentStore) GetByUserID(_ context.Context, userID uuid.UUID) (*model.Student, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.students {
		if s.UserID == userID {
			c := *s
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeStudentStore) GetByID(_ context.Context, id uuid.UUID) (*model.Student, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.students[id]; ok {
		c := *s
		return &c, nil
	}
	return nil, repository.ErrNotFound
}

type fakeClassStore struct {
	mu      sync.Mutex
	classes map[uuid.UUID]*model.Class
}

func newFakeClassStore() *fakeClassStore {
	return &fakeClassStore{classes: map[uuid.UUID]*model.Class{}}
}

func (f *fakeClassStore) add(c *model.Class) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cc := *c
	f.classes[c.ID] = &cc
}

func (f *fakeClassStore) GetByID(_ context.Context, id uuid.UUID) (*model.Class, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.classes[id]; ok {
		cc := *c
		return &cc, nil
	}
	return nil, repository.ErrNotFound
}

type fakeExamStore struct {
	mu    sync.Mutex
	exams map[uuid.UUID]*model.Exam
}

func newFakeExamStore() *fakeExamStore {
	return &fakeExamStore{exams: map[uuid.UUID]*model.Exam{}}
}

func (f *fakeExamStore) Create(_ context.Context, e *model.Exam) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := *e
	f.exams[e.ID] = &c
	return nil
}

func (f *fakeExamStore) GetByID(_ context.Context, id uuid.UUID) (*model.Exam, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.exams[id]; ok {
		c := *e
		return &c, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeExamStore) Update(_ context.Context, e *model.Exam) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.exams[e.ID]; !ok {
		return repository.ErrNotFound
	}
	c := *e
	f.exams[e.ID] = &c
	return nil
}

func (f *fakeExamStore) SetPublished(_ context.Context, id uuid.UUID, published bool, at *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.exams[id]
	if !ok {
		return repository.ErrNotFound
	}
	e.IsPublished = published
	e.PublishedAt = at
	return nil
}

func (f *fakeExamStore) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.exams[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.exams, id)
	return nil
}

func (f *fakeExamStore) ListByAuthor(_ context.Context, authorID uuid.UUID, page, perPage int) ([]model.ExamSummary, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []model.ExamSummary
	for _, e := range f.exams {
		if e.AuthorID != authorID {
			continue
		}
		all = append(all, model.ExamSummary{
			ID:               e.ID,
			Title:            e.Title,
			ClassID:          e.ClassID,
			TimeLimitMinutes: e.TimeLimitMinutes,
			QuestionCount:    e.ItemCount(),
			IsPublished:      e.IsPublished,
			StartTime:        e.StartTime,
			DueDate:          e.DueDate,
			CreatedAt:        e.CreatedAt,
		})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := int64(len(all))
	start := (page - 1) * perPage
	if start >= len(all) {
		return nil, total, nil
	}
	end := start + perPage
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

type fakeAttemptStore struct {
	mu       sync.Mutex
	attempts []*model.Attempt

	// missNextGetInProgress makes one GetInProgress read miss, which is how
	// tests drive the create path into the uniqueness conflict.
	missNextGetInProgress bool
}

func newFakeAttemptStore() *fakeAttemptStore {
	return &fakeAttemptStore{}
}

func cloneAttempt(a *model.Attempt) *model.Attempt {
	c := *a
	c.Answers = map[string]string{}
	for k, v := range a.Answers {
		c.Answers[k] = v
	}
	return &c
}

func (f *fakeAttemptStore) Create(_ context.Context, a *model.Attempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.attempts {
		if existing.ExamID == a.ExamID && existing.StudentID == a.StudentID &&
			existing.Status == model.AttemptStatusInProgress {
			return repository.ErrDuplicate
		}
	}
	a.ID = uuid.New()
	f.attempts = append(f.attempts, cloneAttempt(a))
	return nil
}

func (f *fakeAttemptStore) GetInProgress(_ context.Context, examID, studentID uuid.UUID) (*model.Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.missNextGetInProgress {
		f.missNextGetInProgress = false
		return nil, repository.ErrNotFound
	}
	for _, a := range f.attempts {
		if a.ExamID == examID && a.StudentID == studentID && a.Status == model.AttemptStatusInProgress {
			return cloneAttempt(a), nil
		}
	}
	return nil, repository.ErrNotFound
}

// bySession looks an attempt up by its client-facing handle, whatever its
// status. Tests use it to inspect rows the service can no longer reach.
func (f *fakeAttemptStore) bySession(sessionID uuid.UUID) *model.Attempt {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.attempts {
		if a.SessionID == sessionID {
			return cloneAttempt(a)
		}
	}
	return nil
}

func (f *fakeAttemptStore) CountByExamAndStudent(_ context.Context, examID, studentID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, a := range f.attempts {
		if a.ExamID == examID && a.StudentID == studentID {
			n++
		}
	}
	return n, nil
}

func (f *fakeAttemptStore) Expire(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.attempts {
		if a.ID == id && a.Status == model.AttemptStatusInProgress {
			a.Status = model.AttemptStatusExpired
		}
	}
	return nil
}

func (f *fakeAttemptStore) MergeAnswers(_ context.Context, examID, studentID uuid.UUID, answers map[string]string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.attempts {
		if a.ExamID == examID && a.StudentID == studentID && a.Status == model.AttemptStatusInProgress {
			for k, v := range answers {
				a.Answers[k] = v
			}
			if at.After(a.LastActivity) {
				a.LastActivity = at
			}
		}
	}
	return nil
}

func (f *fakeAttemptStore) ExpireOverdue(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, a := range f.attempts {
		if a.Status == model.AttemptStatusInProgress && !now.Before(a.ExpiresAt) {
			a.Status = model.AttemptStatusExpired
			n++
		}
	}
	return n, nil
}

// conclude flips an attempt to submitted with its final answers, mirroring
// the transactional update the real result store performs.
func (f *fakeAttemptStore) conclude(att *model.Attempt, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.attempts {
		if a.ID == att.ID {
			a.Status = model.AttemptStatusSubmitted
			a.Answers = map[string]string{}
			for k, v := range att.Answers {
				a.Answers[k] = v
			}
			a.LastActivity = at
		}
	}
}

type fakeResultStore struct {
	mu       sync.Mutex
	results  []*model.Result
	attempts *fakeAttemptStore
	students *fakeStudentStore

	// missNextGetByExam makes one GetByExamAndStudent read miss, so tests
	// can drive a submit into the insert-conflict branch.
	missNextGetByExam bool
}

func newFakeResultStore(attempts *fakeAttemptStore, students *fakeStudentStore) *fakeResultStore {
	return &fakeResultStore{attempts: attempts, students: students}
}

func cloneResult(r *model.Result) *model.Result {
	c := *r
	c.Answers = append([]model.GradedAnswer(nil), r.Answers...)
	return &c
}

func (f *fakeResultStore) CreateForAttempt(_ context.Context, res *model.Result, att *model.Attempt) error {
	f.mu.Lock()
	for _, existing := range f.results {
		if existing.ExamID == res.ExamID && existing.StudentID == res.StudentID {
			f.mu.Unlock()
			return repository.ErrDuplicate
		}
	}
	res.ID = uuid.New()
	f.results = append(f.results, cloneResult(res))
	f.mu.Unlock()

	f.attempts.conclude(att, res.SubmittedAt)
	return nil
}

func (f *fakeResultStore) GetByID(_ context.Context, id uuid.UUID) (*model.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.results {
		if r.ID == id {
			return cloneResult(r), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeResultStore) GetByExamAndStudent(_ context.Context, examID, studentID uuid.UUID) (*model.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.missNextGetByExam {
		f.missNextGetByExam = false
		return nil, repository.ErrNotFound
	}
	for _, r := range f.results {
		if r.ExamID == examID && r.StudentID == studentID {
			return cloneResult(r), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeResultStore) Update(_ context.Context, res *model.Result) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, r := range f.results {
		if r.ID == res.ID {
			f.results[i] = cloneResult(res)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (f *fakeResultStore) ListByExam(ctx context.Context, examID uuid.UUID, page, perPage int) ([]model.ResultSummary, int64, error) {
	f.mu.Lock()
	var all []model.ResultSummary
	for _, r := range f.results {
		if r.ExamID != examID {
			continue
		}
		s := model.ResultSummary{
			ID:            r.ID,
			ExamID:        r.ExamID,
			StudentID:     r.StudentID,
			AttemptNumber: r.AttemptNumber,
			Score:         r.Score,
			TotalPoints:   r.TotalPoints,
			Percentage:    r.Percentage,
			Status:        r.Status,
			PendingManual: r.PendingManual,
			SubmittedAt:   r.SubmittedAt,
		}
		all = append(all, s)
	}
	f.mu.Unlock()

	for i := range all {
		if st, err := f.students.GetByID(ctx, all[i].StudentID); err == nil {
			all[i].StudentName = st.Name
			all[i].StudentNumber = st.StudentNumber
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].StudentName < all[j].StudentName })

	total := int64(len(all))
	start := (page - 1) * perPage
	if start >= len(all) {
		return nil, total, nil
	}
	end := start + perPage
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

func (f *fakeResultStore) PendingReviewCount(_ context.Context, examID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, r := range f.results {
		if r.ExamID == examID && r.PendingManual > 0 {
			n++
		}
	}
	return n, nil
}

type fakeBuffer struct {
	mu     sync.Mutex
	staged map[string]map[string]string
	jobs   []PersistAnswersJob
}

func newFakeBuffer() *fakeBuffer {
	return &fakeBuffer{staged: map[string]map[string]string{}}
}

func bufferKey(examID, studentID uuid.UUID) string {
	return examID.String() + "|" + studentID.String()
}

func (f *fakeBuffer) Stage(_ context.Context, examID, studentID uuid.UUID, answers map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := bufferKey(examID, studentID)
	m, ok := f.staged[key]
	if !ok {
		m = map[string]string{}
		f.staged[key] = m
	}
	for k, v := range answers {
		m[k] = v
	}
	f.jobs = append(f.jobs, PersistAnswersJob{ExamID: examID, StudentID: studentID, Answers: answers})
	return nil
}

func (f *fakeBuffer) Peek(_ context.Context, examID, studentID uuid.UUID) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]string{}
	for k, v := range f.staged[bufferKey(examID, studentID)] {
		out[k] = v
	}
	return out, nil
}

func (f *fakeBuffer) Clear(_ context.Context, examID, studentID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.staged, bufferKey(examID, studentID))
	return nil
}

type fakeUserStore struct {
	mu    sync.Mutex
	users map[string]*model.User // by email
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: map[string]*model.User{}}
}

func (f *fakeUserStore) add(u *model.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := *u
	f.users[u.Email] = &c
}

func (f *fakeUserStore) GetByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[email]; ok {
		c := *u
		return &c, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeUserStore) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.ID == id {
			c := *u
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

// ─────────────────────────────────────────────────────────────────────────────
// Fixture
// ─────────────────────────────────────────────────────────────────────────────

// env wires the services onto in-memory stores around one seeded school:
// a teacher, a class with two students, and a movable clock.
type env struct {
	students *fakeStudentStore
	classes  *fakeClassStore
	exams    *fakeExamStore
	attempts *fakeAttemptStore
	results  *fakeResultStore
	buffer   *fakeBuffer
	cache    *cache.MemoryCache

	attemptSvc *AttemptService
	examSvc    *ExamService
	resultSvc  *ResultService

	school      uuid.UUID
	otherSchool uuid.UUID
	class       uuid.UUID
	otherClass  uuid.UUID

	teacher     model.Identity
	student     model.Identity
	studentRec  *model.Student
	student2    model.Identity
	student2Rec *model.Student

	nowAt time.Time
}

func (e *env) now() time.Time { return e.nowAt }

func (e *env) advance(d time.Duration) { e.nowAt = e.nowAt.Add(d) }

func newEnv(t *testing.T) *env {
	t.Helper()

	e := &env{
		students:    newFakeStudentStore(),
		classes:     newFakeClassStore(),
		exams:       newFakeExamStore(),
		attempts:    newFakeAttemptStore(),
		buffer:      newFakeBuffer(),
		cache:       cache.NewMemoryCache(),
		school:      uuid.New(),
		otherSchool: uuid.New(),
		class:       uuid.New(),
		otherClass:  uuid.New(),
		nowAt:       time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC),
	}
	e.results = newFakeResultStore(e.attempts, e.students)
	e.cache.Now = e.now

	e.classes.add(&model.Class{ID: e.class, SchoolID: e.school, Name: "10-A"})
	e.classes.add(&model.Class{ID: e.otherClass, SchoolID: e.school, Name: "10-B"})

	e.teacher = model.Identity{UserID: uuid.New(), SchoolID: e.school, Role: model.RoleTeacher}

	e.studentRec = &model.Student{
		ID: uuid.New(), UserID: uuid.New(), SchoolID: e.school, ClassID: e.class,
		Name: "Ana Flores", StudentNumber: "2026-0114",
	}
	e.students.add(e.studentRec)
	e.student = model.Identity{UserID: e.studentRec.UserID, SchoolID: e.school, Role: model.RoleStudent}

	e.student2Rec = &model.Student{
		ID: uuid.New(), UserID: uuid.New(), SchoolID: e.school, ClassID: e.class,
		Name: "Bruno Lim", StudentNumber: "2026-0115",
	}
	e.students.add(e.student2Rec)
	e.student2 = model.Identity{UserID: e.student2Rec.UserID, SchoolID: e.school, Role: model.RoleStudent}

	cfg := &config.Config{
		JWTSecret:      "test-secret",
		JWTExpiry:      time.Hour,
		BcryptCost:     4,
		ExamCacheTTL:   time.Hour,
		ResultCacheTTL: time.Hour,
	}
	log := zerolog.Nop()
	resolver := NewStudentResolver(e.students)

	e.attemptSvc = NewAttemptService(e.exams, e.attempts, e.results, resolver, e.buffer, log)
	e.attemptSvc.now = e.now
	e.examSvc = NewExamService(e.exams, e.classes, e.attempts, resolver, e.cache, cfg, log)
	e.examSvc.now = e.now
	e.resultSvc = NewResultService(e.exams, e.results, resolver, e.cache, cfg, log)

	return e
}

// addExam stores a published 30-minute exam for the seeded class. Mutators
// run before it is stored.
func (e *env) addExam(t *testing.T, def model.ExamDefinition, mutators ...func(*model.Exam)) *model.Exam {
	t.Helper()
	exam := &model.Exam{
		ID:               uuid.New(),
		SchoolID:         e.school,
		ClassID:          e.class,
		AuthorID:         e.teacher.UserID,
		Title:            "Unit 3 Review",
		TimeLimitMinutes: 30,
		IsPublished:      true,
		ExamDefinition:   def,
		CreatedAt:        e.nowAt,
		UpdatedAt:        e.nowAt,
	}
	at := e.nowAt
	exam.PublishedAt = &at
	for _, m := range mutators {
		m(exam)
	}
	if err := e.exams.Create(context.Background(), exam); err != nil {
		t.Fatalf("seed exam: %v", err)
	}
	return exam
}

// mixedDef is two multiple-choice, one true-false and one two-point essay.
// Auto-gradable denominator: 3.
func mixedDef() model.ExamDefinition {
	return model.ExamDefinition{Questions: []model.Question{
		{ID: "q1", Text: "Capital of France", Type: model.QuestionTypeMultipleChoice,
			Options: []string{"Paris", "Rome", "Madrid"}, CorrectAnswer: "Paris", Points: 1},
		{ID: "q2", Text: "Largest planet", Type: model.QuestionTypeMultipleChoice,
			Options: []string{"Mars", "Jupiter", "Venus"}, CorrectAnswer: "Jupiter", Points: 1},
		{ID: "q3", Text: "Water boils at 100C at sea level", Type: model.QuestionTypeTrueFalse,
			Options: []string{"true", "false"}, CorrectAnswer: "true", Points: 1},
		{ID: "q4", Text: "Explain the water cycle", Type: model.QuestionTypeEssay, Points: 2},
	}}
}

// autoDef is fully auto-gradable: two one-point multiple-choice questions.
func autoDef() model.ExamDefinition {
	return model.ExamDefinition{Questions: []model.Question{
		{ID: "q1", Text: "2+2", Type: model.QuestionTypeMultipleChoice,
			Options: []string{"3", "4"}, CorrectAnswer: "4", Points: 1},
		{ID: "q2", Text: "3*3", Type: model.QuestionTypeMultipleChoice,
			Options: []string{"9", "6"}, CorrectAnswer: "9", Points: 1},
	}}
}

// clozeDef is a reading section followed by a two-blank cloze passage.
func clozeDef() model.ExamDefinition {
	return model.ExamDefinition{Sections: []model.Section{
		{
			ID:          "sec-reading",
			Instruction: "Answer from the passage",
			Questions: []model.Question{
				{ID: "r1", Text: "Who narrates?", Type: model.QuestionTypeMultipleChoice,
					Options: []string{"Ana", "Bruno"}, CorrectAnswer: "Ana", Points: 1},
			},
		},
		{
			ID:          "sec-cloze",
			Instruction: "Fill in the blanks",
			Passage:     "The ____(1) sat on the ____(2).",
			Items: []model.ClozeItem{
				{Number: 1, Options: []string{"cat", "dog"}, CorrectAnswer: "cat", Points: 1},
				{Number: 2, Options: []string{"mat", "roof"}, CorrectAnswer: "mat", Points: 1},
			},
		},
	}}
}
