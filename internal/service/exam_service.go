package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/akademos/exam-backend/internal/cache"
	"github.com/akademos/exam-backend/internal/config"
	"github.com/akademos/exam-backend/internal/logger"
	"github.com/akademos/exam-backend/internal/model"
	"github.com/akademos/exam-backend/internal/repository"
	"github.com/akademos/exam-backend/internal/response"
	"github.com/akademos/exam-backend/internal/shuffle"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ExamService handles exam authoring and student-facing paper delivery.
type ExamService struct {
	exams    ExamStore
	classes  ClassStore
	attempts AttemptStore
	resolver *StudentResolver
	cache    cache.Cache
	cfg      *config.Config
	log      zerolog.Logger
	now      func() time.Time
}

// NewExamService creates a new ExamService.
func NewExamService(
	exams ExamStore,
	classes ClassStore,
	attempts AttemptStore,
	resolver *StudentResolver,
	c cache.Cache,
	cfg *config.Config,
	log zerolog.Logger,
) *ExamService {
	return &ExamService{
		exams:    exams,
		classes:  classes,
		attempts: attempts,
		resolver: resolver,
		cache:    c,
		cfg:      cfg,
		log:      logger.Component(log, "exam_service"),
		now:      time.Now,
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Authoring
// ─────────────────────────────────────────────────────────────────────────────

// Create validates and stores a new unpublished exam.
func (s *ExamService) Create(ctx context.Context, ident model.Identity, req *model.CreateExamRequest) (*model.Exam, error) {
	if err := s.checkClass(ctx, ident, req.ClassID); err != nil {
		return nil, err
	}
	if err := validateWindow(req.StartTime, req.DueDate); err != nil {
		return nil, err
	}
	def, err := buildDefinition(req.Questions, req.Sections)
	if err != nil {
		return nil, err
	}

	now := s.now()
	exam := &model.Exam{
		ID:               uuid.New(),
		SchoolID:         ident.SchoolID,
		ClassID:          req.ClassID,
		AuthorID:         ident.UserID,
		Title:            req.Title,
		TimeLimitMinutes: req.TimeLimitMinutes,
		StartTime:        req.StartTime,
		DueDate:          req.DueDate,
		ShuffleQuestions: req.ShuffleQuestions,
		ShuffleOptions:   req.ShuffleOptions,
		MaxAttempts:      req.MaxAttempts,
		ExamDefinition:   def,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.exams.Create(ctx, exam); err != nil {
		return nil, fmt.Errorf("create exam: %w", err)
	}

	s.log.Info().
		Str("exam_id", exam.ID.String()).
		Str("author_id", ident.UserID.String()).
		Int("items", exam.ItemCount()).
		Msg("Exam created")
	return exam, nil
}

// Get retrieves an authored exam, answers included.
func (s *ExamService) Get(ctx context.Context, ident model.Identity, examID uuid.UUID) (*model.Exam, error) {
	return s.ownedExam(ctx, ident, examID)
}

// List retrieves the caller's exams with pagination.
func (s *ExamService) List(ctx context.Context, ident model.Identity, page, perPage int) ([]model.ExamSummary, *response.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	if perPage > 100 {
		perPage = 100
	}

	summaries, total, err := s.exams.ListByAuthor(ctx, ident.UserID, page, perPage)
	if err != nil {
		return nil, nil, fmt.Errorf("list exams: %w", err)
	}
	if summaries == nil {
		summaries = []model.ExamSummary{}
	}

	totalItems := int(total)
	pagination := &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: totalItems,
		TotalPages: (totalItems + perPage - 1) / perPage,
	}
	return summaries, pagination, nil
}

// Update replaces fields of an unpublished exam. Supplying questions or
// sections replaces the whole definition.
func (s *ExamService) Update(ctx context.Context, ident model.Identity, examID uuid.UUID, req *model.UpdateExamRequest) (*model.Exam, error) {
	exam, err := s.ownedExam(ctx, ident, examID)
	if err != nil {
		return nil, err
	}
	if exam.IsPublished {
		return nil, ErrExamPublished
	}

	if req.Title != "" {
		exam.Title = req.Title
	}
	if req.ClassID != nil {
		if err := s.checkClass(ctx, ident, *req.ClassID); err != nil {
			return nil, err
		}
		exam.ClassID = *req.ClassID
	}
	if req.TimeLimitMinutes > 0 {
		exam.TimeLimitMinutes = req.TimeLimitMinutes
	}
	if req.StartTime != nil {
		exam.StartTime = req.StartTime
	}
	if req.DueDate != nil {
		exam.DueDate = req.DueDate
	}
	if err := validateWindow(exam.StartTime, exam.DueDate); err != nil {
		return nil, err
	}
	if req.ShuffleQuestions != nil {
		exam.ShuffleQuestions = *req.ShuffleQuestions
	}
	if req.ShuffleOptions != nil {
		exam.ShuffleOptions = *req.ShuffleOptions
	}
	if req.MaxAttempts != nil {
		exam.MaxAttempts = req.MaxAttempts
	}
	if len(req.Questions) > 0 || len(req.Sections) > 0 {
		def, err := buildDefinition(req.Questions, req.Sections)
		if err != nil {
			return nil, err
		}
		exam.ExamDefinition = def
	}

	exam.UpdatedAt = s.now()
	if err := s.exams.Update(ctx, exam); err != nil {
		return nil, fmt.Errorf("update exam: %w", err)
	}
	return exam, nil
}

// Delete removes an unpublished exam.
func (s *ExamService) Delete(ctx context.Context, ident model.Identity, examID uuid.UUID) error {
	exam, err := s.ownedExam(ctx, ident, examID)
	if err != nil {
		return err
	}
	if exam.IsPublished {
		return ErrExamPublished
	}
	if err := s.exams.Delete(ctx, examID); err != nil {
		return fmt.Errorf("delete exam: %w", err)
	}
	s.log.Info().Str("exam_id", examID.String()).Msg("Exam deleted")
	return nil
}

// Publish validates the definition once more, flips the exam to published
// and warms the paper cache.
func (s *ExamService) Publish(ctx context.Context, ident model.Identity, examID uuid.UUID) (*model.Exam, error) {
	exam, err := s.ownedExam(ctx, ident, examID)
	if err != nil {
		return nil, err
	}
	if exam.IsPublished {
		return nil, ErrExamPublished
	}
	if err := validatePublishable(exam); err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.exams.SetPublished(ctx, examID, true, &now); err != nil {
		return nil, fmt.Errorf("publish exam: %w", err)
	}
	exam.IsPublished = true
	exam.PublishedAt = &now
	exam.UpdatedAt = now

	// Warming is best effort: a paper read falls through to storage on a
	// cache miss anyway.
	if err := s.warmPaperCache(ctx, exam); err != nil {
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Paper cache warm failed")
	}

	s.log.Info().Str("exam_id", examID.String()).Msg("Exam published")
	return exam, nil
}

// Unpublish withdraws a published exam from students. Attempts already in
// flight keep running; only new starts are blocked.
func (s *ExamService) Unpublish(ctx context.Context, ident model.Identity, examID uuid.UUID) (*model.Exam, error) {
	exam, err := s.ownedExam(ctx, ident, examID)
	if err != nil {
		return nil, err
	}
	if !exam.IsPublished {
		return exam, nil
	}

	if err := s.exams.SetPublished(ctx, examID, false, nil); err != nil {
		return nil, fmt.Errorf("unpublish exam: %w", err)
	}
	exam.IsPublished = false
	exam.PublishedAt = nil

	if err := s.cache.DeletePrefix(ctx, config.CacheKey.ExamPrefix(examID)); err != nil {
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Cache invalidation failed")
	}

	s.log.Info().Str("exam_id", examID.String()).Msg("Exam unpublished")
	return exam, nil
}

// ownedExam loads an exam and verifies school scope and authorship. Exams
// outside the caller's school read as absent, not as forbidden.
func (s *ExamService) ownedExam(ctx context.Context, ident model.Identity, examID uuid.UUID) (*model.Exam, error) {
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

func (s *ExamService) checkClass(ctx context.Context, ident model.Identity, classID uuid.UUID) error {
	class, err := s.classes.GetByID(ctx, classID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrClassNotFound
	}
	if err != nil {
		return fmt.Errorf("get class: %w", err)
	}
	if class.SchoolID != ident.SchoolID {
		return ErrClassNotFound
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Paper delivery
// ─────────────────────────────────────────────────────────────────────────────

// paperCacheEntry is the cached canonical paper plus the flags needed to
// apply the per-student shuffle after the cache read.
type paperCacheEntry struct {
	Paper            model.ExamPaper `json:"paper"`
	ShuffleQuestions bool            `json:"shuffle_questions"`
	ShuffleOptions   bool            `json:"shuffle_options"`
}

// GetPaper returns the answer-free exam paper for the caller's live attempt,
// question and option order shuffled per student.
func (s *ExamService) GetPaper(ctx context.Context, ident model.Identity, examID uuid.UUID) (*model.ExamPaper, error) {
	student, err := s.resolver.Resolve(ctx, ident)
	if err != nil {
		return nil, err
	}

	att, err := s.attempts.GetInProgress(ctx, examID, student.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNoActiveAttempt
	}
	if err != nil {
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	if !att.Live(s.now()) {
		return nil, ErrNoActiveAttempt
	}

	entry, err := s.loadPaper(ctx, examID)
	if err != nil {
		return nil, err
	}
	shufflePaper(&entry.Paper, student.ID, entry.ShuffleQuestions, entry.ShuffleOptions)
	return &entry.Paper, nil
}

// loadPaper reads the canonical paper through the cache. Unpublished exams
// are still served to their in-flight attempts but never re-cached.
func (s *ExamService) loadPaper(ctx context.Context, examID uuid.UUID) (*paperCacheEntry, error) {
	key := config.CacheKey.ExamPaperKey(examID)
	if raw, ok, err := s.cache.Get(ctx, key); err == nil && ok {
		var entry paperCacheEntry
		if err := json.Unmarshal(raw, &entry); err == nil {
			return &entry, nil
		}
	} else if err != nil {
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Paper cache read failed")
	}

	exam, err := s.exams.GetByID(ctx, examID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrExamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}

	entry := buildPaperEntry(exam)
	if exam.IsPublished {
		if raw, err := json.Marshal(entry); err == nil {
			if err := s.cache.Set(ctx, key, raw, s.cfg.ExamCacheTTL); err != nil {
				s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Paper cache write failed")
			}
		}
	}
	return entry, nil
}

func (s *ExamService) warmPaperCache(ctx context.Context, exam *model.Exam) error {
	raw, err := json.Marshal(buildPaperEntry(exam))
	if err != nil {
		return fmt.Errorf("marshal paper: %w", err)
	}
	return s.cache.Set(ctx, config.CacheKey.ExamPaperKey(exam.ID), raw, s.cfg.ExamCacheTTL)
}

// buildPaperEntry strips the definition of correct answers and explanations.
// Sections that fail shape resolution are left out of the paper entirely.
func buildPaperEntry(exam *model.Exam) *paperCacheEntry {
	paper := model.ExamPaper{
		ExamID:           exam.ID,
		Title:            exam.Title,
		TimeLimitMinutes: exam.TimeLimitMinutes,
	}

	if !exam.Sectioned() {
		paper.Questions = stripQuestions(exam.Questions)
	} else {
		for i := range exam.Sections {
			sec := &exam.Sections[i]
			kind, err := model.KindOf(sec)
			if err != nil {
				continue
			}
			ps := model.PaperSection{
				ID:          sec.ID,
				Kind:        kind,
				Instruction: sec.Instruction,
			}
			switch kind {
			case model.SectionKindStandard:
				ps.Questions = stripQuestions(sec.Questions)
			case model.SectionKindCloze:
				ps.Passage = sec.Passage
				ps.Items = make([]model.PaperClozeItem, len(sec.Items))
				for j, it := range sec.Items {
					ps.Items[j] = model.PaperClozeItem{
						Number:  it.Number,
						Options: append([]string(nil), it.Options...),
						Points:  it.Points,
					}
				}
			}
			paper.Sections = append(paper.Sections, ps)
		}
	}

	return &paperCacheEntry{
		Paper:            paper,
		ShuffleQuestions: exam.ShuffleQuestions,
		ShuffleOptions:   exam.ShuffleOptions,
	}
}

func stripQuestions(questions []model.Question) []model.PaperQuestion {
	out := make([]model.PaperQuestion, len(questions))
	for i, q := range questions {
		out[i] = model.PaperQuestion{
			ID:      q.ID,
			Text:    q.Text,
			Type:    q.Type,
			Options: append([]string(nil), q.Options...),
			Points:  q.Points,
		}
	}
	return out
}

// shufflePaper applies the per-student deterministic ordering in place.
// Question order and every option list are seeded independently, so each is
// stable across reloads on its own. Cloze blanks keep their numbered order;
// only their option lists shuffle.
func shufflePaper(paper *model.ExamPaper, studentID uuid.UUID, questions, options bool) {
	sid := studentID.String()
	eid := paper.ExamID.String()

	if questions {
		paper.Questions = permuteQuestions(paper.Questions, shuffle.Seed(sid, eid, "questions"))
		for i := range paper.Sections {
			sec := &paper.Sections[i]
			if sec.Kind == model.SectionKindStandard {
				sec.Questions = permuteQuestions(sec.Questions, shuffle.Seed(sid, eid, sec.ID))
			}
		}
	}

	if options {
		shuffleOptionLists(paper.Questions, sid, eid)
		for i := range paper.Sections {
			sec := &paper.Sections[i]
			switch sec.Kind {
			case model.SectionKindStandard:
				shuffleOptionLists(sec.Questions, sid, eid)
			case model.SectionKindCloze:
				for j := range sec.Items {
					it := &sec.Items[j]
					seed := shuffle.Seed(sid, eid, sec.ID, strconv.Itoa(it.Number))
					it.Options = shuffle.Strings(it.Options, seed)
				}
			}
		}
	}
}

func permuteQuestions(questions []model.PaperQuestion, seed string) []model.PaperQuestion {
	if len(questions) < 2 {
		return questions
	}
	out := make([]model.PaperQuestion, len(questions))
	for to, from := range shuffle.Order(len(questions), seed) {
		out[to] = questions[from]
	}
	return out
}

func shuffleOptionLists(questions []model.PaperQuestion, sid, eid string) {
	for i := range questions {
		q := &questions[i]
		// True-false keeps its fixed option order.
		if q.Type != model.QuestionTypeMultipleChoice || len(q.Options) < 2 {
			continue
		}
		q.Options = shuffle.Strings(q.Options, shuffle.Seed(sid, eid, q.ID))
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Definition validation
// ─────────────────────────────────────────────────────────────────────────────

func validateWindow(start, due *time.Time) error {
	if start != nil && due != nil && !due.After(*start) {
		return validationErr("due_date", "must be after start_time")
	}
	return nil
}

func validatePublishable(exam *model.Exam) error {
	if exam.ItemCount() == 0 {
		return validationErr("questions", "an exam needs at least one answerable item to publish")
	}
	for i := range exam.Sections {
		if _, err := model.KindOf(&exam.Sections[i]); err != nil {
			return validationErr(fmt.Sprintf("sections[%d]", i), "section needs questions or a passage with items")
		}
	}
	return nil
}

// buildDefinition converts an authoring payload into a validated definition.
// Exactly one of questions or sections must be supplied.
func buildDefinition(questions []model.QuestionRequest, sections []model.SectionRequest) (model.ExamDefinition, error) {
	var def model.ExamDefinition

	switch {
	case len(questions) > 0 && len(sections) > 0:
		return def, validationErr("questions", "provide either questions or sections, not both")
	case len(questions) == 0 && len(sections) == 0:
		return def, validationErr("questions", "an exam needs questions or sections")
	}

	seen := map[string]bool{}

	if len(questions) > 0 {
		def.Questions = make([]model.Question, len(questions))
		for i, qr := range questions {
			q, err := buildQuestion(fmt.Sprintf("questions[%d]", i), qr, seen)
			if err != nil {
				return model.ExamDefinition{}, err
			}
			def.Questions[i] = q
		}
		return def, nil
	}

	def.Sections = make([]model.Section, len(sections))
	for i, sr := range sections {
		sec, err := buildSection(fmt.Sprintf("sections[%d]", i), sr, seen)
		if err != nil {
			return model.ExamDefinition{}, err
		}
		def.Sections[i] = sec
	}
	return def, nil
}

func buildSection(path string, req model.SectionRequest, seen map[string]bool) (model.Section, error) {
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	if seen[id] {
		return model.Section{}, validationErr(path+".id", "duplicate id %q", id)
	}
	seen[id] = true

	hasQuestions := len(req.Questions) > 0
	hasCloze := req.Passage != "" || len(req.Items) > 0

	switch {
	case hasQuestions && hasCloze:
		return model.Section{}, validationErr(path, "section mixes questions with a cloze passage")
	case !hasQuestions && !hasCloze:
		return model.Section{}, validationErr(path, "section needs questions or a passage with items")
	}

	sec := model.Section{ID: id, Instruction: req.Instruction}

	if hasQuestions {
		sec.Questions = make([]model.Question, len(req.Questions))
		for i, qr := range req.Questions {
			q, err := buildQuestion(fmt.Sprintf("%s.questions[%d]", path, i), qr, seen)
			if err != nil {
				return model.Section{}, err
			}
			sec.Questions[i] = q
		}
		return sec, nil
	}

	if req.Passage == "" {
		return model.Section{}, validationErr(path+".passage", "cloze section needs a passage")
	}
	if len(req.Items) == 0 {
		return model.Section{}, validationErr(path+".items", "cloze section needs at least one blank")
	}
	sec.Passage = req.Passage
	sec.Items = make([]model.ClozeItem, len(req.Items))
	numbers := map[int]bool{}
	for i, ir := range req.Items {
		itemPath := fmt.Sprintf("%s.items[%d]", path, i)
		if numbers[ir.Number] {
			return model.Section{}, validationErr(itemPath+".number", "duplicate blank number %d", ir.Number)
		}
		numbers[ir.Number] = true
		if !contains(ir.Options, ir.CorrectAnswer) {
			return model.Section{}, validationErr(itemPath+".correct_answer", "must be one of the options")
		}
		sec.Items[i] = model.ClozeItem{
			Number:        ir.Number,
			Options:       append([]string(nil), ir.Options...),
			CorrectAnswer: ir.CorrectAnswer,
			Points:        defaultPoints(ir.Points),
		}
	}
	return sec, nil
}

func buildQuestion(path string, req model.QuestionRequest, seen map[string]bool) (model.Question, error) {
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	if seen[id] {
		return model.Question{}, validationErr(path+".id", "duplicate id %q", id)
	}
	seen[id] = true

	q := model.Question{
		ID:          id,
		Text:        req.Text,
		Type:        model.QuestionType(req.Type),
		Points:      defaultPoints(req.Points),
		Explanation: req.Explanation,
	}

	switch q.Type {
	case model.QuestionTypeMultipleChoice:
		if len(req.Options) < 2 {
			return model.Question{}, validationErr(path+".options", "multiple choice needs at least two options")
		}
		if !contains(req.Options, req.CorrectAnswer) {
			return model.Question{}, validationErr(path+".correct_answer", "must be one of the options")
		}
		q.Options = append([]string(nil), req.Options...)
		q.CorrectAnswer = req.CorrectAnswer

	case model.QuestionTypeTrueFalse:
		answer := strings.ToLower(strings.TrimSpace(req.CorrectAnswer))
		if answer != "true" && answer != "false" {
			return model.Question{}, validationErr(path+".correct_answer", "must be true or false")
		}
		q.Options = []string{"true", "false"}
		q.CorrectAnswer = answer

	case model.QuestionTypeShortAnswer:
		// Reference answer shown to the grader, never auto-compared.
		q.CorrectAnswer = req.CorrectAnswer

	case model.QuestionTypeEssay:

	default:
		return model.Question{}, validationErr(path+".type", "unsupported question type %q", req.Type)
	}

	return q, nil
}

func defaultPoints(p int) int {
	if p <= 0 {
		return 1
	}
	return p
}

func contains(options []string, value string) bool {
	for _, o := range options {
		if o == value {
			return true
		}
	}
	return false
}
