package model

import (
	"time"

	"github.com/google/uuid"
)

// QuestionType enumerates the supported question kinds.
type QuestionType string

const (
	QuestionTypeMultipleChoice QuestionType = "multiple-choice"
	QuestionTypeTrueFalse      QuestionType = "true-false"
	QuestionTypeShortAnswer    QuestionType = "short-answer"
	QuestionTypeEssay          QuestionType = "essay"

	// QuestionTypeCloze never appears in an authored definition; cloze blanks
	// are items of a cloze section. It is used on graded answers only.
	QuestionTypeCloze QuestionType = "cloze"
)

// AutoGradable reports whether answers of this type are scored automatically.
// Short-answer and essay responses always wait for teacher review.
func (t QuestionType) AutoGradable() bool {
	switch t {
	case QuestionTypeMultipleChoice, QuestionTypeTrueFalse, QuestionTypeCloze:
		return true
	default:
		return false
	}
}

// Question is a single authored question inside an exam definition.
type Question struct {
	ID            string       `json:"id"`
	Text          string       `json:"text"`
	Type          QuestionType `json:"type"`
	Options       []string     `json:"options,omitempty"`
	CorrectAnswer string       `json:"correct_answer,omitempty"`
	Points        int          `json:"points"`
	Explanation   string       `json:"explanation,omitempty"`
}

// ExamDefinition is the authored question material of an exam, stored as a
// single document. Exactly one of Questions or Sections is populated: a flat
// exam lists questions directly, a sectioned exam groups them.
type ExamDefinition struct {
	Questions []Question `json:"questions,omitempty"`
	Sections  []Section  `json:"sections,omitempty"`
}

// Sectioned reports whether the definition uses the sectioned form.
func (d *ExamDefinition) Sectioned() bool {
	return len(d.Sections) > 0
}

// ItemCount returns the number of answerable items: flat questions, section
// questions and cloze blanks. Sections with an unresolvable shape count
// nothing.
func (d *ExamDefinition) ItemCount() int {
	if !d.Sectioned() {
		return len(d.Questions)
	}
	n := 0
	for i := range d.Sections {
		kind, err := KindOf(&d.Sections[i])
		if err != nil {
			continue
		}
		switch kind {
		case SectionKindStandard:
			n += len(d.Sections[i].Questions)
		case SectionKindCloze:
			n += len(d.Sections[i].Items)
		}
	}
	return n
}

// Exam is the authored assessment: scheduling and policy columns plus the
// embedded content document.
type Exam struct {
	ID               uuid.UUID  `json:"id"`
	SchoolID         uuid.UUID  `json:"school_id"`
	ClassID          uuid.UUID  `json:"class_id"`
	AuthorID         uuid.UUID  `json:"author_id"`
	Title            string     `json:"title"`
	TimeLimitMinutes int        `json:"time_limit_minutes"`
	StartTime        *time.Time `json:"start_time,omitempty"`
	DueDate          *time.Time `json:"due_date,omitempty"`
	ShuffleQuestions bool       `json:"shuffle_questions"`
	ShuffleOptions   bool       `json:"shuffle_options"`
	MaxAttempts      *int       `json:"max_attempts,omitempty"`
	IsPublished      bool       `json:"is_published"`
	PublishedAt      *time.Time `json:"published_at,omitempty"`
	ExamDefinition
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TimeLimit returns the attempt duration as a time.Duration.
func (e *Exam) TimeLimit() time.Duration {
	return time.Duration(e.TimeLimitMinutes) * time.Minute
}

// ExamSummary is the list-view projection of an exam.
type ExamSummary struct {
	ID               uuid.UUID  `json:"id"`
	Title            string     `json:"title"`
	ClassID          uuid.UUID  `json:"class_id"`
	ClassName        string     `json:"class_name,omitempty"`
	TimeLimitMinutes int        `json:"time_limit_minutes"`
	QuestionCount    int        `json:"question_count"`
	IsPublished      bool       `json:"is_published"`
	StartTime        *time.Time `json:"start_time,omitempty"`
	DueDate          *time.Time `json:"due_date,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// QuestionRequest is an authored question in a create/update payload.
type QuestionRequest struct {
	ID            string   `json:"id" binding:"omitempty,max=64"`
	Text          string   `json:"text" binding:"required,min=1,max=4000"`
	Type          string   `json:"type" binding:"required,oneof=multiple-choice true-false short-answer essay"`
	Options       []string `json:"options" binding:"omitempty,max=10,dive,min=1,max=500"`
	CorrectAnswer string   `json:"correct_answer" binding:"omitempty,max=500"`
	Points        int      `json:"points" binding:"omitempty,min=1,max=100"`
	Explanation   string   `json:"explanation" binding:"omitempty,max=2000"`
}

// ClozeItemRequest is a numbered blank of a cloze section in a payload.
type ClozeItemRequest struct {
	Number        int      `json:"number" binding:"required,min=1"`
	Options       []string `json:"options" binding:"required,min=2,max=10,dive,min=1,max=200"`
	CorrectAnswer string   `json:"correct_answer" binding:"required,max=200"`
	Points        int      `json:"points" binding:"omitempty,min=1,max=100"`
}

// SectionRequest is an authored section in a create/update payload.
type SectionRequest struct {
	ID          string             `json:"id" binding:"omitempty,max=64"`
	Instruction string             `json:"instruction" binding:"omitempty,max=2000"`
	Questions   []QuestionRequest  `json:"questions" binding:"omitempty,dive"`
	Passage     string             `json:"passage" binding:"omitempty,max=20000"`
	Items       []ClozeItemRequest `json:"items" binding:"omitempty,dive"`
}

// CreateExamRequest is the authoring payload. Exactly one of Questions or
// Sections must be present; the service enforces that and every structural
// rule the binding tags cannot express.
type CreateExamRequest struct {
	Title            string            `json:"title" binding:"required,min=3,max=255"`
	ClassID          uuid.UUID         `json:"class_id" binding:"required"`
	TimeLimitMinutes int               `json:"time_limit_minutes" binding:"required,min=1,max=480"`
	StartTime        *time.Time        `json:"start_time" binding:"omitempty"`
	DueDate          *time.Time        `json:"due_date" binding:"omitempty,gtfield=StartTime"`
	ShuffleQuestions bool              `json:"shuffle_questions"`
	ShuffleOptions   bool              `json:"shuffle_options"`
	MaxAttempts      *int              `json:"max_attempts" binding:"omitempty,min=1,max=10"`
	Questions        []QuestionRequest `json:"questions" binding:"omitempty,dive"`
	Sections         []SectionRequest  `json:"sections" binding:"omitempty,dive"`
}

// UpdateExamRequest is the payload for updating an unpublished exam.
type UpdateExamRequest struct {
	Title            string            `json:"title" binding:"omitempty,min=3,max=255"`
	ClassID          *uuid.UUID        `json:"class_id" binding:"omitempty"`
	TimeLimitMinutes int               `json:"time_limit_minutes" binding:"omitempty,min=1,max=480"`
	StartTime        *time.Time        `json:"start_time" binding:"omitempty"`
	DueDate          *time.Time        `json:"due_date" binding:"omitempty,gtfield=StartTime"`
	ShuffleQuestions *bool             `json:"shuffle_questions" binding:"omitempty"`
	ShuffleOptions   *bool             `json:"shuffle_options" binding:"omitempty"`
	MaxAttempts      *int              `json:"max_attempts" binding:"omitempty,min=1,max=10"`
	Questions        []QuestionRequest `json:"questions" binding:"omitempty,dive"`
	Sections         []SectionRequest  `json:"sections" binding:"omitempty,dive"`
}

// PaperQuestion is a question stripped for delivery to a student. It never
// carries the correct answer or the explanation.
type PaperQuestion struct {
	ID      string       `json:"id"`
	Text    string       `json:"text"`
	Type    QuestionType `json:"type"`
	Options []string     `json:"options,omitempty"`
	Points  int          `json:"points"`
}

// PaperClozeItem is a cloze blank stripped for delivery to a student.
type PaperClozeItem struct {
	Number  int      `json:"number"`
	Options []string `json:"options"`
	Points  int      `json:"points"`
}

// PaperSection is a section stripped for delivery to a student.
type PaperSection struct {
	ID          string           `json:"id"`
	Kind        SectionKind      `json:"kind"`
	Instruction string           `json:"instruction,omitempty"`
	Questions   []PaperQuestion  `json:"questions,omitempty"`
	Passage     string           `json:"passage,omitempty"`
	Items       []PaperClozeItem `json:"items,omitempty"`
}

// ExamPaper is the answer-free exam payload sent to a student. Question and
// option order already reflect the per-student shuffle.
type ExamPaper struct {
	ExamID           uuid.UUID       `json:"exam_id"`
	Title            string          `json:"title"`
	TimeLimitMinutes int             `json:"time_limit_minutes"`
	Questions        []PaperQuestion `json:"questions,omitempty"`
	Sections         []PaperSection  `json:"sections,omitempty"`
}
