// Package grading scores finalized answer sets against exam definitions.
// Scoring is pure computation over the definition and the answers map, so
// every rule here is exercised directly by unit tests without any storage.
package grading

import (
	"errors"
	"math"
	"strings"

	"github.com/akademos/exam-backend/internal/model"
)

var (
	// ErrTargetNotFound means no graded answer matches the question id.
	ErrTargetNotFound = errors.New("graded answer not found")
	// ErrTargetNotManual means the target is auto-graded. Machine scores are
	// never overridable, otherwise a correction could tamper with them.
	ErrTargetNotManual = errors.New("answer is auto-graded and cannot be overridden")
	// ErrPointsOutOfRange means the awarded points fall outside [0, points].
	ErrPointsOutOfRange = errors.New("earned points outside the allowed range")
)

// Outcome is the grading product for one submission.
type Outcome struct {
	Answers []model.GradedAnswer

	// Score and TotalPoints cover auto-gradable items only. Items awaiting
	// review are excluded from the denominator until a teacher scores them.
	Score       int
	TotalPoints int

	// Percentage is nil while any item awaits review or when nothing was
	// auto-gradable.
	Percentage *float64

	RequiresReview bool
	PendingManual  int

	// SkippedSections counts sections whose shape could not be resolved.
	// They contribute nothing to the score.
	SkippedSections int
}

// Status maps the outcome to the status of the result it produces.
func (o *Outcome) Status() model.ResultStatus {
	switch {
	case o.RequiresReview:
		return model.ResultStatusNeedsReview
	case o.TotalPoints > 0:
		return model.ResultStatusGraded
	default:
		return model.ResultStatusSubmitted
	}
}

// Grade scores an answers map against the exam definition. Missing answers
// on auto-gradable items count against the denominator; essay and
// short-answer items are recorded as pending review with zero points.
func Grade(def *model.ExamDefinition, answers map[string]string) Outcome {
	var out Outcome
	if def.Sectioned() {
		for i := range def.Sections {
			gradeSection(&out, &def.Sections[i], answers)
		}
	} else {
		for i := range def.Questions {
			q := &def.Questions[i]
			gradeQuestion(&out, q, answers[q.ID], nil)
		}
	}
	if !out.RequiresReview && out.TotalPoints > 0 {
		out.Percentage = pct(out.Score, out.TotalPoints)
	}
	return out
}

func gradeSection(out *Outcome, sec *model.Section, answers map[string]string) {
	kind, err := model.KindOf(sec)
	if err != nil {
		out.SkippedSections++
		return
	}
	instruction := sec.Instruction
	switch kind {
	case model.SectionKindStandard:
		for i := range sec.Questions {
			q := &sec.Questions[i]
			gradeQuestion(out, q, answers[q.ID], &instruction)
		}
	case model.SectionKindCloze:
		for i := range sec.Items {
			it := &sec.Items[i]
			gradeClozeItem(out, it, &instruction, answers[model.ClozeAnswerKey(sec.ID, it.Number)])
		}
	}
}

func gradeQuestion(out *Outcome, q *model.Question, selected string, instruction *string) {
	qid := q.ID
	ga := model.GradedAnswer{
		QuestionID:         &qid,
		QuestionType:       q.Type,
		SectionInstruction: instruction,
		QuestionText:       q.Text,
		SelectedAnswer:     selected,
		Points:             pointsOrDefault(q.Points),
	}
	if !q.Type.AutoGradable() {
		ga.ManualReviewRequired = true
		out.RequiresReview = true
		out.PendingManual++
		out.Answers = append(out.Answers, ga)
		return
	}
	ga.CorrectAnswer = q.CorrectAnswer
	out.TotalPoints += ga.Points
	correct := false
	if selected != "" {
		if q.Type == model.QuestionTypeTrueFalse {
			// True/false submissions arrive with mixed casing from older
			// clients, so the comparison is case-insensitive.
			correct = strings.EqualFold(selected, q.CorrectAnswer)
		} else {
			correct = selected == q.CorrectAnswer
		}
	}
	ga.IsCorrect = &correct
	if correct {
		ga.EarnedPoints = ga.Points
		out.Score += ga.Points
	}
	out.Answers = append(out.Answers, ga)
}

func gradeClozeItem(out *Outcome, it *model.ClozeItem, instruction *string, selected string) {
	number := it.Number
	ga := model.GradedAnswer{
		Number:             &number,
		QuestionType:       model.QuestionTypeCloze,
		SectionInstruction: instruction,
		SelectedAnswer:     selected,
		CorrectAnswer:      it.CorrectAnswer,
		Points:             pointsOrDefault(it.Points),
	}
	out.TotalPoints += ga.Points
	correct := selected != "" && selected == it.CorrectAnswer
	ga.IsCorrect = &correct
	if correct {
		ga.EarnedPoints = ga.Points
		out.Score += ga.Points
	}
	out.Answers = append(out.Answers, ga)
}

// ApplyManualGrade scores one reviewable answer and rebuilds the result's
// aggregates. On failure the result is left untouched. Re-grading an already
// corrected answer is allowed and simply overwrites the previous score.
func ApplyManualGrade(res *model.Result, questionID string, earned int, feedback string) error {
	idx := -1
	for i := range res.Answers {
		if id := res.Answers[i].QuestionID; id != nil && *id == questionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrTargetNotFound
	}
	a := &res.Answers[idx]
	if a.QuestionType.AutoGradable() {
		return ErrTargetNotManual
	}
	if earned < 0 || earned > a.Points {
		return ErrPointsOutOfRange
	}

	a.EarnedPoints = earned
	a.Feedback = feedback
	a.ManualReviewRequired = false
	switch {
	case earned == a.Points:
		a.IsCorrect = boolPtr(true)
	case earned == 0:
		a.IsCorrect = boolPtr(false)
	default:
		// Partial credit is neither right nor wrong.
		a.IsCorrect = nil
	}

	Recompute(res)
	return nil
}

// Recompute rebuilds score, total, pending count, percentage and status
// from the graded answers. Once manual grading has begun the denominator
// spans every item, not just the auto-gradable ones.
func Recompute(res *model.Result) {
	var score, total, pending int
	for i := range res.Answers {
		a := &res.Answers[i]
		score += a.EarnedPoints
		total += a.Points
		if a.ManualReviewRequired {
			pending++
		}
	}
	res.Score = score
	res.TotalPoints = total
	res.PendingManual = pending
	res.Percentage = nil
	if pending == 0 {
		res.Status = model.ResultStatusGraded
		if total > 0 {
			res.Percentage = pct(score, total)
		}
	} else {
		res.Status = model.ResultStatusNeedsReview
	}
}

func pointsOrDefault(p int) int {
	if p < 1 {
		return 1
	}
	return p
}

// pct computes score/total as a percentage rounded to two decimals.
func pct(score, total int) *float64 {
	v := math.Round(float64(score)/float64(total)*10000) / 100
	return &v
}

func boolPtr(b bool) *bool { return &b }
