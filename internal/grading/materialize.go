package grading

import "github.com/akademos/exam-backend/internal/model"

// SectionView groups graded answers for presentation. Storage keeps the
// flat list; views are derived on read and never persisted.
type SectionView struct {
	Instruction *string              `json:"instruction,omitempty"`
	Kind        model.SectionKind    `json:"kind"`
	Answers     []model.GradedAnswer `json:"answers"`
}

// Materialize regroups a flat graded-answer list by section instruction,
// preserving first-appearance order. Answers without a section collect
// under a single group with a nil instruction. A group containing cloze
// answers is reported as a cloze section.
func Materialize(answers []model.GradedAnswer) []SectionView {
	var views []SectionView
	index := make(map[string]int)
	for _, a := range answers {
		key := "\x00flat"
		if a.SectionInstruction != nil {
			key = "s:" + *a.SectionInstruction
		}
		i, ok := index[key]
		if !ok {
			i = len(views)
			index[key] = i
			views = append(views, SectionView{
				Instruction: a.SectionInstruction,
				Kind:        model.SectionKindStandard,
			})
		}
		if a.QuestionType == model.QuestionTypeCloze {
			views[i].Kind = model.SectionKindCloze
		}
		views[i].Answers = append(views[i].Answers, a)
	}
	return views
}
