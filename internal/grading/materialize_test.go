package grading

import (
	"reflect"
	"testing"

	"github.com/akademos/exam-backend/internal/model"
)

func TestMaterializeGroupsBySection(t *testing.T) {
	def := &model.ExamDefinition{Sections: []model.Section{
		{ID: "s1", Instruction: "Reading", Questions: []model.Question{
			mc("q1", "q", 1, "A", "A", "B"),
			mc("q2", "q", 1, "A", "A", "B"),
		}},
		{ID: "s2", Instruction: "Vocabulary", Passage: "Water is (1).", Items: []model.ClozeItem{
			{Number: 1, Options: []string{"wet", "dry"}, CorrectAnswer: "wet", Points: 1},
		}},
	}}
	out := Grade(def, map[string]string{"q1": "A"})

	views := Materialize(out.Answers)
	if len(views) != 2 {
		t.Fatalf("views = %d, want 2", len(views))
	}
	if views[0].Instruction == nil || *views[0].Instruction != "Reading" {
		t.Errorf("first view instruction = %v, want Reading", views[0].Instruction)
	}
	if views[0].Kind != model.SectionKindStandard || len(views[0].Answers) != 2 {
		t.Errorf("first view = kind %q with %d answers, want standard/2", views[0].Kind, len(views[0].Answers))
	}
	if views[1].Kind != model.SectionKindCloze {
		t.Errorf("second view kind = %q, want cloze", views[1].Kind)
	}
}

func TestMaterializeCollectsFlatAnswers(t *testing.T) {
	out := Grade(flatDef(
		mc("q1", "q", 1, "A", "A", "B"),
		tf("q2", "true"),
	), map[string]string{"q1": "A", "q2": "true"})

	views := Materialize(out.Answers)
	if len(views) != 1 {
		t.Fatalf("views = %d, want 1", len(views))
	}
	if views[0].Instruction != nil {
		t.Errorf("flat group instruction = %q, want nil", *views[0].Instruction)
	}
	if len(views[0].Answers) != 2 {
		t.Errorf("flat group answers = %d, want 2", len(views[0].Answers))
	}
}

func TestMaterializeIsLossless(t *testing.T) {
	def := &model.ExamDefinition{Sections: []model.Section{
		{ID: "s1", Instruction: "Part A", Questions: []model.Question{
			mc("q1", "q", 1, "A", "A", "B"),
			essay("q2", 3),
		}},
		{ID: "s2", Instruction: "Part B", Passage: "The sky is (1).", Items: []model.ClozeItem{
			{Number: 1, Options: []string{"blue", "green"}, CorrectAnswer: "blue", Points: 2},
		}},
		{ID: "s3", Instruction: "Part C", Questions: []model.Question{
			tf("q3", "false"),
		}},
	}}
	out := Grade(def, map[string]string{"q1": "A", "s2:1": "blue", "q3": "true"})

	var collected []model.GradedAnswer
	for _, v := range Materialize(out.Answers) {
		collected = append(collected, v.Answers...)
	}
	if !reflect.DeepEqual(collected, out.Answers) {
		t.Errorf("grouping lost information:\n got %+v\nwant %+v", collected, out.Answers)
	}
}

func TestMaterializeEmpty(t *testing.T) {
	if views := Materialize(nil); len(views) != 0 {
		t.Errorf("views = %d, want 0", len(views))
	}
}
