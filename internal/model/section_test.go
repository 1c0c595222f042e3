package model

import (
	"errors"
	"testing"
	"time"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		name    string
		section Section
		want    SectionKind
		wantErr bool
	}{
		{
			name:    "standard",
			section: Section{ID: "s1", Questions: []Question{{ID: "q1", Type: QuestionTypeEssay}}},
			want:    SectionKindStandard,
		},
		{
			name: "cloze",
			section: Section{ID: "s2", Passage: "The sky is (1).", Items: []ClozeItem{
				{Number: 1, Options: []string{"blue", "green"}, CorrectAnswer: "blue"},
			}},
			want: SectionKindCloze,
		},
		{
			name:    "empty",
			section: Section{ID: "s3", Instruction: "nothing inside"},
			wantErr: true,
		},
		{
			name:    "passage without items",
			section: Section{ID: "s4", Passage: "text only"},
			wantErr: true,
		},
		{
			name:    "items without passage",
			section: Section{ID: "s5", Items: []ClozeItem{{Number: 1}}},
			wantErr: true,
		},
		{
			name: "both shapes resolves to cloze",
			section: Section{
				ID:        "s6",
				Passage:   "Water is (1).",
				Items:     []ClozeItem{{Number: 1, CorrectAnswer: "wet"}},
				Questions: []Question{{ID: "q1"}},
			},
			want: SectionKindCloze,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := KindOf(&tc.section)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidSectionShape) {
					t.Fatalf("err = %v, want ErrInvalidSectionShape", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tc.want {
				t.Errorf("kind = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestClozeAnswerKey(t *testing.T) {
	if got := ClozeAnswerKey("sec-9", 3); got != "sec-9:3" {
		t.Errorf("key = %q, want sec-9:3", got)
	}
}

func TestAttemptLive(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	a := Attempt{Status: AttemptStatusInProgress, ExpiresAt: now.Add(10 * time.Minute)}

	if !a.Live(now) {
		t.Error("attempt before its deadline must be live")
	}
	if a.Live(now.Add(10 * time.Minute)) {
		t.Error("attempt at its deadline must be dead even while still in-progress")
	}

	a.Status = AttemptStatusSubmitted
	if a.Live(now) {
		t.Error("submitted attempt must never be live")
	}
}

func TestAttemptRemainingSeconds(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	a := Attempt{ExpiresAt: now.Add(90 * time.Second)}
	if got := a.RemainingSeconds(now); got != 90 {
		t.Errorf("remaining = %d, want 90", got)
	}
	if got := a.RemainingSeconds(now.Add(2 * time.Minute)); got != 0 {
		t.Errorf("remaining after deadline = %d, want 0", got)
	}
}
