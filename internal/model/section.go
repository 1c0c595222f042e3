package model

import "errors"

// SectionKind classifies a section by its structure.
type SectionKind string

const (
	SectionKindStandard SectionKind = "standard"
	SectionKindCloze    SectionKind = "cloze"
)

// ErrInvalidSectionShape marks a section that is neither a standard question
// group nor a cloze passage.
var ErrInvalidSectionShape = errors.New("section is neither standard nor cloze")

// ClozeItem is one numbered blank of a cloze passage. Number matches the
// blank marker inside the passage text and is unique within the section.
type ClozeItem struct {
	Number        int      `json:"number"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer,omitempty"`
	Points        int      `json:"points"`
}

// Section is a group of exam material. A standard section carries questions,
// a cloze section carries a passage with numbered blanks. Sections have no
// explicit type field; their kind is derived from shape via KindOf.
type Section struct {
	ID          string      `json:"id"`
	Instruction string      `json:"instruction,omitempty"`
	Questions   []Question  `json:"questions,omitempty"`
	Passage     string      `json:"passage,omitempty"`
	Items       []ClozeItem `json:"items,omitempty"`
}

// KindOf resolves the structural kind of a section. A section with a
// non-empty passage and at least one item is cloze; otherwise a section with
// at least one question is standard. Everything else fails with
// ErrInvalidSectionShape. Every consumer of section shape goes through this
// function so grading, delivery and validation can never disagree.
func KindOf(s *Section) (SectionKind, error) {
	if s.Passage != "" && len(s.Items) > 0 {
		return SectionKindCloze, nil
	}
	if len(s.Questions) > 0 {
		return SectionKindStandard, nil
	}
	return "", ErrInvalidSectionShape
}
