package model

import (
	"time"

	"github.com/google/uuid"
)

// ResultStatus enumerates grading states of a finalized submission.
type ResultStatus string

const (
	// ResultStatusSubmitted is the degenerate case: a submission with no
	// auto-gradable material and nothing awaiting review.
	ResultStatusSubmitted ResultStatus = "submitted"
	// ResultStatusNeedsReview marks a result with at least one answer still
	// waiting for a teacher grade.
	ResultStatusNeedsReview ResultStatus = "needs-review"
	// ResultStatusGraded marks a fully scored result.
	ResultStatusGraded ResultStatus = "graded"
)

// GradedAnswer is the per-item grading record stored on a result. Plain
// questions carry QuestionID; cloze blanks carry Number instead and have a
// nil QuestionID. A nil IsCorrect means the item is pending teacher review
// or received a partial manual score.
type GradedAnswer struct {
	QuestionID           *string      `json:"question_id,omitempty"`
	Number               *int         `json:"number,omitempty"`
	QuestionType         QuestionType `json:"question_type"`
	SectionInstruction   *string      `json:"section_instruction,omitempty"`
	QuestionText         string       `json:"question_text,omitempty"`
	SelectedAnswer       string       `json:"selected_answer"`
	CorrectAnswer        string       `json:"correct_answer,omitempty"`
	Points               int          `json:"points"`
	EarnedPoints         int          `json:"earned_points"`
	IsCorrect            *bool        `json:"is_correct"`
	ManualReviewRequired bool         `json:"manual_review_required"`
	Feedback             string       `json:"feedback,omitempty"`
}

// Result is the permanent record of one concluded attempt. At most one
// result exists per (exam, student); the database enforces this with a
// unique constraint.
type Result struct {
	ID               uuid.UUID      `json:"id"`
	ExamID           uuid.UUID      `json:"exam_id"`
	StudentID        uuid.UUID      `json:"student_id"`
	SchoolID         uuid.UUID      `json:"school_id"`
	SessionID        uuid.UUID      `json:"session_id"`
	AttemptNumber    int            `json:"attempt_number"`
	Answers          []GradedAnswer `json:"answers"`
	Score            int            `json:"score"`
	TotalPoints      int            `json:"total_points"`
	Percentage       *float64       `json:"percentage"`
	Status           ResultStatus   `json:"status"`
	AutoGraded       bool           `json:"auto_graded"`
	PendingManual    int            `json:"pending_manual"`
	SkippedSections  int            `json:"skipped_sections,omitempty"`
	TimeSpentSeconds int            `json:"time_spent_seconds"`
	SubmittedAt      time.Time      `json:"submitted_at"`
}

// ResultSummary is the list-view projection of a result for teachers.
type ResultSummary struct {
	ID            uuid.UUID    `json:"id"`
	ExamID        uuid.UUID    `json:"exam_id"`
	StudentID     uuid.UUID    `json:"student_id"`
	StudentName   string       `json:"student_name"`
	StudentNumber string       `json:"student_number,omitempty"`
	AttemptNumber int          `json:"attempt_number"`
	Score         int          `json:"score"`
	TotalPoints   int          `json:"total_points"`
	Percentage    *float64     `json:"percentage"`
	Status        ResultStatus `json:"status"`
	PendingManual int          `json:"pending_manual"`
	SubmittedAt   time.Time    `json:"submitted_at"`
}

// SubmitReceipt acknowledges a submission. Status is "submitted" for a fresh
// conclusion and "already-submitted" when a result already existed, which is
// how racing auto-submits are absorbed.
type SubmitReceipt struct {
	Status         string       `json:"status"`
	ResultID       uuid.UUID    `json:"result_id"`
	ResultStatus   ResultStatus `json:"result_status"`
	Score          int          `json:"score"`
	TotalPoints    int          `json:"total_points"`
	Percentage     *float64     `json:"percentage"`
	RequiresReview bool         `json:"requires_review"`
	SubmittedAt    time.Time    `json:"submitted_at"`
}

const (
	SubmitStatusSubmitted        = "submitted"
	SubmitStatusAlreadySubmitted = "already-submitted"
)

// GradeAnswerRequest is the payload for manually scoring one answer.
type GradeAnswerRequest struct {
	QuestionID   string `json:"question_id" binding:"required,max=64"`
	EarnedPoints *int   `json:"earned_points" binding:"required,min=0"`
	Feedback     string `json:"feedback" binding:"omitempty,max=2000"`
}
