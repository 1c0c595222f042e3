package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates attempt lifecycle states.
type AttemptStatus string

const (
	AttemptStatusInProgress AttemptStatus = "in-progress"
	AttemptStatusSubmitted  AttemptStatus = "submitted"
	AttemptStatusExpired    AttemptStatus = "expired"
)

// Attempt represents a student's working state for one exam run. At most one
// in-progress attempt exists per (exam, student); the database enforces this
// with a partial unique index.
type Attempt struct {
	ID            uuid.UUID         `json:"id"`
	ExamID        uuid.UUID         `json:"exam_id"`
	StudentID     uuid.UUID         `json:"student_id"`
	SchoolID      uuid.UUID         `json:"school_id"`
	SessionID     uuid.UUID         `json:"session_id"`
	AttemptNumber int               `json:"attempt_number"`
	Status        AttemptStatus     `json:"status"`
	Answers       map[string]string `json:"answers"`
	StartedAt     time.Time         `json:"started_at"`
	ExpiresAt     time.Time         `json:"expires_at"`
	LastActivity  time.Time         `json:"last_activity"`
}

// Live reports whether the attempt is usable at the given instant. An
// in-progress attempt whose deadline has passed is already dead even if no
// sweep has flipped its status yet.
func (a *Attempt) Live(now time.Time) bool {
	return a.Status == AttemptStatusInProgress && now.Before(a.ExpiresAt)
}

// RemainingSeconds returns the whole seconds left before the deadline,
// never negative.
func (a *Attempt) RemainingSeconds(now time.Time) int {
	left := a.ExpiresAt.Sub(now)
	if left <= 0 {
		return 0
	}
	return int(left / time.Second)
}

// ClozeAnswerKey builds the composite answers-map key for a cloze blank.
// Plain questions are keyed by their question id alone.
func ClozeAnswerKey(sectionID string, number int) string {
	return fmt.Sprintf("%s:%d", sectionID, number)
}

// AttemptState is returned when a student starts or resumes an exam.
type AttemptState struct {
	SessionID        uuid.UUID         `json:"session_id"`
	AttemptNumber    int               `json:"attempt_number"`
	StartedAt        time.Time         `json:"started_at"`
	ExpiresAt        time.Time         `json:"expires_at"`
	RemainingSeconds int               `json:"remaining_seconds"`
	Resumed          bool              `json:"resumed"`
	Answers          map[string]string `json:"answers"`
}

// SaveAnswersRequest is the payload for buffering in-progress answers.
// Keys merge into the stored answer map; absent keys are left untouched.
type SaveAnswersRequest struct {
	Answers map[string]string `json:"answers" binding:"required"`
}

// SubmitExamRequest is the payload for concluding an attempt.
type SubmitExamRequest struct {
	Answers          map[string]string `json:"answers"`
	TimeSpentSeconds int               `json:"time_spent_seconds" binding:"omitempty,min=0"`
	AutoSubmit       bool              `json:"auto_submit"`
}
