package model

import (
	"time"

	"github.com/google/uuid"
)

// Student is the enrollment record behind a student account. Exam attempts
// and results reference the student, not the user, so transfers between
// accounts keep the academic history intact.
type Student struct {
	ID            uuid.UUID `json:"id"`
	UserID        uuid.UUID `json:"user_id"`
	SchoolID      uuid.UUID `json:"school_id"`
	ClassID       uuid.UUID `json:"class_id"`
	Name          string    `json:"name"`
	StudentNumber string    `json:"student_number"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
