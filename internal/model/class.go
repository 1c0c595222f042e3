package model

import (
	"time"

	"github.com/google/uuid"
)

// School is the tenant boundary. Every entity below it carries a school id
// and queries never cross it.
type School struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Class represents a class group within a school.
type Class struct {
	ID         uuid.UUID `json:"id"`
	SchoolID   uuid.UUID `json:"school_id"`
	Name       string    `json:"name"`
	GradeLevel int       `json:"grade_level"`
	CreatedAt  time.Time `json:"created_at"`
}
