package service

import (
	"errors"
	"fmt"
)

// Domain errors returned by services. Handlers translate these into API
// error codes; nothing below carries HTTP semantics.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrExamNotFound          = errors.New("exam not found")
	ErrStudentRecordNotFound = errors.New("no student record for this account")
	ErrClassNotFound         = errors.New("class not found")
	ErrResultNotFound        = errors.New("result not found")

	ErrNotExamAuthor = errors.New("caller is not the exam author")
	ErrExamPublished = errors.New("published exams cannot be edited")

	ErrExamNotPublished = errors.New("exam is not published")
	ErrExamNotOpen      = errors.New("exam has not opened yet")
	ErrExamClosed       = errors.New("exam is past its due date")
	ErrNotEnrolled      = errors.New("student is not enrolled in the exam's class")

	ErrAlreadyCompleted    = errors.New("exam already completed")
	ErrMaxAttemptsExceeded = errors.New("max attempts exceeded")
	ErrNoActiveAttempt     = errors.New("no attempt in progress")
	ErrDuplicateSubmission = errors.New("exam already submitted")

	ErrForbidden = errors.New("access denied")
)

// ValidationError reports a structural problem in an authored exam that
// binding tags cannot express, such as a section that is neither standard
// nor cloze.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

// Fields renders the error as a field map for the API envelope.
func (e *ValidationError) Fields() map[string]string {
	return map[string]string{e.Field: e.Msg}
}

func validationErr(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}
