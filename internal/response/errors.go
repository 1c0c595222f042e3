package response

// ErrCode is the machine-readable error identifier clients switch on.
// Messages may be reworded freely; codes are part of the API contract.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrSessionInvalidated ErrCode = "SESSION_INVALIDATED"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"
	ErrTokenExpired       ErrCode = "TOKEN_EXPIRED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden         ErrCode = "FORBIDDEN"
	ErrStudentAccessOnly ErrCode = "STUDENT_ACCESS_ONLY"
	ErrTeacherAccessOnly ErrCode = "TEACHER_ACCESS_ONLY"
	ErrNotEnrolled       ErrCode = "NOT_ENROLLED"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation ErrCode = "VALIDATION_ERROR"
	ErrInvalidID  ErrCode = "INVALID_ID"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound              ErrCode = "NOT_FOUND"
	ErrStudentRecordNotFound ErrCode = "STUDENT_RECORD_NOT_FOUND"

	// ─── Exam authoring ────────────────────────────────────────────────
	ErrNotExamAuthor        ErrCode = "NOT_EXAM_AUTHOR"
	ErrExamAlreadyPublished ErrCode = "EXAM_ALREADY_PUBLISHED"

	// ─── Exam scheduling ───────────────────────────────────────────────
	ErrExamNotPublished ErrCode = "EXAM_NOT_PUBLISHED"
	ErrExamNotOpen      ErrCode = "EXAM_NOT_OPEN"
	ErrExamClosed       ErrCode = "EXAM_CLOSED"

	// ─── Attempts ──────────────────────────────────────────────────────
	ErrAlreadyCompleted    ErrCode = "ALREADY_COMPLETED"
	ErrMaxAttemptsExceeded ErrCode = "MAX_ATTEMPTS_EXCEEDED"
	ErrNoActiveAttempt     ErrCode = "NO_ACTIVE_ATTEMPT"
	ErrDuplicateSubmission ErrCode = "DUPLICATE_SUBMISSION"

	// ─── Manual grading ────────────────────────────────────────────────
	ErrGradeTargetNotAllowed ErrCode = "GRADE_TARGET_NOT_ALLOWED"
	ErrGradeOutOfRange       ErrCode = "GRADE_OUT_OF_RANGE"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrInvalidCredentials:
		return "Email or password is incorrect."
	case ErrSessionInvalidated:
		return "Your session has ended. Please sign in again."
	case ErrTokenRequired:
		return "An authentication token is required."
	case ErrTokenInvalid:
		return "The authentication token is invalid."
	case ErrTokenExpired:
		return "The authentication token has expired."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "You do not have permission to access this resource."
	case ErrStudentAccessOnly:
		return "This resource is restricted to students."
	case ErrTeacherAccessOnly:
		return "This resource is restricted to teachers."
	case ErrNotEnrolled:
		return "You are not enrolled in the class this exam belongs to."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "The id format is invalid."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "The resource was not found."
	case ErrStudentRecordNotFound:
		return "No student record is linked to this account."

	// ─── Exam authoring ────────────────────────────────────────────────
	case ErrNotExamAuthor:
		return "You are not the author of this exam."
	case ErrExamAlreadyPublished:
		return "A published exam can no longer be edited."

	// ─── Exam scheduling ───────────────────────────────────────────────
	case ErrExamNotPublished:
		return "This exam has not been published."
	case ErrExamNotOpen:
		return "This exam has not opened yet."
	case ErrExamClosed:
		return "This exam is past its due date."

	// ─── Attempts ──────────────────────────────────────────────────────
	case ErrAlreadyCompleted:
		return "You have already completed this exam."
	case ErrMaxAttemptsExceeded:
		return "You have used all allowed attempts for this exam."
	case ErrNoActiveAttempt:
		return "There is no attempt in progress for this exam."
	case ErrDuplicateSubmission:
		return "This exam has already been submitted."

	// ─── Manual grading ────────────────────────────────────────────────
	case ErrGradeTargetNotAllowed:
		return "Auto-graded answers cannot be regraded manually."
	case ErrGradeOutOfRange:
		return "The awarded points are outside the allowed range for this question."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
