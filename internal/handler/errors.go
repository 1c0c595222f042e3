package handler

import (
	"errors"
	"net/http"

	"github.com/akademos/exam-backend/internal/grading"
	"github.com/akademos/exam-backend/internal/response"
	"github.com/akademos/exam-backend/internal/service"
	"github.com/gin-gonic/gin"
)

// errStatus maps a service error to its HTTP status and API error code. The
// WebSocket stream reuses the code half for its error frames.
func errStatus(err error) (int, response.ErrCode) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, response.ErrInvalidCredentials

	case errors.Is(err, service.ErrExamNotFound),
		errors.Is(err, service.ErrResultNotFound),
		errors.Is(err, service.ErrClassNotFound),
		errors.Is(err, grading.ErrTargetNotFound):
		return http.StatusNotFound, response.ErrNotFound

	case errors.Is(err, service.ErrStudentRecordNotFound):
		return http.StatusNotFound, response.ErrStudentRecordNotFound

	case errors.Is(err, service.ErrNotExamAuthor):
		return http.StatusForbidden, response.ErrNotExamAuthor
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, response.ErrForbidden

	case errors.Is(err, service.ErrExamPublished):
		return http.StatusConflict, response.ErrExamAlreadyPublished

	case errors.Is(err, service.ErrExamNotPublished):
		return http.StatusForbidden, response.ErrExamNotPublished
	case errors.Is(err, service.ErrExamNotOpen):
		return http.StatusForbidden, response.ErrExamNotOpen
	case errors.Is(err, service.ErrExamClosed):
		return http.StatusForbidden, response.ErrExamClosed
	case errors.Is(err, service.ErrNotEnrolled):
		return http.StatusForbidden, response.ErrNotEnrolled

	case errors.Is(err, service.ErrAlreadyCompleted):
		return http.StatusConflict, response.ErrAlreadyCompleted
	case errors.Is(err, service.ErrMaxAttemptsExceeded):
		return http.StatusConflict, response.ErrMaxAttemptsExceeded
	case errors.Is(err, service.ErrDuplicateSubmission):
		return http.StatusConflict, response.ErrDuplicateSubmission
	case errors.Is(err, service.ErrNoActiveAttempt):
		return http.StatusNotFound, response.ErrNoActiveAttempt

	case errors.Is(err, grading.ErrTargetNotManual):
		return http.StatusBadRequest, response.ErrGradeTargetNotAllowed
	case errors.Is(err, grading.ErrPointsOutOfRange):
		return http.StatusBadRequest, response.ErrGradeOutOfRange

	default:
		return http.StatusInternalServerError, response.ErrInternal
	}
}

// failFromErr translates a service error into an API failure response. Every
// handler error path funnels through here so a sentinel maps the same way on
// every route.
func failFromErr(c *gin.Context, err error) {
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, verr.Fields())
		return
	}

	status, code := errStatus(err)
	response.Fail(c, status, code)
}
