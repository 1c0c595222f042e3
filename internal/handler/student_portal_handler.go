package handler

import (
	"net/http"

	"github.com/akademos/exam-backend/internal/middleware"
	"github.com/akademos/exam-backend/internal/model"
	"github.com/akademos/exam-backend/internal/response"
	"github.com/akademos/exam-backend/internal/service"
	"github.com/akademos/exam-backend/internal/validator"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// StudentPortalHandler handles student-facing exam-taking endpoints.
type StudentPortalHandler struct {
	attemptService *service.AttemptService
	examService    *service.ExamService
	resultService  *service.ResultService
}

// NewStudentPortalHandler creates a new StudentPortalHandler.
func NewStudentPortalHandler(
	attemptService *service.AttemptService,
	examService *service.ExamService,
	resultService *service.ResultService,
) *StudentPortalHandler {
	return &StudentPortalHandler{
		attemptService: attemptService,
		examService:    examService,
		resultService:  resultService,
	}
}

// StartAttempt godoc
// POST /api/v1/student/exams/:exam_id/attempt
// Opens a new attempt or resumes the live one; idempotent per exam and student.
func (h *StudentPortalHandler) StartAttempt(c *gin.Context) {
	ident, ok := middleware.GetIdentity(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	state, err := h.attemptService.StartOrResume(c.Request.Context(), ident, examID)
	if err != nil {
		failFromErr(c, err)
		return
	}

	status := http.StatusCreated
	if state.Resumed {
		status = http.StatusOK
	}
	response.Success(c, status, gin.H{"attempt": state})
}

// GetAttempt godoc
// GET /api/v1/student/exams/:exam_id/attempt
// Returns the live attempt's state with saved answers folded in.
func (h *StudentPortalHandler) GetAttempt(c *gin.Context) {
	ident, ok := middleware.GetIdentity(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	state, err := h.attemptService.Resume(c.Request.Context(), ident, examID)
	if err != nil {
		failFromErr(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempt": state})
}

// GetExamPaper godoc
// GET /api/v1/student/exams/:exam_id/paper
// Returns the answer-free paper for the caller's live attempt, order shuffled
// per student. Requires an attempt so papers cannot be pulled ahead of time.
func (h *StudentPortalHandler) GetExamPaper(c *gin.Context) {
	ident, ok := middleware.GetIdentity(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	paper, err := h.examService.GetPaper(c.Request.Context(), ident, examID)
	if err != nil {
		failFromErr(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"paper": paper})
}

// SaveAnswers godoc
// PUT /api/v1/student/exams/:exam_id/answers
// Buffers a partial answer batch for the live attempt. Keys merge into what
// is already saved; an empty map is a heartbeat.
func (h *StudentPortalHandler) SaveAnswers(c *gin.Context) {
	ident, ok := middleware.GetIdentity(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.SaveAnswersRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.attemptService.Autosave(c.Request.Context(), ident, examID, req.Answers); err != nil {
		failFromErr(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"saved": len(req.Answers)})
}

// SubmitExam godoc
// POST /api/v1/student/exams/:exam_id/submit
// Concludes the attempt, grades it and returns the submission receipt.
func (h *StudentPortalHandler) SubmitExam(c *gin.Context) {
	ident, ok := middleware.GetIdentity(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.SubmitExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	receipt, err := h.attemptService.Submit(c.Request.Context(), ident, examID, &req)
	if err != nil {
		failFromErr(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"receipt": receipt})
}

// GetOwnResult godoc
// GET /api/v1/student/exams/:exam_id/result
// Returns the caller's result for an exam.
func (h *StudentPortalHandler) GetOwnResult(c *gin.Context) {
	ident, ok := middleware.GetIdentity(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	view, err := h.resultService.GetOwn(c.Request.Context(), ident, examID)
	if err != nil {
		failFromErr(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"result": view})
}

// GetResult godoc
// GET /api/v1/student/results/:result_id
// Returns one of the caller's results by id.
func (h *StudentPortalHandler) GetResult(c *gin.Context) {
	ident, ok := middleware.GetIdentity(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	resultID, err := uuid.Parse(c.Param("result_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	view, err := h.resultService.Get(c.Request.Context(), ident, resultID)
	if err != nil {
		failFromErr(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"result": view})
}
