package handler

import (
	"net/http"

	"github.com/akademos/exam-backend/internal/middleware"
	"github.com/akademos/exam-backend/internal/model"
	"github.com/akademos/exam-backend/internal/response"
	"github.com/akademos/exam-backend/internal/service"
	"github.com/akademos/exam-backend/internal/validator"
	"github.com/gin-gonic/gin"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	authService *service.AuthService
	resolver    *service.StudentResolver
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService *service.AuthService, resolver *service.StudentResolver) *AuthHandler {
	return &AuthHandler{authService: authService, resolver: resolver}
}

// Login godoc
// POST /api/v1/auth/login
// Validates email + password and returns a JWT. A student login displaces
// any session the account held on another device.
func (h *AuthHandler) Login(c *gin.Context) {
	var req model.LoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	resp, err := h.authService.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		failFromErr(c, err)
		return
	}

	response.Success(c, http.StatusOK, resp)
}

// Me godoc
// GET /api/v1/auth/me
// Returns the authenticated account; student accounts include their student record.
func (h *AuthHandler) Me(c *gin.Context) {
	ident, ok := middleware.GetIdentity(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	user, err := h.authService.Account(c.Request.Context(), ident.UserID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	payload := gin.H{"user": user}
	if !ident.IsTeacher() {
		student, err := h.resolver.Resolve(c.Request.Context(), ident)
		if err != nil {
			failFromErr(c, err)
			return
		}
		payload["student"] = gin.H{
			"id":             student.ID,
			"name":           student.Name,
			"student_number": student.StudentNumber,
			"class_id":       student.ClassID,
		}
	}

	response.Success(c, http.StatusOK, payload)
}
