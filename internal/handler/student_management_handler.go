package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/validator"
)

// StudentManagementHandler handles admin-facing student management.
type StudentManagementHandler struct {
	accountService *service.AccountService
	authService    *service.AuthService
	log            zerolog.Logger
}

// NewStudentManagementHandler creates a new StudentManagementHandler.
func NewStudentManagementHandler(
	accountService *service.AccountService,
	authService *service.AuthService,
	log zerolog.Logger,
) *StudentManagementHandler {
	return &StudentManagementHandler{
		accountService: accountService,
		authService:    authService,
		log:            log.With().Str("component", "student_management_handler").Logger(),
	}
}

// ListStudents godoc
// GET /api/v1/admin/students
// Lists students with pagination.
func (h *StudentManagementHandler) ListStudents(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "10"))
	page, perPage = clampPage(page, perPage)

	students, total, err := h.accountService.ListStudents(c.Request.Context(), page, perPage)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"students": students}, response.NewPagination(page, perPage, total))
}

// CreateStudent godoc
// POST /api/v1/admin/students
func (h *StudentManagementHandler) CreateStudent(c *gin.Context) {
	var req model.CreateStudentRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	student, err := h.accountService.CreateStudent(c.Request.Context(), req)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"student": student})
}

// SetAuthorization godoc
// PUT /api/v1/admin/students/:id/authorization
// Grants or withdraws access to exams that are not group-gated.
func (h *StudentManagementHandler) SetAuthorization(c *gin.Context) {
	studentID, ok := validator.UUIDParam(c, "id")
	if !ok {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.SetAuthorizationRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	student, err := h.accountService.SetAuthorized(c.Request.Context(), studentID, *req.IsAuthorized)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"student": student})
}

// ResetStudentLogin godoc
// POST /api/v1/admin/students/:id/reset-login
// Revokes the student's current token so they can sign in on another device.
func (h *StudentManagementHandler) ResetStudentLogin(c *gin.Context) {
	studentID, ok := validator.UUIDParam(c, "id")
	if !ok {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if err := h.authService.ResetStudentLogin(c.Request.Context(), studentID); err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}
