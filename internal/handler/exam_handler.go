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

// ExamHandler handles exam management endpoints.
type ExamHandler struct {
	examService    *service.ExamService
	sessionService *service.ExamSessionService
	accessService  *service.AccessService
	log            zerolog.Logger
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(
	examService *service.ExamService,
	sessionService *service.ExamSessionService,
	accessService *service.AccessService,
	log zerolog.Logger,
) *ExamHandler {
	return &ExamHandler{
		examService:    examService,
		sessionService: sessionService,
		accessService:  accessService,
		log:            log.With().Str("component", "exam_handler").Logger(),
	}
}

// ListExams godoc
// GET /api/v1/admin/exams
// Lists exams with pagination.
func (h *ExamHandler) ListExams(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "10"))
	page, perPage = clampPage(page, perPage)

	exams, total, err := h.examService.List(c.Request.Context(), page, perPage)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	if exams == nil {
		exams = []model.Exam{}
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"exams": exams}, response.NewPagination(page, perPage, total))
}

// CreateExam godoc
// POST /api/v1/admin/exams
// Creates a new, inactive exam.
func (h *ExamHandler) CreateExam(c *gin.Context) {
	var req model.CreateExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam, err := h.examService.Create(c.Request.Context(), req)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"exam": exam})
}

// GetExam godoc
// GET /api/v1/admin/exams/:id
func (h *ExamHandler) GetExam(c *gin.Context) {
	examID, ok := validator.UUIDParam(c, "id")
	if !ok {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	exam, err := h.examService.GetByID(c.Request.Context(), examID)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}

// UpdateExam godoc
// PATCH /api/v1/admin/exams/:id
// Applies a partial update; omitted fields are left unchanged.
func (h *ExamHandler) UpdateExam(c *gin.Context) {
	examID, ok := validator.UUIDParam(c, "id")
	if !ok {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var patch model.ExamPatch
	if fields := validator.Bind(c, &patch); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam, err := h.examService.Update(c.Request.Context(), examID, patch)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}

// ActivateExam godoc
// POST /api/v1/admin/exams/:id/activate
// Makes this the single active exam.
func (h *ExamHandler) ActivateExam(c *gin.Context) {
	examID, ok := validator.UUIDParam(c, "id")
	if !ok {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	exam, err := h.examService.Activate(c.Request.Context(), examID)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}

// DeleteExam godoc
// DELETE /api/v1/admin/exams/:id
func (h *ExamHandler) DeleteExam(c *gin.Context) {
	examID, ok := validator.UUIDParam(c, "id")
	if !ok {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if err := h.examService.Delete(c.Request.Context(), examID); err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

// ListSessions godoc
// GET /api/v1/admin/exams/:id/sessions
func (h *ExamHandler) ListSessions(c *gin.Context) {
	examID, ok := validator.UUIDParam(c, "id")
	if !ok {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	sessions, err := h.sessionService.ListByExam(c.Request.Context(), examID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	if sessions == nil {
		sessions = []model.ExamSession{}
	}

	response.Success(c, http.StatusOK, gin.H{"sessions": sessions})
}

// ListReports godoc
// GET /api/v1/admin/exams/:id/reports
func (h *ExamHandler) ListReports(c *gin.Context) {
	examID, ok := validator.UUIDParam(c, "id")
	if !ok {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	reports, err := h.sessionService.ListReportsByExam(c.Request.Context(), examID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	if reports == nil {
		reports = []model.ProctoringReport{}
	}

	response.Success(c, http.StatusOK, gin.H{"reports": reports})
}

// CheckAccess godoc
// GET /api/v1/admin/exams/:id/access/:student_id
// Reports whether a student may start the exam under its current grants.
func (h *ExamHandler) CheckAccess(c *gin.Context) {
	examID, ok := validator.UUIDParam(c, "id")
	if !ok {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}
	studentID, ok := validator.UUIDParam(c, "student_id")
	if !ok {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	allowed, err := h.accessService.CanAccess(c.Request.Context(), studentID, examID)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"exam_id":    examID,
		"student_id": studentID,
		"can_access": allowed,
	})
}
