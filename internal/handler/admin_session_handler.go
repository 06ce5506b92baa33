package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/validator"
)

// AdminSessionHandler lets admins review and end individual sessions.
type AdminSessionHandler struct {
	sessionService   *service.ExamSessionService
	violationService *service.ViolationService
	log              zerolog.Logger
}

// NewAdminSessionHandler creates a new AdminSessionHandler.
func NewAdminSessionHandler(sessionService *service.ExamSessionService, violationService *service.ViolationService, log zerolog.Logger) *AdminSessionHandler {
	return &AdminSessionHandler{
		sessionService:   sessionService,
		violationService: violationService,
		log:              log.With().Str("component", "admin_session_handler").Logger(),
	}
}

// GetReport godoc
// GET /api/v1/admin/sessions/:id/report
func (h *AdminSessionHandler) GetReport(c *gin.Context) {
	sessionID, ok := validator.UUIDParam(c, "id")
	if !ok {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	report, err := h.sessionService.GetReport(c.Request.Context(), sessionID)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"report": report})
}

// ListViolations godoc
// GET /api/v1/admin/sessions/:id/violations
func (h *AdminSessionHandler) ListViolations(c *gin.Context) {
	sessionID, ok := validator.UUIDParam(c, "id")
	if !ok {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	violations, err := h.violationService.List(c.Request.Context(), sessionID)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"violations": violations})
}

// Terminate godoc
// POST /api/v1/admin/sessions/:id/terminate
// Force-completes a session as admin_terminated.
func (h *AdminSessionHandler) Terminate(c *gin.Context) {
	sessionID, ok := validator.UUIDParam(c, "id")
	if !ok {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	result, err := h.sessionService.Terminate(c.Request.Context(), sessionID)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	h.log.Info().Str("session_id", sessionID.String()).Bool("already_completed", result.AlreadyCompleted).Msg("Session terminated by admin")
	response.Success(c, http.StatusOK, result)
}

// RecomputeStats godoc
// POST /api/v1/admin/sessions/:id/stats
// Resyncs the session's completion percentage and violation count from its
// responses and violation events.
func (h *AdminSessionHandler) RecomputeStats(c *gin.Context) {
	sessionID, ok := validator.UUIDParam(c, "id")
	if !ok {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	stats, err := h.sessionService.UpdateStats(c.Request.Context(), sessionID)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	h.log.Info().
		Str("session_id", sessionID.String()).
		Float64("completion_percentage", stats.CompletionPercentage).
		Int("total_violations", stats.TotalViolations).
		Msg("Session stats recomputed")
	response.Success(c, http.StatusOK, gin.H{"stats": stats})
}
