package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/validator"
)

// SessionHandler serves the student side of the exam session lifecycle.
type SessionHandler struct {
	examService      *service.ExamService
	sessionService   *service.ExamSessionService
	snapshotService  *service.SnapshotService
	violationService *service.ViolationService
	log              zerolog.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(
	examService *service.ExamService,
	sessionService *service.ExamSessionService,
	snapshotService *service.SnapshotService,
	violationService *service.ViolationService,
	log zerolog.Logger,
) *SessionHandler {
	return &SessionHandler{
		examService:      examService,
		sessionService:   sessionService,
		snapshotService:  snapshotService,
		violationService: violationService,
		log:              log.With().Str("component", "session_handler").Logger(),
	}
}

// studentAndParam resolves the calling student and a UUID path parameter,
// writing the failure response itself when either is missing.
func studentAndParam(c *gin.Context, name string) (uuid.UUID, uuid.UUID, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return uuid.Nil, uuid.Nil, false
	}
	id, ok := validator.UUIDParam(c, name)
	if !ok {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, uuid.Nil, false
	}
	return claims.UserID, id, true
}

// GetActiveExam godoc
// GET /api/v1/student/exams/active
// Returns the active exam and its questions (answers stripped) when the
// student may take it.
func (h *SessionHandler) GetActiveExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	active, err := h.examService.GetActiveForStudent(c.Request.Context(), claims.UserID)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, active)
}

// CreateSession godoc
// POST /api/v1/student/exams/:id/sessions
// Starts an exam. Returns 201 for a new session and 200 when the student
// already had one in progress.
func (h *SessionHandler) CreateSession(c *gin.Context) {
	studentID, examID, ok := studentAndParam(c, "id")
	if !ok {
		return
	}

	var req model.CreateSessionRequest
	if fields := validator.BindOptional(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	if req.BrowserInfo == "" {
		req.BrowserInfo = c.Request.UserAgent()
	}

	session, created, err := h.sessionService.Create(c.Request.Context(), studentID, examID, req.BrowserInfo, c.ClientIP())
	if err != nil {
		fail(c, h.log, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	response.Success(c, status, gin.H{"session": session, "created": created})
}

// CheckExisting godoc
// GET /api/v1/student/exams/:id/sessions/existing
func (h *SessionHandler) CheckExisting(c *gin.Context) {
	studentID, examID, ok := studentAndParam(c, "id")
	if !ok {
		return
	}

	session, err := h.sessionService.CheckExisting(c.Request.Context(), studentID, examID)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": session, "exists": session != nil})
}

// GetSession godoc
// GET /api/v1/student/sessions/:id
func (h *SessionHandler) GetSession(c *gin.Context) {
	studentID, sessionID, ok := studentAndParam(c, "id")
	if !ok {
		return
	}

	session, err := h.sessionService.Get(c.Request.Context(), sessionID, studentID)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": session})
}

// GetRecovery godoc
// GET /api/v1/student/sessions/:id/recovery
// Returns recovery data, or null when there is nothing to recover.
func (h *SessionHandler) GetRecovery(c *gin.Context) {
	studentID, sessionID, ok := studentAndParam(c, "id")
	if !ok {
		return
	}

	data, err := h.sessionService.GetRecoveryData(c.Request.Context(), sessionID, studentID)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"recovery": data})
}

// Resume godoc
// POST /api/v1/student/sessions/:id/resume
func (h *SessionHandler) Resume(c *gin.Context) {
	studentID, sessionID, ok := studentAndParam(c, "id")
	if !ok {
		return
	}

	session, err := h.sessionService.Resume(c.Request.Context(), sessionID, studentID)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": session})
}

// SaveSnapshot godoc
// POST /api/v1/student/sessions/:id/snapshots
func (h *SessionHandler) SaveSnapshot(c *gin.Context) {
	studentID, sessionID, ok := studentAndParam(c, "id")
	if !ok {
		return
	}

	var data model.SnapshotData
	if fields := validator.Bind(c, &data); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	snap, err := h.snapshotService.Save(c.Request.Context(), sessionID, studentID, data)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"snapshot_id": snap.ID, "created_at": snap.CreatedAt})
}

// SaveResponse godoc
// PUT /api/v1/student/sessions/:id/responses
func (h *SessionHandler) SaveResponse(c *gin.Context) {
	studentID, sessionID, ok := studentAndParam(c, "id")
	if !ok {
		return
	}

	var req model.SaveResponseRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	resp, err := h.sessionService.SaveResponse(c.Request.Context(), sessionID, studentID, req)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"response": resp})
}

// Complete godoc
// POST /api/v1/student/sessions/:id/complete
func (h *SessionHandler) Complete(c *gin.Context) {
	studentID, sessionID, ok := studentAndParam(c, "id")
	if !ok {
		return
	}

	var req model.CompleteSessionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.sessionService.CompleteOwned(c.Request.Context(), sessionID, studentID, req.SubmissionType)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// LogViolation godoc
// POST /api/v1/student/sessions/:id/violations
// Records a violation and completes the session once the exam's threshold
// is reached.
func (h *SessionHandler) LogViolation(c *gin.Context) {
	studentID, sessionID, ok := studentAndParam(c, "id")
	if !ok {
		return
	}

	var req model.LogViolationRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	if req.BrowserInfo == "" {
		req.BrowserInfo = c.Request.UserAgent()
	}

	ctx := c.Request.Context()
	if _, err := h.sessionService.Get(ctx, sessionID, studentID); err != nil {
		fail(c, h.log, err)
		return
	}

	result, err := h.violationService.Log(ctx, sessionID, req)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	body := gin.H{"violation": result}
	if result.ShouldTerminate {
		completion, err := h.sessionService.Complete(ctx, sessionID, model.SubmissionMaxViolations)
		if err != nil {
			fail(c, h.log, err)
			return
		}
		body["completion"] = completion
	}

	response.Success(c, http.StatusCreated, body)
}

// ListViolations godoc
// GET /api/v1/student/sessions/:id/violations
func (h *SessionHandler) ListViolations(c *gin.Context) {
	studentID, sessionID, ok := studentAndParam(c, "id")
	if !ok {
		return
	}

	violations, err := h.violationService.ListOwned(c.Request.Context(), sessionID, studentID)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"violations": violations})
}
