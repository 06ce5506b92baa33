package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/validator"
)

// GroupHandler handles student groups and their exam access.
type GroupHandler struct {
	groupService *service.GroupService
	log          zerolog.Logger
}

// NewGroupHandler creates a new GroupHandler.
func NewGroupHandler(groupService *service.GroupService, log zerolog.Logger) *GroupHandler {
	return &GroupHandler{
		groupService: groupService,
		log:          log.With().Str("component", "group_handler").Logger(),
	}
}

// ListGroups godoc
// GET /api/v1/admin/groups
func (h *GroupHandler) ListGroups(c *gin.Context) {
	groups, err := h.groupService.List(c.Request.Context())
	if err != nil {
		fail(c, h.log, err)
		return
	}
	if groups == nil {
		groups = []model.StudentGroup{}
	}

	response.Success(c, http.StatusOK, gin.H{"groups": groups})
}

// CreateGroup godoc
// POST /api/v1/admin/groups
func (h *GroupHandler) CreateGroup(c *gin.Context) {
	var req model.CreateGroupRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	group, err := h.groupService.Create(c.Request.Context(), req)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"group": group})
}

// GetGroup godoc
// GET /api/v1/admin/groups/:id
func (h *GroupHandler) GetGroup(c *gin.Context) {
	groupID, ok := validator.UUIDParam(c, "id")
	if !ok {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	group, err := h.groupService.Get(c.Request.Context(), groupID)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"group": group})
}

// DeleteGroup godoc
// DELETE /api/v1/admin/groups/:id
func (h *GroupHandler) DeleteGroup(c *gin.Context) {
	groupID, ok := validator.UUIDParam(c, "id")
	if !ok {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if err := h.groupService.Delete(c.Request.Context(), groupID); err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

// ListMembers godoc
// GET /api/v1/admin/groups/:id/members
func (h *GroupHandler) ListMembers(c *gin.Context) {
	groupID, ok := validator.UUIDParam(c, "id")
	if !ok {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	members, err := h.groupService.ListMembers(c.Request.Context(), groupID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	if members == nil {
		members = []model.GroupMember{}
	}

	response.Success(c, http.StatusOK, gin.H{"members": members})
}

// AddMembers godoc
// POST /api/v1/admin/groups/:id/members
// Adds all listed students or none of them.
func (h *GroupHandler) AddMembers(c *gin.Context) {
	groupID, ok := validator.UUIDParam(c, "id")
	if !ok {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.AddMembersRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	// The binding already validated every entry as a UUID.
	ids := make([]uuid.UUID, 0, len(req.StudentIDs))
	for _, raw := range req.StudentIDs {
		ids = append(ids, uuid.MustParse(raw))
	}

	if err := h.groupService.AddMembers(c.Request.Context(), groupID, ids); err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"added": len(ids)})
}

// RemoveMember godoc
// DELETE /api/v1/admin/groups/:id/members/:student_id
func (h *GroupHandler) RemoveMember(c *gin.Context) {
	groupID, ok := validator.UUIDParam(c, "id")
	if !ok {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}
	studentID, ok := validator.UUIDParam(c, "student_id")
	if !ok {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if err := h.groupService.RemoveMember(c.Request.Context(), groupID, studentID); err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

// GrantExam godoc
// POST /api/v1/admin/groups/:id/exams
func (h *GroupHandler) GrantExam(c *gin.Context) {
	groupID, ok := validator.UUIDParam(c, "id")
	if !ok {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.GrantExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.groupService.GrantExam(c.Request.Context(), groupID, uuid.MustParse(req.ExamID)); err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{})
}

// RevokeExam godoc
// DELETE /api/v1/admin/groups/:id/exams/:exam_id
func (h *GroupHandler) RevokeExam(c *gin.Context) {
	groupID, ok := validator.UUIDParam(c, "id")
	if !ok {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}
	examID, ok := validator.UUIDParam(c, "exam_id")
	if !ok {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if err := h.groupService.RevokeExam(c.Request.Context(), groupID, examID); err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

// ListExamGroups godoc
// GET /api/v1/admin/exams/:id/groups
func (h *GroupHandler) ListExamGroups(c *gin.Context) {
	examID, ok := validator.UUIDParam(c, "id")
	if !ok {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	groups, err := h.groupService.ListGroupsForExam(c.Request.Context(), examID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	if groups == nil {
		groups = []model.StudentGroup{}
	}

	response.Success(c, http.StatusOK, gin.H{"groups": groups})
}
