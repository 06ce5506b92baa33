package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/validator"
)

// QuestionHandler handles question management endpoints.
type QuestionHandler struct {
	examService *service.ExamService
	log         zerolog.Logger
}

// NewQuestionHandler creates a new QuestionHandler.
func NewQuestionHandler(examService *service.ExamService, log zerolog.Logger) *QuestionHandler {
	return &QuestionHandler{
		examService: examService,
		log:         log.With().Str("component", "question_handler").Logger(),
	}
}

// ListQuestions godoc
// GET /api/v1/admin/exams/:id/questions
// Lists all questions for an exam, answers included.
func (h *QuestionHandler) ListQuestions(c *gin.Context) {
	examID, ok := validator.UUIDParam(c, "id")
	if !ok {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	questions, err := h.examService.ListQuestions(c.Request.Context(), examID)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	if questions == nil {
		questions = []model.Question{}
	}

	response.Success(c, http.StatusOK, gin.H{"questions": questions})
}

// AddQuestion godoc
// POST /api/v1/admin/exams/:id/questions
// Adds a question to an exam.
func (h *QuestionHandler) AddQuestion(c *gin.Context) {
	examID, ok := validator.UUIDParam(c, "id")
	if !ok {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.AddQuestionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	question, err := h.examService.AddQuestion(c.Request.Context(), examID, req)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"question": question})
}
