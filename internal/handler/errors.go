package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
)

type errMapping struct {
	target error
	status int
	code   response.ErrCode
}

// Order matters only where one sentinel wraps another; none do today.
var errMappings = []errMapping{
	{service.ErrInvalidCredentials, http.StatusUnauthorized, response.ErrInvalidCredentials},
	{service.ErrUnauthorizedEmail, http.StatusUnauthorized, response.ErrUnauthorizedEmail},
	{service.ErrInvalidToken, http.StatusUnauthorized, response.ErrTokenInvalid},
	{service.ErrAccessDeniedToExam, http.StatusForbidden, response.ErrAccessDeniedToExam},
	{service.ErrNoActiveExam, http.StatusNotFound, response.ErrNoActiveExam},
	{service.ErrExamNotFound, http.StatusNotFound, response.ErrExamNotFound},
	{service.ErrSessionNotFound, http.StatusNotFound, response.ErrSessionNotFound},
	{service.ErrSessionCompleted, http.StatusConflict, response.ErrSessionCompleted},
	{service.ErrQuestionNotFound, http.StatusNotFound, response.ErrQuestionNotFound},
	{service.ErrInvalidQuestion, http.StatusBadRequest, response.ErrInvalidQuestion},
	{service.ErrInvalidSubmissionType, http.StatusBadRequest, response.ErrInvalidSubmissionType},
	{service.ErrGroupNotFound, http.StatusNotFound, response.ErrGroupNotFound},
	{service.ErrGroupNameExists, http.StatusConflict, response.ErrGroupNameExists},
	{service.ErrStudentAlreadyInGroup, http.StatusConflict, response.ErrStudentAlreadyInGroup},
	{service.ErrStudentNotInGroup, http.StatusNotFound, response.ErrStudentNotInGroup},
	{service.ErrStudentNotFound, http.StatusNotFound, response.ErrStudentNotFound},
	{service.ErrEmailExists, http.StatusConflict, response.ErrEmailExists},
}

// statusFor resolves a service error to its HTTP status and error code.
// Unknown errors are internal.
func statusFor(err error) (int, response.ErrCode) {
	for _, m := range errMappings {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, response.ErrInternal
}

// fail writes the error envelope for err, logging anything internal.
func fail(c *gin.Context, log zerolog.Logger, err error) {
	status, code := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).
			Str("request_id", response.RequestID(c)).
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Msg("Request failed")
	}
	response.Fail(c, status, code)
}

// clampPage normalises pagination query values.
func clampPage(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 10
	}
	return page, perPage
}
