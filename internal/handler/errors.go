package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-prep/internal/response"
	"github.com/stemsi/exstem-prep/internal/service"
)

// statusFor maps a session error to its HTTP status and API code.
func statusFor(err error) (int, response.ErrCode) {
	var (
		unavailable *service.ContentUnavailableError
		submission  *service.SubmissionError
	)
	switch {
	case errors.As(err, &unavailable), errors.Is(err, service.ErrContentUnavailable):
		return http.StatusUnprocessableEntity, response.ErrContentUnavailable
	case errors.As(err, &submission):
		return http.StatusServiceUnavailable, response.ErrSubmissionFailed
	case errors.Is(err, service.ErrActiveSessionExists):
		return http.StatusConflict, response.ErrActiveSessionExists
	case errors.Is(err, service.ErrNoActiveSession):
		return http.StatusNotFound, response.ErrNoActiveSession
	case errors.Is(err, service.ErrAnswerLocked):
		return http.StatusConflict, response.ErrAnswerLocked
	case errors.Is(err, service.ErrSubmissionInProgress):
		return http.StatusConflict, response.ErrSubmissionRunning
	case errors.Is(err, service.ErrAlreadySubmitted):
		return http.StatusConflict, response.ErrAlreadySubmitted
	case errors.Is(err, service.ErrInvalidState),
		errors.Is(err, service.ErrCheckNotAllowed),
		errors.Is(err, service.ErrNothingToCheck):
		return http.StatusConflict, response.ErrInvalidState
	case errors.Is(err, service.ErrUnknownQuestion),
		errors.Is(err, service.ErrUnknownOption),
		errors.Is(err, service.ErrIndexOutOfRange),
		errors.Is(err, service.ErrInvalidExamConfig):
		return http.StatusBadRequest, response.ErrValidation
	case errors.Is(err, service.ErrResultNotFound):
		return http.StatusNotFound, response.ErrNotFound
	default:
		return http.StatusInternalServerError, response.ErrInternal
	}
}

// failWith writes the error response for err, with per-field details where the
// error carries them.
func failWith(c *gin.Context, err error) {
	status, code := statusFor(err)

	var unavailable *service.ContentUnavailableError
	switch {
	case errors.As(err, &unavailable):
		response.FailWithFields(c, status, code, map[string]string{
			"subjects": strings.Join(unavailable.Subjects, ", "),
		})
		return
	case errors.Is(err, service.ErrUnknownQuestion):
		response.FailWithFields(c, status, code, map[string]string{"question_id": err.Error()})
		return
	case errors.Is(err, service.ErrUnknownOption):
		response.FailWithFields(c, status, code, map[string]string{"option_id": err.Error()})
		return
	case errors.Is(err, service.ErrIndexOutOfRange):
		response.FailWithFields(c, status, code, map[string]string{"index": err.Error()})
		return
	}

	if status >= http.StatusInternalServerError {
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
	}
	response.Fail(c, status, code)
}
