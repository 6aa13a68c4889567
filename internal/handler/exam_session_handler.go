package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-prep/internal/middleware"
	"github.com/stemsi/exstem-prep/internal/model"
	"github.com/stemsi/exstem-prep/internal/response"
	"github.com/stemsi/exstem-prep/internal/service"
	"github.com/stemsi/exstem-prep/internal/validator"
)

// ExamSessionHandler exposes the active exam session of a browser context.
type ExamSessionHandler struct {
	flow  *service.ExamFlowService
	clock service.Clock
}

// NewExamSessionHandler creates a new ExamSessionHandler.
func NewExamSessionHandler(flow *service.ExamFlowService, clock service.Clock) *ExamSessionHandler {
	return &ExamSessionHandler{flow: flow, clock: clock}
}

// identity returns the user id and browser context key of the request.
func identity(c *gin.Context) (userID, contextKey string, ok bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return "", "", false
	}
	userID = claims.UserID()
	return userID, middleware.SessionContextKey(c, userID), true
}

// Start godoc
// POST /api/v1/student/sessions
// Runs the content pre-flight, builds the session and enters it.
func (h *ExamSessionHandler) Start(c *gin.Context) {
	userID, contextKey, ok := identity(c)
	if !ok {
		return
	}

	var req model.StartExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	ctrl, warning, err := h.flow.Start(c.Request.Context(), contextKey, userID, req.Config())
	if err != nil {
		failWith(c, err)
		return
	}

	view := ctrl.View(h.clock.Now())
	if warning != nil {
		response.SuccessWithWarnings(c, http.StatusCreated, gin.H{"session": view}, warning.Error())
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"session": view})
}

// Resume godoc
// GET /api/v1/student/sessions/active
// Returns the in-progress session, rehydrated after a reload if needed.
func (h *ExamSessionHandler) Resume(c *gin.Context) {
	userID, contextKey, ok := identity(c)
	if !ok {
		return
	}

	ctrl, err := h.flow.Resume(c.Request.Context(), contextKey, userID)
	if err != nil {
		failWith(c, err)
		return
	}

	data := gin.H{"session": ctrl.View(h.clock.Now())}
	if res := ctrl.Result(); res != nil {
		data["result"] = res
	}
	response.Success(c, http.StatusOK, data)
}

// SelectAnswer godoc
// PUT /api/v1/student/sessions/active/answers
func (h *ExamSessionHandler) SelectAnswer(c *gin.Context) {
	userID, contextKey, ok := identity(c)
	if !ok {
		return
	}

	var req model.SelectAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.flow.SelectAnswer(c.Request.Context(), contextKey, userID, req.QuestionID, req.OptionID); err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"status": "saved"})
}

// CheckAnswer godoc
// POST /api/v1/student/sessions/active/check
// Practice mode only: reveals the answer and locks the question.
func (h *ExamSessionHandler) CheckAnswer(c *gin.Context) {
	userID, contextKey, ok := identity(c)
	if !ok {
		return
	}

	var req model.CheckAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	feedback, err := h.flow.CheckAnswer(c.Request.Context(), contextKey, userID, req.QuestionID)
	if err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"feedback": feedback})
}

// Navigate godoc
// PUT /api/v1/student/sessions/active/position
func (h *ExamSessionHandler) Navigate(c *gin.Context) {
	userID, contextKey, ok := identity(c)
	if !ok {
		return
	}

	var req model.NavigateRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.flow.Navigate(c.Request.Context(), contextKey, userID, *req.Index); err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"current_index": *req.Index})
}

// Timer godoc
// GET /api/v1/student/sessions/active/timer
func (h *ExamSessionHandler) Timer(c *gin.Context) {
	userID, contextKey, ok := identity(c)
	if !ok {
		return
	}

	timer, err := h.flow.Timer(c.Request.Context(), contextKey, userID)
	if err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"timer": timer})
}

// Summary godoc
// GET /api/v1/student/sessions/active/summary
// Data for the confirmation gate before a manual submission.
func (h *ExamSessionHandler) Summary(c *gin.Context) {
	userID, contextKey, ok := identity(c)
	if !ok {
		return
	}

	summary, err := h.flow.Summary(c.Request.Context(), contextKey, userID)
	if err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"summary": summary})
}

// Submit godoc
// POST /api/v1/student/sessions/active/submit
// Requires {"confirm": true}. A failed submission is retryable.
func (h *ExamSessionHandler) Submit(c *gin.Context) {
	userID, contextKey, ok := identity(c)
	if !ok {
		return
	}

	var req model.SubmitRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.flow.Submit(c.Request.Context(), contextKey, userID)
	if err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"result": result})
}

// Abandon godoc
// DELETE /api/v1/student/sessions/active
// Discards the session entirely; nothing is graded.
func (h *ExamSessionHandler) Abandon(c *gin.Context) {
	userID, contextKey, ok := identity(c)
	if !ok {
		return
	}

	if err := h.flow.Abandon(c.Request.Context(), contextKey, userID); err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"status": "abandoned"})
}
