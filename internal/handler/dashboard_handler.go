package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-prep/internal/response"
	"github.com/stemsi/exstem-prep/internal/service"
)

// DashboardHandler serves readiness and past results.
type DashboardHandler struct {
	flow *service.ExamFlowService
}

// NewDashboardHandler creates a new DashboardHandler.
func NewDashboardHandler(flow *service.ExamFlowService) *DashboardHandler {
	return &DashboardHandler{flow: flow}
}

// GetDashboard godoc
// GET /api/v1/student/dashboard
// Readiness is recomputed over the full history on every load.
func (h *DashboardHandler) GetDashboard(c *gin.Context) {
	userID, contextKey, ok := identity(c)
	if !ok {
		return
	}

	dashboard, err := h.flow.Dashboard(c.Request.Context(), contextKey, userID)
	if err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, dashboard)
}

// GetResult godoc
// GET /api/v1/student/results/:result_id
// Returns a stored result with its originating session for review.
func (h *DashboardHandler) GetResult(c *gin.Context) {
	userID, _, ok := identity(c)
	if !ok {
		return
	}

	resultID := c.Param("result_id")
	if resultID == "" || len(resultID) > 64 {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	result, err := h.flow.Result(c.Request.Context(), userID, resultID)
	if err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"result": result})
}
