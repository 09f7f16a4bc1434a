package scheduler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pubplan/pubplan/common"
	"github.com/pubplan/pubplan/internal/dto"
	"github.com/pubplan/pubplan/middleware"
)

type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

// CreatePlan handles POST /schedules: validates the request, runs the
// assignment and returns the committed plan with any recorded violations.
func (h *Handler) CreatePlan(c *gin.Context) {
	var req dto.ScheduleRequestDTO
	if !middleware.Bind(c, &req) {
		c.Abort()
		return
	}

	plan, err := h.service.BuildPlan(c.Request.Context(), &req)
	if err != nil {
		c.Error(err)
		c.Abort()
		return
	}

	c.JSON(http.StatusCreated, plan)
}

// GetPlan handles GET /schedules/:id.
func (h *Handler) GetPlan(c *gin.Context) {
	publicID := c.Param("id")
	if publicID == "" {
		c.JSON(http.StatusBadRequest, common.APIError{Message: "invalid plan id"})
		return
	}

	plan, err := h.service.GetPlan(c.Request.Context(), publicID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, plan)
}

// ReportOutcome handles POST /outcomes.
func (h *Handler) ReportOutcome(c *gin.Context) {
	var req dto.OutcomeDTO
	if !middleware.Bind(c, &req) {
		c.Abort()
		return
	}

	if err := h.service.RecordOutcome(c.Request.Context(), &req); err != nil {
		c.Error(err)
		c.Abort()
		return
	}

	c.Status(http.StatusAccepted)
}
