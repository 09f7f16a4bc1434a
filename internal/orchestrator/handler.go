package orchestrator

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/pubplan/pubplan/common"
	"github.com/pubplan/pubplan/internal/dto"
	"github.com/pubplan/pubplan/middleware"
)

type Handler struct {
	service *Orchestrator
}

func NewHandler(o *Orchestrator) *Handler {
	return &Handler{service: o}
}

var _ HandlerInterface = (*Handler)(nil)

// Create handles POST /bulk-jobs. Resubmitting the same source/actor pair
// returns the existing batch with HTTP 200 instead of creating a duplicate.
func (h *Handler) Create(c *gin.Context) {
	var req dto.BulkJobCreateDTO

	if !middleware.Bind(c, &req) {
		c.Abort()
		return
	}

	resp, err := h.service.CreateBulkJob(c.Request.Context(), &req)
	if err != nil {
		c.Error(err)
		c.Abort()
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// Get handles GET /bulk-jobs/:id with the batch's status snapshot.
func (h *Handler) Get(c *gin.Context) {
	id, ok := h.bulkID(c)
	if !ok {
		return
	}

	resp, err := h.service.Status(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Pause handles POST /bulk-jobs/:id/pause. Pausing a batch that cannot pause
// anymore reports changed=false instead of an error.
func (h *Handler) Pause(c *gin.Context) {
	id, ok := h.bulkID(c)
	if !ok {
		return
	}

	changed, err := h.service.Pause(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.BulkJobActionDTO{ID: id, Changed: changed})
}

// Resume handles POST /bulk-jobs/:id/resume.
func (h *Handler) Resume(c *gin.Context) {
	id, ok := h.bulkID(c)
	if !ok {
		return
	}

	if err := h.service.Resume(c.Request.Context(), id); err != nil {
		c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}

// Cancel handles POST /bulk-jobs/:id/cancel. Cancelling an already-finished
// batch reports changed=false instead of an error.
func (h *Handler) Cancel(c *gin.Context) {
	id, ok := h.bulkID(c)
	if !ok {
		return
	}

	changed, err := h.service.Cancel(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.BulkJobActionDTO{ID: id, Changed: changed})
}

// Events handles GET /bulk-jobs/:id/events.
func (h *Handler) Events(c *gin.Context) {
	id, ok := h.bulkID(c)
	if !ok {
		return
	}

	events, err := h.service.Events(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, events)
}

func (h *Handler) bulkID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 0)
	if err != nil || id < 1 {
		c.JSON(http.StatusBadRequest, common.APIError{Message: "invalid ID"})
		return 0, false
	}
	return uint(id), true
}
