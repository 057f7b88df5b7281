package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"gate-monitor/internal/gateway"
	"gate-monitor/internal/service"
)

// Handler exposes the monitor view to the dashboard front end. It is a
// thin translation layer: all orchestration lives in the controller.
type Handler struct {
	controller *service.GateController
	log        zerolog.Logger
}

func NewHandler(controller *service.GateController, log zerolog.Logger) *Handler {
	return &Handler{
		controller: controller,
		log:        log.With().Str("component", "http").Logger(),
	}
}

func (h *Handler) Register(r *gin.Engine) {
	api := r.Group("/api/v1/monitor")
	{
		api.GET("/state", h.getState)
		api.GET("/events", h.getEvents)
		api.PUT("/gate", h.selectGate)
		api.POST("/refresh", h.refresh)
		api.POST("/focus", h.focus)
		api.POST("/capture", h.capture)
		api.POST("/review/confirm", h.confirm)
		api.POST("/review/reject", h.reject)
		api.POST("/review/edit", h.edit)
	}
}

func (h *Handler) getState(c *gin.Context) {
	c.JSON(http.StatusOK, successResponse(h.controller.ViewState()))
}

func (h *Handler) getEvents(c *gin.Context) {
	c.JSON(http.StatusOK, successResponse(h.controller.Events()))
}

func (h *Handler) selectGate(c *gin.Context) {
	var req struct {
		Gate string `json:"gate" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	if err := h.controller.SelectGate(c.Request.Context(), req.Gate); err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(h.controller.ViewState()))
}

func (h *Handler) refresh(c *gin.Context) {
	if err := h.controller.Refresh(c.Request.Context()); err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(h.controller.ViewState()))
}

func (h *Handler) focus(c *gin.Context) {
	var req struct {
		Index *int `json:"index" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	if err := h.controller.Focus(*req.Index); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, successResponse(h.controller.ViewState()))
}

func (h *Handler) capture(c *gin.Context) {
	pending, err := h.controller.TriggerCapture(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, successResponse(pending))
}

func (h *Handler) confirm(c *gin.Context) {
	h.review(c, func(c *gin.Context) error {
		return h.controller.Confirm(c.Request.Context())
	})
}

func (h *Handler) reject(c *gin.Context) {
	h.review(c, func(c *gin.Context) error {
		return h.controller.Reject(c.Request.Context())
	})
}

func (h *Handler) edit(c *gin.Context) {
	var req service.EditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	h.review(c, func(c *gin.Context) error {
		return h.controller.Edit(c.Request.Context(), req)
	})
}

// review runs one of the three resolution actions. The pending
// detection is cleared even when the backend update fails; the failure
// is reported so the front end can toast it.
func (h *Handler) review(c *gin.Context, action func(*gin.Context) error) {
	err := action(c)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	case errors.Is(err, service.ErrNoPending):
		c.JSON(http.StatusConflict, errorResponse(err.Error()))
	default:
		// Cleared locally, but the history update did not land.
		c.JSON(http.StatusBadGateway, gin.H{
			"status": "cleared",
			"error":  err.Error(),
		})
	}
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNoGate), errors.Is(err, service.ErrNoFrontCamera):
		c.JSON(http.StatusConflict, errorResponse(err.Error()))
	case errors.Is(err, service.ErrCaptureInFlight), errors.Is(err, service.ErrReviewPending):
		c.JSON(http.StatusConflict, errorResponse(err.Error()))
	case errors.Is(err, gateway.ErrNoVehicle):
		c.JSON(http.StatusOK, gin.H{"status": "no_vehicle"})
	case errors.Is(err, service.ErrStaleResult):
		c.JSON(http.StatusConflict, errorResponse(err.Error()))
	default:
		h.log.Error().Err(err).Msg("handler error")
		c.JSON(http.StatusBadGateway, errorResponse(err.Error()))
	}
}

func successResponse(data interface{}) gin.H {
	return gin.H{
		"data": data,
	}
}

func errorResponse(message string) gin.H {
	return gin.H{
		"error": message,
	}
}
