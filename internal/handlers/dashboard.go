package handlers

import (
	"context"
	"errors"
	"net/http"

	"smart_bottle/internal/display"
	"smart_bottle/internal/service"

	"github.com/gin-gonic/gin"
)

// Common response/status constants to avoid magic strings and typos.
const (
	statusOK       = "ok"
	statusAccepted = "accepted"

	errNotInitialized  = "store not initialized"
	errInvalidBodyPref = "invalid body: "
)

// Centralized error logging and response.
func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...interface{}) {
	if h.log != nil && err != nil {
		fields := append([]interface{}{"err", err}, kv...)
		h.log.Errorw(logKey, fields...)
	}
	c.JSON(httpCode, gin.H{"error": userMsg})
}

// Respond with a status and the current view.
func (h *Handler) respondWithView(c *gin.Context, httpCode int, status string) {
	c.JSON(httpCode, viewResponse{Status: status, View: h.services.View()})
}

// SetpointRequest carries a slider position.
type SetpointRequest struct {
	// Target temperature in Celsius
	Value *float64 `json:"value" binding:"required" example:"42"`
}

type viewResponse struct {
	Status string       `json:"status"`
	View   display.View `json:"view"`
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": statusOK,
	})
}

// @Summary      Current dashboard view
// @Tags         dashboard
// @Produce      json
// @Success      200  {object}  display.View
// @Router       /api/v1/display [get]
func (h *Handler) getDisplay(c *gin.Context) {
	c.JSON(http.StatusOK, h.services.View())
}

// @Summary      Drag the setpoint slider
// @Description  Moves the slider readout only; nothing is written to the device.
// @Tags         setpoint
// @Accept       json
// @Produce      json
// @Param        body  body      SetpointRequest  true  "Slider position"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Router       /api/v1/setpoint/drag [post]
func (h *Handler) dragSetpoint(c *gin.Context) {
	var req SetpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	h.services.Drag(*req.Value)
	h.respondWithView(c, http.StatusOK, statusOK)
}

// @Summary      Commit the setpoint
// @Description  Sends {setpoint: value} to the control path. The write runs in the background.
// @Tags         setpoint
// @Accept       json
// @Produce      json
// @Param        body  body      SetpointRequest  true  "Slider position"
// @Success      202   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      503   {object}  map[string]string
// @Router       /api/v1/setpoint/commit [post]
func (h *Handler) commitSetpoint(c *gin.Context) {
	var req SetpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}

	// the write outlives this request
	res := h.services.Commit(context.WithoutCancel(c.Request.Context()), *req.Value)
	select {
	case err := <-res:
		if errors.Is(err, service.ErrNotInitialized) {
			h.logAndJSONError(c, http.StatusServiceUnavailable, errNotInitialized, "setpoint_commit_rejected", err, "value", *req.Value)
			return
		}
	default:
	}
	h.respondWithView(c, http.StatusAccepted, statusAccepted)
}
