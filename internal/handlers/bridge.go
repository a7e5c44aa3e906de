package handlers

import (
	"errors"
	"net/http"

	"oilfox_bridge/internal/bridge"
	"oilfox_bridge/internal/service"

	"github.com/gin-gonic/gin"
)

// Common response/status constants to avoid magic strings and typos.
const (
	statusOK        = "ok"
	statusRefreshed = "refreshed"
	statusAccepted  = "accepted"

	errRefreshFailed   = "refresh failed"
	errNotInitialized  = "bridge is not initialized"
	errCommandFailed   = "failed to handle command"
	errInvalidBodyPref = "invalid body: "
)

// CommandRequest is the payload of POST /api/v1/bridge/command.
type CommandRequest struct {
	// Device id; empty addresses the bridge itself
	DeviceID string `json:"device_id,omitempty" example:"D1"`
	Channel  string `json:"channel" binding:"required" example:"liters"`
	Command  string `json:"command" binding:"required" example:"REFRESH"`
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

// @Summary      Get bridge
// @Tags         bridge
// @Produce      json
// @Success      200  {object}  service.BridgeInfo
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/bridge [get]
// @Security     BearerAuth
func (h *Handler) getBridge(c *gin.Context) {
	c.JSON(http.StatusOK, h.services.BridgeControl.Info(c.Request.Context()))
}

// @Summary      Refresh bridge now
// @Description  Runs one refresh cycle, waiting for a running one to finish.
// @Tags         bridge
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status, bridge"
// @Failure      401  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Failure      502  {object}  map[string]interface{}
// @Router       /api/v1/bridge/refresh [post]
// @Security     BearerAuth
func (h *Handler) refreshBridge(c *gin.Context) {
	ctx := c.Request.Context()
	err := h.services.BridgeControl.Refresh(ctx)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": statusRefreshed, "bridge": h.services.BridgeControl.Info(ctx)})
	case errors.Is(err, bridge.ErrNotInitialized):
		c.JSON(http.StatusConflict, gin.H{"error": errNotInitialized})
	default:
		if h.log != nil {
			h.log.Warnw("bridge_refresh_failed", "err", err)
		}
		c.JSON(http.StatusBadGateway, gin.H{
			"error":  errRefreshFailed + ": " + err.Error(),
			"bridge": h.services.BridgeControl.Info(ctx),
		})
	}
}

// @Summary      Send command
// @Description  Commands are accepted and logged; the cloud API is read-only.
// @Tags         bridge
// @Accept       json
// @Produce      json
// @Param        body  body   CommandRequest  true  "Command payload"
// @Success      202   {object}  map[string]string
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Router       /api/v1/bridge/command [post]
// @Security     BearerAuth
func (h *Handler) sendCommand(c *gin.Context) {
	var req CommandRequest
	if ok := h.bindJSONOrBadRequest(c, &req); !ok {
		return
	}
	err := h.services.BridgeControl.Command(c.Request.Context(), service.Command{
		DeviceID: req.DeviceID,
		Channel:  req.Channel,
		Command:  req.Command,
	})
	switch {
	case err == nil:
		c.JSON(http.StatusAccepted, gin.H{"status": statusAccepted})
	case errors.Is(err, service.ErrInvalidCommand):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrDeviceNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		h.logAndJSONError(c, http.StatusInternalServerError, errCommandFailed, "bridge_command_failed", err, "channel", req.Channel)
	}
}
