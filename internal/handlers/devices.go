package handlers

import (
	"errors"
	"net/http"

	"oilfox_bridge/internal/service"

	"github.com/gin-gonic/gin"
)

const errLoadDevices = "failed to load devices"

// @Summary      List devices
// @Tags         devices
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "count, devices"
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/devices [get]
// @Security     BearerAuth
func (h *Handler) listDevices(c *gin.Context) {
	devices, err := h.services.Devices.ListDevices(c.Request.Context())
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errLoadDevices, "devices_list_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(devices), "devices": devices})
}

// @Summary      Get device
// @Tags         devices
// @Produce      json
// @Param        id   path      string  true  "OilFox device id"
// @Success      200  {object}  models.DeviceState
// @Failure      401  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/devices/{id} [get]
// @Security     BearerAuth
func (h *Handler) getDevice(c *gin.Context) {
	id := c.Param("id")
	st, err := h.services.Devices.GetDevice(c.Request.Context(), id)
	if errors.Is(err, service.ErrDeviceNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errLoadDevices, "device_get_failed", err, "device", id)
		return
	}
	c.JSON(http.StatusOK, st)
}
