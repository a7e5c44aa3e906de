package handlers

import (
	"errors"
	"net/http"

	"oilfox_bridge/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	statusScanned  = "scanned"
	statusApproved = "approved"

	errLoadInbox = "failed to load discovery inbox"
	errApprove   = "failed to approve thing"
)

// @Summary      List discovery inbox
// @Tags         discovery
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "count, results"
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/discovery [get]
// @Security     BearerAuth
func (h *Handler) listDiscovery(c *gin.Context) {
	results, err := h.services.Discovery.Inbox(c.Request.Context())
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errLoadInbox, "discovery_list_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(results), "results": results})
}

// @Summary      Scan for devices
// @Description  Triggers an immediate bridge refresh; new devices land in the inbox.
// @Tags         discovery
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]string
// @Failure      502  {object}  map[string]string
// @Router       /api/v1/discovery/scan [post]
// @Security     BearerAuth
func (h *Handler) scan(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.services.Discovery.Scan(ctx); err != nil {
		if h.log != nil {
			h.log.Warnw("discovery_scan_failed", "err", err)
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": errRefreshFailed + ": " + err.Error()})
		return
	}
	results, err := h.services.Discovery.Inbox(ctx)
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errLoadInbox, "discovery_list_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusScanned, "count": len(results), "results": results})
}

// @Summary      Approve inbox entry
// @Tags         discovery
// @Produce      json
// @Param        id   path      string  true  "Thing uid, e.g. oilfoxng:oilfox:home:D1"
// @Success      200  {object}  map[string]interface{}  "status, device"
// @Failure      401  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/discovery/{id}/approve [post]
// @Security     BearerAuth
func (h *Handler) approve(c *gin.Context) {
	uid := c.Param("id")
	st, err := h.services.Discovery.Approve(c.Request.Context(), uid)
	if errors.Is(err, service.ErrDiscoveryNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errApprove, "discovery_approve_failed", err, "thing", uid)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusApproved, "device": st})
}
