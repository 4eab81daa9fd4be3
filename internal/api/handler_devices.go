package api

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"gate-attendance-backend/internal/apperr"
	"gate-attendance-backend/internal/devices"
)

type heartbeatRequest struct {
	DeviceID string `json:"deviceId"`
	devices.Telemetry
}

// Heartbeat handles POST /api/devices/heartbeat and its legacy alias. The
// body is kept verbatim as the device's telemetry.
func (h *Handler) Heartbeat(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		writeError(c, apperr.Invalid("read body: %v", err))
		return
	}
	var req heartbeatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(c, apperr.Invalid("%v", err))
		return
	}
	req.Telemetry.Raw = body

	d, err := h.Devices.Heartbeat(c.Request.Context(), req.DeviceID, req.Telemetry)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":    "Heartbeat received",
		"device":     toDeviceView(h.Clock, d),
		"serverTime": h.Clock.Format(h.Clock.Now()),
	})
}

type registerRequest struct {
	DeviceID    string  `json:"deviceId"`
	Location    *string `json:"location"`
	Description *string `json:"description"`
}

// RegisterDevice handles POST /api/devices/register.
func (h *Handler) RegisterDevice(c *gin.Context) {
	var req registerRequest
	if !bindJSON(c, &req) {
		return
	}
	d, err := h.Devices.Register(c.Request.Context(), req.DeviceID, req.Location, req.Description)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toDeviceView(h.Clock, d))
}

// SweepDevices handles POST /api/devices/sweep.
func (h *Handler) SweepDevices(c *gin.Context) {
	flipped, err := h.Devices.Sweep(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	if flipped == nil {
		flipped = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"markedOffline": flipped})
}

// ListDevices handles GET /api/devices.
func (h *Handler) ListDevices(c *gin.Context) {
	list, err := h.Devices.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	views := make([]deviceView, 0, len(list))
	for i := range list {
		views = append(views, toDeviceView(h.Clock, &list[i]))
	}
	c.JSON(http.StatusOK, gin.H{"items": views, "total": len(views)})
}

// GetDevice handles GET /api/devices/:deviceId.
func (h *Handler) GetDevice(c *gin.Context) {
	d, err := h.Devices.Get(c.Request.Context(), c.Param("deviceId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toDeviceView(h.Clock, d))
}

// UpdateDevice handles PUT /api/devices/:deviceId.
func (h *Handler) UpdateDevice(c *gin.Context) {
	var req devices.Patch
	if !bindJSON(c, &req) {
		return
	}
	d, err := h.Devices.Update(c.Request.Context(), c.Param("deviceId"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toDeviceView(h.Clock, d))
}

// DeleteDevice handles DELETE /api/devices/:deviceId.
func (h *Handler) DeleteDevice(c *gin.Context) {
	if err := h.Devices.Delete(c.Request.Context(), c.Param("deviceId")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
