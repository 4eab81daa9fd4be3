package api

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
)

// Healthz handles GET /healthz: the database and the last-tag backend
// must both answer.
func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	dbHealthy := h.DB != nil && h.DB.Ping(ctx) == nil
	tagHealthy := h.LastTag != nil && h.LastTag.Healthy(ctx)
	status := http.StatusOK
	state := "ok"
	if !dbHealthy || !tagHealthy {
		status = http.StatusServiceUnavailable
		state = "degraded"
	}
	c.JSON(status, gin.H{"status": state, "db": dbHealthy, "lastTag": tagHealthy})
}

// SystemHealth handles GET /api/system/health.
func (h *Handler) SystemHealth(c *gin.Context) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"uptimeSeconds": int64(time.Since(h.started).Seconds()),
		"goroutines":    runtime.NumGoroutine(),
		"memory": gin.H{
			"allocBytes": mem.Alloc,
			"sysBytes":   mem.Sys,
			"numGC":      mem.NumGC,
		},
		"serverTime": h.Clock.Format(h.Clock.Now()),
		"timezone":   h.Clock.Location().String(),
	})
}
