package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"gate-attendance-backend/internal/mw"
)

// RouterConfig tunes the middleware around the handlers.
type RouterConfig struct {
	RateLimitPerSec float64
	RateLimitBurst  int
	ReportCacheTTL  time.Duration
	CORSOrigins     []string
}

// NewRouter creates and configures a new Gin router.
func NewRouter(h *Handler, cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(gin.Recovery())

	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins: cfg.CORSOrigins,
			AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Cache-Control"},
			MaxAge:       12 * time.Hour,
		}))
	}

	// Device ingestion is limited per client address.
	limiter := mw.NewKeyedRateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst, 10*time.Minute)
	ingest := mw.RateLimiter(limiter, mw.ByClientIP)

	// Reports are cached briefly; identical queries from dashboards repeat.
	// Any attendance or student write empties the cache.
	cacheStore := cache.New(cfg.ReportCacheTTL, 2*cfg.ReportCacheTTL+time.Minute)
	caching := mw.Cache(cacheStore, cfg.ReportCacheTTL)
	invalidate := mw.Invalidate(cacheStore)

	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		attendance := api.Group("/attendance", invalidate)
		attendance.POST("/scan", ingest, h.Scan)
		attendance.POST("/device/heartbeat", ingest, h.Heartbeat)
		attendance.GET("", h.ListAttendance)
		attendance.GET("/report", caching, h.Report)
		attendance.GET("/:id", h.GetAttendance)
		attendance.POST("", h.AddManual)
		attendance.PUT("/:id", h.UpdateAttendance)

		devices := api.Group("/devices")
		devices.POST("/heartbeat", ingest, h.Heartbeat)
		devices.POST("/register", h.RegisterDevice)
		devices.POST("/sweep", h.SweepDevices)
		devices.GET("", h.ListDevices)
		devices.GET("/:deviceId", h.GetDevice)
		devices.PUT("/:deviceId", h.UpdateDevice)
		devices.DELETE("/:deviceId", h.DeleteDevice)

		students := api.Group("/students", invalidate)
		students.GET("", h.ListStudents)
		students.POST("", h.CreateStudent)
		students.GET("/last-rfid", h.GetLastTag)
		students.POST("/store-rfid", ingest, h.StoreTag)
		students.GET("/rfid/:tag", h.GetStudentByTag)
		students.GET("/:id", h.GetStudent)
		students.PUT("/:id", h.UpdateStudent)
		students.DELETE("/:id", h.DeleteStudent)
		students.POST("/:id/deactivate", h.DeactivateStudent)
		students.POST("/:id/activate", h.ActivateStudent)

		api.GET("/system/health", h.SystemHealth)
	}

	return r
}
