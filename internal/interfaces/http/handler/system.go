package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sgpatel/secure-pdf-viewer/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// HealthCheck reports whether a dependency is usable
type HealthCheck func(ctx context.Context) error

// SystemHandlerConfig configures SystemHandler
type SystemHandlerConfig struct {
	Name    string
	Version string
	Backend string
	// Checks are run by Health, keyed by dependency name
	Checks map[string]HealthCheck
}

// SystemHandler handles system-related API endpoints
type SystemHandler struct {
	BaseHandler
	cfg       SystemHandlerConfig
	startTime time.Time
}

// NewSystemHandler creates a new SystemHandler
func NewSystemHandler(cfg SystemHandlerConfig) *SystemHandler {
	return &SystemHandler{cfg: cfg, startTime: time.Now()}
}

// SystemInfoResponse represents the system information response
type SystemInfoResponse struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
	Backend   string `json:"backend"`
	Uptime    string `json:"uptime"`
}

// GetSystemInfo returns version and uptime
func (h *SystemHandler) GetSystemInfo(c *gin.Context) {
	h.Success(c, SystemInfoResponse{
		Name:      h.cfg.Name,
		Version:   h.cfg.Version,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		Backend:   h.cfg.Backend,
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
	})
}

// PingResponse represents the ping response
type PingResponse struct {
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// Ping is a liveness probe
func (h *SystemHandler) Ping(c *gin.Context) {
	h.Success(c, PingResponse{
		Message:   "pong",
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// Health runs the configured dependency checks
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	status := "healthy"
	checks := make(map[string]string, len(h.cfg.Checks))
	for name, check := range h.cfg.Checks {
		if err := check(ctx); err != nil {
			logger.GetGinLogger(c).Warn("Health check failed",
				zap.String("dependency", name),
				zap.Error(err),
			)
			checks[name] = "unhealthy"
			status = "unhealthy"
			continue
		}
		checks[name] = "healthy"
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status": status,
		"checks": checks,
	})
}
