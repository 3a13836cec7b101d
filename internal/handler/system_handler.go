package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/admissions-sync-api/internal/service"
)

// ReadinessCheck is one dependency checked by /ready.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// SystemHandler exposes health, readiness and metrics.
type SystemHandler struct {
	metrics *service.MetricsService
	checks  []ReadinessCheck
	timeout time.Duration
}

// NewSystemHandler constructs SystemHandler.
func NewSystemHandler(metrics *service.MetricsService, checks ...ReadinessCheck) *SystemHandler {
	return &SystemHandler{metrics: metrics, checks: checks, timeout: 2 * time.Second}
}

// Health godoc
// @Summary Health check
// @Tags System
// @Success 200
// @Router /health [get]
func (h *SystemHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready godoc
// @Summary Readiness check
// @Description Reports 503 while a remote dependency is unreachable. Writes are still buffered locally.
// @Tags System
// @Success 200
// @Failure 503
// @Router /ready [get]
func (h *SystemHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for _, check := range h.checks {
		if err := check.Check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			results[check.Name] = err.Error()
			continue
		}
		results[check.Name] = "ok"
	}
	label := "ready"
	if status != http.StatusOK {
		label = "degraded"
	}
	c.JSON(status, gin.H{"status": label, "checks": results})
}

// Prometheus serves the Prometheus metrics endpoint.
func (h *SystemHandler) Prometheus(c *gin.Context) {
	if h.metrics == nil {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}
