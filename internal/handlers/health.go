package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/cmsconsole/internal/monitoring"
)

// HealthHandler exposes the health manager over HTTP.
type HealthHandler struct {
	manager *monitoring.HealthManager
}

// NewHealthHandler constructs a health handler.
func NewHealthHandler(manager *monitoring.HealthManager) *HealthHandler {
	return &HealthHandler{manager: manager}
}

// Health returns a compact readiness summary.
// GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	report := h.manager.EvaluateReadiness(requestContext(c))
	c.JSON(statusFor(report), gin.H{
		"success":   report.Success,
		"status":    report.Status,
		"checkedAt": report.CheckedAt,
	})
}

// Live reports process liveness.
// GET /health/live
func (h *HealthHandler) Live(c *gin.Context) {
	report := h.manager.EvaluateLiveness(requestContext(c))
	c.JSON(statusFor(report), report)
}

// Ready reports dependency readiness with per-check details.
// GET /health/ready
func (h *HealthHandler) Ready(c *gin.Context) {
	report := h.manager.EvaluateReadiness(requestContext(c))
	c.JSON(statusFor(report), report)
}

// A degraded dependency still serves traffic.
func statusFor(report monitoring.HealthReport) int {
	if report.Status == monitoring.StatusDown {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}
