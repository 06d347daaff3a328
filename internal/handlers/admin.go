package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"table-settlement/internal/services"
	"table-settlement/internal/utils"
)

// HealthChecker is implemented by the storage backends.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type AdminHandler struct {
	synchronizer *services.Synchronizer
	health       HealthChecker
}

func NewAdminHandler(synchronizer *services.Synchronizer, health HealthChecker) *AdminHandler {
	return &AdminHandler{synchronizer: synchronizer, health: health}
}

// RunSync runs every synchronizer pass once. Partial failures still return
// the report alongside the error.
func (h *AdminHandler) RunSync(c *gin.Context) {
	report, err := h.synchronizer.RunOnce(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, utils.Response{
			Success: false,
			Message: "Synchronization finished with errors",
			Data:    report,
		})
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Synchronization completed", report)
}

func (h *AdminHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status, code := "healthy", http.StatusOK
	if err := h.health.HealthCheck(ctx); err != nil {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"service":   "table-settlement",
		"version":   "1.0.0",
	})
}
