package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

const pingTimeout = 2 * time.Second

// RunningChecker reports whether a background component is running
type RunningChecker interface {
	IsRunning() bool
}

// HealthHandler handles health check HTTP requests
type HealthHandler struct {
	db        *gorm.DB
	scheduler RunningChecker
}

// NewHealthHandler creates a new HealthHandler. scheduler may be nil.
func NewHealthHandler(db *gorm.DB, scheduler RunningChecker) *HealthHandler {
	return &HealthHandler{db: db, scheduler: scheduler}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
}

// Health handles GET /health. A stopped scheduler is reported but does not
// make the service unhealthy: the API keeps serving.
func (h *HealthHandler) Health(c echo.Context) error {
	services := make(map[string]string)
	status := "healthy"

	if err := h.ping(c.Request().Context()); err != nil {
		services["database"] = "unhealthy"
		status = "unhealthy"
	} else {
		services["database"] = "healthy"
	}

	if h.scheduler != nil {
		if h.scheduler.IsRunning() {
			services["delivery_scheduler"] = "running"
		} else {
			services["delivery_scheduler"] = "stopped"
		}
	}

	statusCode := http.StatusOK
	if status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	return c.JSON(statusCode, HealthResponse{
		Status:   status,
		Services: services,
	})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(c echo.Context) error {
	if err := h.ping(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "database ping failed",
		})
	}

	return c.JSON(http.StatusOK, map[string]string{
		"status": "ready",
	})
}

func (h *HealthHandler) ping(ctx context.Context) error {
	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return sqlDB.PingContext(ctx)
}
