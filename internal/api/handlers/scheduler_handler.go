package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/welldanyogia/timecapsule-backend/internal/api/response"
	apperrors "github.com/welldanyogia/timecapsule-backend/internal/errors"
	"github.com/welldanyogia/timecapsule-backend/internal/services"
)

// SchedulerControl is the part of the delivery scheduler exposed over HTTP
type SchedulerControl interface {
	Status() services.SchedulerStatus
	TriggerNow(ctx context.Context) (services.CycleReport, error)
}

// SchedulerHandler reports on and triggers delivery cycles
type SchedulerHandler struct {
	scheduler SchedulerControl
}

// NewSchedulerHandler creates a new SchedulerHandler
func NewSchedulerHandler(scheduler SchedulerControl) *SchedulerHandler {
	return &SchedulerHandler{scheduler: scheduler}
}

// Status handles GET /api/scheduler
func (h *SchedulerHandler) Status(c echo.Context) error {
	return response.Success(c, h.scheduler.Status())
}

// Run handles POST /api/scheduler/run. The cycle runs to completion even if
// the client disconnects.
func (h *SchedulerHandler) Run(c echo.Context) error {
	report, err := h.scheduler.TriggerNow(c.Request().Context())
	switch {
	case errors.Is(err, services.ErrCycleInProgress):
		return response.Error(c, apperrors.ErrSchedulerBusy)
	case errors.Is(err, services.ErrSchedulerStopped):
		return c.JSON(http.StatusServiceUnavailable, response.ErrorResponse{
			Success: false,
			Error:   "delivery scheduler is not running",
			Code:    "SCHEDULER_STOPPED",
		})
	case err != nil:
		// A failed due-set read still produces a report for what ran
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"success": false,
			"error":   "delivery cycle failed",
			"code":    apperrors.CodeInternalError,
			"data":    report,
		})
	}

	return response.SuccessWithMessage(c, report, "delivery cycle completed")
}
