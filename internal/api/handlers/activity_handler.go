package handlers

import (
	"github.com/labstack/echo/v4"
	"github.com/welldanyogia/timecapsule-backend/internal/api/middleware"
	"github.com/welldanyogia/timecapsule-backend/internal/api/response"
	"github.com/welldanyogia/timecapsule-backend/internal/repository"
)

// ActivityHandler serves the caller's audit trail
type ActivityHandler struct {
	activityRepo repository.ActivityRepository
}

// NewActivityHandler creates a new ActivityHandler
func NewActivityHandler(activityRepo repository.ActivityRepository) *ActivityHandler {
	return &ActivityHandler{activityRepo: activityRepo}
}

// List handles GET /api/activity, newest first
func (h *ActivityHandler) List(c echo.Context) error {
	account := middleware.CurrentAccount(c)
	if account == nil {
		return response.Unauthorized(c, "missing user")
	}

	limit, offset := paginationParams(c)
	entries, total, err := h.activityRepo.ListByUser(c.Request().Context(), account.ID, limit, offset)
	if err != nil {
		return response.InternalError(c, "failed to list activity")
	}

	return response.Paginated(c, entries, total, limit, offset)
}
