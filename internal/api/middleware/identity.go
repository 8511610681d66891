package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/welldanyogia/timecapsule-backend/internal/logger"
	"github.com/welldanyogia/timecapsule-backend/internal/models"
	"github.com/welldanyogia/timecapsule-backend/internal/repository"
)

// UserIDHeader carries the acting account id, set by the upstream auth gateway.
const UserIDHeader = "X-User-ID"

const accountContextKey = "account"

// AccountGetter loads the acting account
type AccountGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
}

// UserIdentity resolves the X-User-ID header into an account and stores it on
// the request context. Unknown or malformed ids are rejected with 401.
func UserIdentity(accounts AccountGetter, secLogger *logger.SecurityLogger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := c.Request().Header.Get(UserIDHeader)
			if raw == "" {
				return unauthorized(c, secLogger, "missing user id")
			}

			id, err := uuid.Parse(raw)
			if err != nil {
				if secLogger != nil {
					secLogger.SuspiciousActivity(c.RealIP(), c.Path(), "malformed "+UserIDHeader+" header")
				}
				return unauthorized(c, secLogger, "invalid user id")
			}

			account, err := accounts.GetByID(c.Request().Context(), id)
			if errors.Is(err, repository.ErrNotFound) {
				return unauthorized(c, secLogger, "unknown user")
			}
			if err != nil {
				return echo.NewHTTPError(http.StatusInternalServerError, map[string]string{
					"error": "failed to resolve user",
					"code":  "INTERNAL_ERROR",
				})
			}

			SetCurrentAccount(c, account)
			return next(c)
		}
	}
}

// SetCurrentAccount stores account as the acting account of the request
func SetCurrentAccount(c echo.Context, account *models.Account) {
	c.Set(accountContextKey, account)
}

// CurrentAccount returns the account stored by UserIdentity, or nil.
func CurrentAccount(c echo.Context) *models.Account {
	account, _ := c.Get(accountContextKey).(*models.Account)
	return account
}

func unauthorized(c echo.Context, secLogger *logger.SecurityLogger, reason string) error {
	if secLogger != nil {
		secLogger.AuthFailure(c.RealIP(), c.Path(), reason)
	}
	return echo.NewHTTPError(http.StatusUnauthorized, map[string]string{
		"error": reason,
		"code":  "UNAUTHORIZED",
	})
}
