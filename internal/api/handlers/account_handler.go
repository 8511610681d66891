package handlers

import (
	"errors"

	"github.com/labstack/echo/v4"
	"github.com/welldanyogia/timecapsule-backend/internal/api/middleware"
	"github.com/welldanyogia/timecapsule-backend/internal/api/response"
	apperrors "github.com/welldanyogia/timecapsule-backend/internal/errors"
	"github.com/welldanyogia/timecapsule-backend/internal/models"
	"github.com/welldanyogia/timecapsule-backend/internal/repository"
	"github.com/welldanyogia/timecapsule-backend/internal/validator"
)

// AccountHandler handles account-related HTTP requests
type AccountHandler struct {
	accountRepo repository.AccountRepository
}

// NewAccountHandler creates a new AccountHandler
func NewAccountHandler(accountRepo repository.AccountRepository) *AccountHandler {
	return &AccountHandler{accountRepo: accountRepo}
}

// CreateAccountRequest represents the request body for registering an account
type CreateAccountRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Create handles POST /api/accounts
func (h *AccountHandler) Create(c echo.Context) error {
	var req CreateAccountRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, "invalid request body")
	}

	name := validator.SanitizeString(req.Name, 0)
	if err := validator.ValidateRequiredText(name, validator.MaxNameLength); err != nil {
		return response.Error(c, apperrors.NewFieldError("name", fieldMessage("name", err)))
	}
	if err := validator.ValidateEmail(req.Email); err != nil {
		return response.Error(c, apperrors.NewFieldError("email", fieldMessage("email", err)))
	}

	account := &models.Account{Name: name, Email: req.Email}
	if err := h.accountRepo.Create(c.Request().Context(), account); err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			return response.Conflict(c, "account already exists")
		}
		return response.InternalError(c, "failed to create account")
	}

	return response.Created(c, account)
}

// Me handles GET /api/accounts/me
func (h *AccountHandler) Me(c echo.Context) error {
	return response.Success(c, middleware.CurrentAccount(c))
}

// fieldMessage turns a validator error into a client-facing message for field
func fieldMessage(field string, err error) string {
	switch {
	case errors.Is(err, validator.ErrEmptyInput):
		return field + " is required"
	case errors.Is(err, validator.ErrInputTooLong):
		return field + " is too long"
	case errors.Is(err, validator.ErrInvalidEmail):
		return field + " must be a valid email address"
	case errors.Is(err, validator.ErrInvalidDeliveryDate):
		return field + " must be an RFC 3339 timestamp or a YYYY-MM-DD date"
	default:
		return field + " is invalid"
	}
}
