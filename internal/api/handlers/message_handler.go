package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/welldanyogia/timecapsule-backend/internal/api/middleware"
	"github.com/welldanyogia/timecapsule-backend/internal/api/response"
	apperrors "github.com/welldanyogia/timecapsule-backend/internal/errors"
	"github.com/welldanyogia/timecapsule-backend/internal/models"
	"github.com/welldanyogia/timecapsule-backend/internal/repository"
	"github.com/welldanyogia/timecapsule-backend/internal/services"
	"github.com/welldanyogia/timecapsule-backend/internal/validator"
)

// MessageHandler handles message-related HTTP requests
type MessageHandler struct {
	messageRepo  repository.MessageRepository
	activityRepo repository.ActivityRepository
	clock        services.Clock
	logger       *slog.Logger
}

// NewMessageHandler creates a new MessageHandler
func NewMessageHandler(messageRepo repository.MessageRepository, activityRepo repository.ActivityRepository, clock services.Clock, logger *slog.Logger) *MessageHandler {
	if clock == nil {
		clock = services.SystemClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MessageHandler{
		messageRepo:  messageRepo,
		activityRepo: activityRepo,
		clock:        clock,
		logger:       logger,
	}
}

// CreateMessageRequest represents the request body for creating a time capsule
type CreateMessageRequest struct {
	RecipientEmail string `json:"recipient_email"`
	Subject        string `json:"subject"`
	Body           string `json:"body"`
	DeliveryDate   string `json:"delivery_date"`
}

// Create handles POST /api/messages
func (h *MessageHandler) Create(c echo.Context) error {
	sender := middleware.CurrentAccount(c)
	if sender == nil {
		return response.Unauthorized(c, "missing user")
	}

	var req CreateMessageRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, "invalid request body")
	}

	msg, err := h.buildMessage(sender, req)
	if err != nil {
		return response.Error(c, err)
	}

	ctx := c.Request().Context()
	if err := h.messageRepo.Create(ctx, msg); err != nil {
		return response.InternalError(c, "failed to create message")
	}
	msg.Sender = *sender

	// The message exists either way; a lost audit entry is logged, not surfaced.
	entry := &models.ActivityLog{
		UserID:  sender.ID,
		Action:  models.ActionMessageCreated,
		Details: fmt.Sprintf("Created message %s", msg.ID),
	}
	if err := h.activityRepo.Append(ctx, entry); err != nil {
		h.logger.Error("failed to record message creation",
			slog.String("message_id", msg.ID.String()),
			slog.String("error", err.Error()))
	}

	return response.Created(c, msg)
}

func (h *MessageHandler) buildMessage(sender *models.Account, req CreateMessageRequest) (*models.Message, error) {
	recipient := strings.ToLower(strings.TrimSpace(req.RecipientEmail))
	if err := validator.ValidateEmail(recipient); err != nil {
		return nil, apperrors.NewFieldError("recipient_email", fieldMessage("recipient_email", err))
	}

	subject := validator.SanitizeString(req.Subject, 0)
	if err := validator.ValidateRequiredText(subject, validator.MaxSubjectLength); err != nil {
		return nil, apperrors.NewFieldError("subject", fieldMessage("subject", err))
	}

	body := validator.SanitizeBody(req.Body)
	if err := validator.ValidateRequiredText(body, validator.MaxBodyLength); err != nil {
		return nil, apperrors.NewFieldError("body", fieldMessage("body", err))
	}

	deliveryDate, err := validator.ParseDeliveryDate(req.DeliveryDate)
	if err != nil {
		return nil, apperrors.NewFieldError("delivery_date", fieldMessage("delivery_date", err))
	}
	now := h.clock.Now().UTC()
	if err := validator.ValidateDeliveryDate(deliveryDate, now); err != nil {
		return nil, apperrors.NewAppError(apperrors.ErrDeliveryDatePast,
			fmt.Sprintf("delivery_date must be after %s", now.Format(time.RFC3339)),
			apperrors.CodeDeliveryDatePast)
	}

	return &models.Message{
		SenderID:       sender.ID,
		RecipientEmail: recipient,
		Subject:        subject,
		Body:           body,
		DeliveryDate:   deliveryDate,
	}, nil
}

// ListSent handles GET /api/messages/sent
func (h *MessageHandler) ListSent(c echo.Context) error {
	account := middleware.CurrentAccount(c)
	if account == nil {
		return response.Unauthorized(c, "missing user")
	}

	limit, offset := paginationParams(c)
	messages, total, err := h.messageRepo.ListBySender(c.Request().Context(), account.ID, limit, offset)
	if err != nil {
		return response.InternalError(c, "failed to list sent messages")
	}

	return response.Paginated(c, messages, total, limit, offset)
}

// ListReceived handles GET /api/messages/received. Only delivered messages are listed.
func (h *MessageHandler) ListReceived(c echo.Context) error {
	account := middleware.CurrentAccount(c)
	if account == nil {
		return response.Unauthorized(c, "missing user")
	}

	limit, offset := paginationParams(c)
	messages, total, err := h.messageRepo.ListReceived(c.Request().Context(), account.Email, limit, offset)
	if err != nil {
		return response.InternalError(c, "failed to list received messages")
	}

	return response.Paginated(c, messages, total, limit, offset)
}

// Get handles GET /api/messages/:id. The sender can always read a message;
// the recipient only once it has been delivered. Anyone else gets 404.
func (h *MessageHandler) Get(c echo.Context) error {
	account := middleware.CurrentAccount(c)
	if account == nil {
		return response.Unauthorized(c, "missing user")
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return response.BadRequest(c, "invalid message ID")
	}

	message, err := h.messageRepo.GetByID(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return response.NotFound(c, "message not found")
		}
		return response.InternalError(c, "failed to get message")
	}

	if !canView(account, message) {
		return response.NotFound(c, "message not found")
	}

	return response.Success(c, message)
}

func canView(account *models.Account, message *models.Message) bool {
	if message.SenderID == account.ID {
		return true
	}
	return message.IsDelivered && strings.EqualFold(message.RecipientEmail, account.Email)
}

// paginationParams reads limit and offset query parameters
func paginationParams(c echo.Context) (int, int) {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	return validator.ValidatePagination(limit, offset)
}
