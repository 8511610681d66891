package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/welldanyogia/timecapsule-backend/internal/models"
	"gorm.io/gorm"
)

// MessageRepository defines the interface for message data access
type MessageRepository interface {
	Create(ctx context.Context, message *models.Message) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Message, error)
	ListBySender(ctx context.Context, senderID uuid.UUID, limit, offset int) ([]models.Message, int64, error)
	ListReceived(ctx context.Context, recipientEmail string, limit, offset int) ([]models.Message, int64, error)

	// Delivery path
	FindDue(ctx context.Context, now time.Time) ([]models.Message, error)
	CommitDelivered(ctx context.Context, id uuid.UUID, now time.Time) error
	FindSendRetries(ctx context.Context, now time.Time) ([]models.Message, error)
	ClaimSendRetry(ctx context.Context, id uuid.UUID, attempts int) error
	RecordSendOutcome(ctx context.Context, id uuid.UUID, outcome models.SendOutcome) error
}

// messageRepository implements MessageRepository using GORM
type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository creates a new MessageRepository instance
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

// senderIdentity limits the preloaded sender to its display fields
func senderIdentity(db *gorm.DB) *gorm.DB {
	return db.Select("id", "name", "email")
}

// Create creates a new message
func (r *messageRepository) Create(ctx context.Context, message *models.Message) error {
	message.RecipientEmail = normalizeEmail(message.RecipientEmail)
	message.DeliveryDate = message.DeliveryDate.UTC()
	result := r.db.WithContext(ctx).Omit("Sender").Create(message)
	if result.Error != nil {
		return fmt.Errorf("failed to create message: %w", result.Error)
	}
	return nil
}

// GetByID retrieves a message by its ID with the sender preloaded
func (r *messageRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	var message models.Message
	result := r.db.WithContext(ctx).Preload("Sender", senderIdentity).First(&message, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get message by ID: %w", result.Error)
	}
	return &message, nil
}

// ListBySender retrieves messages authored by senderID, newest first
func (r *messageRepository) ListBySender(ctx context.Context, senderID uuid.UUID, limit, offset int) ([]models.Message, int64, error) {
	return r.list(ctx, func(db *gorm.DB) *gorm.DB {
		return db.Where("sender_id = ?", senderID)
	}, "created_at DESC", limit, offset)
}

// ListReceived retrieves delivered messages addressed to recipientEmail, most recently delivered first
func (r *messageRepository) ListReceived(ctx context.Context, recipientEmail string, limit, offset int) ([]models.Message, int64, error) {
	email := normalizeEmail(recipientEmail)
	return r.list(ctx, func(db *gorm.DB) *gorm.DB {
		return db.Where("recipient_email = ? AND is_delivered = ?", email, true)
	}, "delivered_at DESC, created_at DESC", limit, offset)
}

func (r *messageRepository) list(ctx context.Context, scope func(*gorm.DB) *gorm.DB, order string, limit, offset int) ([]models.Message, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Message{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count messages: %w", err)
	}

	var messages []models.Message
	result := r.db.WithContext(ctx).
		Scopes(scope).
		Preload("Sender", senderIdentity).
		Order(order).
		Limit(limit).
		Offset(offset).
		Find(&messages)
	if result.Error != nil {
		return nil, 0, fmt.Errorf("failed to list messages: %w", result.Error)
	}
	return messages, total, nil
}

// FindDue returns every undelivered message whose delivery date is at or before now,
// each with its sender's display identity. No ordering is guaranteed.
func (r *messageRepository) FindDue(ctx context.Context, now time.Time) ([]models.Message, error) {
	var messages []models.Message
	result := r.db.WithContext(ctx).
		Preload("Sender", senderIdentity).
		Where("is_delivered = ? AND delivery_date <= ?", false, now.UTC()).
		Find(&messages)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to find due messages: %w", result.Error)
	}
	return messages, nil
}

// CommitDelivered marks a message delivered only if it is still undelivered.
// The first send attempt is claimed in the same statement.
// Returns ErrAlreadyDelivered when no row matched.
func (r *messageRepository) CommitDelivered(ctx context.Context, id uuid.UUID, now time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("id = ? AND is_delivered = ?", id, false).
		Updates(map[string]interface{}{
			"is_delivered":  true,
			"delivered_at":  now.UTC(),
			"send_status":   models.SendStatusSending,
			"send_attempts": 1,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to commit delivery: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrAlreadyDelivered
	}
	return nil
}

// FindSendRetries returns delivered messages whose failed notification is due for another attempt
func (r *messageRepository) FindSendRetries(ctx context.Context, now time.Time) ([]models.Message, error) {
	var messages []models.Message
	result := r.db.WithContext(ctx).
		Preload("Sender", senderIdentity).
		Where("is_delivered = ? AND send_status = ? AND next_send_at <= ?", true, models.SendStatusRetrying, now.UTC()).
		Find(&messages)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to find send retries: %w", result.Error)
	}
	return messages, nil
}

// ClaimSendRetry moves a retrying message back to sending, conditioned on the attempt
// count it was selected with. Returns ErrSendNotClaimable if another cycle claimed it first.
func (r *messageRepository) ClaimSendRetry(ctx context.Context, id uuid.UUID, attempts int) error {
	result := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("id = ? AND send_status = ? AND send_attempts = ?", id, models.SendStatusRetrying, attempts).
		Updates(map[string]interface{}{
			"send_status":   models.SendStatusSending,
			"send_attempts": attempts + 1,
			"next_send_at":  nil,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to claim send retry: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrSendNotClaimable
	}
	return nil
}

// RecordSendOutcome stores the result of the in-flight send attempt
func (r *messageRepository) RecordSendOutcome(ctx context.Context, id uuid.UUID, outcome models.SendOutcome) error {
	updates := map[string]interface{}{
		"send_status":     outcome.Status,
		"next_send_at":    outcome.NextSendAt,
		"last_send_error": outcome.LastError,
	}
	if outcome.NotificationRef != "" {
		updates["notification_ref"] = outcome.NotificationRef
	}

	result := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("id = ? AND send_status = ?", id, models.SendStatusSending).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to record send outcome: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
