package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/welldanyogia/timecapsule-backend/internal/models"
	"gorm.io/gorm"
)

// ActivityRepository is the append-only audit trail
type ActivityRepository interface {
	Append(ctx context.Context, entry *models.ActivityLog) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.ActivityLog, int64, error)
}

// activityRepository implements ActivityRepository using GORM
type activityRepository struct {
	db *gorm.DB
}

// NewActivityRepository creates a new ActivityRepository instance
func NewActivityRepository(db *gorm.DB) ActivityRepository {
	return &activityRepository{db: db}
}

// Append inserts one audit entry
func (r *activityRepository) Append(ctx context.Context, entry *models.ActivityLog) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to append activity: %w", err)
	}
	return nil
}

// ListByUser retrieves a user's audit entries, newest first
func (r *activityRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.ActivityLog, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.ActivityLog{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count activity: %w", err)
	}

	var entries []models.ActivityLog
	result := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&entries)
	if result.Error != nil {
		return nil, 0, fmt.Errorf("failed to list activity: %w", result.Error)
	}
	return entries, total, nil
}
