package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Activity actions
const (
	ActionMessageCreated     = "message_created"
	ActionMessageDelivered   = "message_delivered"
	ActionNotificationResent = "notification_resent"
	ActionNotificationFailed = "notification_failed"
)

// ActivityLog is an append-only audit entry. There is no update or delete path.
type ActivityLog struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	Action    string    `gorm:"not null;size:64;index" json:"action"`
	Details   string    `json:"details,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName returns the table name for ActivityLog
func (ActivityLog) TableName() string {
	return "activity_logs"
}

// BeforeCreate assigns an ID when none was provided
func (a *ActivityLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
