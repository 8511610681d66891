package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SendStatus tracks the outbound notification for a delivered message
type SendStatus string

const (
	// SendStatusNone is the status of a message that has not been delivered yet
	SendStatusNone SendStatus = ""
	// SendStatusSending means the message is committed as delivered and a send is in flight
	SendStatusSending SendStatus = "sending"
	// SendStatusSent means the transport accepted the notification
	SendStatusSent SendStatus = "sent"
	// SendStatusRetrying means the last send failed and another attempt is scheduled
	SendStatusRetrying SendStatus = "retrying"
	// SendStatusFailed means every allowed attempt failed
	SendStatusFailed SendStatus = "failed"
)

// Message is a time capsule message bound to a future delivery date.
// IsDelivered only ever moves from false to true.
type Message struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	SenderID       uuid.UUID  `gorm:"type:uuid;not null;index" json:"sender_id"`
	RecipientEmail string     `gorm:"not null;size:255;index" json:"recipient_email"`
	Subject        string     `gorm:"not null" json:"subject"`
	Body           string     `gorm:"not null" json:"body"`
	DeliveryDate   time.Time  `gorm:"not null;index:idx_messages_due,priority:2" json:"delivery_date"`
	IsDelivered    bool       `gorm:"not null;default:false;index:idx_messages_due,priority:1" json:"is_delivered"`
	DeliveredAt    *time.Time `json:"delivered_at,omitempty"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`

	// Outbound notification bookkeeping
	SendStatus      SendStatus `gorm:"size:20;index" json:"send_status,omitempty"`
	SendAttempts    int        `gorm:"not null;default:0" json:"send_attempts"`
	NextSendAt      *time.Time `json:"next_send_at,omitempty"`
	LastSendError   string     `json:"last_send_error,omitempty"`
	NotificationRef string     `gorm:"size:255" json:"-"`

	// Relationships
	Sender Account `gorm:"foreignKey:SenderID;constraint:OnDelete:CASCADE" json:"sender,omitempty"`
}

// TableName returns the table name for Message
func (Message) TableName() string {
	return "messages"
}

// BeforeCreate assigns an ID when none was provided
func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// IsDue reports whether the message is eligible for delivery at now
func (m *Message) IsDue(now time.Time) bool {
	return !m.IsDelivered && !m.DeliveryDate.After(now)
}

// SendOutcome is the result of one notification attempt, persisted on the message
type SendOutcome struct {
	Status          SendStatus
	NextSendAt      *time.Time
	LastError       string
	NotificationRef string
}
