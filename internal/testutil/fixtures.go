package testutil

import (
	"time"

	"github.com/google/uuid"
	"github.com/welldanyogia/timecapsule-backend/internal/models"
)

// AccountBuilder creates test Account instances with fluent API
type AccountBuilder struct {
	account models.Account
}

// NewAccountBuilder creates a new AccountBuilder with sensible defaults
func NewAccountBuilder() *AccountBuilder {
	return &AccountBuilder{
		account: models.Account{
			ID:        uuid.New(),
			Name:      "Ada Lovelace",
			Email:     "ada@example.com",
			CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		},
	}
}

// WithID sets the account ID
func (b *AccountBuilder) WithID(id uuid.UUID) *AccountBuilder {
	b.account.ID = id
	return b
}

// WithName sets the display name
func (b *AccountBuilder) WithName(name string) *AccountBuilder {
	b.account.Name = name
	return b
}

// WithEmail sets the email address
func (b *AccountBuilder) WithEmail(email string) *AccountBuilder {
	b.account.Email = email
	return b
}

// Build returns the constructed Account
func (b *AccountBuilder) Build() *models.Account {
	account := b.account
	return &account
}

// MessageBuilder creates test Message instances with fluent API
type MessageBuilder struct {
	message models.Message
}

// NewMessageBuilder creates a MessageBuilder for an undelivered message
// from sender, due one hour after its creation.
func NewMessageBuilder(sender *models.Account) *MessageBuilder {
	created := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)
	return &MessageBuilder{
		message: models.Message{
			ID:             uuid.New(),
			SenderID:       sender.ID,
			Sender:         *sender,
			RecipientEmail: "future.me@example.com",
			Subject:        "Hello from the past",
			Body:           "Remember to water the plants.",
			DeliveryDate:   created.Add(time.Hour),
			CreatedAt:      created,
		},
	}
}

// WithID sets the message ID
func (b *MessageBuilder) WithID(id uuid.UUID) *MessageBuilder {
	b.message.ID = id
	return b
}

// WithRecipient sets the recipient email
func (b *MessageBuilder) WithRecipient(email string) *MessageBuilder {
	b.message.RecipientEmail = email
	return b
}

// WithSubject sets the subject
func (b *MessageBuilder) WithSubject(subject string) *MessageBuilder {
	b.message.Subject = subject
	return b
}

// WithBody sets the body
func (b *MessageBuilder) WithBody(body string) *MessageBuilder {
	b.message.Body = body
	return b
}

// WithCreatedAt sets the creation timestamp
func (b *MessageBuilder) WithCreatedAt(t time.Time) *MessageBuilder {
	b.message.CreatedAt = t
	return b
}

// WithDeliveryDate sets the delivery date
func (b *MessageBuilder) WithDeliveryDate(t time.Time) *MessageBuilder {
	b.message.DeliveryDate = t
	return b
}

// WithSendState marks the message delivered with the given send bookkeeping
func (b *MessageBuilder) WithSendState(status models.SendStatus, attempts int, nextSendAt *time.Time) *MessageBuilder {
	delivered := b.message.DeliveryDate
	b.message.IsDelivered = true
	b.message.DeliveredAt = &delivered
	b.message.SendStatus = status
	b.message.SendAttempts = attempts
	b.message.NextSendAt = nextSendAt
	return b
}

// Build returns the constructed Message
func (b *MessageBuilder) Build() *models.Message {
	message := b.message
	return &message
}
