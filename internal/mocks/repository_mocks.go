package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/welldanyogia/timecapsule-backend/internal/models"
)

// MockAccountRepository implements repository.AccountRepository
type MockAccountRepository struct {
	mock.Mock
}

// Create creates a new account
func (m *MockAccountRepository) Create(ctx context.Context, account *models.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

// GetByID retrieves an account by its ID
func (m *MockAccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

// FindByEmail looks up an account by email
func (m *MockAccountRepository) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

// MockActivityRepository implements repository.ActivityRepository
type MockActivityRepository struct {
	mock.Mock
}

// Append inserts one audit entry
func (m *MockActivityRepository) Append(ctx context.Context, entry *models.ActivityLog) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

// ListByUser retrieves a user's audit entries
func (m *MockActivityRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.ActivityLog, int64, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]models.ActivityLog), args.Get(1).(int64), args.Error(2)
}

// MockMessageRepository implements repository.MessageRepository
type MockMessageRepository struct {
	mock.Mock
}

// Create creates a new message
func (m *MockMessageRepository) Create(ctx context.Context, message *models.Message) error {
	args := m.Called(ctx, message)
	return args.Error(0)
}

// GetByID retrieves a message by its ID
func (m *MockMessageRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

// ListBySender retrieves messages authored by senderID
func (m *MockMessageRepository) ListBySender(ctx context.Context, senderID uuid.UUID, limit, offset int) ([]models.Message, int64, error) {
	args := m.Called(ctx, senderID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]models.Message), args.Get(1).(int64), args.Error(2)
}

// ListReceived retrieves delivered messages addressed to recipientEmail
func (m *MockMessageRepository) ListReceived(ctx context.Context, recipientEmail string, limit, offset int) ([]models.Message, int64, error) {
	args := m.Called(ctx, recipientEmail, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]models.Message), args.Get(1).(int64), args.Error(2)
}

// FindDue returns undelivered messages due at now
func (m *MockMessageRepository) FindDue(ctx context.Context, now time.Time) ([]models.Message, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Message), args.Error(1)
}

// CommitDelivered conditionally marks a message delivered
func (m *MockMessageRepository) CommitDelivered(ctx context.Context, id uuid.UUID, now time.Time) error {
	args := m.Called(ctx, id, now)
	return args.Error(0)
}

// FindSendRetries returns messages whose notification is due for another attempt
func (m *MockMessageRepository) FindSendRetries(ctx context.Context, now time.Time) ([]models.Message, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Message), args.Error(1)
}

// ClaimSendRetry conditionally claims a retry
func (m *MockMessageRepository) ClaimSendRetry(ctx context.Context, id uuid.UUID, attempts int) error {
	args := m.Called(ctx, id, attempts)
	return args.Error(0)
}

// RecordSendOutcome stores the result of a send attempt
func (m *MockMessageRepository) RecordSendOutcome(ctx context.Context, id uuid.UUID, outcome models.SendOutcome) error {
	args := m.Called(ctx, id, outcome)
	return args.Error(0)
}
