package mocks

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/welldanyogia/timecapsule-backend/internal/models"
)

// MockNotificationTransport implements services.NotificationTransport
type MockNotificationTransport struct {
	mock.Mock
}

// Send sends a rendered notification
func (m *MockNotificationTransport) Send(ctx context.Context, n *models.Notification) (*models.SendReceipt, error) {
	args := m.Called(ctx, n)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SendReceipt), args.Error(1)
}

// PublishedDelivery records one PublishDelivery call
type PublishedDelivery struct {
	Message   models.Message
	Recipient *models.Account
}

// MockDeliveryPublisher implements services.DeliveryPublisher
type MockDeliveryPublisher struct {
	mu        sync.Mutex
	Published []PublishedDelivery
}

// PublishDelivery records the delivery
func (m *MockDeliveryPublisher) PublishDelivery(msg *models.Message, recipient *models.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Published = append(m.Published, PublishedDelivery{Message: *msg, Recipient: recipient})
}

// Deliveries returns a copy of the recorded deliveries
func (m *MockDeliveryPublisher) Deliveries() []PublishedDelivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]PublishedDelivery, len(m.Published))
	copy(result, m.Published)
	return result
}

// FakeClock is a settable services.Clock
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock creates a clock stopped at now
func NewFakeClock(now time.Time) *FakeClock {
	return &FakeClock{now: now.UTC()}
}

// Now returns the current fake time
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t.UTC()
}

// Advance moves the clock forward by d
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// MockArchive implements storage.Archive
type MockArchive struct {
	mock.Mock
}

// Save stores a notification and returns its reference
func (m *MockArchive) Save(name string, content io.Reader) (string, error) {
	args := m.Called(name, content)
	return args.String(0), args.Error(1)
}

// Get opens an archived notification
func (m *MockArchive) Get(ref string) (io.ReadCloser, error) {
	args := m.Called(ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

// Delete removes an archived notification
func (m *MockArchive) Delete(ref string) error {
	args := m.Called(ref)
	return args.Error(0)
}
