package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/welldanyogia/timecapsule-backend/internal/models"
	"github.com/welldanyogia/timecapsule-backend/internal/repository"
	"golang.org/x/sync/errgroup"
)

// DeliveryStore is the slice of the message store the delivery cycle needs
type DeliveryStore interface {
	FindDue(ctx context.Context, now time.Time) ([]models.Message, error)
	CommitDelivered(ctx context.Context, id uuid.UUID, now time.Time) error
	FindSendRetries(ctx context.Context, now time.Time) ([]models.Message, error)
	ClaimSendRetry(ctx context.Context, id uuid.UUID, attempts int) error
	RecordSendOutcome(ctx context.Context, id uuid.UUID, outcome models.SendOutcome) error
}

// AccountLookup resolves a recipient email to a registered account
type AccountLookup interface {
	FindByEmail(ctx context.Context, email string) (*models.Account, error)
}

// AuditSink appends activity entries
type AuditSink interface {
	Append(ctx context.Context, entry *models.ActivityLog) error
}

// NotificationTransport sends a rendered notification
type NotificationTransport interface {
	Send(ctx context.Context, n *models.Notification) (*models.SendReceipt, error)
}

// DeliveryPublisher is told about every committed delivery. Implementations must not block.
type DeliveryPublisher interface {
	PublishDelivery(msg *models.Message, recipient *models.Account)
}

// Clock supplies the current time
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// SystemClock returns a Clock backed by time.Now
func SystemClock() Clock {
	return systemClock{}
}

// Delivery defaults
const (
	DefaultDispatchTimeout = 30 * time.Second
	DefaultMaxSendAttempts = 3
	DefaultRetryBackoff    = 5 * time.Minute
	DefaultMaxRetryBackoff = 24 * time.Hour
)

// DeliveryConfig holds configuration for the delivery cycle
type DeliveryConfig struct {
	// DispatchTimeout bounds a single transport call
	DispatchTimeout time.Duration
	// Workers is the number of messages processed concurrently; 1 is sequential
	Workers int
	// MaxSendAttempts is the total number of sends tried per message; 1 disables retries
	MaxSendAttempts int
	// RetryBackoff is the wait before the first retry, doubled for each later one
	RetryBackoff time.Duration
	// MaxRetryBackoff caps the doubled wait
	MaxRetryBackoff time.Duration
}

// CycleReport summarises one delivery cycle
type CycleReport struct {
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
	Due              int       `json:"due"`
	Committed        int       `json:"committed"`
	AlreadyDelivered int       `json:"already_delivered"`
	CommitFailed     int       `json:"commit_failed"`
	Sent             int       `json:"sent"`
	SendFailed       int       `json:"send_failed"`
	RetriesDue       int       `json:"retries_due"`
	Resent           int       `json:"resent"`
	RetryFailed      int       `json:"retry_failed"`
	Exhausted        int       `json:"exhausted"`
	AuditFailed      int       `json:"audit_failed"`
	// OutcomeUnrecorded counts sends whose result could not be stored. Those
	// messages stay in send_status 'sending' and are not picked up by later retries.
	OutcomeUnrecorded int `json:"outcome_unrecorded"`
}

// DeliveryService runs delivery cycles: select due messages, then for each one
// resolve the recipient, commit the delivered state, dispatch the notification
// and record the activity. The commit happens before the send, so a crash in
// between loses a notification rather than duplicating it.
type DeliveryService struct {
	store     DeliveryStore
	accounts  AccountLookup
	audit     AuditSink
	transport NotificationTransport
	renderer  NotificationRenderer
	publisher DeliveryPublisher
	clock     Clock
	config    DeliveryConfig
	logger    *slog.Logger
}

// DeliveryDeps groups the collaborators of DeliveryService.
// Publisher and Clock are optional.
type DeliveryDeps struct {
	Store     DeliveryStore
	Accounts  AccountLookup
	Audit     AuditSink
	Transport NotificationTransport
	Renderer  NotificationRenderer
	Publisher DeliveryPublisher
	Clock     Clock
	Logger    *slog.Logger
}

// NewDeliveryService creates a new delivery service
func NewDeliveryService(deps DeliveryDeps, config DeliveryConfig) *DeliveryService {
	if config.DispatchTimeout <= 0 {
		config.DispatchTimeout = DefaultDispatchTimeout
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.MaxSendAttempts <= 0 {
		config.MaxSendAttempts = DefaultMaxSendAttempts
	}
	if config.RetryBackoff <= 0 {
		config.RetryBackoff = DefaultRetryBackoff
	}
	if config.MaxRetryBackoff <= 0 {
		config.MaxRetryBackoff = DefaultMaxRetryBackoff
	}
	if config.MaxRetryBackoff < config.RetryBackoff {
		config.MaxRetryBackoff = config.RetryBackoff
	}
	if deps.Clock == nil {
		deps.Clock = SystemClock()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	return &DeliveryService{
		store:     deps.Store,
		accounts:  deps.Accounts,
		audit:     deps.Audit,
		transport: deps.Transport,
		renderer:  deps.Renderer,
		publisher: deps.Publisher,
		clock:     deps.Clock,
		config:    config,
		logger:    deps.Logger,
	}
}

// Config returns the effective configuration
func (s *DeliveryService) Config() DeliveryConfig {
	return s.config
}

// RunCycle runs one delivery cycle. It returns an error only when a selection
// query fails; per-message failures are logged and counted in the report.
func (s *DeliveryService) RunCycle(ctx context.Context) (CycleReport, error) {
	now := s.clock.Now().UTC()
	report := CycleReport{StartedAt: now}
	t := &tally{report: &report}

	due, err := s.store.FindDue(ctx, now)
	if err != nil {
		s.logger.Error("failed to select due messages", slog.Any("error", err))
		report.FinishedAt = s.clock.Now().UTC()
		return report, fmt.Errorf("failed to select due messages: %w", err)
	}
	report.Due = len(due)

	s.forEach(ctx, due, func(ctx context.Context, msg *models.Message) {
		s.deliver(ctx, msg, t)
	})

	if s.config.MaxSendAttempts > 1 {
		retries, err := s.store.FindSendRetries(ctx, now)
		if err != nil {
			s.logger.Error("failed to select send retries", slog.Any("error", err))
			report.FinishedAt = s.clock.Now().UTC()
			return report, fmt.Errorf("failed to select send retries: %w", err)
		}
		report.RetriesDue = len(retries)

		s.forEach(ctx, retries, func(ctx context.Context, msg *models.Message) {
			s.retry(ctx, msg, t)
		})
	}

	report.FinishedAt = s.clock.Now().UTC()

	level := slog.LevelDebug
	if report.Due > 0 || report.RetriesDue > 0 {
		level = slog.LevelInfo
	}
	s.logger.Log(ctx, level, "delivery cycle finished",
		slog.Int("due", report.Due),
		slog.Int("committed", report.Committed),
		slog.Int("sent", report.Sent),
		slog.Int("send_failed", report.SendFailed),
		slog.Int("skipped", report.AlreadyDelivered+report.CommitFailed),
		slog.Int("retries_due", report.RetriesDue),
		slog.Int("resent", report.Resent),
		slog.Int("exhausted", report.Exhausted),
		slog.Int("outcome_unrecorded", report.OutcomeUnrecorded),
		slog.Duration("duration", report.FinishedAt.Sub(report.StartedAt)))

	return report, nil
}

// forEach runs fn for every message, sequentially or on a bounded errgroup.
// Messages not yet started when ctx is cancelled are left for the next cycle.
func (s *DeliveryService) forEach(ctx context.Context, msgs []models.Message, fn func(context.Context, *models.Message)) {
	if s.config.Workers <= 1 {
		for i := range msgs {
			if ctx.Err() != nil {
				return
			}
			fn(ctx, &msgs[i])
		}
		return
	}

	var g errgroup.Group
	g.SetLimit(s.config.Workers)
	for i := range msgs {
		if ctx.Err() != nil {
			break
		}
		msg := &msgs[i]
		g.Go(func() error {
			fn(ctx, msg)
			return nil
		})
	}
	_ = g.Wait()
}

// deliver processes one due message: Resolve, Commit, Dispatch, Record
func (s *DeliveryService) deliver(ctx context.Context, msg *models.Message, t *tally) {
	log := s.logger.With(
		slog.String("message_id", msg.ID.String()),
		slog.String("recipient", msg.RecipientEmail))

	recipient := s.resolveRecipient(ctx, msg.RecipientEmail, log)

	deliveredAt := s.clock.Now().UTC()
	if err := s.store.CommitDelivered(ctx, msg.ID, deliveredAt); err != nil {
		if errors.Is(err, repository.ErrAlreadyDelivered) {
			log.Debug("message already delivered by another cycle")
			t.add(func(r *CycleReport) { r.AlreadyDelivered++ })
			return
		}
		log.Error("failed to commit delivery, message stays due", slog.Any("error", err))
		t.add(func(r *CycleReport) { r.CommitFailed++ })
		return
	}
	msg.IsDelivered = true
	msg.DeliveredAt = &deliveredAt
	msg.SendStatus = models.SendStatusSending
	msg.SendAttempts = 1
	t.add(func(r *CycleReport) { r.Committed++ })

	receipt, sendErr := s.dispatch(ctx, msg, recipient)
	status := s.recordOutcome(ctx, msg, 1, receipt, sendErr, t, log)
	if sendErr == nil {
		log.Info("notification sent", slog.Int("attempt", 1))
		t.add(func(r *CycleReport) { r.Sent++ })
	} else {
		log.Error("failed to send notification", slog.Int("attempt", 1), slog.Any("error", sendErr))
		t.add(func(r *CycleReport) {
			r.SendFailed++
			if status == models.SendStatusFailed {
				r.Exhausted++
			}
		})
	}

	if !s.record(ctx, msg.SenderID, models.ActionMessageDelivered,
		fmt.Sprintf("Delivered message %s to %s", msg.ID, msg.RecipientEmail), log) {
		t.add(func(r *CycleReport) { r.AuditFailed++ })
	}
	if status == models.SendStatusFailed {
		if !s.record(ctx, msg.SenderID, models.ActionNotificationFailed, failedDetails(msg, 1, sendErr), log) {
			t.add(func(r *CycleReport) { r.AuditFailed++ })
		}
	}

	if s.publisher != nil {
		s.publisher.PublishDelivery(msg, recipient)
	}
}

// retry re-sends the notification of a delivered message whose last send failed
func (s *DeliveryService) retry(ctx context.Context, msg *models.Message, t *tally) {
	attempt := msg.SendAttempts + 1
	log := s.logger.With(
		slog.String("message_id", msg.ID.String()),
		slog.String("recipient", msg.RecipientEmail),
		slog.Int("attempt", attempt))

	if err := s.store.ClaimSendRetry(ctx, msg.ID, msg.SendAttempts); err != nil {
		if errors.Is(err, repository.ErrSendNotClaimable) {
			log.Debug("send retry claimed by another cycle")
			return
		}
		log.Error("failed to claim send retry", slog.Any("error", err))
		return
	}
	msg.SendStatus = models.SendStatusSending
	msg.SendAttempts = attempt
	msg.NextSendAt = nil

	recipient := s.resolveRecipient(ctx, msg.RecipientEmail, log)

	receipt, sendErr := s.dispatch(ctx, msg, recipient)
	status := s.recordOutcome(ctx, msg, attempt, receipt, sendErr, t, log)

	var action, details string
	switch {
	case sendErr == nil:
		log.Info("notification resent")
		t.add(func(r *CycleReport) { r.Resent++ })
		action = models.ActionNotificationResent
		details = fmt.Sprintf("Resent notification for message %s to %s (attempt %d)", msg.ID, msg.RecipientEmail, attempt)
	case status == models.SendStatusFailed:
		log.Error("notification failed permanently", slog.Any("error", sendErr))
		t.add(func(r *CycleReport) { r.Exhausted++ })
		action = models.ActionNotificationFailed
		details = failedDetails(msg, attempt, sendErr)
	default:
		log.Warn("notification retry failed", slog.Any("error", sendErr))
		t.add(func(r *CycleReport) { r.RetryFailed++ })
		return
	}

	if !s.record(ctx, msg.SenderID, action, details, log) {
		t.add(func(r *CycleReport) { r.AuditFailed++ })
	}
}

// resolveRecipient returns the recipient's account, or nil when there is none.
// Lookup failures are treated as "no account".
func (s *DeliveryService) resolveRecipient(ctx context.Context, email string, log *slog.Logger) *models.Account {
	if s.accounts == nil {
		return nil
	}
	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			log.Warn("recipient lookup failed, sending without inbox link", slog.Any("error", err))
		}
		return nil
	}
	return account
}

// dispatch renders and sends the notification under the per-message timeout
func (s *DeliveryService) dispatch(ctx context.Context, msg *models.Message, recipient *models.Account) (*models.SendReceipt, error) {
	notification, err := s.renderer.Render(msg, recipient)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.DispatchTimeout)
	defer cancel()

	return s.transport.Send(ctx, notification)
}

// recordOutcome persists the send result and returns the resulting status
func (s *DeliveryService) recordOutcome(ctx context.Context, msg *models.Message, attempt int, receipt *models.SendReceipt, sendErr error, t *tally, log *slog.Logger) models.SendStatus {
	outcome := models.SendOutcome{Status: models.SendStatusSent}
	switch {
	case sendErr == nil:
		if receipt != nil {
			outcome.NotificationRef = receipt.ArchiveRef
		}
	case attempt < s.config.MaxSendAttempts:
		next := s.clock.Now().UTC().Add(s.backoff(attempt))
		outcome.Status = models.SendStatusRetrying
		outcome.NextSendAt = &next
		outcome.LastError = sendErr.Error()
	default:
		outcome.Status = models.SendStatusFailed
		outcome.LastError = sendErr.Error()
	}

	if err := s.store.RecordSendOutcome(ctx, msg.ID, outcome); err != nil {
		log.Error("failed to record send outcome, message left in sending state",
			slog.String("status", string(outcome.Status)),
			slog.Any("error", err))
		t.add(func(r *CycleReport) { r.OutcomeUnrecorded++ })
	}

	msg.SendStatus = outcome.Status
	msg.NextSendAt = outcome.NextSendAt
	msg.LastSendError = outcome.LastError
	if outcome.NotificationRef != "" {
		msg.NotificationRef = outcome.NotificationRef
	}
	return outcome.Status
}

// backoff returns the wait after the given failed attempt: base * 2^(attempt-1),
// capped at MaxRetryBackoff
func (s *DeliveryService) backoff(attempt int) time.Duration {
	delay := s.config.RetryBackoff
	for i := 1; i < attempt && delay < s.config.MaxRetryBackoff; i++ {
		delay *= 2
	}
	return min(delay, s.config.MaxRetryBackoff)
}

// record appends an activity entry; failures are logged and never retried
func (s *DeliveryService) record(ctx context.Context, userID uuid.UUID, action, details string, log *slog.Logger) bool {
	if s.audit == nil {
		return true
	}
	entry := &models.ActivityLog{
		UserID:  userID,
		Action:  action,
		Details: details,
	}
	if err := s.audit.Append(ctx, entry); err != nil {
		log.Error("failed to record activity",
			slog.String("action", action),
			slog.Any("error", err))
		return false
	}
	return true
}

func failedDetails(msg *models.Message, attempts int, err error) string {
	return fmt.Sprintf("Notification for message %s to %s failed after %d attempt(s): %v", msg.ID, msg.RecipientEmail, attempts, err)
}

// tally guards report counters shared by concurrent workers
type tally struct {
	mu     sync.Mutex
	report *CycleReport
}

func (t *tally) add(fn func(r *CycleReport)) {
	t.mu.Lock()
	fn(t.report)
	t.mu.Unlock()
}
