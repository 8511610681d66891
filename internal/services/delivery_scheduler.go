package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultCadence is how often a delivery cycle runs when none is configured
const DefaultCadence = time.Minute

// Scheduler errors
var (
	ErrSchedulerStopped = errors.New("delivery scheduler is not running")
	ErrCycleInProgress  = errors.New("a delivery cycle is already running")
)

// CycleRunner runs one delivery cycle
type CycleRunner interface {
	RunCycle(ctx context.Context) (CycleReport, error)
}

// DeliverySchedulerConfig holds configuration for the delivery scheduler
type DeliverySchedulerConfig struct {
	// Cadence is the interval between cycles and bounds delivery latency
	Cadence time.Duration
}

// SchedulerStatus is a snapshot of the scheduler state
type SchedulerStatus struct {
	Running         bool         `json:"running"`
	Cadence         string       `json:"cadence"`
	CycleInProgress bool         `json:"cycle_in_progress"`
	CyclesRun       int64        `json:"cycles_run"`
	CyclesSkipped   int64        `json:"cycles_skipped"`
	LastReport      *CycleReport `json:"last_report,omitempty"`
	LastError       string       `json:"last_error,omitempty"`
}

// ticker abstracts time.Ticker so tests can fire ticks by hand
type ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// DeliveryScheduler triggers delivery cycles on a fixed cadence.
// Cycles never overlap: a trigger that arrives while a cycle runs is skipped.
type DeliveryScheduler struct {
	runner    CycleRunner
	config    DeliverySchedulerConfig
	logger    *slog.Logger
	newTicker func(time.Duration) ticker

	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex

	// cycleMu serialises cycles
	cycleMu    sync.Mutex
	inProgress atomic.Bool
	cyclesRun  atomic.Int64
	skipped    atomic.Int64

	lastMu     sync.RWMutex
	lastReport *CycleReport
	lastError  string
}

// NewDeliveryScheduler creates a new delivery scheduler
func NewDeliveryScheduler(runner CycleRunner, config DeliverySchedulerConfig, logger *slog.Logger) *DeliveryScheduler {
	if config.Cadence <= 0 {
		config.Cadence = DefaultCadence
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &DeliveryScheduler{
		runner: runner,
		config: config,
		logger: logger,
		newTicker: func(d time.Duration) ticker {
			return realTicker{t: time.NewTicker(d)}
		},
		stopCh: make(chan struct{}),
	}
}

// Start begins the delivery loop. The first cycle runs immediately.
func (s *DeliveryScheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop(s.stopCh)

	s.logger.Info("delivery scheduler started",
		slog.Duration("cadence", s.config.Cadence))
}

// Stop ends the delivery loop and waits for an in-flight cycle to finish
func (s *DeliveryScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("delivery scheduler stopped")
}

// IsRunning returns whether the scheduler is currently running
func (s *DeliveryScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *DeliveryScheduler) loop(stopCh <-chan struct{}) {
	defer s.wg.Done()

	s.runCycle(context.Background(), "start")

	t := s.newTicker(s.config.Cadence)
	defer t.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-t.C():
			s.runCycle(context.Background(), "tick")
		}
	}
}

// TriggerNow runs a cycle immediately on the caller's goroutine and returns its report.
// It fails with ErrCycleInProgress instead of waiting when a cycle is running.
func (s *DeliveryScheduler) TriggerNow(ctx context.Context) (CycleReport, error) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		s.logger.Warn("trigger called but delivery scheduler is not running")
		return CycleReport{}, ErrSchedulerStopped
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	s.logger.Info("delivery cycle triggered manually")

	// The cycle outlives a cancelled caller so committed messages still get dispatched
	report, ran, err := s.runCycle(context.WithoutCancel(ctx), "manual")
	if !ran {
		return CycleReport{}, ErrCycleInProgress
	}
	return report, err
}

// runCycle runs one cycle unless another one holds the lock
func (s *DeliveryScheduler) runCycle(ctx context.Context, trigger string) (CycleReport, bool, error) {
	if !s.cycleMu.TryLock() {
		s.skipped.Add(1)
		s.logger.Warn("skipping delivery cycle, previous cycle still running",
			slog.String("trigger", trigger))
		return CycleReport{}, false, nil
	}
	defer s.cycleMu.Unlock()

	s.inProgress.Store(true)
	defer s.inProgress.Store(false)

	report, err := s.runner.RunCycle(ctx)
	s.cyclesRun.Add(1)

	s.lastMu.Lock()
	s.lastReport = &report
	s.lastError = ""
	if err != nil {
		s.lastError = err.Error()
	}
	s.lastMu.Unlock()

	if err != nil {
		s.logger.Error("delivery cycle failed",
			slog.String("trigger", trigger),
			slog.Any("error", err))
	}
	return report, true, err
}

// Status returns a snapshot of the scheduler state
func (s *DeliveryScheduler) Status() SchedulerStatus {
	status := SchedulerStatus{
		Running:         s.IsRunning(),
		Cadence:         s.config.Cadence.String(),
		CycleInProgress: s.inProgress.Load(),
		CyclesRun:       s.cyclesRun.Load(),
		CyclesSkipped:   s.skipped.Load(),
	}

	s.lastMu.RLock()
	defer s.lastMu.RUnlock()
	if s.lastReport != nil {
		report := *s.lastReport
		status.LastReport = &report
	}
	status.LastError = s.lastError
	return status
}
