package dreamcycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	// DefaultSchedule fires the global cycle nightly at 03:00 local time.
	DefaultSchedule = "0 3 * * *"

	// DefaultRunTimeout bounds one scheduled global run.
	DefaultRunTimeout = 30 * time.Minute
)

// Scheduler runs the global dream cycle on a cron schedule.
//
// All public methods are safe for concurrent use. The running state is
// mutex-guarded so Start and Stop can race without double-starting the cron
// goroutine.
type Scheduler struct {
	service  *Service
	logger   *zap.Logger
	schedule string
	timeout  time.Duration

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithSchedule overrides the cron expression. Standard five-field syntax
// plus descriptors such as "@every 1h".
func WithSchedule(spec string) SchedulerOption {
	return func(s *Scheduler) {
		if spec != "" {
			s.schedule = spec
		}
	}
}

// WithRunTimeout bounds how long one scheduled global run may take.
func WithRunTimeout(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewScheduler creates a scheduler for the given cycle service. It does not
// start automatically; call Start.
func NewScheduler(service *Service, logger *zap.Logger, opts ...SchedulerOption) (*Scheduler, error) {
	if service == nil {
		return nil, errors.New("service is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		service:  service,
		logger:   logger.Named("dreamscheduler"),
		schedule: DefaultSchedule,
		timeout:  DefaultRunTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start registers the cron entry and begins scheduling. It returns an error
// if the scheduler is already running or the schedule does not parse.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("scheduler is already running")
	}

	c := cron.New()
	if _, err := c.AddFunc(s.schedule, s.runOnce); err != nil {
		return fmt.Errorf("parsing schedule %q: %w", s.schedule, err)
	}
	c.Start()

	s.cron = c
	s.running = true
	s.logger.Info("dream cycle scheduler started",
		zap.String("schedule", s.schedule))
	return nil
}

// Stop halts scheduling and waits for an in-flight run to finish. Calling
// Stop on a stopped scheduler is a no-op.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		s.logger.Debug("scheduler stop called but not running")
		return nil
	}

	<-s.cron.Stop().Done()
	s.cron = nil
	s.running = false
	s.logger.Info("dream cycle scheduler stopped")
	return nil
}

// runOnce executes one scheduled global cycle. Panic recovery keeps a bad
// run from killing the cron goroutine.
func (s *Scheduler) runOnce() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled dream cycle panicked",
				zap.Any("panic", r),
				zap.Stack("stack"))
		}
	}()

	scheduledRuns.Inc()
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	reports, err := s.service.RunAll(ctx)
	if err != nil {
		s.logger.Error("scheduled dream cycle failed", zap.Error(err))
		return
	}
	s.logger.Info("scheduled dream cycle completed",
		zap.Int("tenants", len(reports)))
}
