// Package scheduler runs periodic housekeeping: tearing down idle workspaces
// and triggering audit retention cleanup.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mrlokans/bookshelf/internal/logging"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidateCronSchedule checks a five-field cron expression.
func ValidateCronSchedule(schedule string) error {
	_, err := parser.Parse(schedule)
	return err
}

// GetNextRunTime calculates when a schedule fires next after from.
func GetNextRunTime(schedule string, from time.Time) (time.Time, error) {
	sched, err := parser.Parse(schedule)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(from), nil
}

// Sweeper tears down idle workspaces.
type Sweeper interface {
	Sweep(idle time.Duration) int
}

// Config holds the housekeeping schedules. An empty schedule disables its job.
type Config struct {
	SweepSchedule   string
	IdleTimeout     time.Duration
	CleanupSchedule string
}

// MaintenanceScheduler runs the workspace sweep and the audit cleanup on cron schedules.
type MaintenanceScheduler struct {
	cfg     Config
	sweeper Sweeper
	cleanup func(ctx context.Context) error
	logger  *zap.Logger

	cron       *cron.Cron
	entries    map[string]cron.EntryID
	mu         sync.RWMutex
	isRunning  bool
	cancelFunc context.CancelFunc
	ctx        context.Context
}

// NewMaintenanceScheduler creates a scheduler. cleanup is typically a function
// that enqueues the audit cleanup task; it may be nil.
func NewMaintenanceScheduler(cfg Config, sweeper Sweeper, cleanup func(ctx context.Context) error, logger *zap.Logger) *MaintenanceScheduler {
	return &MaintenanceScheduler{
		cfg:     cfg,
		sweeper: sweeper,
		cleanup: cleanup,
		logger:  logging.OrNop(logger).Named("scheduler"),
		cron:    cron.New(cron.WithParser(parser)),
		entries: make(map[string]cron.EntryID),
	}
}

// Start registers the jobs and starts the cron loop. It stops on its own when
// ctx is cancelled.
func (s *MaintenanceScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}

	if s.cfg.SweepSchedule != "" && s.sweeper != nil {
		if err := s.addJob("workspace_sweep", s.cfg.SweepSchedule, s.runSweep); err != nil {
			return err
		}
	}
	if s.cfg.CleanupSchedule != "" && s.cleanup != nil {
		if err := s.addJob("audit_cleanup", s.cfg.CleanupSchedule, s.runCleanup); err != nil {
			return err
		}
	}
	if len(s.entries) == 0 {
		s.logger.Info("maintenance scheduler: no jobs configured")
		return nil
	}

	s.ctx, s.cancelFunc = context.WithCancel(ctx)
	s.cron.Start()
	s.isRunning = true

	for name, id := range s.entries {
		s.logger.Info("job scheduled", zap.String("job", name), zap.Time("next_run", s.cron.Entry(id).Next))
	}

	go func(ctx context.Context) {
		<-ctx.Done()
		s.Stop()
	}(s.ctx)

	return nil
}

func (s *MaintenanceScheduler) addJob(name, schedule string, fn func()) error {
	if err := ValidateCronSchedule(schedule); err != nil {
		return fmt.Errorf("invalid cron schedule '%s' for %s: %w", schedule, name, err)
	}
	id, err := s.cron.AddFunc(schedule, fn)
	if err != nil {
		return fmt.Errorf("failed to schedule %s: %w", name, err)
	}
	s.entries[name] = id
	return nil
}

// Stop stops accepting new runs and waits for running jobs to complete.
func (s *MaintenanceScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}

	ctx := s.cron.Stop()
	<-ctx.Done()

	s.isRunning = false
	if s.cancelFunc != nil {
		s.cancelFunc()
		s.cancelFunc = nil
	}

	s.logger.Info("maintenance scheduler stopped")
}

// IsRunning returns whether the scheduler is active.
func (s *MaintenanceScheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// NextRuns returns the next run time of every scheduled job.
func (s *MaintenanceScheduler) NextRuns() map[string]time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]time.Time, len(s.entries))
	if !s.isRunning {
		return out
	}
	for name, id := range s.entries {
		out[name] = s.cron.Entry(id).Next
	}
	return out
}

// RunSweep runs the workspace sweep immediately.
func (s *MaintenanceScheduler) RunSweep() int {
	if s.sweeper == nil {
		return 0
	}
	removed := s.sweeper.Sweep(s.cfg.IdleTimeout)
	s.logger.Debug("workspace sweep finished", zap.Int("removed", removed))
	return removed
}

// RunCleanup triggers the audit cleanup immediately.
func (s *MaintenanceScheduler) RunCleanup(ctx context.Context) error {
	if s.cleanup == nil {
		return nil
	}
	if err := s.cleanup(ctx); err != nil {
		return fmt.Errorf("audit cleanup: %w", err)
	}
	return nil
}

func (s *MaintenanceScheduler) runSweep() {
	s.RunSweep()
}

func (s *MaintenanceScheduler) runCleanup() {
	// s.ctx is only written by Start before the cron loop runs; Stop holds
	// s.mu while waiting for this job, so it must not be locked here.
	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.RunCleanup(ctx); err != nil {
		s.logger.Error("scheduled audit cleanup failed", zap.Error(err))
	}
}
