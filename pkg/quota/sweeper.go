package quota

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSweepSchedule runs the sweep once a minute.
const DefaultSweepSchedule = "@every 1m"

// Sweeper runs Ledger.Sweep on a cron schedule.
type Sweeper struct {
	ledger   *Ledger
	schedule string
	cron     *cron.Cron
	mu       sync.Mutex
	logger   *slog.Logger
	running  bool

	// OnSweep, when set, receives the number of restored pairs after
	// every run.
	OnSweep func(restored int)
}

// NewSweeper creates a sweeper for ledger. An empty schedule selects
// DefaultSweepSchedule.
func NewSweeper(ledger *Ledger, schedule string) *Sweeper {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	return &Sweeper{
		ledger:   ledger,
		schedule: schedule,
		cron:     cron.New(),
		logger:   slog.Default().With("component", "quota.sweeper"),
	}
}

// Start schedules the sweep. Both standard five-field expressions and
// descriptors such as "@every 30s" are accepted. The sweeper stops when
// ctx is done.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.schedule, err)
	}

	if _, err := s.cron.AddFunc(s.schedule, s.RunOnce); err != nil {
		return fmt.Errorf("failed to schedule quota sweep: %w", err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("quota sweeper started", "schedule", s.schedule)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// RunOnce sweeps the ledger immediately.
func (s *Sweeper) RunOnce() {
	restored := s.ledger.Sweep(s.ledger.now())
	if restored > 0 {
		s.logger.Info("quota sweep restored keys", "restored", restored)
	} else {
		s.logger.Debug("quota sweep completed, nothing to restore")
	}
	if s.OnSweep != nil {
		s.OnSweep(restored)
	}
}

// Stop stops the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		<-s.cron.Stop().Done()
		s.running = false
		s.logger.Info("quota sweeper stopped")
	}
}

// IsRunning returns true if the sweeper is running.
func (s *Sweeper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled sweep, or nil when not scheduled.
func (s *Sweeper) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
