package retention

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"go.klb.dev/clipvault/internal/logging"
)

// PruneFunc runs one prune pass. The engine passes a closure that serializes
// the pass against the monitor's writes.
type PruneFunc func(ctx context.Context) (int64, error)

// Scheduler runs pruning on a cron expression. An empty expression leaves it
// idle so pruning happens only at startup and when asked.
type Scheduler struct {
	spec    string
	prune   PruneFunc
	cron    *cron.Cron
	mu      sync.Mutex
	logger  *slog.Logger
	running bool
}

// NewScheduler validates spec (standard five-field cron syntax) and returns a
// stopped scheduler.
func NewScheduler(spec string, prune PruneFunc) (*Scheduler, error) {
	if spec != "" {
		if _, err := cron.ParseStandard(spec); err != nil {
			return nil, fmt.Errorf("invalid cron schedule %q: %w", spec, err)
		}
	}
	return &Scheduler{
		spec:   spec,
		prune:  prune,
		cron:   cron.New(),
		logger: logging.Component("retention.scheduler"),
	}, nil
}

// Start registers the job and starts the cron loop. It stops when ctx ends.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.spec == "" {
		s.logger.Debug("prune schedule not configured, skipping scheduler")
		return nil
	}
	if s.running {
		return nil
	}
	if _, err := s.cron.AddFunc(s.spec, func() { s.run(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule pruning: %w", err)
	}
	s.cron.Start()
	s.running = true
	s.logger.Info("retention scheduler started", "schedule", s.spec)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

func (s *Scheduler) run(ctx context.Context) {
	deleted, err := s.prune(ctx)
	if err != nil {
		s.logger.Error("scheduled pruning failed", "err", err)
		return
	}
	s.logger.Debug("scheduled pruning completed", "deleted_count", deleted)
}

// Stop halts the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		<-s.cron.Stop().Done()
		s.running = false
		s.logger.Info("retention scheduler stopped")
	}
}

// NextRun returns the next scheduled prune, or nil when idle.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
