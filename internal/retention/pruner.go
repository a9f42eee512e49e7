package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.klb.dev/clipvault/internal/history"
	"go.klb.dev/clipvault/internal/logging"
)

// DaysSource supplies the current retention window. settings.File satisfies it.
type DaysSource interface {
	RetentionDays() int
}

// Pruner deletes history items older than the configured retention window.
type Pruner struct {
	store    history.Store
	settings DaysSource
	now      func() time.Time
	logger   *slog.Logger
}

// NewPruner creates a pruner that reads the window from settings on every run.
func NewPruner(store history.Store, settings DaysSource) *Pruner {
	return &Pruner{
		store:    store,
		settings: settings,
		now:      time.Now,
		logger:   logging.Component("retention"),
	}
}

// SetClock replaces the time source. Intended for tests.
func (p *Pruner) SetClock(now func() time.Time) { p.now = now }

// Prune removes items created strictly before now minus the retention window
// and returns how many were deleted. A window of zero deletes nothing.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	days := p.settings.RetentionDays()
	cutoff, ok := Cutoff(days, p.now())
	if !ok {
		p.logger.Debug("retention is forever, nothing to prune")
		return 0, nil
	}

	p.logger.Debug("pruning by age", "cutoff_time", cutoff, "retention_days", days)
	deleted, err := p.store.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune by age (retention_days=%d): %w", days, err)
	}

	if deleted > 0 {
		p.logger.Info("pruned history items", "deleted_count", deleted, "retention_days", days)
	}
	return deleted, nil
}
