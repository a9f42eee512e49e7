// Package engine is the boundary between clipvault's core and anything that
// presents it: the gRPC service, the HTTP API and the CLI all talk to an
// Engine rather than to the store or the monitor directly.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"go.klb.dev/clipvault/internal/clip"
	"go.klb.dev/clipvault/internal/history"
	"go.klb.dev/clipvault/internal/hub"
	"go.klb.dev/clipvault/internal/logging"
	"go.klb.dev/clipvault/internal/metrics"
	"go.klb.dev/clipvault/internal/monitor"
	"go.klb.dev/clipvault/internal/pasteback"
	"go.klb.dev/clipvault/internal/retention"
	"go.klb.dev/clipvault/internal/settings"
)

// DefaultRecentLimit is the size of the recent-items view.
const DefaultRecentLimit = 10

// Options wires an Engine. Store, Source and Settings are required.
type Options struct {
	Store    history.Store
	Source   clip.Source
	Settings *settings.File

	// Optional collaborators. Nil values get working defaults.
	Opener  pasteback.Opener
	Hub     *hub.Hub
	Metrics *metrics.Metrics

	PollInterval  time.Duration
	StoreTimeout  time.Duration
	RecentLimit   int
	PruneSchedule string // five-field cron; empty disables scheduled pruning
	WatchSettings bool   // reload the settings file on external edits
}

// Status is a point-in-time summary of the engine.
type Status struct {
	Backend     string             `json:"backend"`
	Items       int64              `json:"items"`
	Retention   settings.Retention `json:"retention"`
	NextPrune   *time.Time         `json:"next_prune,omitempty"`
	Monitor     string             `json:"monitor"`
	StartedAt   time.Time          `json:"started_at"`
	Subscribers int                `json:"subscribers"`
}

// Engine owns the monitor loop and exposes the operations presentation
// layers need.
type Engine struct {
	store    history.Store
	source   clip.Source
	settings *settings.File
	hub      *hub.Hub
	metrics  *metrics.Metrics
	monitor  *monitor.Monitor
	pruner   *retention.Pruner
	sched    *retention.Scheduler
	paster   *pasteback.Service
	opts     Options
	logger   *slog.Logger

	recentMu  sync.RWMutex
	recent    []history.Item
	startedAt time.Time
}

// New validates opts and builds a stopped engine.
func New(opts Options) (*Engine, error) {
	switch {
	case opts.Store == nil:
		return nil, errors.New("engine: store is required")
	case opts.Source == nil:
		return nil, errors.New("engine: clipboard source is required")
	case opts.Settings == nil:
		return nil, errors.New("engine: settings are required")
	}
	if opts.Hub == nil {
		opts.Hub = hub.New()
	}
	if opts.RecentLimit <= 0 {
		opts.RecentLimit = DefaultRecentLimit
	}

	e := &Engine{
		store:    opts.Store,
		source:   opts.Source,
		settings: opts.Settings,
		hub:      opts.Hub,
		metrics:  opts.Metrics,
		opts:     opts,
		logger:   logging.Component("engine"),
	}

	e.monitor = monitor.New(opts.Source, opts.Store, monitor.Config{
		Interval:     opts.PollInterval,
		StoreTimeout: opts.StoreTimeout,
	})
	e.monitor.SetListener(e)
	e.monitor.SetMetrics(opts.Metrics)

	e.pruner = retention.NewPruner(opts.Store, opts.Settings)
	sched, err := retention.NewScheduler(opts.PruneSchedule, e.Prune)
	if err != nil {
		return nil, err
	}
	e.sched = sched
	e.paster = pasteback.New(opts.Source, opts.Opener, opts.Metrics)

	opts.Settings.OnChange(e.retentionChanged)
	return e, nil
}

// Monitor exposes the underlying loop. Intended for tests that drive ticks
// by hand instead of calling Run.
func (e *Engine) Monitor() *monitor.Monitor { return e.monitor }

// SetClock replaces the time source used for timestamps and pruning.
func (e *Engine) SetClock(now func() time.Time) {
	e.monitor.SetClock(now)
	e.pruner.SetClock(now)
}

// Start performs the startup work that precedes polling: record the
// clipboard baseline, enforce retention and load the recent view. Run calls
// it; tests call it directly.
func (e *Engine) Start(ctx context.Context) {
	e.recentMu.Lock()
	e.startedAt = time.Now()
	e.recentMu.Unlock()
	e.monitor.Baseline()
	if _, err := e.Prune(ctx); err != nil {
		e.logger.Error("startup prune failed", "err", err)
	}
	e.refreshRecent(ctx)
}

// Run starts the engine and blocks until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	e.Start(ctx)

	if err := e.sched.Start(ctx); err != nil {
		return err
	}
	defer e.sched.Stop()

	if e.opts.WatchSettings {
		go func() {
			if err := e.settings.Watch(ctx); err != nil {
				e.logger.Warn("settings watcher stopped", "err", err)
			}
		}()
	}

	e.logger.Info("engine started",
		"backend", e.source.Name(),
		"retention_days", e.settings.RetentionDays(),
		"recent_limit", e.opts.RecentLimit,
	)
	return e.monitor.Run(ctx)
}

// Subscribe returns a notification channel for one presentation layer.
// The caller must Close it.
func (e *Engine) Subscribe(name string) *hub.Subscription {
	return e.hub.Subscribe(name, 64)
}

// Recent returns a copy of the recent-items view, newest first.
func (e *Engine) Recent() []history.Item {
	e.recentMu.RLock()
	defer e.recentMu.RUnlock()
	return slices.Clone(e.recent)
}

// History returns every stored item, newest first.
func (e *Engine) History(ctx context.Context) ([]history.Item, error) {
	items, err := e.store.All(ctx)
	if err != nil {
		e.storageFailed("all", err)
		return nil, err
	}
	return items, nil
}

// Get returns one item or history.ErrNotFound.
func (e *Engine) Get(ctx context.Context, id string) (history.Item, error) {
	return e.store.Get(ctx, id)
}

// Delete removes one item. Unknown ids are not an error.
func (e *Engine) Delete(ctx context.Context, id string) error {
	err := e.monitor.Exclusive(func() error { return e.store.Delete(ctx, id) })
	if err != nil {
		e.storageFailed("delete", err)
		return err
	}
	e.logger.Info("history item deleted", "id", id)
	e.historyChanged(ctx, id)
	return nil
}

// Clear removes every item.
func (e *Engine) Clear(ctx context.Context) error {
	err := e.monitor.Exclusive(func() error { return e.store.DeleteAll(ctx) })
	if err != nil {
		e.storageFailed("delete_all", err)
		return err
	}
	e.logger.Info("history cleared")
	e.historyChanged(ctx, "")
	return nil
}

// Prune applies the current retention window now and returns the number
// of items removed.
func (e *Engine) Prune(ctx context.Context) (int64, error) {
	var deleted int64
	err := e.monitor.Exclusive(func() error {
		var err error
		deleted, err = e.pruner.Prune(ctx)
		return err
	})
	if err != nil {
		e.storageFailed("delete_before", err)
		return 0, err
	}
	e.metrics.Pruned(deleted)
	if deleted > 0 {
		e.historyChanged(ctx, "")
	}
	return deleted, nil
}

// Paste re-injects the item with id. See pasteback.Service.Paste.
func (e *Engine) Paste(ctx context.Context, id string, open bool) (pasteback.Result, error) {
	item, err := e.store.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, history.ErrNotFound) {
			e.storageFailed("get", err)
		}
		return pasteback.Skipped, err
	}

	res, err := e.paster.Paste(ctx, item, open)
	if err != nil {
		var of *pasteback.OpenFailure
		if errors.As(err, &of) {
			e.hub.Publish(hub.Event{
				Type:    hub.EventOpenFailure,
				ItemID:  id,
				Path:    of.Path,
				Message: of.Error(),
			})
		}
		return res, err
	}
	if res.Hide() {
		e.hub.Publish(hub.Event{Type: hub.EventHide, ItemID: id})
	}
	return res, nil
}

// Retention returns the resolved retention setting.
func (e *Engine) Retention() settings.Retention {
	return e.settings.Retention()
}

// SetRetention persists a new window. Pruning with the new window follows
// through the settings change hook.
func (e *Engine) SetRetention(_ context.Context, days int) error {
	return e.settings.SetRetentionDays(days)
}

// Status summarizes the engine for the status command.
func (e *Engine) Status(ctx context.Context) (Status, error) {
	n, err := e.store.Count(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("count items: %w", err)
	}
	e.recentMu.RLock()
	started := e.startedAt
	e.recentMu.RUnlock()
	return Status{
		Backend:     e.source.Name(),
		Items:       n,
		Retention:   e.settings.Retention(),
		NextPrune:   e.sched.NextRun(),
		Monitor:     e.monitor.String(),
		StartedAt:   started,
		Subscribers: e.hub.Subscribers(),
	}, nil
}

// ItemRecorded implements monitor.Listener.
func (e *Engine) ItemRecorded(item history.Item) {
	e.historyChanged(context.Background(), item.ID)
}

// RecordFailed implements monitor.Listener.
func (e *Engine) RecordFailed(err error) {
	e.hub.Publish(hub.Event{Type: hub.EventStorageError, Message: err.Error()})
}

func (e *Engine) retentionChanged(r settings.Retention) {
	days := r.Days
	e.hub.Publish(hub.Event{Type: hub.EventRetentionChanged, Days: &days})

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if _, err := e.Prune(ctx); err != nil {
		e.logger.Error("prune after retention change failed", "err", err)
	}
}

func (e *Engine) storageFailed(op string, err error) {
	e.metrics.StorageError(op)
	e.logger.Error("history store operation failed", "operation", op, "err", err)
	e.hub.Publish(hub.Event{Type: hub.EventStorageError, Message: err.Error()})
}

func (e *Engine) historyChanged(ctx context.Context, id string) {
	e.refreshRecent(ctx)
	e.hub.Publish(hub.Event{Type: hub.EventHistoryChanged, ItemID: id})
}

// refreshRecent reloads the recent view. The read and the swap happen under
// the monitor's write lock so a reload that started before a delete cannot
// land after it. On failure the previous view is kept.
func (e *Engine) refreshRecent(ctx context.Context) {
	err := e.monitor.Exclusive(func() error {
		items, err := e.store.Recent(ctx, e.opts.RecentLimit)
		if err != nil {
			return err
		}
		e.recentMu.Lock()
		e.recent = items
		e.recentMu.Unlock()
		return nil
	})
	if err != nil {
		e.storageFailed("recent", err)
	}
}
