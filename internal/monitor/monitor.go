// Package monitor implements the clipboard polling loop: sample the change
// counter, classify new content, drop a repeat of the newest item and record
// the rest.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.klb.dev/clipvault/internal/clip"
	"go.klb.dev/clipvault/internal/history"
	"go.klb.dev/clipvault/internal/logging"
	"go.klb.dev/clipvault/internal/metrics"
)

const (
	DefaultInterval     = 100 * time.Millisecond
	DefaultStoreTimeout = 2 * time.Second
)

// State is the monitor's position in a tick.
type State int32

const (
	StateIdle State = iota
	StateSampling
	StateClassifying
	StateDeduplicating
	StatePersisting
)

func (s State) String() string {
	switch s {
	case StateSampling:
		return "sampling"
	case StateClassifying:
		return "classifying"
	case StateDeduplicating:
		return "deduplicating"
	case StatePersisting:
		return "persisting"
	default:
		return "idle"
	}
}

// Outcome reports what a single tick did.
type Outcome int

const (
	// Unchanged: the change counter had not moved.
	Unchanged Outcome = iota
	// Duplicate: content matched the newest stored item and was dropped.
	Duplicate
	// Recorded: a new item was inserted.
	Recorded
	// Failed: reading the clipboard or the store failed; see the log.
	Failed
)

func (o Outcome) String() string {
	return [...]string{"unchanged", "duplicate", "recorded", "failed"}[o]
}

// Listener is told about the results of ticks. Calls happen on the
// monitor goroutine after the write lock is released, so they may call
// Exclusive.
type Listener interface {
	ItemRecorded(item history.Item)
	RecordFailed(err error)
}

// Config tunes the loop.
type Config struct {
	// Interval between ticks. Default 100ms.
	Interval time.Duration
	// StoreTimeout bounds the store calls of one tick. Default 2s.
	StoreTimeout time.Duration
}

// Monitor polls a clip.Source and writes distinct changes to a history.Store.
type Monitor struct {
	source   clip.Source
	store    history.Store
	cfg      Config
	metrics  *metrics.Metrics
	listener Listener
	now      func() time.Time
	logger   *slog.Logger

	// mu serializes a tick's dedup+insert with user-initiated writes so a
	// delete can never be undone by an insert based on a stale newest item.
	mu        sync.Mutex
	lastCount int64
	baselined bool

	state atomic.Int32
}

// New returns a stopped monitor.
func New(source clip.Source, store history.Store, cfg Config) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = DefaultStoreTimeout
	}
	return &Monitor{
		source: source,
		store:  store,
		cfg:    cfg,
		now:    time.Now,
		logger: logging.Component("monitor"),
	}
}

// SetListener registers the tick listener. Call before Run.
func (m *Monitor) SetListener(l Listener) { m.listener = l }

// SetMetrics attaches Prometheus collectors. Call before Run.
func (m *Monitor) SetMetrics(mt *metrics.Metrics) { m.metrics = mt }

// SetClock replaces the timestamp source. Intended for tests.
func (m *Monitor) SetClock(now func() time.Time) { m.now = now }

// State returns the current state. Outside a tick it is StateIdle.
func (m *Monitor) State() State { return State(m.state.Load()) }

func (m *Monitor) setState(s State) { m.state.Store(int32(s)) }

// Baseline records the current change counter as already seen, so content
// that was on the clipboard before the monitor started is not recorded.
func (m *Monitor) Baseline() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastCount = m.source.ChangeCount()
	m.baselined = true
}

// Run ticks until ctx is done. It never returns early on errors: failures
// are logged and the next tick proceeds normally.
func (m *Monitor) Run(ctx context.Context) error {
	m.mu.Lock()
	needBaseline := !m.baselined
	m.mu.Unlock()
	if needBaseline {
		m.Baseline()
	}

	m.logger.Info("clipboard monitor started",
		"backend", m.source.Name(),
		"interval", m.cfg.Interval,
	)

	t := time.NewTicker(m.cfg.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("clipboard monitor stopped")
			return nil
		case <-t.C:
			m.Tick(ctx)
		}
	}
}

// Exclusive runs fn while holding the monitor's write lock. User-initiated
// deletes, clears and prunes go through here.
func (m *Monitor) Exclusive(fn func() error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn()
}

// Tick performs one Sampling → Classifying → Deduplicating → Persisting pass.
func (m *Monitor) Tick(ctx context.Context) Outcome {
	item, outcome, storeErr := m.tick(ctx)
	m.setState(StateIdle)

	if m.listener != nil {
		switch {
		case outcome == Recorded:
			m.listener.ItemRecorded(item)
		case storeErr != nil:
			m.listener.RecordFailed(storeErr)
		}
	}
	return outcome
}

// tick returns the store error, if any, as its third value. Clipboard read
// failures are only logged.
func (m *Monitor) tick(ctx context.Context) (history.Item, Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.setState(StateSampling)
	count := m.source.ChangeCount()
	if count == m.lastCount {
		return history.Item{}, Unchanged, nil
	}
	m.metrics.ChangeDetected()

	m.setState(StateClassifying)
	content, err := m.source.Read()
	if err != nil {
		// Leave lastCount alone so the next tick reads again.
		m.logger.Warn("clipboard read failed", "err", err)
		return history.Item{}, Failed, nil
	}
	// The change is consumed from here on, even if storing it fails.
	m.lastCount = count
	kind, text := Classify(content)

	start := time.Now()
	defer func() { m.metrics.ObservePersist(time.Since(start).Seconds()) }()

	sctx, cancel := context.WithTimeout(ctx, m.cfg.StoreTimeout)
	defer cancel()

	m.setState(StateDeduplicating)
	top, err := m.store.Recent(sctx, 1)
	if err != nil {
		m.reportStoreError("recent", err)
		return history.Item{}, Failed, err
	}
	if len(top) > 0 && top[0].Content == text {
		m.metrics.DuplicateSuppressed()
		m.logger.Debug("duplicate of newest item, skipping", "kind", kind)
		return history.Item{}, Duplicate, nil
	}

	m.setState(StatePersisting)
	item := history.NewItem(kind, text, m.now())
	if err := m.store.Insert(sctx, item); err != nil {
		m.reportStoreError("insert", err)
		return history.Item{}, Failed, err
	}

	m.metrics.ItemRecorded(item.RawKind)
	m.logger.Info("clipboard item recorded", "id", item.ID, "kind", kind)
	if m.logger.Enabled(ctx, slog.LevelDebug) {
		m.logger.Debug("clipboard item", "kind", kind, "preview", logging.Preview(text))
	}
	return item, Recorded, nil
}

func (m *Monitor) reportStoreError(op string, err error) {
	m.metrics.StorageError(op)
	if errors.Is(err, context.DeadlineExceeded) {
		m.logger.Warn("history store unresponsive, skipping tick",
			"operation", op, "timeout", m.cfg.StoreTimeout, "err", err)
		return
	}
	m.logger.Error("history store failed, skipping tick", "operation", op, "err", err)
}

// Classify picks the most actionable interpretation of c: the first file
// reference, else non-empty text, else the unsupported sentinel.
func Classify(c clip.Content) (history.Kind, string) {
	if c.Empty() {
		return history.KindUnsupported, history.UnsupportedContent
	}
	if len(c.Files) > 0 {
		return history.KindFilePath, c.Files[0]
	}
	if c.Text != "" {
		return history.KindText, c.Text
	}
	return history.KindUnsupported, history.UnsupportedContent
}

// String describes the monitor for status output.
func (m *Monitor) String() string {
	return fmt.Sprintf("%s every %s", m.source.Name(), m.cfg.Interval)
}
