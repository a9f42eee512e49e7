// Package hub fans engine notifications out to presentation layers.
// It is transport-agnostic: the gRPC Watch stream, the WebSocket endpoint and
// in-process callers each hold a Subscription and drain its channel.
package hub

import (
	"log/slog"
	"sync"
	"time"

	"go.klb.dev/clipvault/internal/logging"
)

// EventType identifies the kind of notification.
type EventType string

const (
	// EventHistoryChanged follows any insert, delete, clear or prune.
	EventHistoryChanged EventType = "history_changed"
	// EventStorageError reports a failed store operation. Never fatal.
	EventStorageError EventType = "storage_error"
	// EventOpenFailure reports that the OS declined to open a file.
	EventOpenFailure EventType = "open_failure"
	// EventHide asks the presentation layer to dismiss itself after a
	// successful paste-back.
	EventHide EventType = "hide"
	// EventRetentionChanged follows a change to the retention setting.
	EventRetentionChanged EventType = "retention_changed"
)

// Event is a single notification. Fields beyond Type and Time are set
// according to the type.
type Event struct {
	Type    EventType `json:"type"`
	Time    time.Time `json:"time"`
	Message string    `json:"message,omitempty"`
	ItemID  string    `json:"item_id,omitempty"`
	Path    string    `json:"path,omitempty"`
	Days    *int      `json:"days,omitempty"`
}

// Subscription receives events until Close is called.
type Subscription struct {
	id   string
	ch   chan Event
	hub  *Hub
	once sync.Once
}

// C returns the event channel. It is closed by Close.
func (s *Subscription) C() <-chan Event { return s.ch }

// ID returns the subscriber's identifier.
func (s *Subscription) ID() string { return s.id }

// Close unregisters the subscription and closes its channel.
func (s *Subscription) Close() {
	s.once.Do(func() { s.hub.unsubscribe(s) })
}

// Hub routes events to all current subscribers.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	logger *slog.Logger
}

// New returns an empty Hub.
func New() *Hub {
	return &Hub{
		subs:   make(map[*Subscription]struct{}),
		logger: logging.Component("hub"),
	}
}

// Subscribe registers a subscriber. buffer bounds how many undelivered
// events are held before new ones are dropped for that subscriber.
func (h *Hub) Subscribe(name string, buffer int) *Subscription {
	if buffer < 1 {
		buffer = 1
	}
	s := &Subscription{
		id:  name,
		ch:  make(chan Event, buffer),
		hub: h,
	}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	total := len(h.subs)
	h.mu.Unlock()

	h.logger.Debug("subscriber registered", "subscriber", name, "total", total)
	return s
}

func (h *Hub) unsubscribe(s *Subscription) {
	h.mu.Lock()
	delete(h.subs, s)
	close(s.ch)
	total := len(h.subs)
	h.mu.Unlock()

	h.logger.Debug("subscriber unregistered", "subscriber", s.id, "total", total)
}

// Publish delivers ev to every subscriber without blocking. A subscriber
// whose buffer is full misses the event.
func (h *Hub) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs {
		select {
		case s.ch <- ev:
		default:
			h.logger.Warn("subscriber channel full, dropping", "subscriber", s.id, "event", ev.Type)
		}
	}
}

// Subscribers returns the number of registered subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
