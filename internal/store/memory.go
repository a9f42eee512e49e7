package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.klb.dev/clipvault/internal/history"
)

// Memory is an in-process history.Store. It backs tests and the --ephemeral
// daemon mode; nothing survives a restart.
type Memory struct {
	mu    sync.RWMutex
	seq   int64
	items []memoryRow

	// FailWith, when set, makes every operation fail with a StorageError
	// wrapping it. Tests use it to simulate a broken medium.
	FailWith error
}

type memoryRow struct {
	seq  int64
	item history.Item
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) fail(op string) error {
	if m.FailWith != nil {
		return history.NewStorageError("memory", op, m.FailWith)
	}
	return nil
}

// Insert appends item.
func (m *Memory) Insert(_ context.Context, item history.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("insert"); err != nil {
		return err
	}
	m.seq++
	m.items = append(m.items, memoryRow{seq: m.seq, item: item})
	return nil
}

// Recent returns at most limit items, newest first.
func (m *Memory) Recent(_ context.Context, limit int) ([]history.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fail("recent"); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []history.Item{}, nil
	}
	return m.sortedLocked(limit), nil
}

// All returns every item, newest first.
func (m *Memory) All(_ context.Context) ([]history.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fail("all"); err != nil {
		return nil, err
	}
	return m.sortedLocked(-1), nil
}

// Get returns the item with id.
func (m *Memory) Get(_ context.Context, id string) (history.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fail("get"); err != nil {
		return history.Item{}, err
	}
	for _, r := range m.items {
		if r.item.ID == id {
			return r.item, nil
		}
	}
	return history.Item{}, history.ErrNotFound
}

// DeleteBefore removes items created strictly before cutoff.
func (m *Memory) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("delete_before"); err != nil {
		return 0, err
	}
	kept := m.items[:0]
	var deleted int64
	for _, r := range m.items {
		if r.item.CreatedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	m.items = kept
	return deleted, nil
}

// DeleteAll empties the store.
func (m *Memory) DeleteAll(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("delete_all"); err != nil {
		return err
	}
	m.items = nil
	return nil
}

// Delete removes the item with id, if present.
func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("delete"); err != nil {
		return err
	}
	for i, r := range m.items {
		if r.item.ID == id {
			m.items = append(m.items[:i], m.items[i+1:]...)
			return nil
		}
	}
	return nil
}

// Count returns the number of items.
func (m *Memory) Count(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fail("count"); err != nil {
		return 0, err
	}
	return int64(len(m.items)), nil
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }

// sortedLocked copies the rows newest first; a negative limit means all.
// Must be called with m.mu held.
func (m *Memory) sortedLocked(limit int) []history.Item {
	rows := make([]memoryRow, len(m.items))
	copy(rows, m.items)
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if !a.item.CreatedAt.Equal(b.item.CreatedAt) {
			return a.item.CreatedAt.After(b.item.CreatedAt)
		}
		return a.seq > b.seq
	})
	if limit >= 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	out := make([]history.Item, len(rows))
	for i, r := range rows {
		out[i] = r.item
	}
	return out
}
