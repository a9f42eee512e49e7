package clip

import (
	"path/filepath"
	"sync"
)

// Memory is an in-process clipboard. It behaves like the OS pasteboard: every
// mutation, including writes made through Source, advances the counter.
type Memory struct {
	mu      sync.Mutex
	count   int64
	content Content
	// WriteErr, when set, is returned by every write method.
	WriteErr error
}

// NewMemory returns an empty in-memory clipboard.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Name() string { return "memory (headless)" }

func (m *Memory) ChangeCount() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}

func (m *Memory) Read() (Content, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked(), nil
}

func (m *Memory) WriteText(text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return m.WriteErr
	}
	m.count++
	m.content = Content{Text: text}
	return nil
}

// WriteFileReference stores path as a file reference and, like Finder does,
// its path string as the text representation.
func (m *Memory) WriteFileReference(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return m.WriteErr
	}
	m.count++
	m.content = Content{Files: []string{filepath.Clean(path)}, Text: path}
	return nil
}

func (m *Memory) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return m.WriteErr
	}
	m.count++
	m.content = Content{}
	return nil
}

func (m *Memory) Close() {}

// Set simulates another application copying c.
func (m *Memory) Set(c Content) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count++
	m.content = Content{Files: append([]string(nil), c.Files...), Text: c.Text}
}

// SetText simulates another application copying text.
func (m *Memory) SetText(text string) { m.Set(Content{Text: text}) }

// Touch advances the counter without changing content, as the OS does when
// the same selection is copied again.
func (m *Memory) Touch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count++
}

// Snapshot returns the current content without going through Read.
func (m *Memory) Snapshot() Content {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Memory) snapshotLocked() Content {
	return Content{Files: append([]string(nil), m.content.Files...), Text: m.content.Text}
}
