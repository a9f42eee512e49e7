// Package settings owns the user-facing preferences that outlive the daemon:
// currently just the history retention window.
//
// Settings live in a small YAML file, separate from the daemon's TOML config,
// because they are written by the program itself whenever the user changes
// them. A missing key is distinct from a stored zero: zero means "keep
// forever", missing means "never configured" and resolves to the default.
package settings

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"go.klb.dev/clipvault/internal/logging"
)

// DefaultRetentionDays applies when no retention has been stored.
const DefaultRetentionDays = 30

// Forever is the retention value that disables pruning.
const Forever = 0

// ErrInvalidRetention is returned for negative retention values.
var ErrInvalidRetention = errors.New("retention days must be zero or positive")

// document is the on-disk shape.
type document struct {
	RetentionDays *int `yaml:"retention_days,omitempty"`
}

// Retention is the resolved retention setting.
type Retention struct {
	Days       int  `json:"days"`       // effective window; 0 = forever
	Configured bool `json:"configured"` // false when the default is in effect
}

// File is a settings file loaded once and rewritten on every change.
type File struct {
	path   string
	logger *slog.Logger

	mu  sync.RWMutex
	doc document

	subMu sync.Mutex
	subs  []func(Retention)
}

// DefaultPath returns $XDG_CONFIG_HOME/clipvault/settings.yaml (or the OS
// equivalent from os.UserConfigDir).
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", "clipvault-settings.yaml")
	}
	return filepath.Join(dir, "clipvault", "settings.yaml")
}

// Load reads the settings file at path. A missing file yields defaults.
func Load(path string) (*File, error) {
	f := &File{
		path:   path,
		logger: logging.Component("settings"),
	}
	if err := f.Reload(); err != nil {
		return nil, err
	}
	return f, nil
}

// Path returns the backing file path.
func (f *File) Path() string { return f.path }

// Reload re-reads the file from disk and notifies subscribers when the
// retention value changed.
func (f *File) Reload() error {
	doc, err := readDocument(f.path)
	if err != nil {
		return err
	}

	f.mu.Lock()
	before := resolve(f.doc)
	f.doc = doc
	after := resolve(f.doc)
	f.mu.Unlock()

	if before != after {
		f.logger.Info("retention setting loaded", "days", after.Days, "configured", after.Configured)
		f.notify(after)
	}
	return nil
}

// Retention returns the current retention setting.
func (f *File) Retention() Retention {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return resolve(f.doc)
}

// RetentionDays returns the effective retention window in days.
func (f *File) RetentionDays() int {
	return f.Retention().Days
}

// SetRetentionDays stores days and writes the file before returning.
func (f *File) SetRetentionDays(days int) error {
	if days < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidRetention, days)
	}

	f.mu.Lock()
	next := f.doc
	next.RetentionDays = &days
	if err := writeDocument(f.path, next); err != nil {
		f.mu.Unlock()
		return err
	}
	changed := resolve(f.doc) != resolve(next)
	f.doc = next
	f.mu.Unlock()

	f.logger.Info("retention setting saved", "days", days, "path", f.path)
	if changed {
		f.notify(Retention{Days: days, Configured: true})
	}
	return nil
}

// OnChange registers fn to run after the retention value changes, whether
// through SetRetentionDays or an external edit picked up by Watch.
func (f *File) OnChange(fn func(Retention)) {
	f.subMu.Lock()
	f.subs = append(f.subs, fn)
	f.subMu.Unlock()
}

func (f *File) notify(r Retention) {
	f.subMu.Lock()
	subs := append([]func(Retention){}, f.subs...)
	f.subMu.Unlock()
	for _, fn := range subs {
		fn(r)
	}
}

func resolve(doc document) Retention {
	if doc.RetentionDays == nil {
		return Retention{Days: DefaultRetentionDays}
	}
	return Retention{Days: *doc.RetentionDays, Configured: true}
}

func readDocument(path string) (document, error) {
	var doc document
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return doc, fmt.Errorf("read settings: %w", err)
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("parse settings %s: %w", path, err)
	}
	if doc.RetentionDays != nil && *doc.RetentionDays < 0 {
		return document{}, fmt.Errorf("settings %s: %w: %d", path, ErrInvalidRetention, *doc.RetentionDays)
	}
	return doc, nil
}

// writeDocument replaces the file atomically so a crash never leaves a
// truncated settings file behind.
func writeDocument(path string, doc document) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".settings-*.yaml")
	if err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write settings: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace settings: %w", err)
	}
	return nil
}
