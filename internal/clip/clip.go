// Package clip provides a unified interface to the system clipboard across
// platforms. Build constraints select the appropriate implementation:
//
//	clip_darwin.go   — macOS via golang.design/x/clipboard + cgo NSPasteboard
//	clip_windows.go  — Windows via golang.design/x/clipboard + GetClipboardSequenceNumber
//	clip_linux.go    — Linux via golang.design/x/clipboard, change counter synthesised by polling
//	clip_other.go    — everything else falls back to Memory
//
// Memory is also the headless backend and the fake used by tests.
package clip

// Content is what a Read observes on the clipboard. Either field may be
// empty; both may be set when the OS exposes a file reference alongside its
// stringified path.
type Content struct {
	// Files lists file references in clipboard order, as absolute paths.
	Files []string
	// Text is the plain-text representation, if any.
	Text string
}

// Empty reports whether neither a file reference nor text is present.
func (c Content) Empty() bool {
	return len(c.Files) == 0 && c.Text == ""
}

// Source is the interface that all platform clipboard implementations satisfy.
type Source interface {
	// Name returns a human-readable name for the backend.
	Name() string

	// ChangeCount returns a counter that never decreases and moves whenever
	// any process mutates the clipboard.
	ChangeCount() int64

	// Read returns the current clipboard contents.
	Read() (Content, error)

	// WriteText replaces the clipboard with text.
	WriteText(text string) error

	// WriteFileReference replaces the clipboard with a reference to path.
	// The file does not need to exist.
	WriteFileReference(path string) error

	// Clear empties the clipboard.
	Clear() error

	// Close releases any resources held by the backend.
	Close()
}
