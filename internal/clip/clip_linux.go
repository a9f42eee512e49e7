//go:build linux

package clip

import (
	"bytes"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.design/x/clipboard"
)

const linuxPollInterval = 100 * time.Millisecond

// linuxSource has no OS change counter to read, so a poller compares the
// text selection and bumps a local counter whenever it differs.
type linuxSource struct {
	count    atomic.Int64
	done     chan struct{}
	lastText []byte
}

// New returns the Linux clipboard backend, or Memory if the display
// environment is unavailable (e.g. a headless server without X11 or
// Wayland). clipboard.Init is called here rather than in init() so that CLI
// sub-commands don't trigger the warning.
func New() Source {
	if err := clipboard.Init(); err != nil {
		slog.Warn("clipboard unavailable, running headless", "err", err)
		return NewMemory()
	}
	s := &linuxSource{
		done:     make(chan struct{}),
		lastText: clipboard.Read(clipboard.FmtText),
	}
	go s.poll()
	return s
}

func (s *linuxSource) Name() string { return "Linux clipboard (poll)" }

func (s *linuxSource) poll() {
	t := time.NewTicker(linuxPollInterval)
	defer t.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-t.C:
			text := clipboard.Read(clipboard.FmtText)
			if !bytes.Equal(text, s.lastText) {
				s.lastText = text
				s.count.Add(1)
			}
		}
	}
}

func (s *linuxSource) ChangeCount() int64 { return s.count.Load() }

func (s *linuxSource) Read() (Content, error) {
	text := string(clipboard.Read(clipboard.FmtText))
	return Content{Files: parseURIList(text), Text: text}, nil
}

func (s *linuxSource) WriteText(text string) error {
	clipboard.Write(clipboard.FmtText, []byte(text))
	return nil
}

func (s *linuxSource) WriteFileReference(path string) error {
	clipboard.Write(clipboard.FmtText, []byte(fileURI(path)))
	return nil
}

func (s *linuxSource) Clear() error {
	clipboard.Write(clipboard.FmtText, []byte{})
	return nil
}

func (s *linuxSource) Close() { close(s.done) }
