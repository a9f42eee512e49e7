//go:build windows && cgo

package clip

// #cgo LDFLAGS: -luser32
//
// #include <windows.h>
//
// static DWORD clipvault_sequence() {
//     return GetClipboardSequenceNumber();
// }
//
// static int clipvault_empty() {
//     if (!OpenClipboard(NULL)) {
//         return 0;
//     }
//     BOOL ok = EmptyClipboard();
//     CloseClipboard();
//     return ok ? 1 : 0;
// }
import "C"

import (
	"errors"
	"log/slog"

	"golang.design/x/clipboard"
)

type windowsSource struct{}

// New returns the Windows clipboard backend. GetClipboardSequenceNumber is
// the system-wide change counter, so nothing needs to poll in the background.
func New() Source {
	if err := clipboard.Init(); err != nil {
		slog.Warn("clipboard unavailable, running headless", "err", err)
		return NewMemory()
	}
	return windowsSource{}
}

func (windowsSource) Name() string { return "Windows Clipboard" }

func (windowsSource) ChangeCount() int64 { return int64(C.clipvault_sequence()) }

func (windowsSource) Read() (Content, error) {
	text := string(clipboard.Read(clipboard.FmtText))
	return Content{Files: parseURIList(text), Text: text}, nil
}

func (windowsSource) WriteText(text string) error {
	clipboard.Write(clipboard.FmtText, []byte(text))
	return nil
}

func (windowsSource) WriteFileReference(path string) error {
	clipboard.Write(clipboard.FmtText, []byte(fileURI(path)))
	return nil
}

func (windowsSource) Clear() error {
	if C.clipvault_empty() == 0 {
		return errors.New("EmptyClipboard failed")
	}
	return nil
}

func (windowsSource) Close() {}
