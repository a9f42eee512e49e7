package pasteback

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// SystemOpener opens files with the platform launcher: open(1) on macOS,
// xdg-open on Linux and BSDs, the URL protocol handler on Windows.
type SystemOpener struct{}

// Open checks the path exists and hands it to the launcher.
func (SystemOpener) Open(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	name, args := launcher(path)
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		if msg := strings.TrimSpace(string(out)); msg != "" {
			return fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func launcher(path string) (string, []string) {
	switch runtime.GOOS {
	case "darwin":
		return "open", []string{path}
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", path}
	default:
		return "xdg-open", []string{path}
	}
}
