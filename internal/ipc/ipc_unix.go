//go:build !windows

package ipc

import (
	"os"
	"path/filepath"
)

func socketPath() string {
	// Linux: prefer XDG_RUNTIME_DIR
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, SocketName)
	}
	// macOS / fallback
	return filepath.Join(os.TempDir(), SocketName)
}

// restrict limits the socket to its owner.
func restrict(path string) error {
	return os.Chmod(path, 0o600)
}
