//go:build windows

package ipc

import (
	"os"
	"path/filepath"
)

// Windows 10 1803 and later support AF_UNIX sockets on NTFS paths.
func socketPath() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "clipvault", SocketName)
	}
	return filepath.Join(os.TempDir(), SocketName)
}

// restrict is a no-op: the socket inherits the ACL of the per-user cache dir.
func restrict(string) error { return nil }
