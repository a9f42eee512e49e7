// Package ipc locates and opens the local Unix socket the daemon serves its
// gRPC API on. CLI sub-commands dial it instead of the TCP listener, so they
// need neither the address nor the token.
package ipc

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"
)

// SocketName is the file name of the socket inside the runtime directory.
const SocketName = "clipvault.sock"

// SocketPath returns the IPC socket path: $CLIPVAULT_SOCKET if set,
// otherwise the platform default.
func SocketPath() string {
	if s := os.Getenv("CLIPVAULT_SOCKET"); s != "" {
		return s
	}
	return socketPath()
}

// Target returns the gRPC dial target for path.
func Target(path string) string {
	return "unix://" + path
}

// IsRunning reports whether a daemon appears to be listening on path. It
// does a cheap dial-and-close; no data is exchanged.
func IsRunning(path string) bool {
	c, err := net.DialTimeout("unix", path, 500*time.Millisecond)
	if err != nil {
		return false
	}
	_ = c.Close()
	return true
}

// Listen creates a listener on path, removing a stale socket left by a
// crashed daemon first. It refuses to replace a socket that still answers.
func Listen(path string) (net.Listener, error) {
	if IsRunning(path) {
		return nil, fmt.Errorf("another daemon is already listening on %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	_ = os.Remove(path)
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	if err := restrict(path); err != nil {
		_ = ln.Close()
		return nil, err
	}
	return ln, nil
}
