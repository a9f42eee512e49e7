package ipc

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSocketPath_EnvOverride(t *testing.T) {
	t.Setenv("CLIPVAULT_SOCKET", "/tmp/custom.sock")
	if got := SocketPath(); got != "/tmp/custom.sock" {
		t.Errorf("SocketPath() = %q", got)
	}
}

func TestSocketPath_Default(t *testing.T) {
	t.Setenv("CLIPVAULT_SOCKET", "")
	if got := SocketPath(); !strings.HasSuffix(got, SocketName) {
		t.Errorf("SocketPath() = %q, want suffix %q", got, SocketName)
	}
}

func shortSocketPath(t *testing.T) string {
	t.Helper()
	// t.TempDir can exceed the sun_path limit on macOS.
	dir, err := os.MkdirTemp("", "cv")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return filepath.Join(dir, "s.sock")
}

func TestListen_ReplacesStaleSocket(t *testing.T) {
	path := shortSocketPath(t)
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	if IsRunning(path) {
		t.Fatal("IsRunning() true for a plain file")
	}

	ln, err := Listen(path)
	if err != nil {
		t.Fatalf("Listen() failed: %v", err)
	}
	defer ln.Close()

	if !IsRunning(path) {
		t.Error("IsRunning() false while listening")
	}
	if _, err := Listen(path); err == nil {
		t.Error("second Listen() succeeded while the first is live")
	}
}

func TestTarget(t *testing.T) {
	if got := Target("/run/x.sock"); got != "unix:///run/x.sock" {
		t.Errorf("Target() = %q", got)
	}
}
