//go:build !windows

package coordinator

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
)

// SocketPath returns the path to the coordinator's Unix domain socket.
func SocketPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "/tmp/permitcoord-coordinator.sock"
	}
	return filepath.Join(home, ".config", "permitcoord", "coordinator.sock")
}

// Listen creates a Unix domain socket listener for the coordinator.
func Listen() (net.Listener, error) {
	return listenAt(SocketPath())
}

// CleanupSocket removes the coordinator's socket file. Called on shutdown.
func CleanupSocket() {
	os.Remove(SocketPath())
}

// listenAt creates a Unix domain socket listener at path, removing any
// stale socket file left behind by a crashed prior instance.
func listenAt(path string) (net.Listener, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create socket directory: %w", err)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to remove stale socket: %w", err)
	}
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("failed to create socket %q: %w", path, err)
	}
	if err := os.Chmod(path, 0600); err != nil {
		listener.Close()
		return nil, fmt.Errorf("failed to set socket permissions: %w", err)
	}
	return listener, nil
}

// ClientCallbackAddr returns a per-process socket path for a Client's
// reverse callback listener.
func ClientCallbackAddr(pid int) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Sprintf("/tmp/permitcoord-client-%d.sock", pid)
	}
	return filepath.Join(home, ".config", "permitcoord", fmt.Sprintf("client-%d.sock", pid))
}

// ListenCallback creates the Unix domain socket listener a Client uses for
// its reverse callback channel, plus the address to register with the
// coordinator.
func ListenCallback(pid int) (net.Listener, string, error) {
	addr := ClientCallbackAddr(pid)
	l, err := listenAt(addr)
	if err != nil {
		return nil, "", err
	}
	return l, addr, nil
}

// CleanupCallbackSocket removes a Client's callback socket file.
func CleanupCallbackSocket(pid int) {
	os.Remove(ClientCallbackAddr(pid))
}
