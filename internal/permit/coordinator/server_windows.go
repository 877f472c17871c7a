//go:build windows

package coordinator

import (
	"fmt"
	"net"

	"github.com/Microsoft/go-winio"
)

// PipeName is the Windows named pipe path for the permit coordinator.
const PipeName = `\\.\pipe\permitcoord-coordinator`

// SocketPath returns the coordinator's communication endpoint path. On
// Windows this is a named pipe path.
func SocketPath() string { return PipeName }

// Listen creates a Windows named pipe listener for the coordinator.
func Listen() (net.Listener, error) {
	return listenPipe(PipeName)
}

// CleanupSocket is a no-op on Windows (named pipes clean up automatically).
func CleanupSocket() {}

func listenPipe(name string) (net.Listener, error) {
	cfg := &winio.PipeConfig{
		SecurityDescriptor: "D:P(A;;GA;;;AU)",
		MessageMode:        true,
		InputBufferSize:    65536,
		OutputBufferSize:   65536,
	}
	return winio.ListenPipe(name, cfg)
}

// ClientCallbackAddr returns a per-process named pipe path for a Client's
// reverse callback listener.
func ClientCallbackAddr(pid int) string {
	return fmt.Sprintf(`\\.\pipe\permitcoord-client-%d`, pid)
}

// ListenCallback creates the named pipe listener a Client uses for its
// reverse callback channel, plus the address to register with the
// coordinator.
func ListenCallback(pid int) (net.Listener, string, error) {
	addr := ClientCallbackAddr(pid)
	l, err := listenPipe(addr)
	if err != nil {
		return nil, "", err
	}
	return l, addr, nil
}

// CleanupCallbackSocket is a no-op on Windows.
func CleanupCallbackSocket(pid int) {}
