package coordinator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rescale-labs/permitcoord/internal/permit"
)

// PIDFilePath returns where the running coordinator records its PID.
func PIDFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "/tmp/permitcoord-coordinator.pid"
	}
	return filepath.Join(home, ".config", "permitcoord", "coordinator.pid")
}

// WritePIDFile records the current process as the running coordinator.
func WritePIDFile() error {
	path := PIDFilePath()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create pid directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0600); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	return nil
}

// RemovePIDFile clears the coordinator's PID file.
func RemovePIDFile() {
	os.Remove(PIDFilePath())
}

// ReadPIDFile returns the recorded coordinator PID, or 0 if none is on
// record or the file is unreadable.
func ReadPIDFile() int {
	data, err := os.ReadFile(PIDFilePath())
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(string(data))
	if err != nil {
		return 0
	}
	return pid
}

const (
	defaultProbeTimeout = 500 * time.Millisecond
	defaultSpawnWait    = 3 * time.Second
)

// EnsureOptions bounds how aggressively EnsureCoordinator probes for a
// running coordinator and how long it tolerates one starting up.
type EnsureOptions struct {
	// ProbeTimeout caps a single reachability ping.
	ProbeTimeout time.Duration
	// SpawnWait caps how long to poll for a newly spawned (or
	// already-running-but-not-yet-listening) coordinator's socket.
	SpawnWait time.Duration
}

// EnsureOptionsForConfig derives Ensure timeouts from the limiter config a
// caller is about to run with: the probe is kept well under one lease
// heartbeat period so a slow or absent coordinator doesn't eat into the
// client's own refresh budget before it has even registered.
func EnsureOptionsForConfig(cfg permit.Config) EnsureOptions {
	probe := cfg.ClientLeaseRefreshInterval / 4
	if probe <= 0 || probe > defaultProbeTimeout {
		probe = defaultProbeTimeout
	}
	return EnsureOptions{ProbeTimeout: probe, SpawnWait: defaultSpawnWait}
}

func (o EnsureOptions) withDefaults() EnsureOptions {
	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = defaultProbeTimeout
	}
	if o.SpawnWait <= 0 {
		o.SpawnWait = defaultSpawnWait
	}
	return o
}

// EnsureCoordinator returns a Client connected to a reachable coordinator,
// spawning one as a detached background process if none answers. Equivalent
// to EnsureCoordinatorWithOptions using the package defaults.
func EnsureCoordinator() (*Client, error) {
	return EnsureCoordinatorWithOptions(EnsureOptions{})
}

// EnsureCoordinatorWithOptions is EnsureCoordinator with caller-supplied
// probe/spawn timeouts; zero fields fall back to the package defaults.
func EnsureCoordinatorWithOptions(opts EnsureOptions) (*Client, error) {
	opts = opts.withDefaults()
	client := NewClient()

	if reachable(client, opts.ProbeTimeout) {
		return client, nil
	}

	// A PID file without a listening socket means a coordinator is
	// mid-startup (or recently crashed); give it a chance before spawning
	// a second one.
	if pid := ReadPIDFile(); pid > 0 && isProcessAlive(pid) {
		if socketReady(opts.SpawnWait) && reachable(client, opts.ProbeTimeout) {
			return client, nil
		}
	}

	if err := spawnCoordinator(); err != nil {
		return nil, fmt.Errorf("spawn coordinator: %w", err)
	}
	if !socketReady(opts.SpawnWait) {
		return nil, fmt.Errorf("coordinator did not start listening within %s", opts.SpawnWait)
	}
	if !reachable(client, opts.ProbeTimeout) {
		return nil, fmt.Errorf("coordinator socket appeared but is not responding")
	}
	return client, nil
}

// reachable pings client within timeout and reports success.
func reachable(client *Client, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return client.Ping(ctx) == nil
}

// socketReady polls for the coordinator's socket file to appear, up to
// timeout.
func socketReady(timeout time.Duration) bool {
	const pollInterval = 100 * time.Millisecond
	deadline := time.Now().Add(timeout)
	for {
		if _, err := os.Stat(SocketPath()); err == nil {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(pollInterval)
	}
}

// spawnCoordinator and isProcessAlive are platform-specific: see
// lifecycle_unix.go and lifecycle_windows.go.
