//go:build windows

package coordinator

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/windows"
)

// spawnCoordinator launches a new coordinator process in its own process
// group, detached from the console of the spawning CLI process.
func spawnCoordinator() error {
	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve own executable path: %w", err)
	}

	child := exec.Command(self, "permit-coordinatord", "run")
	child.Env = append(os.Environ(), "PERMITCOORD_CHILD=1")
	child.Stdin, child.Stdout, child.Stderr = nil, nil, nil
	child.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP | windows.DETACHED_PROCESS,
	}

	if err := child.Start(); err != nil {
		return fmt.Errorf("start coordinator process: %w", err)
	}
	return child.Process.Release()
}

// isProcessAlive reports whether pid still refers to a live process, by
// attempting to open a limited-info handle to it.
func isProcessAlive(pid int) bool {
	handle, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		return false
	}
	windows.CloseHandle(handle)
	return true
}
