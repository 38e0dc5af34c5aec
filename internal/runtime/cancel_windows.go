//go:build windows

package runtime

import (
	"fmt"
	"os"
	"syscall"
)

// CancelProcessByPID kills the process with the given PID on Windows.
func CancelProcessByPID(pid int) error {
	if pid <= 0 {
		return fmt.Errorf("invalid pid: %d", pid)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return Terminate(proc)
}

// Terminate kills proc. Windows has no SIGTERM for console children.
func Terminate(proc *os.Process) error {
	if proc == nil {
		return nil
	}
	return proc.Kill()
}

// IsProcessAlive checks if a process with the given PID is running.
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
