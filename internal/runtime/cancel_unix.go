//go:build !windows

package runtime

import (
	"fmt"
	"os"
	"syscall"
)

// CancelProcessByPID sends SIGTERM to the process with the given PID.
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

// Terminate asks a child to exit with SIGTERM so ffmpeg can finish writing
// its output container.
func Terminate(proc *os.Process) error {
	if proc == nil {
		return nil
	}
	return proc.Signal(syscall.SIGTERM)
}

// IsProcessAlive checks if a process with the given PID is running.
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || err == syscall.EPERM
}
