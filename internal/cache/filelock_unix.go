//go:build !windows

package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"time"
)

// ErrLocked is returned when another process holds the lock.
var ErrLocked = errors.New("lock held by another process")

// FileLock represents a file-based lock.
type FileLock struct {
	lockFile *os.File
	path     string
}

// AcquireLock acquires an exclusive flock on lockPath.
// Retries up to maxRetries times with 100ms delay between attempts; a
// maxRetries of 0 tries exactly once.
func AcquireLock(lockPath string, maxRetries int) (*FileLock, error) {
	if err := os.MkdirAll(filepath.Dir(lockPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open lock file: %w", err)
		}

		err = syscall.Flock(int(lockFile.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
		if err == nil {
			return &FileLock{lockFile: lockFile, path: lockPath}, nil
		}

		lockFile.Close()
		lastErr = err
		if errors.Is(err, syscall.EWOULDBLOCK) {
			lastErr = fmt.Errorf("%w: %w", ErrLocked, err)
		}

		if i < maxRetries {
			time.Sleep(100 * time.Millisecond)
		}
	}

	return nil, fmt.Errorf("failed to acquire lock after %d retries: %w", maxRetries, lastErr)
}

// WritePID truncates the lock file and records the current process id in it.
func (fl *FileLock) WritePID() error {
	if fl.lockFile == nil {
		return errors.New("lock not held")
	}
	if err := fl.lockFile.Truncate(0); err != nil {
		return err
	}
	_, err := fl.lockFile.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)
	return err
}

// Release releases the file lock.
func (fl *FileLock) Release() error {
	if fl.lockFile == nil {
		return nil
	}

	err := syscall.Flock(int(fl.lockFile.Fd()), syscall.LOCK_UN)
	if err != nil {
		fl.lockFile.Close()
		return fmt.Errorf("failed to release lock: %w", err)
	}

	if err := fl.lockFile.Close(); err != nil {
		return fmt.Errorf("failed to close lock file: %w", err)
	}

	fl.lockFile = nil
	return nil
}
