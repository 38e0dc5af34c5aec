package runtime

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/msebastian100/universal-downloader/internal/cache"
)

// ErrAlreadyRunning is returned when another live udl process holds the
// instance lock.
var ErrAlreadyRunning = errors.New("another udl instance is running")

// InstanceLock is held for the lifetime of a queue-running process.
type InstanceLock struct {
	lock *cache.FileLock
	path string
}

// InstanceLockPath returns the lock file location.
func InstanceLockPath() (string, error) {
	cacheDir, err := cache.GetCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cacheDir, "udl.lock"), nil
}

// AcquireInstanceLock takes the single-instance lock and records our PID in
// it. When the lock is held it reports the holder's PID in the error.
func AcquireInstanceLock() (*InstanceLock, error) {
	path, err := InstanceLockPath()
	if err != nil {
		return nil, err
	}
	lock, err := cache.AcquireLock(path, 0)
	if err != nil {
		if errors.Is(err, cache.ErrLocked) {
			if pid := readLockPID(path); pid > 0 && IsProcessAlive(pid) {
				return nil, fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, pid)
			}
			return nil, fmt.Errorf("%w (lock file %s)", ErrAlreadyRunning, path)
		}
		return nil, err
	}
	if err := lock.WritePID(); err != nil {
		_ = lock.Release()
		return nil, fmt.Errorf("failed to record pid in %s: %w", path, err)
	}
	return &InstanceLock{lock: lock, path: path}, nil
}

// Release drops the lock.
func (l *InstanceLock) Release() error {
	if l == nil || l.lock == nil {
		return nil
	}
	return l.lock.Release()
}

func readLockPID(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}
