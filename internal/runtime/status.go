// Package runtime tracks the running queue on disk so a second udl process
// can show its progress or ask it to stop.
package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/msebastian100/universal-downloader/internal/cache"
	"github.com/msebastian100/universal-downloader/internal/model"
	"github.com/msebastian100/universal-downloader/internal/ui"
)

// Runtime states written to the status file.
const (
	StateRunning   = "running"
	StateDone      = "done"
	StateFailed    = "failed"
	StateCancelled = "cancelled"
	StateStale     = "stale"
)

var (
	statusMu        sync.Mutex
	statusPath      string
	status          model.RuntimeStatus
	statusLastWrite time.Time
	// statusWarnOnce keeps a read-only cache dir from flooding stderr; status
	// writes happen several times per second.
	statusWarnOnce sync.Once
)

// GetRuntimeStatusPath returns the path to the runtime status JSON file.
func GetRuntimeStatusPath() (string, error) {
	cacheDir, err := cache.GetCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cacheDir, "runtime-status.json"), nil
}

// GetRuntimeControlPath returns the path to the runtime control JSON file.
func GetRuntimeControlPath() (string, error) {
	cacheDir, err := cache.GetCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cacheDir, "runtime-control.json"), nil
}

// InitRuntimeStatus starts tracking this process and clears any stale cancel
// request.
func InitRuntimeStatus() {
	path, err := GetRuntimeStatusPath()
	if err != nil {
		return
	}
	now := time.Now().UTC().Format(time.RFC3339)
	statusMu.Lock()
	statusPath = path
	status = model.RuntimeStatus{
		PID:       os.Getpid(),
		State:     StateRunning,
		StartedAt: now,
		UpdatedAt: now,
	}
	statusMu.Unlock()
	WriteRuntimeStatus(true)
	_ = WriteRuntimeControl(model.RuntimeControl{})
}

// UpdateRuntimeProgress records progress of the current item. current and
// total are human-readable ("3 of 7", "41 MB").
func UpdateRuntimeProgress(label string, percentage int, speed, current, total string) {
	statusMu.Lock()
	if statusPath == "" {
		statusMu.Unlock()
		return
	}
	status.Label = label
	status.Percentage = percentage
	status.Speed = speed
	status.Current = current
	status.Total = total
	status.Errors = ui.RunErrorCount()
	status.Warnings = ui.RunWarningCount()
	status.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	statusMu.Unlock()
	WriteRuntimeStatus(false)
}

// FinalizeRuntimeStatus sets the final state and writes it.
func FinalizeRuntimeStatus(state string) {
	statusMu.Lock()
	if statusPath == "" {
		statusMu.Unlock()
		return
	}
	status.State = state
	status.Errors = ui.RunErrorCount()
	status.Warnings = ui.RunWarningCount()
	status.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	statusMu.Unlock()
	WriteRuntimeStatus(true)
}

// WriteRuntimeStatus writes the current status. Unforced writes are throttled
// to one per 250ms.
func WriteRuntimeStatus(force bool) {
	statusMu.Lock()
	if statusPath == "" {
		statusMu.Unlock()
		return
	}
	now := time.Now()
	if !force && now.Sub(statusLastWrite) < 250*time.Millisecond {
		statusMu.Unlock()
		return
	}
	statusLastWrite = now
	path := statusPath
	snap := status
	statusMu.Unlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return
	}
	if err := WriteFileAtomic(path, data, 0644); err != nil {
		statusWarnOnce.Do(func() {
			fmt.Fprintf(os.Stderr, "warning: failed to write runtime status: %v\n", err)
		})
	}
}

// ReadRuntimeStatus reads the status file, marking it stale when the
// recorded process is gone.
func ReadRuntimeStatus() (model.RuntimeStatus, error) {
	path, err := GetRuntimeStatusPath()
	if err != nil {
		return model.RuntimeStatus{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return model.RuntimeStatus{}, err
	}
	var st model.RuntimeStatus
	if err := json.Unmarshal(data, &st); err != nil {
		return model.RuntimeStatus{}, err
	}
	if st.State == StateRunning && st.PID > 0 && st.PID != os.Getpid() && !IsProcessAlive(st.PID) {
		st.State = StateStale
		st.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
		if refreshed, err := json.MarshalIndent(st, "", "  "); err == nil {
			_ = WriteFileAtomic(path, refreshed, 0644)
		}
	}
	return st, nil
}

// PrintRuntimeStatus shows the status of the last or current queue run.
func PrintRuntimeStatus() {
	st, err := ReadRuntimeStatus()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			ui.PrintInfo("No queue has run yet")
			return
		}
		ui.PrintError(fmt.Sprintf("Runtime status unavailable: %v", err))
		return
	}
	ui.PrintHeader("udl runtime status")
	stateColor := ui.ColorGreen
	switch st.State {
	case StateStale, StateCancelled:
		stateColor = ui.ColorYellow
	case StateFailed:
		stateColor = ui.ColorRed
	}
	ui.PrintKeyValue("State", st.State, stateColor)
	ui.PrintKeyValue("PID", strconv.Itoa(st.PID), ui.ColorCyan)
	ui.PrintKeyValue("Started", st.StartedAt, ui.ColorCyan)
	ui.PrintKeyValue("Updated", st.UpdatedAt, ui.ColorCyan)
	if st.Label != "" {
		ui.PrintKeyValue("Item", st.Label, ui.ColorYellow)
		ui.PrintKeyValue("Progress", fmt.Sprintf("%d%% (%s of %s)", st.Percentage, st.Current, st.Total), ui.ColorYellow)
	}
	if st.Speed != "" {
		ui.PrintKeyValue("Rate", st.Speed, ui.ColorYellow)
	}
	ui.PrintKeyValue("Health", fmt.Sprintf("errors=%d warnings=%d", st.Errors, st.Warnings), ui.ColorYellow)
}

// ReadRuntimeControl reads the control file. A missing file is an empty control.
func ReadRuntimeControl() (model.RuntimeControl, error) {
	path, err := GetRuntimeControlPath()
	if err != nil {
		return model.RuntimeControl{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return model.RuntimeControl{}, nil
		}
		return model.RuntimeControl{}, err
	}
	var control model.RuntimeControl
	if err := json.Unmarshal(data, &control); err != nil {
		return model.RuntimeControl{}, err
	}
	return control, nil
}

// WriteRuntimeControl writes the control file.
func WriteRuntimeControl(control model.RuntimeControl) error {
	path, err := GetRuntimeControlPath()
	if err != nil {
		return err
	}
	control.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	data, err := json.MarshalIndent(control, "", "  ")
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, data, 0644)
}

// WriteFileAtomic writes data to a temp file and renames it over path.
func WriteFileAtomic(path string, data []byte, mode os.FileMode) error {
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, mode); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

// RequestRuntimeCancel asks the running queue to stop.
func RequestRuntimeCancel() error {
	control, err := ReadRuntimeControl()
	if err != nil {
		return err
	}
	control.Cancel = true
	return WriteRuntimeControl(control)
}

// WatchCancel polls the control file and calls cancel once a cancel request
// appears. It returns when ctx is done or after cancel was called.
func WatchCancel(ctx context.Context, interval time.Duration, cancel func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			control, err := ReadRuntimeControl()
			if err == nil && control.Cancel {
				cancel()
				return
			}
		}
	}
}
