package rclone

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/msebastian100/universal-downloader/internal/helpers"
	"github.com/msebastian100/universal-downloader/internal/model"
	"github.com/msebastian100/universal-downloader/internal/ui"
)

// StorageAdapter is a storage provider backed by the rclone CLI.
// Function fields are injected to keep the adapter unit-testable.
type StorageAdapter struct {
	validatePath   func(path string) error
	calculateLocal func(path string) int64
	removeAll      func(path string) error

	buildUploadCommand func(ctx context.Context, localPath, subfolder string, cfg *model.Config, transfers int) (*exec.Cmd, string, error)
	buildVerifyCommand func(ctx context.Context, localPath, remoteFullPath string) (*exec.Cmd, error)
	runWithProgress    func(cmd *exec.Cmd, onProgress UploadProgressFunc) error
	runCommand         func(cmd *exec.Cmd) error
	commandContext     func(ctx context.Context, name string, args ...string) *exec.Cmd
	exitCode           func(err error) (int, bool)
}

var _ model.StorageProvider = (*StorageAdapter)(nil)

// NewStorageAdapter creates an rclone-backed storage adapter.
func NewStorageAdapter() *StorageAdapter {
	return &StorageAdapter{
		validatePath:       helpers.ValidatePath,
		calculateLocal:     helpers.CalculateLocalSize,
		removeAll:          os.RemoveAll,
		buildUploadCommand: BuildRcloneUploadCommand,
		buildVerifyCommand: BuildRcloneVerifyCommand,
		runWithProgress:    RunRcloneWithProgress,
		runCommand:         func(cmd *exec.Cmd) error { return cmd.Run() },
		commandContext:     exec.CommandContext,
		exitCode:           parseExitCode,
	}
}

func parseExitCode(err error) (int, bool) {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), true
	}
	return 0, false
}

// Upload implements model.StorageProvider. Without an OnProgress hook a
// progress bar is drawn on the terminal.
func (a *StorageAdapter) Upload(ctx context.Context, cfg *model.Config, req model.UploadRequest, hooks model.StorageHooks) error {
	if !cfg.RcloneEnabled {
		return nil
	}
	if err := a.validatePath(req.LocalPath); err != nil {
		return fmt.Errorf("invalid local path: %w", err)
	}
	if req.Subfolder != "" {
		if err := a.validatePath(req.Subfolder); err != nil {
			return fmt.Errorf("invalid subfolder: %w", err)
		}
	}

	transfers := cfg.RcloneTransfers
	if transfers == 0 {
		transfers = 4
	}

	cmd, remoteFullPath, err := a.buildUploadCommand(ctx, req.LocalPath, req.Subfolder, cfg, transfers)
	if err != nil {
		return err
	}

	var progressFn UploadProgressFunc
	if hooks.OnProgress != nil {
		progressFn = func(percent int, speed, uploaded, total string) {
			hooks.OnProgress(model.UploadProgress{
				Percent:  percent,
				Speed:    speed,
				Uploaded: uploaded,
				Total:    total,
			})
		}
	} else {
		ui.PrintUpload(fmt.Sprintf("Uploading %s (%s) to %s%s%s",
			req.LocalPath, ui.DescribeSize(a.calculateLocal(req.LocalPath)),
			ui.ColorBold, remoteFullPath, ui.ColorReset))
		bar := ui.NewPercentBar("upload")
		progressFn = func(percent int, _, _, _ string) {
			_ = bar.Set(percent)
		}
		defer func() { _ = bar.Finish() }()
	}
	if err := a.runWithProgress(cmd, progressFn); err != nil {
		return fmt.Errorf("rclone upload failed: %w", err)
	}
	ui.PrintSuccess("Uploaded to " + remoteFullPath)

	if !cfg.DeleteAfterUpload {
		return nil
	}

	verifyCmd, err := a.buildVerifyCommand(ctx, req.LocalPath, remoteFullPath)
	if err != nil {
		return fmt.Errorf("failed to build upload verification command: %w", err)
	}
	var verifyOut, verifyErr bytes.Buffer
	verifyCmd.Stdout = &verifyOut
	verifyCmd.Stderr = &verifyErr
	if err := a.runCommand(verifyCmd); err != nil {
		return fmt.Errorf("upload verification failed - NOT deleting local files: %w\nOutput: %s\nErrors: %s",
			err, verifyOut.String(), verifyErr.String())
	}

	if hooks.OnDeleteAfterUpload != nil {
		hooks.OnDeleteAfterUpload(req.LocalPath)
	}
	if err := a.removeAll(req.LocalPath); err != nil {
		return fmt.Errorf("failed to delete local files: %w", err)
	}
	ui.PrintInfo("Deleted local copy " + req.LocalPath)
	return nil
}

// PathExists implements model.StorageProvider. remotePath is relative to
// the configured remote base.
func (a *StorageAdapter) PathExists(ctx context.Context, cfg *model.Config, remotePath string) (bool, error) {
	if !cfg.RcloneEnabled {
		return false, nil
	}
	if err := a.validatePath(remotePath); err != nil {
		return false, fmt.Errorf("invalid remote path: %w", err)
	}

	fullPath := RemoteBase(cfg) + "/" + remotePath

	timeoutCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cmd := a.commandContext(timeoutCtx, "rclone", "lsf", fullPath)
	err := a.runCommand(cmd)
	if err == nil {
		return true, nil
	}
	if code, ok := a.exitCode(err); ok {
		if code == 3 {
			return false, nil
		}
		return false, fmt.Errorf("rclone error checking remote path (exit %d): %w", code, err)
	}
	return false, fmt.Errorf("failed to execute rclone: %w", err)
}
