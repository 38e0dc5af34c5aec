// Package rclone uploads finished downloads to an rclone remote.
package rclone

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/msebastian100/universal-downloader/internal/model"
	"github.com/msebastian100/universal-downloader/internal/ui"
)

var (
	transferredSegmentPattern = regexp.MustCompile(`(?i)\btransferred:\s*(.+)$`)
	transferredPairPattern    = regexp.MustCompile(`^\s*([^,]+?)\s*/\s*([^,]+?)(?:\s*,|$)`)
	percentPattern            = regexp.MustCompile(`(\d{1,3})\s*%`)
	speedPattern              = regexp.MustCompile(`(?:^|,)\s*@?\s*([^,]*?/s)\s*(?:,|$)`)
)

// CheckRcloneAvailable verifies rclone is installed and available in PATH.
func CheckRcloneAvailable(quiet bool) error {
	cmd := exec.Command("rclone", "version")
	output, err := cmd.Output()
	if err != nil {
		return fmt.Errorf("rclone is not installed or not available in PATH: %w\n"+
			"Install rclone from https://rclone.org/downloads/ or set rcloneEnabled to false in config.json", err)
	}

	if !quiet {
		lines := strings.Split(string(output), "\n")
		if len(lines) > 0 {
			ui.PrintSuccess(fmt.Sprintf("Rclone is available: %s", strings.TrimSpace(lines[0])))
		}
	}

	return nil
}

// CheckRclonePathOnline checks if the configured rclone remote is reachable.
func CheckRclonePathOnline(cfg *model.Config) string {
	if !cfg.RcloneEnabled {
		return "Disabled"
	}
	if strings.TrimSpace(cfg.RcloneRemote) == "" {
		return "Offline (remote not configured)"
	}
	target := RemoteBase(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, "rclone", "lsf", target)
	err := cmd.Run()
	if err == nil {
		return "Online"
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "Offline (timeout)"
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 3 {
		return "Online (path missing)"
	}
	return "Offline"
}

// UploadProgressFunc is a callback for upload progress updates.
type UploadProgressFunc func(percent int, speed, uploaded, total string)

// RemoteBase returns "<remote>:<path>" for the configured upload target.
func RemoteBase(cfg *model.Config) string {
	return cfg.RcloneRemote + ":" + strings.Trim(cfg.RclonePath, "/")
}

// RemotePath joins the remote base, an optional subfolder and the local
// file or directory name.
func RemotePath(cfg *model.Config, subfolder, localPath string) string {
	parent := RemoteBase(cfg)
	if subfolder != "" {
		parent = strings.TrimSuffix(parent, "/") + "/" + subfolder
	}
	return strings.TrimSuffix(parent, "/") + "/" + filepath.Base(localPath)
}

// BuildRcloneUploadCommand constructs the rclone copy/copyto command.
func BuildRcloneUploadCommand(ctx context.Context, localPath, subfolder string, cfg *model.Config, transfers int) (*exec.Cmd, string, error) {
	localInfo, err := os.Stat(localPath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to stat local path: %w", err)
	}
	remoteFullPath := RemotePath(cfg, subfolder, localPath)

	verb := "copyto"
	if localInfo.IsDir() {
		verb = "copy"
	}
	args := []string{verb, localPath, remoteFullPath, fmt.Sprintf("--transfers=%d", transfers),
		"--progress", "--stats=1s", "--stats-one-line"}
	return exec.CommandContext(ctx, "rclone", args...), remoteFullPath, nil
}

// ParseRcloneProgressLine parses a line of rclone --progress output.
func ParseRcloneProgressLine(line string) (int, string, string, string, bool) {
	line = strings.TrimSpace(ui.StripAnsiCodes(line))
	if line == "" {
		return 0, "", "", "", false
	}

	segmentMatch := transferredSegmentPattern.FindStringSubmatch(line)
	if len(segmentMatch) < 2 {
		return 0, "", "", "", false
	}

	segment := strings.TrimSpace(segmentMatch[1])
	pairMatch := transferredPairPattern.FindStringSubmatch(segment)
	if len(pairMatch) < 3 {
		return 0, "", "", "", false
	}

	uploaded := strings.Join(strings.Fields(strings.TrimSpace(pairMatch[1])), " ")
	total := strings.Join(strings.Fields(strings.TrimSpace(pairMatch[2])), " ")
	if uploaded == "" || total == "" {
		return 0, "", "", "", false
	}

	percent := -1
	percentMatch := percentPattern.FindStringSubmatch(segment)
	if len(percentMatch) > 1 {
		if parsed, err := strconv.Atoi(strings.TrimSpace(percentMatch[1])); err == nil {
			percent = parsed
		}
	}
	if percent < 0 {
		if computed, ok := ComputeProgressPercent(uploaded, total); ok {
			percent = computed
		}
	}
	if percent < 0 {
		if strings.EqualFold(uploaded, total) {
			percent = 100
		} else {
			percent = 0
		}
	}

	speed := "0 B"
	speedMatch := speedPattern.FindStringSubmatch(segment)
	if len(speedMatch) > 1 {
		speed = strings.TrimSpace(speedMatch[1])
	}
	speed = strings.TrimPrefix(speed, "@")
	speed = strings.TrimPrefix(speed, "@ ")
	speed = strings.TrimSpace(speed)
	if speed == "" {
		speed = "0 B"
	}

	return percent, speed, uploaded, total, true
}

// ComputeProgressPercent computes percent from uploaded/total human-readable strings.
func ComputeProgressPercent(uploaded, total string) (int, bool) {
	upNorm := strings.ReplaceAll(strings.TrimSpace(uploaded), " ", "")
	totalNorm := strings.ReplaceAll(strings.TrimSpace(total), " ", "")
	upBytes, errUp := humanize.ParseBytes(upNorm)
	totalBytes, errTotal := humanize.ParseBytes(totalNorm)
	if errUp != nil || errTotal != nil || totalBytes == 0 {
		return 0, false
	}
	pct := int((float64(upBytes) / float64(totalBytes)) * 100)
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return pct, true
}

// RunRcloneWithProgress runs an rclone command and reports progress. Lines
// that are not stats are kept and appended to the error on failure.
func RunRcloneWithProgress(cmd *exec.Cmd, onProgress UploadProgressFunc) error {
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return err
	}

	var (
		parseMu     sync.Mutex
		diagnostics bytes.Buffer
	)

	consume := func(r io.Reader, wg *sync.WaitGroup) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		scanner.Split(func(data []byte, atEOF bool) (advance int, token []byte, splitErr error) {
			for i, b := range data {
				if b == '\n' || b == '\r' {
					return i + 1, bytes.TrimSpace(data[:i]), nil
				}
			}
			if atEOF && len(data) > 0 {
				return len(data), bytes.TrimSpace(data), nil
			}
			return 0, nil, nil
		})
		for scanner.Scan() {
			line := scanner.Text()
			parseMu.Lock()
			percent, speed, uploaded, total, ok := ParseRcloneProgressLine(line)
			if ok {
				if onProgress != nil {
					onProgress(percent, speed, uploaded, total)
				}
			} else if line != "" {
				diagnostics.WriteString(line)
				diagnostics.WriteString("\n")
			}
			parseMu.Unlock()
		}
		if scanErr := scanner.Err(); scanErr != nil {
			parseMu.Lock()
			diagnostics.WriteString(scanErr.Error())
			diagnostics.WriteString("\n")
			parseMu.Unlock()
		}
	}

	if err := cmd.Start(); err != nil {
		return err
	}
	if onProgress != nil {
		onProgress(0, "0 B", "0", "...")
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go consume(stdoutPipe, &wg)
	go consume(stderrPipe, &wg)

	// Wait for pipe readers to finish first (per Go docs requirement)
	wg.Wait()

	// Then wait for process to exit
	waitErr := cmd.Wait()
	if waitErr != nil && diagnostics.Len() > 0 {
		return fmt.Errorf("%w\n%s", waitErr, strings.TrimSpace(diagnostics.String()))
	}
	return waitErr
}

// BuildRcloneVerifyCommand constructs the rclone check command for upload verification.
func BuildRcloneVerifyCommand(ctx context.Context, localPath, remoteFullPath string) (*exec.Cmd, error) {
	localInfo, err := os.Stat(localPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat local path for verification: %w", err)
	}

	if localInfo.IsDir() {
		return exec.CommandContext(ctx, "rclone", "check", "--one-way", localPath, remoteFullPath), nil
	}

	localDir := filepath.Dir(localPath)
	remoteDir := path.Dir(remoteFullPath)
	fileName := filepath.Base(localPath)
	return exec.CommandContext(ctx, "rclone", "check", "--one-way", "--include", fileName, localDir, remoteDir), nil
}
