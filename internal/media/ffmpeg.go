// Package media wraps ffmpeg for conversion, probing and capture, and writes
// audio tags.
package media

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/msebastian100/universal-downloader/internal/model"
	"github.com/msebastian100/universal-downloader/internal/runtime"
	"golang.org/x/sync/errgroup"
)

var (
	durationRegex   = regexp.MustCompile(`Duration: ([\d:.]+)`)
	activationRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}$`)
)

// stderrTail caps how much ffmpeg diagnostics are kept for error messages.
const stderrTail = 8 << 10

// ErrFfmpegMissing is returned when no ffmpeg binary was resolved.
var ErrFfmpegMissing = errors.New("ffmpeg not found: install ffmpeg or set ffmpegNameStr in config.json")

// ValidateActivationBytes checks for exactly 8 hex characters.
func ValidateActivationBytes(key string) error {
	if !activationRegex.MatchString(key) {
		return fmt.Errorf("%w: %q", model.ErrInvalidActivationBytes, key)
	}
	return nil
}

// BuildAAXArgs returns the ffmpeg arguments that decrypt in to out. The
// codec follows the output extension: stream copy for .m4b/.m4a, LAME VBR q2
// for .mp3.
func BuildAAXArgs(in, out, activationBytes string) ([]string, error) {
	if err := ValidateActivationBytes(activationBytes); err != nil {
		return nil, err
	}
	args := []string{
		"-hide_banner", "-y",
		"-activation_bytes", strings.ToLower(activationBytes),
		"-i", in,
		"-map", "0:a",
	}
	switch strings.ToLower(filepath.Ext(out)) {
	case ".m4b", ".m4a":
		args = append(args, "-c", "copy")
	case ".mp3":
		args = append(args, "-c:a", "libmp3lame", "-q:a", "2")
	default:
		return nil, fmt.Errorf("unsupported output format %q (use .m4b, .m4a or .mp3)", filepath.Ext(out))
	}
	return append(args, out), nil
}

// ConvertAAX decrypts an AAX file with the account's activation bytes.
// onProgress receives 0..1 and may be nil.
func ConvertAAX(ctx context.Context, ffmpeg, in, out, activationBytes string, onProgress func(float64)) error {
	if ffmpeg == "" {
		return ErrFfmpegMissing
	}
	args, err := BuildAAXArgs(in, out, activationBytes)
	if err != nil {
		return err
	}
	total, err := ProbeDuration(ctx, ffmpeg, in)
	if err != nil {
		// Progress degrades to a spinner; conversion still works.
		total = 0
	}
	if err := Run(ctx, ffmpeg, args, total, onProgress); err != nil {
		_ = os.Remove(out)
		return fmt.Errorf("aax conversion failed: %w", err)
	}
	return nil
}

// Run executes ffmpeg with -progress on stdout. When total is known the
// out_time values are turned into a 0..1 ratio for onProgress. Cancelling
// ctx terminates ffmpeg gracefully so containers get finalised.
func Run(ctx context.Context, ffmpeg string, args []string, total time.Duration, onProgress func(float64)) error {
	full := make([]string, 0, len(args)+4)
	full = append(full, "-progress", "pipe:1", "-nostats")
	full = append(full, args...)

	cmd := exec.CommandContext(ctx, ffmpeg, full...)
	cmd.Cancel = func() error { return runtime.Terminate(cmd.Process) }
	cmd.WaitDelay = 10 * time.Second

	pr, pw := io.Pipe()
	diag := newTailBuffer(stderrTail)
	cmd.Stdout = pw
	cmd.Stderr = diag
	if err := cmd.Start(); err != nil {
		pw.Close()
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	var g errgroup.Group
	g.Go(func() error {
		parseProgress(pr, total, onProgress)
		_, _ = io.Copy(io.Discard, pr)
		return nil
	})
	g.Go(func() error {
		err := cmd.Wait()
		pw.Close()
		return err
	})
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("ffmpeg: %w: %s", err, strings.TrimSpace(diag.String()))
	}
	if onProgress != nil {
		onProgress(1)
	}
	return nil
}

// parseProgress reads ffmpeg's key=value progress stream.
func parseProgress(r io.Reader, total time.Duration, onProgress func(float64)) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if onProgress == nil || total <= 0 {
			continue
		}
		if pos, ok := ParseProgressLine(scanner.Text()); ok {
			onProgress(min(1, max(0, float64(pos)/float64(total))))
		}
	}
}

// ParseProgressLine extracts the output position from an out_time_us or
// out_time_ms line. ffmpeg reports both in microseconds.
func ParseProgressLine(line string) (time.Duration, bool) {
	key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
	if !ok || (key != "out_time_us" && key != "out_time_ms") {
		return 0, false
	}
	us, err := strconv.ParseInt(value, 10, 64)
	if err != nil || us < 0 {
		return 0, false
	}
	return time.Duration(us) * time.Microsecond, true
}

// ProbeDuration reads the input duration from ffmpeg's banner. ffmpeg exits
// with status 1 because no output is given; that is expected.
func ProbeDuration(ctx context.Context, ffmpeg, path string) (time.Duration, error) {
	var errBuffer bytes.Buffer
	cmd := exec.CommandContext(ctx, ffmpeg, "-hide_banner", "-i", path)
	cmd.Stderr = &errBuffer
	err := cmd.Run()
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return 0, err
	}
	dur := ExtractDuration(errBuffer.String())
	if dur == "" {
		return 0, fmt.Errorf("no duration in ffmpeg output for %s", path)
	}
	return ParseDuration(dur)
}

// ExtractDuration extracts the HH:MM:SS.ms duration string from ffmpeg output.
func ExtractDuration(errStr string) string {
	if match := durationRegex.FindStringSubmatch(errStr); match != nil {
		return match[1]
	}
	return ""
}

// ParseDuration converts HH:MM:SS(.frac) into a duration, rounded to the
// millisecond.
func ParseDuration(dur string) (time.Duration, error) {
	parts := strings.Split(dur, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid duration %q", dur)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", dur, err)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", dur, err)
	}
	s, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", dur, err)
	}
	ms := math.Round(s * 1000)
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(ms)*time.Millisecond, nil
}

// RemuxHLS copies an HLS stream into an MP4 container.
func RemuxHLS(ctx context.Context, ffmpeg, playlistURL, out string, total time.Duration, onProgress func(float64)) error {
	if ffmpeg == "" {
		return ErrFfmpegMissing
	}
	args := []string{"-hide_banner", "-y", "-i", playlistURL, "-c", "copy", "-bsf:a", "aac_adtstoasc", out}
	if err := Run(ctx, ffmpeg, args, total, onProgress); err != nil {
		_ = os.Remove(out)
		return err
	}
	return nil
}

// TsToMp4 remuxes a concatenated transport stream into MP4.
func TsToMp4(ctx context.Context, ffmpeg, in, out string) error {
	if ffmpeg == "" {
		return ErrFfmpegMissing
	}
	return Run(ctx, ffmpeg, []string{"-hide_banner", "-y", "-i", in, "-c", "copy", out}, 0, nil)
}

// tailBuffer keeps the last n bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	n   int
}

func newTailBuffer(n int) *tailBuffer {
	return &tailBuffer{n: n}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.n; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
