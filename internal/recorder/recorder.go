// Package recorder captures system audio through ffmpeg. It is used to
// record streams that are only available as playback.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strconv"
	"strings"
	"time"

	"github.com/msebastian100/universal-downloader/internal/media"
	"github.com/msebastian100/universal-downloader/internal/ui"
)

// Platform default capture devices, used when nothing better is known.
const (
	DefaultPulseSource = "default"
	DefaultDarwinDev   = "0"
	DefaultDshowDev    = "Stereo Mix"
)

// DetectSource returns the capture source for this machine. On Linux it is
// the monitor of the default PulseAudio/PipeWire sink.
func DetectSource(ctx context.Context) (string, error) {
	return detectSource(ctx, goruntime.GOOS, "pactl")
}

func detectSource(ctx context.Context, goos, pactl string) (string, error) {
	switch goos {
	case "linux":
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		out, err := exec.CommandContext(ctx, pactl, "get-default-sink").Output()
		if err != nil {
			return DefaultPulseSource, fmt.Errorf("pactl get-default-sink: %w", err)
		}
		sink := strings.TrimSpace(string(out))
		if sink == "" {
			return DefaultPulseSource, errors.New("pactl reported no default sink")
		}
		return sink + ".monitor", nil
	case "darwin":
		return DefaultDarwinDev, nil
	case "windows":
		return DefaultDshowDev, nil
	default:
		return "", fmt.Errorf("audio capture is not supported on %s", goos)
	}
}

// InputArgs returns the ffmpeg input arguments for source on goos.
func InputArgs(goos, source string) ([]string, error) {
	switch goos {
	case "linux":
		return []string{"-f", "pulse", "-i", source}, nil
	case "darwin":
		return []string{"-f", "avfoundation", "-i", ":" + strings.TrimPrefix(source, ":")}, nil
	case "windows":
		return []string{"-f", "dshow", "-i", "audio=" + strings.TrimPrefix(source, "audio=")}, nil
	default:
		return nil, fmt.Errorf("audio capture is not supported on %s", goos)
	}
}

// BuildArgs returns the complete ffmpeg arguments for a capture into out.
// A zero duration records until cancelled. The encoder follows the output
// extension.
func BuildArgs(goos, source, out string, duration time.Duration) ([]string, error) {
	input, err := InputArgs(goos, source)
	if err != nil {
		return nil, err
	}
	args := append([]string{"-hide_banner", "-y"}, input...)
	if duration > 0 {
		args = append(args, "-t", strconv.FormatFloat(duration.Seconds(), 'f', 3, 64))
	}
	switch strings.ToLower(filepath.Ext(out)) {
	case ".mp3":
		args = append(args, "-c:a", "libmp3lame", "-q:a", "2")
	case ".m4a", ".aac":
		args = append(args, "-c:a", "aac", "-b:a", "256k")
	case ".flac":
		args = append(args, "-c:a", "flac")
	case ".wav":
		args = append(args, "-c:a", "pcm_s16le")
	default:
		return nil, fmt.Errorf("unsupported recording format %q (use .mp3, .m4a, .flac or .wav)", filepath.Ext(out))
	}
	return append(args, out), nil
}

// Recorder records system audio with ffmpeg.
type Recorder struct {
	FFmpeg string
	// Source overrides the detected capture source.
	Source string
	// GOOS selects the capture backend. Defaults to the running platform.
	GOOS       string
	OnProgress func(float64)
}

// New returns a Recorder for the running platform.
func New(ffmpeg, source string) *Recorder {
	return &Recorder{FFmpeg: ffmpeg, Source: source, GOOS: goruntime.GOOS}
}

func (r *Recorder) source(ctx context.Context) string {
	if r.Source != "" {
		return r.Source
	}
	src, err := DetectSource(ctx)
	if err != nil {
		ui.PrintWarning(fmt.Sprintf("Could not detect audio source, using %q: %v", src, err))
	}
	r.Source = src
	return src
}

// Record captures audio into out for duration. With a zero duration it runs
// until ctx is cancelled, which stops ffmpeg gracefully and keeps the file.
func (r *Recorder) Record(ctx context.Context, out string, duration time.Duration) error {
	if r.FFmpeg == "" {
		return media.ErrFfmpegMissing
	}
	goos := r.GOOS
	if goos == "" {
		goos = goruntime.GOOS
	}
	args, err := BuildArgs(goos, r.source(ctx), out, duration)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return err
	}

	err = media.Run(ctx, r.FFmpeg, args, duration, r.OnProgress)
	if err != nil && duration == 0 && errors.Is(err, context.Canceled) {
		if info, statErr := os.Stat(out); statErr == nil && info.Size() > 0 {
			return nil
		}
	}
	if err != nil {
		return fmt.Errorf("recording failed: %w", err)
	}
	return nil
}
