package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
)

// ProgressWriter is the output of progress bars. Tests swap it for a buffer.
var ProgressWriter io.Writer = os.Stderr

// NewByteBar returns a byte-counting progress bar. A total <= 0 renders a spinner.
func NewByteBar(total int64, description string) *progressbar.ProgressBar {
	if total <= 0 {
		total = -1
	}
	return progressbar.NewOptions64(total,
		progressbar.OptionSetWriter(ProgressWriter),
		progressbar.OptionEnableColorCodes(ColorReset != ""),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(100_000_000),
		progressbar.OptionSetDescription(description),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(ProgressWriter) }),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[cyan]█[reset]",
			SaucerPadding: "░",
			BarStart:      BoxVertical,
			BarEnd:        BoxVertical,
		}),
	)
}

// NewPercentBar returns a 0-100 bar for processes that report a ratio (ffmpeg, yt-dlp).
func NewPercentBar(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(100,
		progressbar.OptionSetWriter(ProgressWriter),
		progressbar.OptionEnableColorCodes(ColorReset != ""),
		progressbar.OptionSetWidth(30),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(ProgressWriter) }),
	)
}

// ByteProgress adapts a byte bar to the (downloaded, total, speed) callback
// used by download.File.
func ByteProgress(bar *progressbar.ProgressBar) func(downloaded, total, speed int64) {
	return func(downloaded, total, _ int64) {
		if total > 0 && bar.GetMax64() != total {
			bar.ChangeMax64(total)
		}
		_ = bar.Set64(downloaded)
	}
}

// PercentProgress adapts a percent bar to a 0..1 ratio callback.
func PercentProgress(bar *progressbar.ProgressBar) func(ratio float64) {
	return func(ratio float64) {
		pct := int(ratio * MaxPercent)
		pct = max(0, min(pct, MaxPercent))
		_ = bar.Set(pct)
	}
}

// MaxPercent is the upper bound of percent bars.
const MaxPercent = 100

// DescribeSize formats a byte count for summaries.
func DescribeSize(n int64) string {
	if n <= 0 {
		return "unknown size"
	}
	return humanize.Bytes(uint64(n))
}
