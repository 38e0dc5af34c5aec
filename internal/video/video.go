// Package video downloads videos and public-broadcaster mediathek pages
// through yt-dlp, with a native HLS path for bare playlists.
package video

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lrstanley/go-ytdlp"
	"github.com/msebastian100/universal-downloader/internal/api"
	"github.com/msebastian100/universal-downloader/internal/helpers"
	"github.com/msebastian100/universal-downloader/internal/ui"
)

// ErrYtdlpMissing is returned when a page URL needs yt-dlp and it is not
// installed.
var ErrYtdlpMissing = errors.New("yt-dlp not found in PATH")

var mediathekHosts = []string{
	"ardmediathek.de", "ard.de", "daserste.de", "tagesschau.de",
	"zdf.de", "3sat.de", "arte.tv", "kika.de", "phoenix.de",
	"br.de", "wdr.de", "ndr.de", "swr.de", "mdr.de", "hr.de", "rbb-online.de", "sr.de",
	"orf.at", "srf.ch",
}

// IsMediathek reports whether rawURL belongs to a public-broadcaster
// mediathek.
func IsMediathek(rawURL string) bool {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, h := range mediathekHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// Options controls one video download.
type Options struct {
	OutDir    string
	AudioOnly bool
	// MaxHeight caps the vertical resolution, 0 means best.
	MaxHeight   int
	CookiesFile string
	// ForceHLS skips yt-dlp for playlist URLs.
	ForceHLS bool
	// Name is the file name for HLS downloads. Defaults to the playlist's
	// directory name.
	Name       string
	OnProgress func(ratio float64)
}

// Downloader runs yt-dlp or the HLS path.
type Downloader struct {
	Client *api.Client
	FFmpeg string
	// LookPath finds the yt-dlp binary. Tests replace it.
	LookPath func(file string) (string, error)
}

// New returns a Downloader.
func New(client *api.Client, ffmpeg string) *Downloader {
	return &Downloader{Client: client, FFmpeg: ffmpeg, LookPath: exec.LookPath}
}

func (d *Downloader) ytdlpInstalled() bool {
	look := d.LookPath
	if look == nil {
		look = exec.LookPath
	}
	_, err := look("yt-dlp")
	return err == nil
}

// FormatSelector returns the yt-dlp format expression for maxHeight.
func FormatSelector(maxHeight int) string {
	if maxHeight <= 0 {
		return "bestvideo+bestaudio/best"
	}
	h := strconv.Itoa(maxHeight)
	return "bestvideo[height<=" + h + "]+bestaudio/best[height<=" + h + "]/best"
}

// OutputTemplate is the yt-dlp output template for outDir.
func OutputTemplate(outDir string) string {
	return filepath.Join(outDir, "%(title)s.%(ext)s")
}

// Download fetches rawURL into opts.OutDir and returns the written file.
// Playlists go through the HLS path when forced or when yt-dlp is missing.
func (d *Downloader) Download(ctx context.Context, rawURL string, opts Options) (string, error) {
	if opts.OutDir == "" {
		opts.OutDir = "."
	}
	if err := helpers.MakeDirs(opts.OutDir); err != nil {
		return "", err
	}

	hls := IsHLS(rawURL)
	if hls && (opts.ForceHLS || !d.ytdlpInstalled()) {
		return d.downloadHLS(ctx, rawURL, d.hlsOutPath(rawURL, opts), opts)
	}
	if !d.ytdlpInstalled() {
		return "", fmt.Errorf("%w: install yt-dlp to download %s", ErrYtdlpMissing, rawURL)
	}
	if IsMediathek(rawURL) {
		ui.PrintInfo("Mediathek page detected")
	}
	return d.downloadYtdlp(ctx, rawURL, opts)
}

func (d *Downloader) hlsOutPath(rawURL string, opts Options) string {
	name := opts.Name
	if name == "" {
		if u, err := url.Parse(rawURL); err == nil {
			name = filepath.Base(filepath.Dir(u.Path))
		}
	}
	if name == "" || name == "." || name == "/" {
		name = "video-" + time.Now().Format("20060102-150405")
	}
	return filepath.Join(opts.OutDir, helpers.Sanitise(name)+".mp4")
}

// command builds the yt-dlp invocation for opts.
func (d *Downloader) command(opts Options, onUpdate func(ytdlp.ProgressUpdate)) *ytdlp.Command {
	dl := ytdlp.New().
		RestrictFilenames().
		Output(OutputTemplate(opts.OutDir))

	if opts.AudioOnly {
		dl = dl.ExtractAudio().AudioFormat("mp3")
	} else {
		dl = dl.Format(FormatSelector(opts.MaxHeight)).MergeOutputFormat("mp4")
	}
	if opts.CookiesFile != "" {
		dl = dl.Cookies(opts.CookiesFile)
	}
	if onUpdate != nil {
		dl = dl.ProgressFunc(500*time.Millisecond, onUpdate)
	}
	return dl
}

func (d *Downloader) downloadYtdlp(ctx context.Context, rawURL string, opts Options) (string, error) {
	var (
		mu       sync.Mutex
		filename string
	)
	dl := d.command(opts, func(update ytdlp.ProgressUpdate) {
		mu.Lock()
		if update.Filename != "" {
			filename = update.Filename
		}
		mu.Unlock()
		if opts.OnProgress != nil && update.TotalBytes > 0 {
			opts.OnProgress(update.Percent() / 100)
		}
	})

	if _, err := dl.Run(ctx, rawURL); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("yt-dlp failed for %s: %w", rawURL, err)
	}
	if opts.OnProgress != nil {
		opts.OnProgress(1)
	}

	mu.Lock()
	defer mu.Unlock()
	if filename != "" && opts.AudioOnly {
		filename = helpers.ReplaceExt(filename, ".mp3")
	}
	return filename, nil
}
