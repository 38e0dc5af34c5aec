package deezer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/msebastian100/universal-downloader/internal/download"
	"github.com/msebastian100/universal-downloader/internal/helpers"
	"github.com/msebastian100/universal-downloader/internal/media"
	"github.com/msebastian100/universal-downloader/internal/model"
	"github.com/msebastian100/universal-downloader/internal/ui"
)

const (
	// DefaultMargin is recorded past the track's nominal end.
	DefaultMargin = 2 * time.Second
	maxCoverBytes = 10 << 20
)

// Selectors for the web player's consent banner and play buttons.
var (
	consentSelectors = []string{
		"#gdpr-btn-accept-all",
		"button[data-testid='gdpr-btn-accept-all']",
	}
	playSelectors = []string{
		"button[data-testid='play-button']",
		"button[aria-label='Play']",
		"button[aria-label='Abspielen']",
		".states-button-action",
	}
)

// ErrNoPreview is returned for tracks without a preview clip.
var ErrNoPreview = errors.New("track has no preview")

// Recorder captures system audio into a file.
type Recorder interface {
	Record(ctx context.Context, out string, duration time.Duration) error
}

// Downloader fetches previews or captures full tracks.
type Downloader struct {
	API  *API
	Auth *Auth
	// OpenBrowser and Recorder are needed for CaptureTrack only.
	OpenBrowser BrowserOpener
	Recorder    Recorder
	Headless    bool
	Margin      time.Duration
	OnProgress  func(downloaded, total, speed int64)
}

// TrackPath is where a track is stored in outDir.
func TrackPath(track model.Track, outDir string) string {
	return filepath.Join(outDir, helpers.BuildFileName(track.Artist, track.Title, ".mp3"))
}

// TrackTags maps a track to audio tags.
func TrackTags(track model.Track) model.TrackTags {
	t := model.TrackTags{
		Title:       track.Title,
		Artist:      track.Artist,
		Album:       track.Album,
		TrackNumber: track.TrackNumber,
	}
	if len(track.ReleaseDate) >= 4 {
		if _, err := strconv.Atoi(track.ReleaseDate[:4]); err == nil {
			t.Year = track.ReleaseDate[:4]
		}
	}
	return t
}

// DownloadPreview saves the 30 second preview clip of track.
func (d *Downloader) DownloadPreview(ctx context.Context, track model.Track, outDir string) (string, error) {
	if track.PreviewURL == "" {
		return "", fmt.Errorf("%w: %s", ErrNoPreview, track.Title)
	}
	path := TrackPath(track, outDir)
	if exists, err := helpers.FileExists(path); err != nil {
		return "", err
	} else if exists {
		ui.PrintInfo("Already present: " + filepath.Base(path))
		return path, nil
	}
	if _, err := download.File(ctx, d.API.Client, track.PreviewURL, path, download.Options{
		Label:      "deezer.preview",
		OnProgress: d.OnProgress,
	}); err != nil {
		return "", fmt.Errorf("preview of %s: %w", track.Title, err)
	}
	d.tag(ctx, path, track)
	return path, nil
}

// CaptureTrack plays track in the web player with the stored ARL and
// records system audio for its duration plus a margin.
func (d *Downloader) CaptureTrack(ctx context.Context, track model.Track, outDir string) (string, error) {
	if d.Auth == nil || !d.Auth.HasARL() {
		return "", model.ErrNotAuthenticated
	}
	if d.OpenBrowser == nil || d.Recorder == nil {
		return "", errors.New("capture needs a browser and an audio recorder")
	}
	if track.Duration <= 0 {
		return "", fmt.Errorf("unknown duration for %s", track.Title)
	}
	path := TrackPath(track, outDir)
	if exists, err := helpers.FileExists(path); err != nil {
		return "", err
	} else if exists {
		ui.PrintInfo("Already present: " + filepath.Base(path))
		return path, nil
	}

	b, err := d.OpenBrowser(ctx, d.Headless)
	if err != nil {
		return "", err
	}
	defer b.Close()

	if err := b.SetCookies([]model.Cookie{d.Auth.ARLCookie()}); err != nil {
		return "", err
	}
	link := track.Link
	if link == "" {
		link = d.Auth.Base() + "/track/" + strconv.FormatInt(track.ID, 10)
	}
	if _, err := b.Navigate(link); err != nil {
		return "", err
	}
	_, _ = b.ClickFirst(3*time.Second, consentSelectors...)
	if _, err := b.ClickFirst(15*time.Second, playSelectors...); err != nil {
		return "", fmt.Errorf("could not start playback: %w", err)
	}

	margin := d.Margin
	if margin <= 0 {
		margin = DefaultMargin
	}
	duration := time.Duration(track.Duration)*time.Second + margin
	if err := d.Recorder.Record(ctx, path, duration); err != nil {
		return "", err
	}
	d.tag(ctx, path, track)
	return path, nil
}

func (d *Downloader) tag(ctx context.Context, path string, track model.Track) {
	tags := TrackTags(track)
	if track.CoverURL != "" {
		data, mime, err := download.Bytes(ctx, d.API.Client, "deezer.cover", track.CoverURL, maxCoverBytes)
		if err != nil {
			ui.Debugf("cover for %s: %v", track.Title, err)
		} else {
			tags.Cover, tags.CoverMIME = data, mime
		}
	}
	if err := media.WriteTags(path, tags); err != nil {
		ui.PrintWarning(fmt.Sprintf("Tagging %s failed: %v", filepath.Base(path), err))
	}
}

// FetchAll runs the preview or capture operation for every track in order.
// A failed track is reported and skipped; the joined failures are returned
// with the paths that succeeded.
func (d *Downloader) FetchAll(ctx context.Context, tracks []model.Track, outDir string, preview bool) ([]string, error) {
	var (
		paths []string
		errs  []error
	)
	for i, track := range tracks {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		ui.PrintMusic(fmt.Sprintf("[%d/%d] %s - %s", i+1, len(tracks), track.Artist, track.Title))
		var (
			path string
			err  error
		)
		if preview {
			path, err = d.DownloadPreview(ctx, track, outDir)
		} else {
			path, err = d.CaptureTrack(ctx, track, outDir)
		}
		if err != nil {
			ui.PrintError(fmt.Sprintf("%s: %v", track.Title, err))
			errs = append(errs, fmt.Errorf("%s: %w", track.Title, err))
			continue
		}
		paths = append(paths, path)
	}
	return paths, errors.Join(errs...)
}
