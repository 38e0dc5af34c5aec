package main

import (
	"context"
	"fmt"
	"os"

	"github.com/msebastian100/universal-downloader/internal/api"
	"github.com/msebastian100/universal-downloader/internal/audible"
	"github.com/msebastian100/universal-downloader/internal/browser"
	"github.com/msebastian100/universal-downloader/internal/config"
	"github.com/msebastian100/universal-downloader/internal/deezer"
	"github.com/msebastian100/universal-downloader/internal/media"
	"github.com/msebastian100/universal-downloader/internal/model"
	"github.com/msebastian100/universal-downloader/internal/recorder"
	"github.com/msebastian100/universal-downloader/internal/ui"
	"github.com/msebastian100/universal-downloader/internal/video"
)

// app carries the shared config, HTTP gateway and provider sessions for
// one CLI invocation.
type app struct {
	cfg    *model.Config
	client *api.Client
	store  *config.Store
	debug  bool

	audible *audible.Auth
	deezer  *deezer.Auth
}

func newApp(cfg *model.Config, debug bool) (*app, error) {
	store, err := config.DefaultStore()
	if err != nil {
		return nil, err
	}
	client := api.NewClient(api.DefaultOptions())

	a := &app{
		cfg:     cfg,
		client:  client,
		store:   store,
		debug:   debug,
		audible: audible.NewAuth(store, client, cfg.Marketplace),
		deezer:  deezer.NewAuth(store, client),
	}
	if err := a.audible.Load(); err != nil {
		ui.PrintWarning(fmt.Sprintf("Audible session unreadable: %v", err))
	}
	if err := a.deezer.Load(); err != nil {
		ui.PrintWarning(fmt.Sprintf("Deezer session unreadable: %v", err))
	}
	return a, nil
}

// headless is the browser mode for flows that do not need the user.
// --debug always shows the window.
func (a *app) headless() bool {
	return a.cfg.Headless && !a.debug
}

func (a *app) browserOptions(headless, autoplay bool) browser.Options {
	opts := browser.Options{
		ExecPath:      a.cfg.BrowserPath,
		Headless:      headless,
		UserAgent:     a.client.UserAgent,
		AllowAutoplay: autoplay,
	}
	if a.debug {
		opts.Logf = ui.Debugf
	}
	return opts
}

func (a *app) openAudibleBrowser(ctx context.Context, headless bool) (audible.Browser, error) {
	s, err := browser.Open(ctx, a.browserOptions(headless, false))
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (a *app) openDeezerBrowser(ctx context.Context, headless bool) (deezer.Browser, error) {
	s, err := browser.Open(ctx, a.browserOptions(headless, true))
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (a *app) ffmpeg() (string, error) {
	if a.cfg.FfmpegNameStr == "" {
		return "", media.ErrFfmpegMissing
	}
	return a.cfg.FfmpegNameStr, nil
}

func (a *app) outDir(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	return dir, nil
}

func (a *app) recorder() *recorder.Recorder {
	return recorder.New(a.cfg.FfmpegNameStr, a.cfg.RecordSource)
}

func (a *app) deezerDownloader() *deezer.Downloader {
	return &deezer.Downloader{
		API:         deezer.NewAPI(a.client),
		Auth:        a.deezer,
		OpenBrowser: a.openDeezerBrowser,
		Recorder:    a.recorder(),
		Headless:    a.headless(),
		Margin:      deezer.DefaultMargin,
	}
}

func (a *app) videoDownloader() *video.Downloader {
	return video.New(a.client, a.cfg.FfmpegNameStr)
}
