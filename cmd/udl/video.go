package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/msebastian100/universal-downloader/internal/helpers"
	"github.com/msebastian100/universal-downloader/internal/model"
	"github.com/msebastian100/universal-downloader/internal/ui"
	"github.com/msebastian100/universal-downloader/internal/video"
)

func (a *app) runVideo(ctx context.Context, cmd *model.VideoCmd) error {
	urls, err := helpers.ProcessUrls(cmd.URLs)
	if err != nil {
		return err
	}
	var errs []error
	for _, u := range urls {
		out, err := a.videoDownload(ctx, u, cmd.HLS)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			ui.PrintError(fmt.Sprintf("%s: %v", u, err))
			errs = append(errs, err)
			continue
		}
		ui.PrintSuccess("Saved " + out)
	}
	return errors.Join(errs...)
}

func (a *app) videoDownload(ctx context.Context, rawURL string, forceHLS bool) (string, error) {
	bar := ui.NewPercentBar(fmt.Sprintf("%s video", ui.SymbolVideo))
	defer func() { _ = bar.Finish() }()
	return a.videoDownloader().Download(ctx, rawURL, video.Options{
		OutDir:      a.cfg.VideoOutPath,
		AudioOnly:   a.cfg.VideoAudioOnly,
		MaxHeight:   a.cfg.VideoMaxHeight,
		CookiesFile: a.cfg.YtdlpCookiesFile,
		ForceHLS:    forceHLS,
		OnProgress:  ui.PercentProgress(bar),
	})
}

func (a *app) runRecord(ctx context.Context, cmd *model.RecordCmd) error {
	var duration time.Duration
	if cmd.Duration != "" {
		d, err := time.ParseDuration(cmd.Duration)
		if err != nil || d < 0 {
			return fmt.Errorf("invalid duration %q (use e.g. 3m30s)", cmd.Duration)
		}
		duration = d
	}
	rec := a.recorder()
	if rec.FFmpeg == "" {
		_, err := a.ffmpeg()
		return err
	}

	if duration > 0 {
		ui.PrintMusic(fmt.Sprintf("%s Recording %s into %s", ui.SymbolRecord, duration, cmd.Output))
		bar := ui.NewPercentBar("record")
		rec.OnProgress = ui.PercentProgress(bar)
		defer func() { _ = bar.Finish() }()
	} else {
		ui.PrintMusic(fmt.Sprintf("%s Recording into %s, press Ctrl+C to stop", ui.SymbolRecord, cmd.Output))
	}
	if err := rec.Record(ctx, cmd.Output, duration); err != nil {
		return err
	}
	ui.PrintSuccess("Saved " + cmd.Output)
	return nil
}
