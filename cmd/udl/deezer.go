package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/msebastian100/universal-downloader/internal/config"
	"github.com/msebastian100/universal-downloader/internal/helpers"
	"github.com/msebastian100/universal-downloader/internal/model"
	"github.com/msebastian100/universal-downloader/internal/ui"
)

func (a *app) runDeezer(ctx context.Context, cmd *model.DeezerCmd) error {
	switch {
	case cmd.Login != nil:
		ui.PrintInfo("Sign in to Deezer in the browser window. The ARL cookie is captured automatically.")
		if err := a.deezer.CaptureARL(ctx, a.openDeezerBrowser, loginTimeout); err != nil {
			return fmt.Errorf("deezer login failed: %w", err)
		}
		return a.deezerStatus(ctx)
	case cmd.SetARL != nil:
		arl := cmd.SetARL.ARL
		if arl == "" {
			var err error
			if arl, err = config.ReadSecret("ARL: "); err != nil {
				return err
			}
		}
		if err := a.deezer.SetARL(arl); err != nil {
			return err
		}
		return a.deezerStatus(ctx)
	case cmd.Status != nil:
		return a.deezerStatus(ctx)
	case cmd.Get != nil:
		return a.deezerGet(ctx, cmd.Get.URLs, cmd.Preview)
	case cmd.Search != nil:
		return a.deezerSearch(ctx, cmd.Search)
	default:
		return errors.New("missing deezer subcommand (see udl deezer --help)")
	}
}

func (a *app) deezerStatus(ctx context.Context) error {
	ui.PrintHeader("Deezer")
	if !a.deezer.HasARL() {
		ui.PrintKeyValue("Session", "Not configured", ui.ColorYellow)
		return nil
	}
	ok, err := a.deezer.Validate(ctx)
	if err != nil {
		ui.PrintWarning(fmt.Sprintf("ARL check failed: %v", err))
	}
	ui.PrintKeyValue("ARL", ui.MaskSecret(a.deezer.Config.ARL), ui.ColorCyan)
	if !ok {
		ui.PrintKeyValue("Session", "Invalid or expired ARL", ui.ColorRed)
		return nil
	}
	ui.PrintKeyValue("Session", "Authenticated", ui.ColorGreen)
	ui.PrintKeyValue("User", fmt.Sprintf("%s (%d)", a.deezer.Config.UserName, a.deezer.Config.UserID), ui.ColorCyan)
	return nil
}

func (a *app) deezerGet(ctx context.Context, targets []string, preview bool) error {
	targets, err := helpers.ProcessUrls(targets)
	if err != nil {
		return err
	}
	var errs []error
	for _, target := range targets {
		paths, err := a.deezerFetch(ctx, target, preview)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			ui.PrintError(fmt.Sprintf("%s: %v", target, err))
			errs = append(errs, err)
		}
		for _, p := range paths {
			ui.PrintSuccess("Saved " + p)
		}
	}
	return errors.Join(errs...)
}

// deezerFetch resolves one URL or id into tracks and fetches them in order.
// The returned paths cover the tracks that succeeded even when some failed.
func (a *app) deezerFetch(ctx context.Context, target string, preview bool) ([]string, error) {
	d := a.deezerDownloader()
	tracks, err := d.API.Resolve(ctx, target)
	if err != nil {
		return nil, err
	}
	if !preview && !a.deezer.HasARL() {
		return nil, fmt.Errorf("%w: run 'udl deezer login' or use --preview", model.ErrNotAuthenticated)
	}
	dir, err := a.outDir(a.cfg.OutPath)
	if err != nil {
		return nil, err
	}
	if preview {
		bar := ui.NewByteBar(0, "preview")
		d.OnProgress = ui.ByteProgress(bar)
		defer func() { _ = bar.Finish() }()
	} else {
		var total time.Duration
		for _, t := range tracks {
			total += time.Duration(t.Duration)*time.Second + d.Margin
		}
		ui.PrintMusic(fmt.Sprintf("Capturing %d tracks, about %s of playback", len(tracks), total.Round(time.Second)))
	}
	return d.FetchAll(ctx, tracks, dir, preview)
}

func (a *app) deezerSearch(ctx context.Context, cmd *model.DeezerSearchCmd) error {
	d := a.deezerDownloader()
	tracks, err := d.API.Search(ctx, cmd.Query, cmd.Limit)
	if err != nil {
		return err
	}
	table := ui.NewTable("ID", "Title", "Artist", "Album", "Length")
	for _, t := range tracks {
		table.AddRow(strconv.FormatInt(t.ID, 10), t.Title, t.Artist, t.Album,
			(time.Duration(t.Duration) * time.Second).String())
	}
	table.Print()
	ui.PrintInfo("Fetch with: udl deezer get track:<ID>")
	return nil
}
