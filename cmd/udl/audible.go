package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/msebastian100/universal-downloader/internal/audible"
	"github.com/msebastian100/universal-downloader/internal/helpers"
	"github.com/msebastian100/universal-downloader/internal/model"
	"github.com/msebastian100/universal-downloader/internal/ui"
)

const loginTimeout = 5 * time.Minute

func (a *app) runAudible(ctx context.Context, cmd *model.AudibleCmd) error {
	switch {
	case cmd.Login != nil:
		ui.PrintInfo("Sign in to Audible in the browser window. It closes once the session cookies arrive.")
		if err := a.audible.Login(ctx, a.openAudibleBrowser, cmd.Login.Email, loginTimeout); err != nil {
			return fmt.Errorf("audible login failed: %w", err)
		}
		ui.PrintSuccess(fmt.Sprintf("Signed in, %d cookies stored", len(a.audible.Config.Cookies)))
		return nil
	case cmd.Import != nil:
		n, err := a.audible.ImportCookies(cmd.Import.Source)
		if err != nil {
			return fmt.Errorf("cookie import failed: %w", err)
		}
		ui.PrintSuccess(fmt.Sprintf("Imported %d cookies", n))
		return a.audibleStatus(ctx)
	case cmd.Status != nil:
		return a.audibleStatus(ctx)
	case cmd.Logout != nil:
		if err := a.audible.Logout(); err != nil {
			return err
		}
		ui.PrintSuccess("Audible session removed (activation bytes kept)")
		return nil
	case cmd.Library != nil:
		return a.audibleLibrary(ctx, cmd.Library)
	case cmd.Activation != nil:
		return a.audibleActivation(ctx, cmd.Activation)
	case cmd.Download != nil:
		return a.audibleDownloadAll(ctx, cmd.Download)
	case cmd.Convert != nil:
		return a.audibleConvert(ctx, cmd.Convert)
	default:
		return errors.New("missing audible subcommand (see udl audible --help)")
	}
}

func (a *app) audibleStatus(ctx context.Context) error {
	ui.PrintHeader("Audible")
	ok, err := a.audible.VerifySession(ctx)
	if err != nil && !errors.Is(err, model.ErrNotAuthenticated) {
		ui.PrintWarning(fmt.Sprintf("Session check failed: %v", err))
	}
	sessionColor := ui.ColorGreen
	if !ok {
		sessionColor = ui.ColorYellow
	}
	ui.PrintKeyValue("Marketplace", a.audible.Base(), ui.ColorCyan)
	if a.audible.Config.Email != "" {
		ui.PrintKeyValue("Account", a.audible.Config.Email, ui.ColorCyan)
	}
	ui.PrintKeyValue("Session", ui.DescribeSession(ok, len(a.audible.Config.Cookies)), sessionColor)
	key := "not set"
	if a.audible.Config.ActivationBytes != "" {
		key = ui.MaskSecret(a.audible.Config.ActivationBytes)
	}
	ui.PrintKeyValue("Activation bytes", key, ui.ColorYellow)
	return nil
}

func (a *app) audibleLibrary(ctx context.Context, cmd *model.AudibleLibraryCmd) error {
	books, err := a.audible.Library(ctx, cmd.Refresh)
	if err != nil {
		return fmt.Errorf("failed to load library: %w", err)
	}
	if cmd.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(books)
	}
	table := ui.NewTable("ASIN", "Title", "Author", "Narrator", "Runtime")
	for _, b := range books {
		table.AddRow(b.ASIN, b.Title, b.Author, b.Narrator, b.Runtime)
	}
	table.Print()
	ui.PrintInfo(fmt.Sprintf("%d titles", len(books)))
	return nil
}

func (a *app) audibleActivation(ctx context.Context, cmd *model.AudibleActivationCmd) error {
	switch {
	case cmd.Set != "":
		if err := a.audible.SetActivationBytes(cmd.Set); err != nil {
			return err
		}
		ui.PrintKey("Activation bytes stored")
		return nil
	case cmd.ShowStored:
		if a.audible.Config.ActivationBytes == "" {
			return fmt.Errorf("%w: no activation bytes stored", model.ErrInvalidActivationBytes)
		}
		fmt.Println(a.audible.Config.ActivationBytes)
		return nil
	}
	key, err := a.extractActivation(ctx, !cmd.NoBrowser)
	if err != nil {
		return err
	}
	ui.PrintKey("Activation bytes: " + key)
	return nil
}

// extractActivation runs the automatic chain once. It never retries because
// every attempt touches a device slot.
func (a *app) extractActivation(ctx context.Context, withBrowser bool) (string, error) {
	ui.PrintWarning("Activation registers this machine as a player on your account and releases it again. " +
		"Each run uses a device slot, so avoid repeating it after failures.")
	var open audible.BrowserOpener
	if withBrowser {
		open = a.openAudibleBrowser
	}
	ex := audible.NewExtractor(a.audible, open, a.headless())
	key, err := ex.Extract(ctx)
	if errors.Is(err, model.ErrActivationNotSaved) {
		ui.PrintWarning(fmt.Sprintf("%v; store it later with: udl audible activation --set %s", err, key))
		return key, nil
	}
	if err != nil {
		ui.Debugf("activation stopped in state %s", ex.State())
		if errors.Is(err, model.ErrActivationNotFound) {
			ui.PrintInfo("Enter the key manually with: udl audible activation --set XXXXXXXX")
		}
		return "", err
	}
	return key, nil
}

func (a *app) audibleDownloadAll(ctx context.Context, cmd *model.AudibleDownloadCmd) error {
	books, err := a.audible.Library(ctx, false)
	if err != nil {
		ui.PrintWarning(fmt.Sprintf("Library unavailable, downloading without metadata: %v", err))
	}

	var targets []model.Book
	if len(cmd.ASINs) == 1 && strings.EqualFold(cmd.ASINs[0], "all") {
		targets = books
	} else {
		for _, asin := range cmd.ASINs {
			targets = append(targets, lookupBook(books, asin))
		}
	}
	if len(targets) == 0 {
		return errors.New("nothing to download")
	}

	var errs []error
	for i, book := range targets {
		ui.PrintSection(fmt.Sprintf("[%d/%d] %s", i+1, len(targets), book.Title))
		out, err := a.audibleDownload(ctx, book, !cmd.NoConvert)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			ui.PrintError(fmt.Sprintf("%s: %v", book.ASIN, err))
			errs = append(errs, fmt.Errorf("%s: %w", book.ASIN, err))
			continue
		}
		ui.PrintSuccess("Saved " + out)
	}
	return errors.Join(errs...)
}

func lookupBook(books []model.Book, asin string) model.Book {
	asin = strings.ToUpper(strings.TrimSpace(asin))
	if b, ok := audible.FindBook(books, asin); ok {
		return b
	}
	return model.Book{ASIN: asin, Title: asin}
}

// audibleDownload fetches one AAX and, when convert is set, decrypts it into
// the configured format. Activation bytes are extracted on first use.
func (a *app) audibleDownload(ctx context.Context, book model.Book, convert bool) (string, error) {
	dir, err := a.outDir(a.cfg.OutPath)
	if err != nil {
		return "", err
	}

	bar := ui.NewByteBar(0, book.Title)
	aax, err := a.audible.DownloadBook(ctx, book, dir, ui.ByteProgress(bar))
	_ = bar.Finish()
	if err != nil {
		return "", err
	}
	if !convert {
		return aax, nil
	}

	ffmpeg, err := a.ffmpeg()
	if err != nil {
		return aax, err
	}
	if a.audible.Config.ActivationBytes == "" {
		if _, err := a.extractActivation(ctx, true); err != nil {
			return aax, err
		}
	}
	out := helpers.ReplaceExt(aax, "."+a.cfg.AudibleFormat)
	pbar := ui.NewPercentBar("convert")
	err = a.audible.ConvertBook(ctx, ffmpeg, aax, out, &book, ui.PercentProgress(pbar))
	_ = pbar.Finish()
	if err != nil {
		return aax, err
	}
	return out, nil
}

func (a *app) audibleConvert(ctx context.Context, cmd *model.AudibleConvertCmd) error {
	ffmpeg, err := a.ffmpeg()
	if err != nil {
		return err
	}
	out := cmd.Output
	if out == "" {
		out = helpers.ReplaceExt(cmd.Input, "."+a.cfg.AudibleFormat)
	}

	// Attach library metadata when the file name carries a known title.
	var book *model.Book
	if books, err := a.audible.Library(ctx, false); err == nil {
		base := strings.TrimSuffix(filepath.Base(cmd.Input), filepath.Ext(cmd.Input))
		for i := range books {
			if audible.AAXPath(books[i], "") == base+".aax" {
				book = &books[i]
				break
			}
		}
	}

	bar := ui.NewPercentBar("convert")
	err = a.audible.ConvertBook(ctx, ffmpeg, cmd.Input, out, book, ui.PercentProgress(bar))
	_ = bar.Finish()
	if err != nil {
		return err
	}
	ui.PrintSuccess("Converted to " + out)
	return nil
}
