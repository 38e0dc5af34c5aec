// Command udl downloads Audible audiobooks, Deezer tracks and videos from the
// terminal.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/msebastian100/universal-downloader/internal/api"
	"github.com/msebastian100/universal-downloader/internal/cache"
	"github.com/msebastian100/universal-downloader/internal/completion"
	"github.com/msebastian100/universal-downloader/internal/config"
	"github.com/msebastian100/universal-downloader/internal/model"
	"github.com/msebastian100/universal-downloader/internal/runtime"
	"github.com/msebastian100/universal-downloader/internal/ui"
)

func main() {
	// Check if first argument is "help" before parsing
	if len(os.Args) > 1 && os.Args[1] == "help" {
		os.Args[1] = "--help"
	}

	args := config.ParseArgs()
	ui.Verbose = args.Debug

	if err := run(args); err != nil {
		if errors.Is(err, context.Canceled) {
			ui.PrintWarning("Cancelled")
			os.Exit(130)
		}
		ui.PrintError(err.Error())
		os.Exit(1)
	}
}

func run(args *model.Args) error {
	// Setup runs before anything reads config.json.
	if args.Setup != nil {
		_, err := config.PromptForConfig()
		return err
	}
	switch {
	case args.Status != nil:
		runtime.PrintRuntimeStatus()
		return nil
	case args.Cancel != nil:
		return runCancel()
	case args.Tags != nil:
		return runTags(args.Tags)
	case args.Completion != nil:
		if args.Completion.Shell == "" {
			fmt.Print(completion.Usage)
			return nil
		}
		return completion.Write(os.Stdout, args.Completion.Shell)
	}

	cfg, err := config.ParseCfg(args)
	if err != nil {
		return fmt.Errorf("failed to parse config/args: %w", err)
	}

	if cacheDir, err := cache.GetCacheDir(); err == nil {
		if err := api.InitAPILogger(filepath.Join(cacheDir, "api.log")); err != nil {
			ui.Debugf("%v", err)
		}
		defer api.CloseAPILogger()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg, args.Debug)
	if err != nil {
		return err
	}

	switch {
	case args.Audible != nil:
		return a.runAudible(ctx, args.Audible)
	case args.Deezer != nil:
		return a.runDeezer(ctx, args.Deezer)
	case args.Video != nil:
		return a.runVideo(ctx, args.Video)
	case args.Queue != nil:
		return a.runQueue(ctx, args.Queue)
	case args.Record != nil:
		return a.runRecord(ctx, args.Record)
	default:
		fmt.Print(argsDescription())
		return nil
	}
}
