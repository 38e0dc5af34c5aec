package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/msebastian100/universal-downloader/internal/deezer"
	"github.com/msebastian100/universal-downloader/internal/helpers"
	"github.com/msebastian100/universal-downloader/internal/model"
	"github.com/msebastian100/universal-downloader/internal/notify"
	"github.com/msebastian100/universal-downloader/internal/queue"
	"github.com/msebastian100/universal-downloader/internal/rclone"
	"github.com/msebastian100/universal-downloader/internal/runtime"
	"github.com/msebastian100/universal-downloader/internal/ui"
)

const (
	audiblePrefix        = "audible:"
	controlCheckInterval = time.Second
)

// classifyTarget maps a queue argument to a provider kind and the target
// string its runner expects.
func classifyTarget(s string) (kind, target string, err error) {
	s = strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(strings.ToLower(s), audiblePrefix); ok {
		asin := strings.ToUpper(strings.TrimSpace(rest))
		if asin == "" {
			return "", "", fmt.Errorf("%w: missing ASIN in %q", model.ErrUnsupportedURL, s)
		}
		return model.ProviderAudible, asin, nil
	}
	if deezer.IsDeezerTarget(s) {
		return model.ProviderDeezer, s, nil
	}
	u, perr := url.Parse(s)
	if perr == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
		return model.ProviderVideo, s, nil
	}
	return "", "", fmt.Errorf("%w: %q", model.ErrUnsupportedURL, s)
}

func (a *app) runQueue(ctx context.Context, cmd *model.QueueCmd) error {
	entries, err := helpers.ProcessUrls(cmd.Items)
	if err != nil {
		return err
	}

	lock, err := runtime.AcquireInstanceLock()
	if err != nil {
		return err
	}
	defer lock.Release()

	if a.cfg.RcloneEnabled {
		if err := rclone.CheckRcloneAvailable(false); err != nil {
			return fmt.Errorf("rclone check failed: %w", err)
		}
	}

	q := queue.New()
	q.ControlInterval = controlCheckInterval
	outputs := make(map[string][]string)
	a.registerRunners(q, outputs)
	q.Hooks = queue.Hooks{
		Notify: notify.BuildNotifier(a.client, a.cfg.GotifyURL, a.cfg.GotifyToken),
	}
	if a.cfg.RcloneEnabled {
		q.Hooks.Upload = a.uploadHook(outputs)
	}

	for _, e := range entries {
		kind, target, err := classifyTarget(e)
		if err != nil {
			ui.PrintWarning(fmt.Sprintf("Skipping %s", err))
			continue
		}
		q.Add(kind, target)
	}
	if len(q.Items()) == 0 {
		return errors.New("queue is empty")
	}
	ui.PrintInfo(fmt.Sprintf("Queued %d items", len(q.Items())))

	runtime.InitRuntimeStatus()
	summary, runErr := q.Run(ctx)

	state := runtime.StateDone
	switch {
	case runErr != nil || summary.Cancelled > 0:
		state = runtime.StateCancelled
	case summary.Failed > 0:
		state = runtime.StateFailed
	}
	runtime.FinalizeRuntimeStatus(state)

	ui.PrintHeader("Queue finished")
	table := ui.NewTable("Kind", "Target", "Status", "Output")
	for _, it := range q.Items() {
		detail := it.OutputPath
		if it.Error != "" {
			detail = it.Error
		}
		table.AddRow(it.Kind, it.Target, string(it.Status), detail)
	}
	table.Print()
	ui.PrintInfo(summary.String())

	if runErr != nil {
		return runErr
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d items failed", summary.Failed, len(q.Items()))
	}
	return nil
}

// registerRunners installs one runner per provider. outputs collects every
// file an item produced since Deezer albums yield many.
func (a *app) registerRunners(q *queue.Queue, outputs map[string][]string) {
	q.Register(model.ProviderAudible, func(ctx context.Context, item *model.QueueItem) (string, error) {
		books, err := a.audible.Library(ctx, false)
		if err != nil {
			ui.PrintWarning(fmt.Sprintf("Library unavailable, downloading without metadata: %v", err))
		}
		out, err := a.audibleDownload(ctx, lookupBook(books, item.Target), true)
		if err != nil {
			return "", err
		}
		outputs[item.ID] = []string{out}
		return out, nil
	})
	q.Register(model.ProviderDeezer, func(ctx context.Context, item *model.QueueItem) (string, error) {
		preview := !a.deezer.HasARL()
		if preview {
			ui.PrintWarning("No Deezer ARL stored, falling back to 30 second previews")
		}
		paths, err := a.deezerFetch(ctx, item.Target, preview)
		outputs[item.ID] = paths
		if len(paths) == 0 {
			return "", err
		}
		// Partial albums count as done; the failures were already reported.
		if err != nil {
			ui.PrintWarning(fmt.Sprintf("%s: %v", item.Target, err))
		}
		return paths[0], nil
	})
	q.Register(model.ProviderVideo, func(ctx context.Context, item *model.QueueItem) (string, error) {
		out, err := a.videoDownload(ctx, item.Target, false)
		if err != nil {
			return "", err
		}
		outputs[item.ID] = []string{out}
		return out, nil
	})
}

func (a *app) uploadHook(outputs map[string][]string) func(ctx context.Context, item *model.QueueItem) error {
	storage := rclone.NewStorageAdapter()
	return func(ctx context.Context, item *model.QueueItem) error {
		paths := outputs[item.ID]
		if len(paths) == 0 {
			paths = []string{item.OutputPath}
		}
		var errs []error
		for _, p := range paths {
			err := storage.Upload(ctx, a.cfg, model.UploadRequest{LocalPath: p, Subfolder: item.Kind}, model.StorageHooks{})
			if err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
}
