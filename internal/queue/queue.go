// Package queue runs downloads one at a time. Items are drained in the order
// they were added and only one job is ever in flight.
package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/msebastian100/universal-downloader/internal/model"
	"github.com/msebastian100/universal-downloader/internal/runtime"
	"github.com/msebastian100/universal-downloader/internal/ui"
)

// Runner performs the download for one item and returns the output path.
type Runner func(ctx context.Context, item *model.QueueItem) (string, error)

// Hooks are optional callbacks fired when the queue has drained.
type Hooks struct {
	// Notify matches notify.BuildNotifier.
	Notify func(ctx context.Context, title, message string, priority int) error
	// Upload is called once per finished output path.
	Upload func(ctx context.Context, item *model.QueueItem) error
}

// Summary counts items by terminal state after a run.
type Summary struct {
	Done      int
	Failed    int
	Cancelled int
	Elapsed   time.Duration
}

// String renders a summary line for notifications and the terminal.
func (s Summary) String() string {
	return fmt.Sprintf("%d done, %d failed, %d cancelled in %s",
		s.Done, s.Failed, s.Cancelled, s.Elapsed.Round(time.Second))
}

// Queue is a FIFO download queue with a single in-flight job.
type Queue struct {
	Hooks Hooks
	// ControlInterval enables polling of the runtime control file so
	// `udl cancel` from another process stops the run. Zero disables it.
	ControlInterval time.Duration

	mu        sync.Mutex
	items     []*model.QueueItem
	runners   map[string]Runner
	cancelCur context.CancelFunc
	cancelled bool
	running   bool
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{runners: make(map[string]Runner)}
}

// Register installs the runner for a kind, replacing any previous one.
func (q *Queue) Register(kind string, r Runner) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.runners[kind] = r
}

// Add appends a pending item and returns it.
func (q *Queue) Add(kind, target string) *model.QueueItem {
	item := &model.QueueItem{
		ID:      uuid.NewString(),
		Kind:    kind,
		Target:  target,
		Status:  model.QueuePending,
		AddedAt: time.Now(),
	}
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
	return item
}

// Items returns a snapshot of all items.
func (q *Queue) Items() []model.QueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]model.QueueItem, len(q.items))
	for i, it := range q.items {
		out[i] = *it
	}
	return out
}

// Cancel stops the running item and marks every pending item cancelled.
func (q *Queue) Cancel() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cancelled = true
	if q.cancelCur != nil {
		q.cancelCur()
	}
	now := time.Now()
	for _, it := range q.items {
		if it.Status == model.QueuePending {
			it.Status = model.QueueCancelled
			it.Error = model.ErrQueueCancelled.Error()
			it.FinishedAt = now
		}
	}
}

// next claims the first pending item and installs its cancel func.
func (q *Queue) next(ctx context.Context) (*model.QueueItem, context.Context, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.cancelled {
		return nil, nil, false
	}
	for _, it := range q.items {
		if it.Status != model.QueuePending {
			continue
		}
		itemCtx, cancel := context.WithCancel(ctx)
		q.cancelCur = cancel
		it.Status = model.QueueRunning
		return it, itemCtx, true
	}
	return nil, nil, false
}

func (q *Queue) finish(item *model.QueueItem, out string, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.cancelCur != nil {
		q.cancelCur()
		q.cancelCur = nil
	}
	item.FinishedAt = time.Now()
	item.OutputPath = out
	switch {
	case err == nil:
		item.Status = model.QueueDone
	case q.cancelled || errors.Is(err, context.Canceled):
		item.Status = model.QueueCancelled
		item.Error = fmt.Errorf("%w: %w", model.ErrQueueCancelled, err).Error()
	default:
		item.Status = model.QueueFailed
		item.Error = err.Error()
	}
}

func (q *Queue) runner(kind string) (Runner, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	r, ok := q.runners[kind]
	return r, ok
}

// Run drains the queue. Failed items are recorded and the run continues;
// only a cancelled parent context or Cancel stops it early.
func (q *Queue) Run(ctx context.Context) (Summary, error) {
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return Summary{}, errors.New("queue is already running")
	}
	q.running = true
	q.mu.Unlock()
	defer func() {
		q.mu.Lock()
		q.running = false
		q.mu.Unlock()
	}()

	start := time.Now()
	if q.ControlInterval > 0 {
		watchCtx, stopWatch := context.WithCancel(ctx)
		defer stopWatch()
		go runtime.WatchCancel(watchCtx, q.ControlInterval, q.Cancel)
	}
	stopOnParent := context.AfterFunc(ctx, q.Cancel)
	defer stopOnParent()

	total := len(q.Items())
	done := 0
	for {
		item, itemCtx, ok := q.next(ctx)
		if !ok {
			break
		}
		label := item.Kind + ": " + item.Target
		ui.PrintDownload(fmt.Sprintf("[%d/%d] %s", done+1, total, label))

		var (
			out string
			err error
		)
		if r, found := q.runner(item.Kind); found {
			out, err = r(itemCtx, item)
		} else {
			err = fmt.Errorf("%w: no runner for kind %q", model.ErrUnsupportedURL, item.Kind)
		}
		q.finish(item, out, err)
		done++

		switch item.Status {
		case model.QueueDone:
			ui.PrintSuccess("Finished " + label)
		case model.QueueCancelled:
			ui.PrintWarning("Cancelled " + label)
		default:
			ui.PrintError(fmt.Sprintf("Failed %s: %s", label, item.Error))
		}
		pct := 0
		if total > 0 {
			pct = done * model.MaxProgressPercent / total
		}
		runtime.UpdateRuntimeProgress(label, pct, "", strconv.Itoa(done), strconv.Itoa(total))
	}

	summary := q.summarize(time.Since(start))
	q.afterRun(context.WithoutCancel(ctx), summary)
	if ctx.Err() != nil {
		return summary, ctx.Err()
	}
	return summary, nil
}

func (q *Queue) summarize(elapsed time.Duration) Summary {
	s := Summary{Elapsed: elapsed}
	for _, it := range q.Items() {
		switch it.Status {
		case model.QueueDone:
			s.Done++
		case model.QueueFailed:
			s.Failed++
		case model.QueueCancelled:
			s.Cancelled++
		}
	}
	return s
}

func (q *Queue) afterRun(ctx context.Context, summary Summary) {
	if q.Hooks.Upload != nil {
		q.mu.Lock()
		var finished []*model.QueueItem
		for _, it := range q.items {
			if it.Status == model.QueueDone && it.OutputPath != "" {
				finished = append(finished, it)
			}
		}
		q.mu.Unlock()
		for _, it := range finished {
			if err := q.Hooks.Upload(ctx, it); err != nil {
				ui.PrintWarning(fmt.Sprintf("Upload of %s failed: %v", it.OutputPath, err))
			}
		}
	}
	if q.Hooks.Notify != nil {
		priority := 5
		if summary.Failed > 0 {
			priority = 8
		}
		if err := q.Hooks.Notify(ctx, "udl queue finished", summary.String(), priority); err != nil {
			ui.PrintWarning(fmt.Sprintf("Notification failed: %v", err))
		}
	}
}
