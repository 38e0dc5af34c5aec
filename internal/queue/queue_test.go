package queue

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/msebastian100/universal-downloader/internal/model"
	"github.com/msebastian100/universal-downloader/internal/runtime"
	"github.com/msebastian100/universal-downloader/internal/testutil"
)

func TestRun_FIFOWithSingleInFlight(t *testing.T) {
	testutil.Isolate(t)

	q := New()
	var (
		mu       sync.Mutex
		order    []string
		inFlight atomic.Int32
		maxSeen  atomic.Int32
	)
	run := func(ctx context.Context, item *model.QueueItem) (string, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		if n > maxSeen.Load() {
			maxSeen.Store(n)
		}
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		order = append(order, item.Target)
		mu.Unlock()
		return "/out/" + item.Target, nil
	}
	q.Register(model.ProviderVideo, run)
	q.Register(model.ProviderDeezer, run)

	q.Add(model.ProviderVideo, "a")
	q.Add(model.ProviderDeezer, "b")
	q.Add(model.ProviderVideo, "c")

	summary, err := q.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := strings.Join(order, ","); got != "a,b,c" {
		t.Fatalf("order = %s, want a,b,c", got)
	}
	if maxSeen.Load() != 1 {
		t.Fatalf("max in flight = %d, want 1", maxSeen.Load())
	}
	if summary.Done != 3 || summary.Failed != 0 || summary.Cancelled != 0 {
		t.Fatalf("summary = %+v", summary)
	}
	for _, it := range q.Items() {
		if it.Status != model.QueueDone || it.OutputPath != "/out/"+it.Target || it.FinishedAt.IsZero() {
			t.Errorf("item %s: %+v", it.Target, it)
		}
	}
}

func TestAdd_AssignsUniqueIDs(t *testing.T) {
	q := New()
	a := q.Add(model.ProviderVideo, "x")
	b := q.Add(model.ProviderVideo, "x")
	if a.ID == "" || a.ID == b.ID {
		t.Fatalf("ids not unique: %q %q", a.ID, b.ID)
	}
	if a.Status != model.QueuePending {
		t.Fatalf("status = %q", a.Status)
	}
}

func TestRun_FailureContinues(t *testing.T) {
	testutil.Isolate(t)

	q := New()
	q.Register(model.ProviderVideo, func(_ context.Context, item *model.QueueItem) (string, error) {
		if item.Target == "bad" {
			return "", errors.New("boom")
		}
		return item.Target + ".mp4", nil
	})
	q.Add(model.ProviderVideo, "bad")
	q.Add(model.ProviderVideo, "good")
	q.Add("storytel", "unknown-kind")

	summary, err := q.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Done != 1 || summary.Failed != 2 {
		t.Fatalf("summary = %+v", summary)
	}
	items := q.Items()
	if items[0].Status != model.QueueFailed || items[0].Error != "boom" {
		t.Errorf("first item: %+v", items[0])
	}
	if items[1].Status != model.QueueDone {
		t.Errorf("second item: %+v", items[1])
	}
	if !strings.Contains(items[2].Error, "no runner") {
		t.Errorf("third item: %+v", items[2])
	}
}

func TestCancel_StopsRunningAndPending(t *testing.T) {
	testutil.Isolate(t)

	q := New()
	started := make(chan struct{})
	q.Register(model.ProviderDeezer, func(ctx context.Context, item *model.QueueItem) (string, error) {
		close(started)
		<-ctx.Done()
		return "", ctx.Err()
	})
	q.Add(model.ProviderDeezer, "running")
	q.Add(model.ProviderDeezer, "pending")

	go func() {
		<-started
		q.Cancel()
	}()

	summary, err := q.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Cancelled != 2 || summary.Done != 0 {
		t.Fatalf("summary = %+v", summary)
	}
	for _, it := range q.Items() {
		if it.Status != model.QueueCancelled {
			t.Errorf("%s: status = %q", it.Target, it.Status)
		}
		if !strings.Contains(it.Error, model.ErrQueueCancelled.Error()) {
			t.Errorf("%s: error = %q", it.Target, it.Error)
		}
	}
}

func TestRun_ParentContextCancels(t *testing.T) {
	testutil.Isolate(t)

	q := New()
	ctx, cancel := context.WithCancel(context.Background())
	q.Register(model.ProviderVideo, func(ctx context.Context, _ *model.QueueItem) (string, error) {
		cancel()
		<-ctx.Done()
		return "", ctx.Err()
	})
	q.Add(model.ProviderVideo, "one")
	q.Add(model.ProviderVideo, "two")

	summary, err := q.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if summary.Cancelled != 2 {
		t.Fatalf("summary = %+v", summary)
	}
}

func TestRun_ControlFileCancel(t *testing.T) {
	testutil.Isolate(t)
	runtime.InitRuntimeStatus()

	q := New()
	q.ControlInterval = 10 * time.Millisecond
	q.Register(model.ProviderVideo, func(ctx context.Context, _ *model.QueueItem) (string, error) {
		if err := runtime.RequestRuntimeCancel(); err != nil {
			return "", err
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(5 * time.Second):
			return "", errors.New("cancel request was not observed")
		}
	})
	q.Add(model.ProviderVideo, "one")

	summary, err := q.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Cancelled != 1 {
		t.Fatalf("summary = %+v", summary)
	}
}

func TestRun_HooksAfterDrain(t *testing.T) {
	testutil.Isolate(t)

	q := New()
	q.Register(model.ProviderAudible, func(_ context.Context, item *model.QueueItem) (string, error) {
		if item.Target == "B0FAIL" {
			return "", errors.New("no key")
		}
		return "/books/" + item.Target + ".m4b", nil
	})
	q.Add(model.ProviderAudible, "B0OK")
	q.Add(model.ProviderAudible, "B0FAIL")

	var uploaded []string
	var title, message string
	var priority int
	q.Hooks = Hooks{
		Upload: func(_ context.Context, item *model.QueueItem) error {
			uploaded = append(uploaded, item.OutputPath)
			return nil
		},
		Notify: func(_ context.Context, t, m string, p int) error {
			title, message, priority = t, m, p
			return nil
		},
	}

	if _, err := q.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(uploaded) != 1 || uploaded[0] != "/books/B0OK.m4b" {
		t.Fatalf("uploaded = %v", uploaded)
	}
	if title == "" || !strings.HasPrefix(message, "1 done, 1 failed, 0 cancelled") {
		t.Fatalf("notification = %q / %q", title, message)
	}
	if priority != 8 {
		t.Fatalf("priority = %d, want 8 after a failure", priority)
	}
}

func TestRun_WritesRuntimeProgress(t *testing.T) {
	testutil.Isolate(t)
	runtime.InitRuntimeStatus()

	q := New()
	q.Register(model.ProviderVideo, func(context.Context, *model.QueueItem) (string, error) { return "x", nil })
	q.Add(model.ProviderVideo, "first")
	q.Add(model.ProviderVideo, "second")

	if _, err := q.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	runtime.WriteRuntimeStatus(true)
	st, err := runtime.ReadRuntimeStatus()
	if err != nil {
		t.Fatalf("ReadRuntimeStatus: %v", err)
	}
	if st.Percentage != 100 || st.Current != "2" || st.Total != "2" || st.Label != "video: second" {
		t.Fatalf("status = %+v", st)
	}
}
