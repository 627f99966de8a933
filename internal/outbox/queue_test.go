package outbox

import (
	"context"
	"testing"
	"time"
)

func TestEnqueueSettles(t *testing.T) {
	backend := &recordingBackend{}
	q := New(backend, nil, fastConfig())
	defer q.Stop(context.Background())
	events := watchEvents(t, q)

	id, err := q.Enqueue(context.Background(), testMutation(""))
	if err != nil {
		t.Fatal(err)
	}
	if id == "" {
		t.Fatal("no mutation id assigned")
	}

	ev := waitFor(t, events, EventSucceeded)
	if ev.Mutation.ID != id {
		t.Fatalf("settled id = %q, want %q", ev.Mutation.ID, id)
	}
	pending, paused, failed := q.Counts()
	if pending != 0 || paused != 0 || failed != 0 {
		t.Fatalf("counts after settle = %d/%d/%d", pending, paused, failed)
	}
}

func TestSubmissionOrderPreserved(t *testing.T) {
	backend := &recordingBackend{}
	q := New(backend, nil, fastConfig())
	defer q.Stop(context.Background())
	events := watchEvents(t, q)

	want := []string{"m1", "m2", "m3"}
	for _, id := range want {
		if _, err := q.Enqueue(context.Background(), testMutation(id)); err != nil {
			t.Fatal(err)
		}
	}
	for range want {
		waitFor(t, events, EventSucceeded)
	}

	got := backend.appliedIDs()
	if len(got) != len(want) {
		t.Fatalf("applied %d mutations, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("apply order = %v, want %v", got, want)
		}
	}
}

func TestTransientFailureRetried(t *testing.T) {
	backend := &recordingBackend{failN: 2}
	q := New(backend, nil, fastConfig())
	defer q.Stop(context.Background())
	events := watchEvents(t, q)

	if _, err := q.Enqueue(context.Background(), testMutation("m1")); err != nil {
		t.Fatal(err)
	}

	waitFor(t, events, EventSucceeded)
	if got := backend.callCount(); got != 3 {
		t.Fatalf("backend called %d times, want 3", got)
	}
	if err := q.LastError(); err != nil {
		t.Fatalf("LastError after recovery = %v", err)
	}
}

func TestExhaustedRetriesFail(t *testing.T) {
	backend := &recordingBackend{failN: 1 << 20}
	q := New(backend, nil, fastConfig())
	defer q.Stop(context.Background())
	events := watchEvents(t, q)

	if _, err := q.Enqueue(context.Background(), testMutation("m1")); err != nil {
		t.Fatal(err)
	}

	ev := waitFor(t, events, EventFailed)
	if ev.Err == nil {
		t.Fatal("failed event carries no error")
	}
	if got := backend.callCount(); got != fastConfig().MaxAttempts {
		t.Fatalf("backend called %d times, want %d", got, fastConfig().MaxAttempts)
	}
	pending, paused, failed := q.Counts()
	if pending != 0 || paused != 0 || failed != 1 {
		t.Fatalf("counts = %d/%d/%d, want 0/0/1", pending, paused, failed)
	}
	if q.LastError() == nil {
		t.Fatal("LastError not recorded")
	}
}

func TestOfflineParksAndResumeSettles(t *testing.T) {
	backend := &recordingBackend{}
	q := New(backend, nil, fastConfig())
	defer q.Stop(context.Background())
	events := watchEvents(t, q)

	q.SetOnline(false)
	if _, err := q.Enqueue(context.Background(), testMutation("m1")); err != nil {
		t.Fatal(err)
	}

	waitFor(t, events, EventPaused)
	if got := backend.callCount(); got != 0 {
		t.Fatalf("backend called while offline: %d", got)
	}
	_, paused, _ := q.Counts()
	if paused != 1 {
		t.Fatalf("paused = %d, want 1", paused)
	}

	q.SetOnline(true)
	waitFor(t, events, EventResumed)
	waitFor(t, events, EventSucceeded)
	pending, paused, failed := q.Counts()
	if pending != 0 || paused != 0 || failed != 0 {
		t.Fatalf("counts after resume = %d/%d/%d", pending, paused, failed)
	}
}

func TestRetryFailedResubmits(t *testing.T) {
	backend := &recordingBackend{failN: fastConfig().MaxAttempts}
	q := New(backend, nil, fastConfig())
	defer q.Stop(context.Background())
	events := watchEvents(t, q)

	if _, err := q.Enqueue(context.Background(), testMutation("m1")); err != nil {
		t.Fatal(err)
	}
	waitFor(t, events, EventFailed)

	// Backend has recovered; the retried mutation settles and the failure
	// record clears.
	q.RetryFailed()
	waitFor(t, events, EventSucceeded)
	pending, paused, failed := q.Counts()
	if pending != 0 || paused != 0 || failed != 0 {
		t.Fatalf("counts after retry = %d/%d/%d", pending, paused, failed)
	}
	if q.LastError() != nil {
		t.Fatalf("LastError not cleared: %v", q.LastError())
	}
}

func TestStopDrainsBuffered(t *testing.T) {
	backend := &recordingBackend{}
	q := New(backend, nil, fastConfig())

	for _, id := range []string{"m1", "m2"} {
		if _, err := q.Enqueue(context.Background(), testMutation(id)); err != nil {
			t.Fatal(err)
		}
	}
	if err := q.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}

	if got := backend.appliedIDs(); len(got) != 2 {
		t.Fatalf("applied after drain = %v, want both mutations", got)
	}
	if _, err := q.Enqueue(context.Background(), testMutation("m3")); err != ErrClosed {
		t.Fatalf("Enqueue after Stop = %v, want ErrClosed", err)
	}
}

func TestEnqueueTimesOutWhenSaturated(t *testing.T) {
	block := make(chan struct{})
	backend := BackendFunc(func(context.Context, Mutation) error {
		<-block
		return nil
	})
	cfg := fastConfig()
	cfg.QueueSize = 1
	cfg.EnqueueTimeout = 20 * time.Millisecond
	q := New(backend, nil, cfg)
	defer func() {
		close(block)
		q.Stop(context.Background())
	}()

	// One in flight, one buffered; the third cannot fit.
	q.Enqueue(context.Background(), testMutation("m1"))
	q.Enqueue(context.Background(), testMutation("m2"))
	if _, err := q.Enqueue(context.Background(), testMutation("m3")); err != ErrQueueFull {
		t.Fatalf("Enqueue on full buffer = %v, want ErrQueueFull", err)
	}
}
