package file

import (
	"context"
	"testing"
	"time"

	"github.com/uxarchive/uxsync/internal/kv"
)

const testPoll = 10 * time.Millisecond

func newTestStore(t *testing.T, dir string) *Store {
	t.Helper()
	s, err := NewStore(Config{Dir: dir, PollInterval: testPoll})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestRoundTripAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	a := newTestStore(t, dir)
	if err := a.Set(ctx, "uxsync:collections:patterns", []byte(`[{"id":"p1"}]`)); err != nil {
		t.Fatal(err)
	}

	// A separate store over the same directory reads the same value.
	b := newTestStore(t, dir)
	got, err := b.Get(ctx, "uxsync:collections:patterns")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != `[{"id":"p1"}]` {
		t.Fatalf("Get = %q", got)
	}

	if _, err := b.Get(ctx, "uxsync:collections:tags"); err != kv.ErrKeyNotFound {
		t.Fatalf("Get missing = %v, want ErrKeyNotFound", err)
	}
}

func TestDelIdempotent(t *testing.T) {
	s := newTestStore(t, t.TempDir())
	ctx := context.Background()

	if err := s.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatal(err)
	}
	if err := s.Del(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if err := s.Del(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(ctx, "k"); err != kv.ErrKeyNotFound {
		t.Fatalf("Get after Del = %v", err)
	}
}

func TestKeysPrefix(t *testing.T) {
	s := newTestStore(t, t.TempDir())
	ctx := context.Background()

	_ = s.Set(ctx, "uxsync:collections:patterns", []byte("[]"))
	_ = s.Set(ctx, "uxsync:collections:tags", []byte("[]"))
	_ = s.Set(ctx, "uxsync:workspace", []byte("{}"))

	keys, err := s.Keys(ctx, "uxsync:collections:")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 {
		t.Fatalf("Keys = %v, want 2 collection keys", keys)
	}
}

func TestKeyEncoding(t *testing.T) {
	if got := encodeKey("uxsync:collections:patterns"); got != "uxsync__collections__patterns" {
		t.Fatalf("encodeKey = %q", got)
	}
	if got := decodeKey("uxsync__collections__patterns"); got != "uxsync:collections:patterns" {
		t.Fatalf("decodeKey = %q", got)
	}
}

func waitEvent(t *testing.T, ch <-chan kv.Event) kv.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for watch event")
		return kv.Event{}
	}
}

func TestWatchSeesExternalWrites(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	a := newTestStore(t, dir)
	b := newTestStore(t, dir)

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	events, err := a.Watch(watchCtx)
	if err != nil {
		t.Fatal(err)
	}

	if err := b.Set(ctx, "uxsync:workspace", []byte(`{"search_term":"x"}`)); err != nil {
		t.Fatal(err)
	}

	ev := waitEvent(t, events)
	if ev.Key != "uxsync:workspace" {
		t.Fatalf("event key = %q", ev.Key)
	}
	if string(ev.Value) != `{"search_term":"x"}` {
		t.Fatalf("event value = %q", ev.Value)
	}
}

func TestWatchIgnoresOwnWrites(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	a := newTestStore(t, dir)
	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	events, err := a.Watch(watchCtx)
	if err != nil {
		t.Fatal(err)
	}

	if err := a.Set(ctx, "k", []byte("mine")); err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-events:
		t.Fatalf("own write round-tripped through watch: %+v", ev)
	case <-time.After(6 * testPoll):
	}
}

func TestWatchSeesExternalDeletion(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	a := newTestStore(t, dir)
	b := newTestStore(t, dir)
	if err := b.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatal(err)
	}

	// Watch starts with k in the baseline; only the deletion should fire.
	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	events, err := a.Watch(watchCtx)
	if err != nil {
		t.Fatal(err)
	}

	if err := b.Del(ctx, "k"); err != nil {
		t.Fatal(err)
	}

	ev := waitEvent(t, events)
	if ev.Key != "k" || ev.Value != nil {
		t.Fatalf("deletion event = %+v", ev)
	}
}
