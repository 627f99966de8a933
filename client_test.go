package uxsync

import (
	"context"
	"testing"
	"time"
)

func newMemoryClient(t *testing.T, opts ...Option) *Client {
	t.Helper()
	c, err := New(append([]Option{WithMemoryStorage()}, opts...)...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestSeedOnEmptyStore(t *testing.T) {
	c := newMemoryClient(t, WithSeed())
	ctx := context.Background()

	if c.Patterns().Len(ctx) == 0 || c.Tags().Len(ctx) == 0 {
		t.Fatal("seeded client has empty collections")
	}

	// Seeding again without force is a no-op.
	if c.Seed(ctx, false) {
		t.Fatal("non-empty store reseeded")
	}
}

func TestCollectionAndSnapshotFlow(t *testing.T) {
	c := newMemoryClient(t)
	ctx := context.Background()

	var last Snapshot
	fires := 0
	unsub := c.SubscribeSnapshot(ctx, func(s Snapshot) {
		last = s
		fires++
	})
	defer unsub()

	c.Patterns().Create(ctx, Pattern{ID: "p1", Name: "Checkout"})
	if fires != 1 {
		t.Fatalf("snapshot fired %d times, want 1", fires)
	}
	if len(last.Patterns) != 1 || last.Patterns[0].Name != "Checkout" {
		t.Fatalf("snapshot patterns = %+v", last.Patterns)
	}

	snap := c.Snapshot(ctx)
	if len(snap.Patterns) != 1 {
		t.Fatalf("pulled snapshot has %d patterns", len(snap.Patterns))
	}
}

func TestSubmitSettles(t *testing.T) {
	c := newMemoryClient(t)
	ctx := context.Background()

	id, err := c.Submit(ctx, Mutation{Collection: "patterns", Kind: "update", EntityID: "p1"})
	if err != nil {
		t.Fatal(err)
	}
	if id == "" {
		t.Fatal("no mutation id")
	}

	deadline := time.After(2 * time.Second)
	for {
		st := c.SyncStatus()
		if st.Pending == 0 && st.Failed == 0 {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("mutation never settled: %+v", st)
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
}

func TestOfflineRetryAll(t *testing.T) {
	c := newMemoryClient(t)
	ctx := context.Background()

	c.SetOnline(false)
	if _, err := c.Submit(ctx, Mutation{Collection: "patterns", Kind: "create", EntityID: "p1"}); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(2 * time.Second)
	for c.SyncStatus().Pending == 0 {
		select {
		case <-deadline:
			t.Fatal("offline mutation never counted as pending")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}

	c.SetOnline(true)
	c.RetryAll(ctx)

	deadline = time.After(2 * time.Second)
	for {
		st := c.SyncStatus()
		if st.Pending == 0 && st.Failed == 0 && !st.Retrying {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("retry never drained: %+v", st)
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
}

func TestFileStorageCrossClientPropagation(t *testing.T) {
	dir := t.TempDir()
	opts := func() []Option {
		return []Option{WithFileStorage(dir), WithPollInterval(20 * time.Millisecond)}
	}

	a, err := New(opts()...)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	b, err := New(opts()...)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	ctx := context.Background()
	// Hydrate b before the write so the update can only arrive via the
	// storage watcher, not first-access hydration.
	if n := b.Patterns().Len(ctx); n != 0 {
		t.Fatalf("fresh store has %d patterns", n)
	}

	a.Patterns().Create(ctx, Pattern{ID: "p1", Name: "Paywall"})

	deadline := time.After(5 * time.Second)
	for {
		if got, ok := b.Patterns().GetByID(ctx, "p1"); ok {
			if got.Name != "Paywall" {
				t.Fatalf("propagated pattern = %+v", got)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("write never propagated to second client")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}
