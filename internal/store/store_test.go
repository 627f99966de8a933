package store

import (
	"context"
	"reflect"
	"testing"

	"github.com/uxarchive/uxsync/internal/domain"
)

func TestSetAllGetAllCopyIsolation(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	in := []domain.Pattern{testPattern("p1", "Sign up"), testPattern("p2", "Paywall")}
	s.Patterns.SetAll(ctx, in)

	got := s.Patterns.GetAll(ctx)
	if !reflect.DeepEqual(got, in) {
		t.Fatalf("GetAll = %+v, want %+v", got, in)
	}

	// Mutating the returned value must not affect subsequent reads.
	got[0].Name = "mutated"
	got[0].Tags[0].Label = "mutated"

	again := s.Patterns.GetAll(ctx)
	if again[0].Name != "Sign up" || again[0].Tags[0].Label != "onboarding" {
		t.Fatalf("store state leaked through returned copy: %+v", again[0])
	}

	// Mutating the input after SetAll must not affect the store either.
	in[1].Name = "mutated input"
	if s.Patterns.GetAll(ctx)[1].Name != "Paywall" {
		t.Fatal("store state leaked through SetAll input")
	}
}

func TestCreateThenGetByID(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	p := testPattern("p1", "Empty state")
	s.Patterns.Create(ctx, p)

	got, ok := s.Patterns.GetByID(ctx, "p1")
	if !ok {
		t.Fatal("GetByID: not found")
	}
	if !reflect.DeepEqual(got, p) {
		t.Fatalf("GetByID = %+v, want %+v", got, p)
	}

	if _, ok := s.Patterns.GetByID(ctx, "nope"); ok {
		t.Fatal("GetByID returned a result for a missing id")
	}
}

func TestCreateDuplicateIDAppends(t *testing.T) {
	// Duplicate ids are a caller contract; the store appends without checking.
	s, _ := newTestStore(t)
	ctx := context.Background()

	s.Patterns.Create(ctx, testPattern("p1", "a"))
	s.Patterns.Create(ctx, testPattern("p1", "b"))

	if n := s.Patterns.Len(ctx); n != 2 {
		t.Fatalf("Len = %d, want 2", n)
	}
}

func TestUpdateMissingIDIsNoOp(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	s.Patterns.SetAll(ctx, []domain.Pattern{testPattern("p1", "a")})
	before := s.Patterns.GetAll(ctx)

	calls := 0
	found := s.Patterns.Update(ctx, "missing", func(p domain.Pattern) domain.Pattern {
		calls++
		return p
	})
	if found {
		t.Fatal("Update on missing id reported found")
	}
	if calls != 0 {
		t.Fatalf("updater invoked %d times for missing id", calls)
	}
	if after := s.Patterns.GetAll(ctx); !reflect.DeepEqual(before, after) {
		t.Fatalf("collection changed on no-op update: %+v -> %+v", before, after)
	}
}

func TestUpdateAppliesTransform(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	s.Patterns.SetAll(ctx, []domain.Pattern{testPattern("p1", "a")})
	found := s.Patterns.Update(ctx, "p1", func(p domain.Pattern) domain.Pattern {
		p.IsFavorite = true
		return p
	})
	if !found {
		t.Fatal("Update did not find p1")
	}
	got, _ := s.Patterns.GetByID(ctx, "p1")
	if !got.IsFavorite {
		t.Fatal("transform not applied")
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	s.Patterns.SetAll(ctx, []domain.Pattern{testPattern("p1", "a"), testPattern("p2", "b")})

	s.Patterns.Remove(ctx, "p1")
	once := s.Patterns.GetAll(ctx)
	s.Patterns.Remove(ctx, "p1")
	twice := s.Patterns.GetAll(ctx)

	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("second Remove changed the collection: %+v -> %+v", once, twice)
	}
	if len(twice) != 1 || twice[0].ID != "p2" {
		t.Fatalf("unexpected collection after remove: %+v", twice)
	}
}

func TestUpsert(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	s.Patterns.Upsert(ctx, testPattern("p1", "a"))
	s.Patterns.Upsert(ctx, testPattern("p1", "renamed"))
	s.Patterns.Upsert(ctx, testPattern("p2", "b"))

	all := s.Patterns.GetAll(ctx)
	if len(all) != 2 {
		t.Fatalf("len = %d, want 2", len(all))
	}
	if all[0].Name != "renamed" {
		t.Fatalf("upsert did not replace in place: %+v", all[0])
	}
}

func TestCrossCollectionListenerIsolation(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	patternFires, tagFires := 0, 0
	unsubP := s.Patterns.Subscribe(func([]domain.Pattern) { patternFires++ })
	defer unsubP()
	unsubT := s.Tags.Subscribe(func([]domain.Tag) { tagFires++ })
	defer unsubT()

	s.Tags.SetAll(ctx, []domain.Tag{{ID: "t1", Label: "nav", Type: domain.TagCustom}})

	if patternFires != 0 {
		t.Fatalf("patterns listener fired %d times on tags write", patternFires)
	}
	if tagFires != 1 {
		t.Fatalf("tags listener fired %d times, want 1", tagFires)
	}
}

func TestListenerReceivesCopy(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	var seen []domain.Pattern
	unsub := s.Patterns.Subscribe(func(items []domain.Pattern) { seen = items })
	defer unsub()

	s.Patterns.SetAll(ctx, []domain.Pattern{testPattern("p1", "a")})
	seen[0].Name = "mutated"

	if got := s.Patterns.GetAll(ctx)[0].Name; got != "a" {
		t.Fatalf("listener payload aliased store state: %q", got)
	}
}

func TestUnsubscribeStopsNotifications(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	fires := 0
	unsub := s.Patterns.Subscribe(func([]domain.Pattern) { fires++ })
	s.Patterns.Create(ctx, testPattern("p1", "a"))
	unsub()
	s.Patterns.Create(ctx, testPattern("p2", "b"))

	if fires != 1 {
		t.Fatalf("fires = %d, want 1", fires)
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	// A second store over the same backend sees what the first wrote.
	s1, kvStore := newTestStore(t)
	ctx := context.Background()
	s1.Patterns.SetAll(ctx, []domain.Pattern{testPattern("p1", "a")})

	s2 := New(kvStore, nil)
	got := s2.Patterns.GetAll(ctx)
	if len(got) != 1 || got[0].ID != "p1" {
		t.Fatalf("fresh store did not hydrate persisted data: %+v", got)
	}
}

func TestFailedWriteIsDropped(t *testing.T) {
	_, backend := newTestStore(t)
	ctx := context.Background()

	s := New(&failingKV{Store: backend}, nil)
	fires := 0
	unsub := s.Patterns.Subscribe(func([]domain.Pattern) { fires++ })
	defer unsub()

	s.Patterns.Create(ctx, testPattern("p1", "a"))

	if n := s.Patterns.Len(ctx); n != 0 {
		t.Fatalf("in-memory state changed on failed persist: len = %d", n)
	}
	if fires != 0 {
		t.Fatalf("listeners notified on dropped write: %d", fires)
	}
}

func TestCorruptPayloadHydratesEmpty(t *testing.T) {
	s1, backend := newTestStore(t)
	ctx := context.Background()

	if err := backend.Set(ctx, KeyPrefix+"patterns", []byte("{not json")); err != nil {
		t.Fatal(err)
	}
	if got := s1.Patterns.GetAll(ctx); len(got) != 0 {
		t.Fatalf("corrupt payload not discarded: %+v", got)
	}
}

func TestExternalChangeRebroadcast(t *testing.T) {
	s, _ := newTestStore(t)

	var seen []domain.Pattern
	unsub := s.Patterns.Subscribe(func(items []domain.Pattern) { seen = items })
	defer unsub()

	s.dispatch(kvEvent(KeyPrefix+"patterns", `[{"id":"p9","name":"External"}]`))

	if len(seen) != 1 || seen[0].ID != "p9" {
		t.Fatalf("external change not rebroadcast: %+v", seen)
	}
	if got := s.Patterns.GetAll(context.Background()); len(got) != 1 || got[0].ID != "p9" {
		t.Fatalf("external change not applied: %+v", got)
	}
}

func TestExternalChangeIgnoresForeignKeys(t *testing.T) {
	s, _ := newTestStore(t)

	fires := 0
	unsub := s.Patterns.Subscribe(func([]domain.Pattern) { fires++ })
	defer unsub()

	s.dispatch(kvEvent("uxsync:workspace", `{}`))
	s.dispatch(kvEvent(KeyPrefix+"tags", `[]`))

	if fires != 0 {
		t.Fatalf("patterns listener fired %d times for foreign keys", fires)
	}
}
