package store

import (
	"context"
	"sync"
	"testing"

	"github.com/uxarchive/uxsync/internal/domain"
	"github.com/uxarchive/uxsync/internal/kv"
	"github.com/uxarchive/uxsync/internal/kv/memory"
)

func newTestStore(t *testing.T) (*Store, *memory.Store) {
	t.Helper()
	backend := memory.NewStore()
	return New(backend, nil), backend
}

func testPattern(id, name string) domain.Pattern {
	return domain.Pattern{
		ID:          id,
		FolderID:    "f1",
		Name:        name,
		ServiceName: "checkout-flow",
		Tags:        []domain.Tag{{ID: "t1", Label: "onboarding", Type: domain.TagPatternType}},
		CreatedAt:   1700000000000,
		UpdatedAt:   1700000000000,
	}
}

func kvEvent(key, payload string) kv.Event {
	return kv.Event{Key: key, Value: []byte(payload)}
}

// failingKV wraps a kv.Store and fails every Set. Used to verify dropped-write
// semantics.
type failingKV struct {
	kv.Store
	mu   sync.Mutex
	sets int
}

func (f *failingKV) Set(ctx context.Context, key string, value []byte) error {
	f.mu.Lock()
	f.sets++
	f.mu.Unlock()
	return &kv.Error{Op: kv.OpSet, Err: context.DeadlineExceeded}
}
