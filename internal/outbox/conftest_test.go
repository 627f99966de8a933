package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/uxarchive/uxsync/internal/domain"
)

// recordingBackend records applied mutations and fails the first failN
// applications.
type recordingBackend struct {
	mu      sync.Mutex
	applied []Mutation
	failN   int
	calls   int
}

func (b *recordingBackend) Apply(_ context.Context, m Mutation) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.calls <= b.failN {
		return errors.New("backend unavailable")
	}
	b.applied = append(b.applied, m)
	return nil
}

func (b *recordingBackend) appliedIDs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]string, len(b.applied))
	for i, m := range b.applied {
		ids[i] = m.ID
	}
	return ids
}

func (b *recordingBackend) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func fastConfig() Config {
	return Config{
		QueueSize:      16,
		MaxAttempts:    3,
		BaseBackoff:    time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		EnqueueTimeout: 100 * time.Millisecond,
	}
}

func testMutation(id string) Mutation {
	return Mutation{
		ID:         id,
		Collection: domain.KeyPatterns,
		Kind:       KindUpdate,
		EntityID:   "p1",
	}
}

// watchEvents subscribes and returns a buffered channel of events; the
// subscription is removed on test cleanup.
func watchEvents(t *testing.T, q *Queue) <-chan Event {
	t.Helper()
	ch := make(chan Event, 64)
	unsub := q.Subscribe(func(ev Event) { ch <- ev })
	t.Cleanup(unsub)
	return ch
}

// waitFor blocks until an event of the wanted type arrives.
func waitFor(t *testing.T, ch <-chan Event, want EventType) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Type == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q event", want)
			return Event{}
		}
	}
}
