// Package snapshot bridges the imperative collection store to a declarative
// "subscribe + pull consistent snapshot" read model: one merged view across
// all five collections, updated slice-by-slice so unaffected collections keep
// their identity between updates.
package snapshot

import (
	"context"
	"sync"

	"github.com/uxarchive/uxsync/internal/domain"
	"github.com/uxarchive/uxsync/internal/store"
)

// Snapshot is the merged read model. Slices are shared between consumers and
// must be treated as immutable; only the slice for a changed collection is
// replaced on update, so consumers can memoize on sub-slices.
type Snapshot struct {
	Patterns []domain.Pattern `json:"patterns"`
	Folders  []domain.Folder  `json:"folders"`
	Captures []domain.Capture `json:"captures"`
	Insights []domain.Insight `json:"insights"`
	Tags     []domain.Tag     `json:"tags"`
}

// Empty returns the all-empty snapshot served when no storage-backed state is
// available (the server-render analog).
func Empty() Snapshot { return Snapshot{} }

// Source maintains the merged snapshot and fans out change notifications.
// Upstream per-collection subscriptions are reference-counted: they exist
// only while at least one consumer is subscribed.
type Source struct {
	store *store.Store

	mu        sync.Mutex
	current   Snapshot
	listeners map[int]func(Snapshot)
	nextSub   int
	refs      int
	detach    []func()
}

// NewSource creates a snapshot source over the given store.
func NewSource(s *store.Store) *Source {
	return &Source{store: s, listeners: make(map[int]func(Snapshot))}
}

// Snapshot returns the current merged view. With no active subscribers the
// view is pulled fresh from the store; while subscribed it is served from the
// incrementally-maintained copy.
func (s *Source) Snapshot(ctx context.Context) Snapshot {
	s.mu.Lock()
	if s.refs > 0 {
		snap := s.current
		s.mu.Unlock()
		return snap
	}
	s.mu.Unlock()
	return s.pull(ctx)
}

// Subscribe registers a listener invoked with the new merged snapshot after
// any collection changes. The first subscriber attaches the upstream
// subscriptions; the returned unsubscribe tears them down when the last
// consumer leaves.
func (s *Source) Subscribe(ctx context.Context, fn func(Snapshot)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.listeners[id] = fn
	s.refs++
	first := s.refs == 1
	s.mu.Unlock()

	if first {
		s.attach(ctx)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.refs--
			last := s.refs == 0
			detach := s.detach
			if last {
				s.detach = nil
			}
			s.mu.Unlock()

			if last {
				for _, d := range detach {
					d()
				}
			}
		})
	}
}

func (s *Source) attach(ctx context.Context) {
	// Prime the merged view before wiring updates so the first Snapshot call
	// after Subscribe is already consistent.
	primed := s.pull(ctx)

	s.mu.Lock()
	s.current = primed
	s.detach = []func(){
		s.store.Patterns.Subscribe(func(items []domain.Pattern) {
			s.swap(func(c *Snapshot) { c.Patterns = items })
		}),
		s.store.Folders.Subscribe(func(items []domain.Folder) {
			s.swap(func(c *Snapshot) { c.Folders = items })
		}),
		s.store.Captures.Subscribe(func(items []domain.Capture) {
			s.swap(func(c *Snapshot) { c.Captures = items })
		}),
		s.store.Insights.Subscribe(func(items []domain.Insight) {
			s.swap(func(c *Snapshot) { c.Insights = items })
		}),
		s.store.Tags.Subscribe(func(items []domain.Tag) {
			s.swap(func(c *Snapshot) { c.Tags = items })
		}),
	}
	s.mu.Unlock()
}

// swap replaces one slice of the merged view and notifies all listeners.
func (s *Source) swap(apply func(*Snapshot)) {
	s.mu.Lock()
	apply(&s.current)
	snap := s.current
	fns := make([]func(Snapshot), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

func (s *Source) pull(ctx context.Context) Snapshot {
	return Snapshot{
		Patterns: s.store.Patterns.GetAll(ctx),
		Folders:  s.store.Folders.GetAll(ctx),
		Captures: s.store.Captures.GetAll(ctx),
		Insights: s.store.Insights.GetAll(ctx),
		Tags:     s.store.Tags.GetAll(ctx),
	}
}
