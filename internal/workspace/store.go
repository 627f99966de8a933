// Package workspace holds the filter/selection UI state with debounced
// persistence. Rapid successive updates (fast typing in the search box)
// coalesce into a single durable write; no-op updates never notify listeners
// or touch storage.
package workspace

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/uxarchive/uxsync/internal/kv"
)

// Key is the durable key the workspace state is persisted under.
const Key = "uxsync:workspace"

const defaultDebounce = 200 * time.Millisecond

// Store owns the workspace state. Constructor-injected so independent
// instances can exist in tests without cross-test leakage.
type Store struct {
	kv       kv.Store
	log      *zap.Logger
	debounce time.Duration

	mu        sync.Mutex
	state     State
	hydrated  bool
	timer     *time.Timer
	listeners map[int]func(State)
	nextSub   int
}

// New creates a workspace store. debounce <= 0 uses the 200ms default.
func New(backend kv.Store, log *zap.Logger, debounce time.Duration) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	return &Store{
		kv:        backend,
		log:       log,
		debounce:  debounce,
		state:     DefaultState(),
		listeners: make(map[int]func(State)),
	}
}

// State returns a copy of the current state.
func (s *Store) State(ctx context.Context) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hydrateLocked(ctx)
	return s.state.clone()
}

// Subscribe registers a listener fired after every effective state change.
func (s *Store) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// SetSearchTerm updates the free-text search term.
func (s *Store) SetSearchTerm(ctx context.Context, term string) {
	s.apply(ctx, func(st *State) { st.SearchTerm = term })
}

// SetFolderFilter sets the active folder filter; empty clears it.
func (s *Store) SetFolderFilter(ctx context.Context, folderID string) {
	s.apply(ctx, func(st *State) { st.FolderFilter = folderID })
}

// SetFavoriteOnly sets the favorites-only toggle.
func (s *Store) SetFavoriteOnly(ctx context.Context, on bool) {
	s.apply(ctx, func(st *State) { st.FavoriteOnly = on })
}

// ToggleFavoriteOnly flips the favorites-only toggle.
func (s *Store) ToggleFavoriteOnly(ctx context.Context) {
	s.apply(ctx, func(st *State) { st.FavoriteOnly = !st.FavoriteOnly })
}

// ToggleTagFilter adds the tag to the active filter set, or removes it when
// already present.
func (s *Store) ToggleTagFilter(ctx context.Context, tagID string) {
	s.apply(ctx, func(st *State) {
		for i, id := range st.TagFilters {
			if id == tagID {
				st.TagFilters = append(st.TagFilters[:i], st.TagFilters[i+1:]...)
				return
			}
		}
		st.TagFilters = append(st.TagFilters, tagID)
	})
}

// SetSelectedPattern updates the current pattern selection.
func (s *Store) SetSelectedPattern(ctx context.Context, id string) {
	s.apply(ctx, func(st *State) { st.SelectedPatternID = id })
}

// SetSelectedCapture updates the current capture selection.
func (s *Store) SetSelectedCapture(ctx context.Context, id string) {
	s.apply(ctx, func(st *State) { st.SelectedCaptureID = id })
}

// SetSelectedInsight updates the current insight selection.
func (s *Store) SetSelectedInsight(ctx context.Context, id string) {
	s.apply(ctx, func(st *State) { st.SelectedInsightID = id })
}

// Reset restores defaults, persists immediately (bypassing the debounce) and
// notifies.
func (s *Store) Reset(ctx context.Context) {
	s.mu.Lock()
	s.hydrateLocked(ctx)
	s.cancelTimerLocked()
	s.state = DefaultState()
	fns := s.listenersLocked()
	st := s.state.clone()
	s.mu.Unlock()

	s.persist(ctx, st)
	for _, fn := range fns {
		fn(st.clone())
	}
}

// Flush persists any pending debounced write immediately. Used on teardown.
func (s *Store) Flush(ctx context.Context) {
	s.mu.Lock()
	pending := s.timer != nil
	s.cancelTimerLocked()
	st := s.state.clone()
	s.mu.Unlock()
	if pending {
		s.persist(ctx, st)
	}
}

// HandleExternal rehydrates the whole state from a change made by another
// process and notifies listeners (last writer wins across processes).
func (s *Store) HandleExternal(ev kv.Event) {
	if ev.Key != Key {
		return
	}
	st := DefaultState()
	if ev.Value != nil {
		st = decode(ev.Value)
	}

	s.mu.Lock()
	s.hydrated = true
	if s.state.equal(st) {
		s.mu.Unlock()
		return
	}
	s.cancelTimerLocked()
	s.state = st
	fns := s.listenersLocked()
	s.mu.Unlock()

	for _, fn := range fns {
		fn(st.clone())
	}
}

// apply runs a mutation, suppresses no-ops, notifies, and schedules the
// debounced persist.
func (s *Store) apply(ctx context.Context, fn func(*State)) {
	s.mu.Lock()
	s.hydrateLocked(ctx)

	next := s.state.clone()
	fn(&next)
	if s.state.equal(next) {
		s.mu.Unlock()
		return
	}
	s.state = next
	fns := s.listenersLocked()
	s.scheduleLocked()
	st := next.clone()
	s.mu.Unlock()

	for _, fn := range fns {
		fn(st.clone())
	}
}

// scheduleLocked restarts the debounce timer; each mutating call cancels and
// reschedules, so only the trailing edge persists.
func (s *Store) scheduleLocked() {
	s.cancelTimerLocked()
	s.timer = time.AfterFunc(s.debounce, func() {
		s.mu.Lock()
		s.timer = nil
		st := s.state.clone()
		s.mu.Unlock()
		s.persist(context.Background(), st)
	})
}

func (s *Store) cancelTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Store) persist(ctx context.Context, st State) {
	data, err := json.Marshal(st)
	if err != nil {
		s.log.Warn("workspace persist dropped: marshal failed", zap.Error(err))
		return
	}
	if err := s.kv.Set(ctx, Key, data); err != nil {
		s.log.Warn("workspace persist dropped: storage failed", zap.Error(err))
	}
}

func (s *Store) hydrateLocked(ctx context.Context) {
	if s.hydrated {
		return
	}
	s.hydrated = true
	data, err := s.kv.Get(ctx, Key)
	if err != nil {
		return // no prior state
	}
	s.state = decode(data)
}

func (s *Store) listenersLocked() []func(State) {
	fns := make([]func(State), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	return fns
}
