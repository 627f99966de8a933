// Package store implements the persistent collection store: five
// independently-addressable, durably persisted, independently observable
// entity collections over a kv.Store.
package store

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/uxarchive/uxsync/internal/domain"
	"github.com/uxarchive/uxsync/internal/kv"
)

// KeyPrefix namespaces every durable key written by the collection store.
const KeyPrefix = "uxsync:collections:"

// Store aggregates the five entity collections. Construct one per storage
// backend; independent instances never share state, so tests can run in
// isolation (process-wide singletons live at the composition root only).
type Store struct {
	Patterns *Collection[domain.Pattern]
	Folders  *Collection[domain.Folder]
	Captures *Collection[domain.Capture]
	Insights *Collection[domain.Insight]
	Tags     *Collection[domain.Tag]

	log *zap.Logger
}

// New creates a collection store over the given storage backend.
func New(backend kv.Store, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		Patterns: newCollection[domain.Pattern](string(domain.KeyPatterns), kvKeyFor(domain.KeyPatterns), backend, log),
		Folders:  newCollection[domain.Folder](string(domain.KeyFolders), kvKeyFor(domain.KeyFolders), backend, log),
		Captures: newCollection[domain.Capture](string(domain.KeyCaptures), kvKeyFor(domain.KeyCaptures), backend, log),
		Insights: newCollection[domain.Insight](string(domain.KeyInsights), kvKeyFor(domain.KeyInsights), backend, log),
		Tags:     newCollection[domain.Tag](string(domain.KeyTags), kvKeyFor(domain.KeyTags), backend, log),
		log:      log,
	}
}

// HandleExternal applies a storage change made by another process,
// re-broadcasting to the affected collection's subscribers. Events for keys
// outside the collection namespace are ignored. This keeps multiple processes
// over the same storage eventually consistent (last writer wins per key).
func (s *Store) HandleExternal(ev kv.Event) {
	s.dispatch(ev)
}

// Empty reports whether all five collections are empty.
func (s *Store) Empty(ctx context.Context) bool {
	return s.Patterns.Len(ctx) == 0 &&
		s.Folders.Len(ctx) == 0 &&
		s.Captures.Len(ctx) == 0 &&
		s.Insights.Len(ctx) == 0 &&
		s.Tags.Len(ctx) == 0
}

// Refetch re-reads every collection from durable storage and rebroadcasts.
func (s *Store) Refetch(ctx context.Context) error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	keep(s.Patterns.Refetch(ctx))
	keep(s.Folders.Refetch(ctx))
	keep(s.Captures.Refetch(ctx))
	keep(s.Insights.Refetch(ctx))
	keep(s.Tags.Refetch(ctx))
	return firstErr
}

func (s *Store) dispatch(ev kv.Event) {
	if !strings.HasPrefix(ev.Key, KeyPrefix) {
		return
	}
	switch domain.CollectionKey(strings.TrimPrefix(ev.Key, KeyPrefix)) {
	case domain.KeyPatterns:
		s.Patterns.applyExternal(ev.Value)
	case domain.KeyFolders:
		s.Folders.applyExternal(ev.Value)
	case domain.KeyCaptures:
		s.Captures.applyExternal(ev.Value)
	case domain.KeyInsights:
		s.Insights.applyExternal(ev.Value)
	case domain.KeyTags:
		s.Tags.applyExternal(ev.Value)
	}
}

func kvKeyFor(key domain.CollectionKey) string {
	return KeyPrefix + string(key)
}
