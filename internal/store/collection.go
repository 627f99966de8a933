package store

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/uxarchive/uxsync/internal/kv"
	"github.com/uxarchive/uxsync/internal/metrics"
)

// Entity is the contract stored items satisfy: a stable id plus a deep copy.
type Entity[T any] interface {
	EntityID() string
	Clone() T
}

// Collection is one durably persisted, independently observable entity list.
//
// Reads return deep copies, never live references. Mutations are applied
// read-modify-write under a single lock, persisted, and only then committed to
// memory and broadcast; a persistence failure drops the write entirely (spec'd
// at-most-once, no partial application). Duplicate ids on Create are a caller
// contract and deliberately not checked.
type Collection[T Entity[T]] struct {
	key   string // collection name, e.g. "patterns"
	kvKey string // durable key
	kv    kv.Store
	log   *zap.Logger

	mu        sync.Mutex
	items     []T
	hydrated  bool
	listeners map[int]func([]T)
	nextSub   int
}

func newCollection[T Entity[T]](key, kvKey string, store kv.Store, log *zap.Logger) *Collection[T] {
	return &Collection[T]{
		key:       key,
		kvKey:     kvKey,
		kv:        store,
		log:       log,
		listeners: make(map[int]func([]T)),
	}
}

// GetAll returns a deep copy of the current collection.
func (c *Collection[T]) GetAll(ctx context.Context) []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hydrateLocked(ctx)
	return cloneAll(c.items)
}

// GetByID returns a deep copy of the entity with the given id, if present.
func (c *Collection[T]) GetByID(ctx context.Context, id string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hydrateLocked(ctx)
	for _, item := range c.items {
		if item.EntityID() == id {
			return item.Clone(), true
		}
	}
	var zero T
	return zero, false
}

// Len returns the current number of entities.
func (c *Collection[T]) Len(ctx context.Context) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hydrateLocked(ctx)
	return len(c.items)
}

// SetAll replaces the entire collection.
func (c *Collection[T]) SetAll(ctx context.Context, items []T) {
	c.mutate(ctx, "set_all", func(_ []T) []T {
		return cloneAll(items)
	})
}

// Create appends the item. No uniqueness check is performed; duplicate ids
// are a caller contract, not enforced here.
func (c *Collection[T]) Create(ctx context.Context, item T) {
	c.mutate(ctx, "create", func(cur []T) []T {
		return append(cur, item.Clone())
	})
}

// Upsert replaces the entity with a matching id, or appends when absent.
func (c *Collection[T]) Upsert(ctx context.Context, item T) {
	c.mutate(ctx, "upsert", func(cur []T) []T {
		for i := range cur {
			if cur[i].EntityID() == item.EntityID() {
				cur[i] = item.Clone()
				return cur
			}
		}
		return append(cur, item.Clone())
	})
}

// Update applies a pure transformation to the matching entity. Returns false
// when no entity has that id; the collection is left untouched in that case.
func (c *Collection[T]) Update(ctx context.Context, id string, fn func(T) T) bool {
	found := false
	c.mutate(ctx, "update", func(cur []T) []T {
		for i := range cur {
			if cur[i].EntityID() == id {
				cur[i] = fn(cur[i].Clone())
				found = true
				return cur
			}
		}
		return nil // no-op, skip persist and notify
	})
	return found
}

// Remove filters out the matching entity. Removing a missing id is a no-op.
func (c *Collection[T]) Remove(ctx context.Context, id string) {
	c.mutate(ctx, "remove", func(cur []T) []T {
		for i := range cur {
			if cur[i].EntityID() == id {
				return append(cur[:i], cur[i+1:]...)
			}
		}
		return nil // not present, nothing to do
	})
}

// Clear empties the collection.
func (c *Collection[T]) Clear(ctx context.Context) {
	c.mutate(ctx, "clear", func(_ []T) []T {
		return []T{}
	})
}

// Subscribe registers a listener invoked with a deep copy of the collection
// whenever it changes. Returns an unsubscribe function.
func (c *Collection[T]) Subscribe(fn func([]T)) func() {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// Refetch re-reads the durable value and rebroadcasts it, discarding any
// in-memory state. Used after connectivity is restored.
func (c *Collection[T]) Refetch(ctx context.Context) error {
	data, err := c.kv.Get(ctx, c.kvKey)
	if err != nil && err != kv.ErrKeyNotFound {
		return err
	}
	c.applyExternal(data)
	return nil
}

// applyExternal replaces the in-memory state with data written by another
// process and notifies local subscribers. Corrupt payloads reset to empty:
// availability over strict integrity for this cache.
func (c *Collection[T]) applyExternal(data []byte) {
	items := c.parse(data)
	c.mu.Lock()
	c.items = items
	c.hydrated = true
	fns := c.snapshotListenersLocked()
	c.mu.Unlock()

	for _, fn := range fns {
		fn(cloneAll(items))
	}
}

// mutate runs fn on a working copy, persists the result, then commits and
// notifies. fn returning nil means no-op. Holding the lock across the kv write
// keeps writes strictly ordered per collection.
func (c *Collection[T]) mutate(ctx context.Context, op string, fn func([]T) []T) {
	c.mu.Lock()
	c.hydrateLocked(ctx)

	next := fn(cloneAll(c.items))
	if next == nil {
		c.mu.Unlock()
		return
	}

	data, err := json.Marshal(next)
	if err != nil {
		c.mu.Unlock()
		c.log.Warn("collection write dropped: marshal failed",
			zap.String("collection", c.key), zap.Error(err))
		metrics.StoreWriteFailuresTotal.WithLabelValues(c.key).Inc()
		return
	}
	if err := c.kv.Set(ctx, c.kvKey, data); err != nil {
		c.mu.Unlock()
		c.log.Warn("collection write dropped: storage failed",
			zap.String("collection", c.key), zap.Error(err))
		metrics.StoreWriteFailuresTotal.WithLabelValues(c.key).Inc()
		return
	}

	c.items = next
	fns := c.snapshotListenersLocked()
	c.mu.Unlock()

	metrics.StoreWritesTotal.WithLabelValues(c.key, op).Inc()
	for _, fn := range fns {
		fn(cloneAll(next))
	}
}

// hydrateLocked loads the durable value on first access. A missing key or a
// corrupt payload both yield an empty list.
func (c *Collection[T]) hydrateLocked(ctx context.Context) {
	if c.hydrated {
		return
	}
	c.hydrated = true

	data, err := c.kv.Get(ctx, c.kvKey)
	if err != nil {
		if err != kv.ErrKeyNotFound {
			c.log.Warn("collection hydrate failed, starting empty",
				zap.String("collection", c.key), zap.Error(err))
		}
		c.items = nil
		return
	}
	c.items = c.parse(data)
}

func (c *Collection[T]) parse(data []byte) []T {
	if len(data) == 0 {
		return nil
	}
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		c.log.Warn("corrupt collection payload discarded",
			zap.String("collection", c.key), zap.Error(err))
		return nil
	}
	return items
}

func (c *Collection[T]) snapshotListenersLocked() []func([]T) {
	fns := make([]func([]T), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	return fns
}

func cloneAll[T Entity[T]](items []T) []T {
	out := make([]T, len(items))
	for i, item := range items {
		out[i] = item.Clone()
	}
	return out
}
