// Package kv defines the durable storage contract used by the collection
// store and the workspace state: a string-keyed byte store with a change feed
// for writes made by other processes sharing the same storage.
package kv

import "context"

// Event describes an externally-observed change to a key. Value is nil when
// the key was deleted.
type Event struct {
	Key   string
	Value []byte
}

// Store is the durable storage facade. Implementations must deliver Watch
// events only for changes made by *other* stores/processes; a store never
// observes its own writes through Watch.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Del(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Watch returns a channel of external change events. The channel is
	// closed when ctx is cancelled or the store is closed.
	Watch(ctx context.Context) (<-chan Event, error)

	Close()
}
