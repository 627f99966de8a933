package outbox

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/uxarchive/uxsync/internal/domain"
)

// Kind names the remote write a mutation performs.
type Kind string

const (
	KindCreate  Kind = "create"
	KindUpdate  Kind = "update"
	KindDelete  Kind = "delete"
	KindReplace Kind = "replace"
)

// Mutation is one queued write against the remote backend. IDs are ULIDs, so
// lexicographic order matches enqueue order.
type Mutation struct {
	ID         string               `json:"id"`
	Collection domain.CollectionKey `json:"collection"`
	Kind       Kind                 `json:"kind"`
	EntityID   string               `json:"entity_id,omitempty"`
	Payload    json.RawMessage      `json:"payload,omitempty"`
	EnqueuedAt time.Time            `json:"enqueued_at"`
}

// Backend applies mutations to the remote system of record.
type Backend interface {
	Apply(ctx context.Context, m Mutation) error
}

// BackendFunc adapts a function to the Backend interface.
type BackendFunc func(ctx context.Context, m Mutation) error

// Apply implements Backend.
func (f BackendFunc) Apply(ctx context.Context, m Mutation) error { return f(ctx, m) }

// EventType classifies queue lifecycle events.
type EventType string

const (
	// EventEnqueued fires when a mutation is accepted.
	EventEnqueued EventType = "enqueued"
	// EventPaused fires when a mutation is parked awaiting connectivity.
	EventPaused EventType = "paused"
	// EventResumed fires when a parked mutation re-enters the queue.
	EventResumed EventType = "resumed"
	// EventSucceeded fires when a mutation settles successfully.
	EventSucceeded EventType = "succeeded"
	// EventFailed fires when a mutation exhausts its retries.
	EventFailed EventType = "failed"
)

// Event describes one mutation state transition.
type Event struct {
	Type     EventType
	Mutation Mutation
	Err      error
}

// NewID generates a time-ordered mutation id.
func NewID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}
