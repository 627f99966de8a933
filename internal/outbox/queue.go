// Package outbox queues remote-backend mutations and settles them in the
// background: FIFO per queue, bounded retries with exponential backoff, and
// offline parking so mutations survive connectivity loss and resume later.
package outbox

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/uxarchive/uxsync/internal/metrics"
)

var (
	// ErrClosed is returned by Enqueue after Stop.
	ErrClosed = errors.New("outbox: queue closed")
	// ErrQueueFull is returned when the submission buffer is saturated.
	ErrQueueFull = errors.New("outbox: queue full")
)

// Config tunes the queue. Zero values pick defaults.
type Config struct {
	QueueSize      int           // submission buffer capacity (default 256)
	MaxAttempts    int           // attempts per mutation before it fails (default 5)
	BaseBackoff    time.Duration // first retry delay (default 100ms)
	MaxBackoff     time.Duration // retry delay ceiling (default 5s)
	EnqueueTimeout time.Duration // how long Enqueue blocks on a full buffer (default 1s)
}

func (c *Config) applyDefaults() {
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 100 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 5 * time.Second
	}
	if c.EnqueueTimeout <= 0 {
		c.EnqueueTimeout = time.Second
	}
}

type failedMutation struct {
	Mutation Mutation
	Err      error
}

// Queue is a single-worker FIFO mutation queue. One worker keeps submission
// order and prevents interleaved writes against the backend.
type Queue struct {
	cfg     Config
	backend Backend
	log     *zap.Logger

	jobs   chan Mutation
	quit   chan struct{}
	wg     sync.WaitGroup
	closed atomic.Bool
	online atomic.Bool

	mu      sync.Mutex
	pending int
	paused  []Mutation
	failed  []failedMutation
	lastErr error
	subs    map[int]func(Event)
	nextSub int
}

// New creates a queue over the backend and starts its worker. The queue
// starts online.
func New(backend Backend, log *zap.Logger, cfg Config) *Queue {
	if log == nil {
		log = zap.NewNop()
	}
	cfg.applyDefaults()
	q := &Queue{
		cfg:     cfg,
		backend: backend,
		log:     log,
		jobs:    make(chan Mutation, cfg.QueueSize),
		quit:    make(chan struct{}),
		subs:    make(map[int]func(Event)),
	}
	q.online.Store(true)
	q.wg.Add(1)
	go q.run()
	return q
}

// Enqueue submits a mutation. A missing ID is assigned. Returns the mutation
// id, or ErrQueueFull when the buffer stays saturated past the enqueue
// timeout.
func (q *Queue) Enqueue(ctx context.Context, m Mutation) (string, error) {
	if q.closed.Load() {
		return "", ErrClosed
	}
	if m.ID == "" {
		m.ID = NewID()
	}
	if m.EnqueuedAt.IsZero() {
		m.EnqueuedAt = time.Now()
	}

	// Count before handing off so the worker's settle never observes a
	// mutation it has not been charged for.
	q.mu.Lock()
	q.pending++
	q.mu.Unlock()

	t := time.NewTimer(q.cfg.EnqueueTimeout)
	defer t.Stop()
	select {
	case q.jobs <- m:
	case <-ctx.Done():
		q.uncharge()
		return "", ctx.Err()
	case <-t.C:
		q.uncharge()
		return "", ErrQueueFull
	}

	metrics.OutboxSubmissionsTotal.Inc()
	q.updateDepth()
	q.emit(Event{Type: EventEnqueued, Mutation: m})
	return m.ID, nil
}

// SetOnline flips the connectivity flag. Going back online re-submits every
// parked mutation.
func (q *Queue) SetOnline(online bool) {
	was := q.online.Swap(online)
	if online && !was {
		q.ResumePaused()
	}
}

// Online reports the connectivity flag.
func (q *Queue) Online() bool { return q.online.Load() }

// ResumePaused re-submits parked mutations in their original order. Mutations
// that do not fit the buffer stay parked.
func (q *Queue) ResumePaused() {
	q.mu.Lock()
	parked := q.paused
	q.paused = nil
	q.mu.Unlock()

	for i, m := range parked {
		q.mu.Lock()
		q.pending++
		q.mu.Unlock()
		select {
		case q.jobs <- m:
			q.emit(Event{Type: EventResumed, Mutation: m})
		default:
			q.uncharge()
			q.mu.Lock()
			q.paused = append(q.paused, parked[i:]...)
			q.mu.Unlock()
			q.updateDepth()
			return
		}
	}
	q.updateDepth()
}

// RetryFailed re-submits every failed mutation, clearing its failure record.
func (q *Queue) RetryFailed() {
	q.mu.Lock()
	retry := q.failed
	q.failed = nil
	q.lastErr = nil
	q.mu.Unlock()

	for i, f := range retry {
		q.mu.Lock()
		q.pending++
		q.mu.Unlock()
		select {
		case q.jobs <- f.Mutation:
			q.emit(Event{Type: EventResumed, Mutation: f.Mutation})
		default:
			q.uncharge()
			q.mu.Lock()
			q.failed = append(q.failed, retry[i:]...)
			q.mu.Unlock()
			q.updateDepth()
			return
		}
	}
	q.updateDepth()
}

// Counts returns the number of in-flight, parked and failed mutations.
func (q *Queue) Counts() (pending, paused, failed int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending, len(q.paused), len(q.failed)
}

// LastError returns the most recent terminal failure, or nil.
func (q *Queue) LastError() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lastErr
}

// Subscribe registers a listener for queue events. The returned function
// removes it.
func (q *Queue) Subscribe(fn func(Event)) func() {
	q.mu.Lock()
	id := q.nextSub
	q.nextSub++
	q.subs[id] = fn
	q.mu.Unlock()
	return func() {
		q.mu.Lock()
		delete(q.subs, id)
		q.mu.Unlock()
	}
}

// Stop shuts the worker down, draining already-buffered mutations first.
// Blocks until the drain completes or ctx expires.
func (q *Queue) Stop(ctx context.Context) error {
	if !q.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(q.quit)

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) run() {
	defer q.wg.Done()
	for {
		select {
		case <-q.quit:
			q.drain()
			return
		case m := <-q.jobs:
			q.process(m)
		}
	}
}

// drain settles whatever is already buffered so accepted mutations are not
// silently lost on shutdown.
func (q *Queue) drain() {
	for {
		select {
		case m := <-q.jobs:
			q.process(m)
		default:
			return
		}
	}
}

func (q *Queue) process(m Mutation) {
	if !q.online.Load() {
		q.park(m)
		return
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = q.cfg.BaseBackoff
	bo.MaxInterval = q.cfg.MaxBackoff
	bo.Reset()

	var lastErr error
	for attempt := 1; attempt <= q.cfg.MaxAttempts; attempt++ {
		lastErr = q.backend.Apply(context.Background(), m)
		if lastErr == nil {
			q.settle(m)
			return
		}
		q.log.Warn("mutation attempt failed",
			zap.String("mutation_id", m.ID),
			zap.String("collection", string(m.Collection)),
			zap.Int("attempt", attempt),
			zap.Error(lastErr))

		if !q.online.Load() {
			q.park(m)
			return
		}
		if attempt < q.cfg.MaxAttempts {
			time.Sleep(bo.NextBackOff())
		}
	}
	q.fail(m, lastErr)
}

func (q *Queue) settle(m Mutation) {
	q.mu.Lock()
	q.pending--
	q.mu.Unlock()
	q.updateDepth()
	q.emit(Event{Type: EventSucceeded, Mutation: m})
}

func (q *Queue) park(m Mutation) {
	q.mu.Lock()
	q.pending--
	q.paused = append(q.paused, m)
	q.mu.Unlock()
	q.updateDepth()
	q.emit(Event{Type: EventPaused, Mutation: m})
}

func (q *Queue) fail(m Mutation, err error) {
	q.mu.Lock()
	q.pending--
	q.failed = append(q.failed, failedMutation{Mutation: m, Err: err})
	q.lastErr = err
	q.mu.Unlock()
	metrics.OutboxFailuresTotal.Inc()
	q.updateDepth()
	q.log.Error("mutation failed permanently",
		zap.String("mutation_id", m.ID),
		zap.String("collection", string(m.Collection)),
		zap.Error(err))
	q.emit(Event{Type: EventFailed, Mutation: m, Err: err})
}

func (q *Queue) uncharge() {
	q.mu.Lock()
	q.pending--
	q.mu.Unlock()
}

func (q *Queue) updateDepth() {
	q.mu.Lock()
	depth := q.pending + len(q.paused)
	q.mu.Unlock()
	metrics.OutboxQueueDepth.Set(float64(depth))
}

// emit invokes subscribers outside the lock; a panicking subscriber must not
// take the worker down.
func (q *Queue) emit(ev Event) {
	q.mu.Lock()
	fns := make([]func(Event), 0, len(q.subs))
	for _, fn := range q.subs {
		fns = append(fns, fn)
	}
	q.mu.Unlock()
	for _, fn := range fns {
		func() {
			defer func() {
				if r := recover(); r != nil {
					q.log.Error("outbox subscriber panicked", zap.Any("panic", r))
				}
			}()
			fn(ev)
		}()
	}
}
