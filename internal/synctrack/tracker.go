// Package synctrack derives a single connectivity/sync summary from the
// mutation outbox: how many writes are waiting, whether any failed, and
// whether a bulk retry is in flight. Recomputation is deferred to a dedicated
// goroutine so a burst of queue events collapses into one notification.
package synctrack

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/uxarchive/uxsync/internal/outbox"
)

// Status is the aggregate sync state shown to users.
type Status struct {
	Online    bool   `json:"online"`
	Pending   int    `json:"pending"`
	Failed    int    `json:"failed"`
	Retrying  bool   `json:"retrying"`
	LastError string `json:"last_error,omitempty"`
}

// MutationCache is the slice of the outbox the tracker needs.
type MutationCache interface {
	Counts() (pending, paused, failed int)
	Online() bool
	LastError() error
	Subscribe(fn func(outbox.Event)) func()
	ResumePaused()
	RetryFailed()
}

// Refetcher refreshes locally cached data after a bulk retry.
type Refetcher interface {
	RefetchActive(ctx context.Context) error
}

// RefetcherFunc adapts a function to the Refetcher interface.
type RefetcherFunc func(ctx context.Context) error

// RefetchActive implements Refetcher.
func (f RefetcherFunc) RefetchActive(ctx context.Context) error { return f(ctx) }

// Tracker observes a mutation cache and publishes Status changes.
type Tracker struct {
	cache   MutationCache
	refetch Refetcher
	log     *zap.Logger

	notify chan struct{}
	quit   chan struct{}
	wg     sync.WaitGroup

	retrying atomic.Bool

	mu      sync.Mutex
	status  Status
	subs    map[int]func(Status)
	nextSub int
	unsub   func()
}

// New creates a tracker over the cache and starts its recompute loop.
// refetch may be nil when there is nothing to refresh.
func New(cache MutationCache, refetch Refetcher, log *zap.Logger) *Tracker {
	if log == nil {
		log = zap.NewNop()
	}
	t := &Tracker{
		cache:   cache,
		refetch: refetch,
		log:     log,
		notify:  make(chan struct{}, 1),
		quit:    make(chan struct{}),
		subs:    make(map[int]func(Status)),
	}
	t.status = t.compute()
	t.unsub = cache.Subscribe(func(outbox.Event) { t.kick() })
	t.wg.Add(1)
	go t.run()
	return t
}

// Status returns the current aggregate state.
func (t *Tracker) Status() Status {
	return t.compute()
}

// Subscribe registers a listener fired after every status change. The
// returned function removes it.
func (t *Tracker) Subscribe(fn func(Status)) func() {
	t.mu.Lock()
	id := t.nextSub
	t.nextSub++
	t.subs[id] = fn
	t.mu.Unlock()
	return func() {
		t.mu.Lock()
		delete(t.subs, id)
		t.mu.Unlock()
	}
}

// RetryAll resumes parked mutations, re-submits failed ones and refetches
// active data. Concurrent calls collapse: while one retry is in flight every
// other call returns immediately. Failures are logged, never surfaced.
func (t *Tracker) RetryAll(ctx context.Context) {
	if !t.retrying.CompareAndSwap(false, true) {
		return
	}
	t.kick()

	t.cache.ResumePaused()
	t.cache.RetryFailed()
	if t.refetch != nil {
		if err := t.refetch.RefetchActive(ctx); err != nil {
			t.log.Warn("refetch after retry failed", zap.Error(err))
		}
	}

	t.retrying.Store(false)
	t.kick()
}

// Close detaches from the cache and stops the recompute loop.
func (t *Tracker) Close() {
	t.unsub()
	close(t.quit)
	t.wg.Wait()
}

// kick requests a deferred recompute; coalesces when one is already queued.
func (t *Tracker) kick() {
	select {
	case t.notify <- struct{}{}:
	default:
	}
}

func (t *Tracker) run() {
	defer t.wg.Done()
	for {
		select {
		case <-t.quit:
			return
		case <-t.notify:
			st := t.compute()
			t.mu.Lock()
			if st == t.status {
				t.mu.Unlock()
				continue
			}
			t.status = st
			fns := make([]func(Status), 0, len(t.subs))
			for _, fn := range t.subs {
				fns = append(fns, fn)
			}
			t.mu.Unlock()
			for _, fn := range fns {
				fn(st)
			}
		}
	}
}

func (t *Tracker) compute() Status {
	pending, paused, failed := t.cache.Counts()
	st := Status{
		Online:   t.cache.Online(),
		Pending:  pending + paused,
		Failed:   failed,
		Retrying: t.retrying.Load(),
	}
	if err := t.cache.LastError(); err != nil {
		st.LastError = err.Error()
	}
	return st
}
