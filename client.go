// Package uxsync is the UX archive collection store and sync layer: durably
// persisted entity collections with change subscriptions, a merged snapshot
// read model, debounced workspace state, a retrying mutation outbox with an
// aggregate sync status, and a capture image optimization pipeline.
package uxsync

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/uxarchive/uxsync/internal/domain"
	"github.com/uxarchive/uxsync/internal/kv"
	kvFile "github.com/uxarchive/uxsync/internal/kv/file"
	kvMemory "github.com/uxarchive/uxsync/internal/kv/memory"
	kvRedis "github.com/uxarchive/uxsync/internal/kv/redis"
	"github.com/uxarchive/uxsync/internal/optimize"
	"github.com/uxarchive/uxsync/internal/outbox"
	"github.com/uxarchive/uxsync/internal/snapshot"
	"github.com/uxarchive/uxsync/internal/store"
	"github.com/uxarchive/uxsync/internal/synctrack"
	"github.com/uxarchive/uxsync/internal/workspace"
)

const defaultReadinessTimeout = 10 * time.Second

// Re-exported domain types so callers need only this package.
type (
	Pattern = domain.Pattern
	Folder  = domain.Folder
	Capture = domain.Capture
	Insight = domain.Insight
	Tag     = domain.Tag
	TagType = domain.TagType

	PatternCollection = store.Collection[domain.Pattern]
	FolderCollection  = store.Collection[domain.Folder]
	CaptureCollection = store.Collection[domain.Capture]
	InsightCollection = store.Collection[domain.Insight]
	TagCollection     = store.Collection[domain.Tag]

	WorkspaceState = workspace.State
	SyncStatus     = synctrack.Status
	Snapshot       = snapshot.Snapshot
	Mutation       = outbox.Mutation
	OptimizeResult = optimize.Result
)

// Client is the uxsync SDK entry point.
type Client struct {
	backend   kv.Store
	store     *store.Store
	snap      *snapshot.Source
	workspace *workspace.Store
	queue     *outbox.Queue
	tracker   *synctrack.Tracker
	optimizer *optimize.Optimizer
	logger    *zap.Logger

	watchCancel context.CancelFunc
	watchDone   chan struct{}
}

// New creates a uxsync Client, connects storage and starts the external
// change watcher.
func New(opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		driver:           "memory",
		readinessTimeout: defaultReadinessTimeout,
	}
	for _, o := range opts {
		o(cfg)
	}

	logger := cfg.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	backend, err := createBackend(cfg)
	if err != nil {
		return nil, err
	}

	remote := cfg.remote
	if remote == nil {
		// Local-only mode: mutations settle immediately.
		remote = outbox.BackendFunc(func(context.Context, outbox.Mutation) error { return nil })
	}

	st := store.New(backend, logger)
	snap := snapshot.NewSource(st)
	ws := workspace.New(backend, logger, cfg.debounce)
	queue := outbox.New(remote, logger, cfg.outbox)
	tracker := synctrack.New(queue, synctrack.RefetcherFunc(st.Refetch), logger)
	optimizer := optimize.New(cfg.optimizer, logger)

	c := &Client{
		backend:   backend,
		store:     st,
		snap:      snap,
		workspace: ws,
		queue:     queue,
		tracker:   tracker,
		optimizer: optimizer,
		logger:    logger,
	}

	ctx := context.Background()
	if cfg.seed {
		snap.Seed(ctx, false)
	}
	if err := c.startWatch(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("uxsync: start storage watch: %w", err)
	}

	return c, nil
}

func createBackend(cfg *clientConfig) (kv.Store, error) {
	if cfg.backend != nil {
		return cfg.backend, nil
	}
	switch cfg.driver {
	case "memory":
		return kvMemory.NewStore(), nil
	case "file":
		s, err := kvFile.NewStore(kvFile.Config{
			Dir:          cfg.dir,
			PollInterval: cfg.pollInterval,
		})
		if err != nil {
			return nil, fmt.Errorf("uxsync: create file store: %w", err)
		}
		return s, nil
	case "redis":
		s, err := kvRedis.NewStore(kvRedis.Config{
			Addrs:    cfg.addrs,
			Username: cfg.username,
			Password: cfg.password,
		})
		if err != nil {
			return nil, fmt.Errorf("uxsync: create redis store: %w", err)
		}
		if err := s.WaitForReady(context.Background(), cfg.readinessTimeout); err != nil {
			s.Close()
			return nil, fmt.Errorf("uxsync: redis not ready: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("uxsync: unknown driver %q", cfg.driver)
	}
}

// startWatch runs the single consumer of storage change events, fanning each
// event out to the collection store and the workspace store.
func (c *Client) startWatch(ctx context.Context) error {
	watchCtx, cancel := context.WithCancel(ctx)
	events, err := c.backend.Watch(watchCtx)
	if err != nil {
		cancel()
		return err
	}

	c.watchCancel = cancel
	c.watchDone = make(chan struct{})
	go func() {
		defer close(c.watchDone)
		for ev := range events {
			c.store.HandleExternal(ev)
			c.workspace.HandleExternal(ev)
		}
	}()
	return nil
}

// Close flushes pending state and releases all resources.
func (c *Client) Close() {
	ctx := context.Background()
	if c.watchCancel != nil {
		c.watchCancel()
		<-c.watchDone
	}
	c.workspace.Flush(ctx)
	c.tracker.Close()
	_ = c.queue.Stop(ctx)
	c.optimizer.Close()
	c.backend.Close()
}

// Patterns returns the pattern collection.
func (c *Client) Patterns() *PatternCollection { return c.store.Patterns }

// Folders returns the folder collection.
func (c *Client) Folders() *FolderCollection { return c.store.Folders }

// Captures returns the capture collection.
func (c *Client) Captures() *CaptureCollection { return c.store.Captures }

// Insights returns the insight collection.
func (c *Client) Insights() *InsightCollection { return c.store.Insights }

// Tags returns the tag collection.
func (c *Client) Tags() *TagCollection { return c.store.Tags }

// Workspace returns the filter/selection state store.
func (c *Client) Workspace() *workspace.Store { return c.workspace }

// Snapshot returns the current merged view of all collections.
func (c *Client) Snapshot(ctx context.Context) Snapshot { return c.snap.Snapshot(ctx) }

// SubscribeSnapshot registers a listener for merged snapshot changes.
func (c *Client) SubscribeSnapshot(ctx context.Context, fn func(Snapshot)) func() {
	return c.snap.Subscribe(ctx, fn)
}

// Submit queues a mutation against the remote backend and returns its id.
func (c *Client) Submit(ctx context.Context, m Mutation) (string, error) {
	return c.queue.Enqueue(ctx, m)
}

// SetOnline flips the connectivity flag; going online resumes parked
// mutations.
func (c *Client) SetOnline(online bool) { c.queue.SetOnline(online) }

// SyncStatus returns the aggregate sync state.
func (c *Client) SyncStatus() SyncStatus { return c.tracker.Status() }

// SubscribeSyncStatus registers a listener for sync status changes.
func (c *Client) SubscribeSyncStatus(fn func(SyncStatus)) func() {
	return c.tracker.Subscribe(fn)
}

// RetryAll resumes parked mutations, re-submits failed ones and refetches
// collections. Concurrent calls collapse into one.
func (c *Client) RetryAll(ctx context.Context) { c.tracker.RetryAll(ctx) }

// Optimize shrinks a capture image for storage. Non-raster inputs pass
// through untouched.
func (c *Client) Optimize(ctx context.Context, name string, data []byte) OptimizeResult {
	return c.optimizer.Optimize(ctx, optimize.Input{Name: name, Data: data})
}

// Seed populates starter content; without force only when storage is empty.
// Reports whether seeding happened.
func (c *Client) Seed(ctx context.Context, force bool) bool {
	return c.snap.Seed(ctx, force)
}
