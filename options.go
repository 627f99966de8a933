package uxsync

import (
	"time"

	"go.uber.org/zap"

	"github.com/uxarchive/uxsync/internal/kv"
	"github.com/uxarchive/uxsync/internal/optimize"
	"github.com/uxarchive/uxsync/internal/outbox"
)

type clientConfig struct {
	driver           string
	dir              string
	pollInterval     time.Duration
	addrs            []string
	username         string
	password         string
	readinessTimeout time.Duration

	backend kv.Store // overrides driver selection

	logger    *zap.Logger
	debounce  time.Duration
	outbox    outbox.Config
	optimizer optimize.Config
	remote    outbox.Backend
	seed      bool
}

// Option configures the Client.
type Option func(*clientConfig)

// WithMemoryStorage keeps all state in process memory. This is the default;
// nothing survives a restart.
func WithMemoryStorage() Option {
	return func(c *clientConfig) { c.driver = "memory" }
}

// WithFileStorage persists state as JSON files under dir. Other processes
// pointed at the same directory observe each other's writes.
func WithFileStorage(dir string) Option {
	return func(c *clientConfig) {
		c.driver = "file"
		c.dir = dir
	}
}

// WithPollInterval tunes how often the file driver checks for external
// changes.
func WithPollInterval(d time.Duration) Option {
	return func(c *clientConfig) { c.pollInterval = d }
}

// WithRedis persists state in Redis and propagates changes via pub/sub.
func WithRedis(addrs ...string) Option {
	return func(c *clientConfig) {
		c.driver = "redis"
		c.addrs = addrs
	}
}

// WithRedisAuth sets redis credentials.
func WithRedisAuth(username, password string) Option {
	return func(c *clientConfig) {
		c.username = username
		c.password = password
	}
}

// WithStorage plugs in a custom storage backend, bypassing driver selection.
func WithStorage(backend kv.Store) Option {
	return func(c *clientConfig) { c.backend = backend }
}

// WithLogger sets the logger; defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *clientConfig) { c.logger = logger }
}

// WithDebounce tunes the workspace persistence debounce window.
func WithDebounce(d time.Duration) Option {
	return func(c *clientConfig) { c.debounce = d }
}

// WithOutboxConfig tunes the mutation queue.
func WithOutboxConfig(cfg outbox.Config) Option {
	return func(c *clientConfig) { c.outbox = cfg }
}

// WithOptimizerConfig tunes the capture optimization pipeline.
func WithOptimizerConfig(cfg optimize.Config) Option {
	return func(c *clientConfig) { c.optimizer = cfg }
}

// WithRemoteBackend sets the remote system of record that queued mutations
// are applied to. Without one, mutations settle locally without effect.
func WithRemoteBackend(b outbox.Backend) Option {
	return func(c *clientConfig) { c.remote = b }
}

// WithSeed populates starter content on first run when storage is empty.
func WithSeed() Option {
	return func(c *clientConfig) { c.seed = true }
}

// WithReadinessTimeout bounds how long New waits for redis to become ready.
func WithReadinessTimeout(d time.Duration) Option {
	return func(c *clientConfig) { c.readinessTimeout = d }
}
