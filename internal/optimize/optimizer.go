// Package optimize shrinks capture images before they enter the collection
// store: downscale to a dimension cap, re-encode as lossy WebP (lossless PNG
// when WebP encoding is not possible), and pass anything non-raster through
// untouched. Work runs on a lazily started worker pool; when the pool cannot
// take the job the transform runs inline, and when the transform itself fails
// the original bytes are kept.
package optimize

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/uxarchive/uxsync/internal/metrics"
)

// Config tunes the optimizer. Zero values pick defaults.
type Config struct {
	MaxDimension int     // longest-side cap in pixels (default 2048)
	Quality      float32 // WebP quality 0-100 (default 82)
	Workers      int     // pool size (default 2)
	QueueSize    int     // pool job buffer (default 16)
}

func (c *Config) applyDefaults() {
	if c.MaxDimension <= 0 {
		c.MaxDimension = 2048
	}
	if c.Quality <= 0 || c.Quality > 100 {
		c.Quality = 82
	}
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 16
	}
}

// Optimizer owns the strategy chain. The worker pool starts on first use.
type Optimizer struct {
	cfg Config
	log *zap.Logger

	poolOnce sync.Once
	pool     *pool
	closed   bool
	mu       sync.Mutex
}

// New creates an optimizer. No goroutines start until the first Optimize.
func New(cfg Config, log *zap.Logger) *Optimizer {
	if log == nil {
		log = zap.NewNop()
	}
	cfg.applyDefaults()
	return &Optimizer{cfg: cfg, log: log}
}

// Optimize transforms one capture. It never fails: a blob that cannot be
// optimized is returned unchanged with Optimized false.
func (o *Optimizer) Optimize(ctx context.Context, in Input) Result {
	start := time.Now()

	if p := o.getPool(); p != nil {
		res, err := p.submit(ctx, in)
		if err == nil {
			metrics.OptimizeDuration.WithLabelValues("pool").Observe(time.Since(start).Seconds())
			return res
		}
		if errors.Is(err, errUnsupported) {
			// The transform itself rejected the input; inline would too.
			metrics.OptimizeDuration.WithLabelValues("passthrough").Observe(time.Since(start).Seconds())
			return passthrough(in)
		}
		metrics.OptimizeFallbacksTotal.WithLabelValues("pool").Inc()
		o.log.Debug("optimize pool unavailable, running inline",
			zap.String("name", in.Name), zap.Error(err))
	}

	res, err := o.transform(in)
	if err == nil {
		metrics.OptimizeDuration.WithLabelValues("inline").Observe(time.Since(start).Seconds())
		return res
	}
	metrics.OptimizeFallbacksTotal.WithLabelValues("inline").Inc()
	if !errors.Is(err, errUnsupported) {
		o.log.Warn("optimize failed, storing original",
			zap.String("name", in.Name), zap.Error(err))
	}
	metrics.OptimizeDuration.WithLabelValues("passthrough").Observe(time.Since(start).Seconds())
	return passthrough(in)
}

// Close stops the worker pool if it was started.
func (o *Optimizer) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	if o.pool != nil {
		o.pool.close()
		o.pool = nil
	}
}

func (o *Optimizer) transform(in Input) (Result, error) {
	return transform(in, o.cfg.MaxDimension, o.cfg.Quality)
}

func (o *Optimizer) getPool() *pool {
	o.poolOnce.Do(func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if o.closed {
			return
		}
		o.pool = newPool(o.cfg.Workers, o.cfg.QueueSize, o.transform)
	})
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pool
}
