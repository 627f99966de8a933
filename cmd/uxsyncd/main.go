package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/uxarchive/uxsync/internal/config"
	"github.com/uxarchive/uxsync/internal/kv"
	kvFile "github.com/uxarchive/uxsync/internal/kv/file"
	kvMemory "github.com/uxarchive/uxsync/internal/kv/memory"
	kvRedis "github.com/uxarchive/uxsync/internal/kv/redis"
	logpkg "github.com/uxarchive/uxsync/internal/logger"
	"github.com/uxarchive/uxsync/internal/metrics"
	"github.com/uxarchive/uxsync/internal/optimize"
	"github.com/uxarchive/uxsync/internal/outbox"
	"github.com/uxarchive/uxsync/internal/snapshot"
	"github.com/uxarchive/uxsync/internal/store"
	"github.com/uxarchive/uxsync/internal/synctrack"
	"github.com/uxarchive/uxsync/internal/transport/httpapi"
	"github.com/uxarchive/uxsync/internal/version"
	"github.com/uxarchive/uxsync/internal/workspace"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting uxsync daemon",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("storage_driver", cfg.Storage.Driver),
	)

	backend, err := createBackend(cfg)
	if err != nil {
		logger.Fatal("Failed to create storage backend", zap.Error(err))
	}
	defer backend.Close()

	ctx := context.Background()
	if r, ok := backend.(*kvRedis.Store); ok {
		timeout := time.Duration(cfg.Storage.ReadinessTimeout) * time.Second
		if err := r.WaitForReady(ctx, timeout); err != nil {
			logger.Fatal("Storage not ready", zap.Error(err))
		}
		logger.Info("Connected to redis", zap.Strings("addrs", cfg.Storage.Addrs))
	}

	metrics.Register(prometheus.DefaultRegisterer)

	// Assemble services — composition root
	st := store.New(backend, logger)
	snap := snapshot.NewSource(st)
	ws := workspace.New(backend, logger, time.Duration(cfg.Workspace.DebounceMS)*time.Millisecond)

	// Daemon mode has no remote system of record; queued mutations settle
	// locally. Embedders of the library wire their own backend.
	queue := outbox.New(outbox.BackendFunc(func(context.Context, outbox.Mutation) error {
		return nil
	}), logger, outbox.Config{
		QueueSize:   cfg.Outbox.QueueSize,
		MaxAttempts: cfg.Outbox.MaxAttempts,
		BaseBackoff: time.Duration(cfg.Outbox.BaseBackoffMS) * time.Millisecond,
		MaxBackoff:  time.Duration(cfg.Outbox.MaxBackoffMS) * time.Millisecond,
	})
	tracker := synctrack.New(queue, synctrack.RefetcherFunc(st.Refetch), logger)
	optimizer := optimize.New(optimize.Config{
		MaxDimension: cfg.Optimizer.MaxDimension,
		Quality:      cfg.Optimizer.Quality,
		Workers:      cfg.Optimizer.Workers,
		QueueSize:    cfg.Optimizer.QueueSize,
	}, logger)

	if cfg.Seed.Enabled && snap.Seed(ctx, false) {
		logger.Info("Seeded starter content")
	}

	// Single watch loop fans external storage changes out to both stores.
	watchCtx, watchCancel := context.WithCancel(ctx)
	defer watchCancel()
	events, err := backend.Watch(watchCtx)
	if err != nil {
		logger.Fatal("Failed to watch storage", zap.Error(err))
	}
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		for ev := range events {
			st.HandleExternal(ev)
			ws.HandleExternal(ev)
		}
	}()

	server := httpapi.NewServer(st, snap, ws, tracker, queue, optimizer, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(metrics.Middleware())
	server.Routes(r)
	r.Method("GET", "/metrics", promhttp.Handler())

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	watchCancel()
	<-watchDone
	ws.Flush(shutdownCtx)
	tracker.Close()
	if err := queue.Stop(shutdownCtx); err != nil {
		logger.Error("Outbox drain interrupted", zap.Error(err))
	}
	optimizer.Close()

	logger.Info("Server stopped gracefully")
}

func createBackend(cfg config.Config) (kv.Store, error) {
	switch cfg.Storage.Driver {
	case "memory":
		return kvMemory.NewStore(), nil
	case "file":
		s, err := kvFile.NewStore(kvFile.Config{
			Dir:          cfg.Storage.Dir,
			PollInterval: time.Duration(cfg.Storage.PollIntervalMS) * time.Millisecond,
		})
		if err != nil {
			return nil, fmt.Errorf("create file store: %w", err)
		}
		return s, nil
	case "redis":
		s, err := kvRedis.NewStore(kvRedis.Config{
			Addrs:    cfg.Storage.Addrs,
			Password: cfg.Storage.Password,
		})
		if err != nil {
			return nil, fmt.Errorf("create redis store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
