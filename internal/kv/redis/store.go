// Package redis provides a kv.Store backed by Redis via rueidis. Cross-process
// change notification rides Redis pub/sub: every write publishes the changed
// key tagged with the writer's origin id, and subscribers drop their own
// messages so a store never observes its own writes.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/rueidis"

	"github.com/uxarchive/uxsync/internal/kv"
)

// Compile-time check: Store implements kv.Store.
var _ kv.Store = (*Store)(nil)

const changeChannel = "uxsync:changes"

// Config holds connection parameters for a Redis store.
type Config struct {
	Addrs    []string
	Username string
	Password string
	DB       int
}

// Store implements kv.Store via rueidis.
type Store struct {
	client rueidis.Client
	origin string
}

type changeMsg struct {
	Origin string `json:"origin"`
	Key    string `json:"key"`
}

// NewStore creates a Redis store via rueidis.
func NewStore(cfg Config) (*Store, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("addrs is required")
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return &Store{client: client, origin: uuid.NewString()}, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	cmd := s.client.B().Ping().Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// WaitForReady polls Ping until the store responds or timeout expires.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for redis: %w", ctx.Err())
		case <-ticker.C:
			if err := s.Ping(ctx); err == nil {
				return nil
			}
		}
	}
}

// Get retrieves a value by key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	cmd := s.client.B().Get().Key(key).Build()
	data, err := s.client.Do(ctx, cmd).AsBytes()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, kv.ErrKeyNotFound
		}
		return nil, &kv.Error{Op: kv.OpGet, Err: err}
	}
	return data, nil
}

// Set stores a value and announces the change to other processes.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	cmd := s.client.B().Set().Key(key).Value(string(value)).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return &kv.Error{Op: kv.OpSet, Err: err}
	}
	s.announce(ctx, key)
	return nil
}

// Del removes a key and announces the change.
func (s *Store) Del(ctx context.Context, key string) error {
	cmd := s.client.B().Del().Key(key).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return &kv.Error{Op: kv.OpDel, Err: err}
	}
	s.announce(ctx, key)
	return nil
}

// Keys returns all keys matching prefix via SCAN.
func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	var cursor uint64

	for {
		cmd := s.client.B().Scan().Cursor(cursor).Match(prefix + "*").Count(100).Build()
		res, err := s.client.Do(ctx, cmd).AsScanEntry()
		if err != nil {
			return nil, &kv.Error{Op: kv.OpKeys, Err: err}
		}
		keys = append(keys, res.Elements...)
		cursor = res.Cursor
		if cursor == 0 {
			break
		}
	}

	return keys, nil
}

// Watch subscribes to the change channel and re-reads each announced key.
func (s *Store) Watch(ctx context.Context) (<-chan kv.Event, error) {
	ch := make(chan kv.Event, 16)

	go func() {
		defer close(ch)
		sub := s.client.B().Subscribe().Channel(changeChannel).Build()
		// Receive blocks until ctx is done or the connection drops.
		_ = s.client.Receive(ctx, sub, func(msg rueidis.PubSubMessage) {
			var cm changeMsg
			if err := json.Unmarshal([]byte(msg.Message), &cm); err != nil {
				return
			}
			if cm.Origin == s.origin || cm.Key == "" {
				return
			}
			val, err := s.Get(ctx, cm.Key)
			if err != nil {
				val = nil // deleted or unreadable: report absence
			}
			select {
			case ch <- kv.Event{Key: cm.Key, Value: val}:
			case <-ctx.Done():
			}
		})
	}()

	return ch, nil
}

// Close shuts down the client.
func (s *Store) Close() {
	s.client.Close()
}

// announce is best-effort: a lost notification only delays convergence until
// the next write to the same key.
func (s *Store) announce(ctx context.Context, key string) {
	payload, err := json.Marshal(changeMsg{Origin: s.origin, Key: key})
	if err != nil {
		return
	}
	cmd := s.client.B().Publish().Channel(changeChannel).Message(string(payload)).Build()
	_ = s.client.Do(ctx, cmd).Error()
}
