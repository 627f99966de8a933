// Package file provides a kv.Store backed by one JSON file per key under a
// directory. Cross-process change notification is implemented by polling file
// modification state, so two processes pointed at the same directory converge
// within one poll interval (last writer wins per key).
package file

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/uxarchive/uxsync/internal/kv"
)

// Compile-time check: Store implements kv.Store.
var _ kv.Store = (*Store)(nil)

const defaultPollInterval = 500 * time.Millisecond

// Config holds parameters for a file store.
type Config struct {
	Dir          string
	PollInterval time.Duration // default 500ms
}

// Store implements kv.Store over a flat directory of files.
type Store struct {
	dir  string
	poll time.Duration

	mu    sync.Mutex
	known map[string][32]byte // key -> content hash of the last state this store saw

	closeOnce sync.Once
	closed    chan struct{}
}

// NewStore creates the directory if needed and returns a file store.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("dir is required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create dir %s: %w", cfg.Dir, err)
	}
	return &Store{
		dir:    cfg.Dir,
		poll:   cfg.PollInterval,
		known:  make(map[string][32]byte),
		closed: make(chan struct{}),
	}, nil
}

// Get retrieves a value by key.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, kv.ErrKeyNotFound
		}
		return nil, &kv.Error{Op: kv.OpGet, Err: err}
	}
	s.remember(key, data)
	return data, nil
}

// Set writes the value atomically (temp file + rename).
func (s *Store) Set(_ context.Context, key string, value []byte) error {
	path := s.path(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, value, 0o644); err != nil {
		return &kv.Error{Op: kv.OpSet, Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		return &kv.Error{Op: kv.OpSet, Err: err}
	}
	s.remember(key, value)
	return nil
}

// Del removes the key's file. Missing files are a no-op.
func (s *Store) Del(_ context.Context, key string) error {
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return &kv.Error{Op: kv.OpDel, Err: err}
	}
	s.mu.Lock()
	delete(s.known, key)
	s.mu.Unlock()
	return nil
}

// Keys returns all stored keys with the given prefix.
func (s *Store) Keys(_ context.Context, prefix string) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, &kv.Error{Op: kv.OpKeys, Err: err}
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		key := decodeKey(strings.TrimSuffix(e.Name(), ".json"))
		if strings.HasPrefix(key, prefix) {
			out = append(out, key)
		}
	}
	return out, nil
}

// Watch polls the directory and emits an event for every key whose content
// diverges from the last state this store wrote or read. Own writes update
// the known state first, so they never round-trip through Watch.
func (s *Store) Watch(ctx context.Context) (<-chan kv.Event, error) {
	ch := make(chan kv.Event, 16)
	s.seedBaseline()
	go func() {
		defer close(ch)
		ticker := time.NewTicker(s.poll)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.closed:
				return
			case <-ticker.C:
				for _, ev := range s.scan() {
					select {
					case ch <- ev:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()
	return ch, nil
}

// Close stops all watchers.
func (s *Store) Close() {
	s.closeOnce.Do(func() { close(s.closed) })
}

func (s *Store) scan() []kv.Event {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil
	}

	present := make(map[string]struct{}, len(entries))
	var events []kv.Event

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		key := decodeKey(strings.TrimSuffix(e.Name(), ".json"))
		present[key] = struct{}{}

		data, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			continue
		}
		sum := sha256.Sum256(data)

		s.mu.Lock()
		prev, seen := s.known[key]
		changed := !seen || prev != sum
		if changed {
			s.known[key] = sum
		}
		s.mu.Unlock()

		if changed {
			events = append(events, kv.Event{Key: key, Value: data})
		}
	}

	// Deletions by another process.
	s.mu.Lock()
	for key := range s.known {
		if _, ok := present[key]; !ok {
			delete(s.known, key)
			events = append(events, kv.Event{Key: key, Value: nil})
		}
	}
	s.mu.Unlock()

	return events
}

// seedBaseline records the current content of every key without emitting
// events, so the first poll after Watch only reports subsequent changes.
func (s *Store) seedBaseline() {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			continue
		}
		s.remember(decodeKey(strings.TrimSuffix(e.Name(), ".json")), data)
	}
}

func (s *Store) remember(key string, data []byte) {
	sum := sha256.Sum256(data)
	s.mu.Lock()
	s.known[key] = sum
	s.mu.Unlock()
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, encodeKey(key)+".json")
}

// Keys may contain ':' separators; filenames must not.
func encodeKey(key string) string { return strings.ReplaceAll(key, ":", "__") }
func decodeKey(name string) string { return strings.ReplaceAll(name, "__", ":") }
