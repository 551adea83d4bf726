// Package metastore holds the single persisted splash metadata record. Reads
// are served from a local cache; writes update the cache first and are then
// persisted to the key/value collaborator.
package metastore

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MimeLyc/dynamic-splash/internal/kvstore"
	"github.com/MimeLyc/dynamic-splash/internal/splash"
)

var (
	ErrNoWriter  = errors.New("kv store has no write path")
	ErrNoRemover = errors.New("kv store has no remove path")
)

// PersistResult reports the outcome of writing through to the collaborator.
// A failed result never invalidates the cached value.
type PersistResult struct {
	OK  bool
	Err error
}

func persisted(err error) PersistResult {
	return PersistResult{OK: err == nil, Err: err}
}

type loadState int

const (
	stateUninitialized loadState = iota
	stateLoading
	stateReady
)

func (s loadState) String() string {
	switch s {
	case stateLoading:
		return "loading"
	case stateReady:
		return "ready"
	default:
		return "uninitialized"
	}
}

// KeyBinder is told which key the metadata lives under. The native overlay
// uses it to read the record on its own at launch.
type KeyBinder interface {
	SetStorageKey(key string) error
}

type Option func(*Store)

func WithKey(key string) Option {
	return func(s *Store) {
		if key != "" {
			s.key = key
		}
	}
}

func WithLogger(l splash.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

func WithKeyBinder(b KeyBinder) Option {
	return func(s *Store) {
		s.binder = b
	}
}

type Store struct {
	key    string
	log    splash.Logger
	binder KeyBinder

	syncReader  kvstore.SyncReader
	asyncReader kvstore.AsyncReader
	writer      kvstore.Writer
	remover     kvstore.Remover

	// writeMu orders cache updates with their persistence so the
	// collaborator always ends up holding the newest cached value.
	writeMu sync.Mutex

	mu      sync.Mutex
	meta    splash.StoredMeta
	version uint64
	state   loadState
	ready   chan struct{}
}

// New builds a store over kv, whose capabilities (kvstore.SyncReader,
// kvstore.AsyncReader, kvstore.Writer, kvstore.Remover) are discovered once
// here. Priming starts immediately: synchronously when possible, otherwise
// in a goroutine bound to ctx.
func New(ctx context.Context, kv any, opts ...Option) *Store {
	s := &Store{
		key:   splash.DefaultStorageKey,
		log:   splash.Options{}.Log(),
		meta:  splash.EmptyMeta(),
		ready: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if kv != nil {
		s.syncReader, _ = kv.(kvstore.SyncReader)
		s.asyncReader, _ = kv.(kvstore.AsyncReader)
		s.writer, _ = kv.(kvstore.Writer)
		s.remover, _ = kv.(kvstore.Remover)
	}

	if s.binder != nil {
		if err := s.binder.SetStorageKey(s.key); err != nil {
			s.log.Debug("[DynamicSplash] set storage key on overlay: %v", err)
		}
	}

	s.prime(ctx)
	return s
}

func (s *Store) Key() string {
	return s.key
}

func (s *Store) prime(ctx context.Context) {
	switch {
	case s.syncReader != nil:
		raw, ok, err := s.syncReader.GetStringSync(s.key)
		if err != nil {
			s.log.Warn("[DynamicSplash] read metadata failed, starting empty: %v", err)
		}
		s.mu.Lock()
		if err == nil && ok {
			s.meta = splash.DecodeMeta(raw)
		}
		s.markReadyLocked()
		s.mu.Unlock()

	case s.asyncReader != nil:
		s.mu.Lock()
		s.state = stateLoading
		started := s.version
		s.mu.Unlock()

		go func() {
			raw, ok, err := s.asyncReader.GetString(ctx, s.key)
			if err != nil {
				s.log.Warn("[DynamicSplash] async read metadata failed: %v", err)
			}
			s.mu.Lock()
			defer s.mu.Unlock()
			if s.version != started {
				s.log.Debug("[DynamicSplash] discarding stale metadata prime")
			} else if err == nil && ok {
				s.meta = splash.DecodeMeta(raw)
			}
			s.markReadyLocked()
		}()

	default:
		s.log.Warn("[DynamicSplash] kv store has no read path; metadata is kept in memory only")
		s.mu.Lock()
		s.markReadyLocked()
		s.mu.Unlock()
	}
}

func (s *Store) markReadyLocked() {
	if s.state == stateReady {
		return
	}
	s.state = stateReady
	close(s.ready)
}

// Meta returns the cached record. It never blocks on the collaborator.
func (s *Store) Meta() splash.StoredMeta {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta
}

// Ready waits for priming to finish. With timeout > 0 it gives up after
// timeout and returns false; priming keeps going in the background.
func (s *Store) Ready(ctx context.Context, timeout time.Duration) bool {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-s.ready:
		return true
	case <-expired:
		s.log.Warn("[DynamicSplash] storage not ready after %s, continuing without cached metadata", timeout)
		return false
	case <-ctx.Done():
		return false
	}
}

// SetMeta replaces the cached record and persists it. A write always wins
// over a prime still in flight.
func (s *Store) SetMeta(meta splash.StoredMeta) PersistResult {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	s.meta = meta
	s.version++
	s.mu.Unlock()

	if s.writer == nil {
		s.log.Warn("[DynamicSplash] persist metadata skipped: %v", ErrNoWriter)
		return persisted(ErrNoWriter)
	}
	raw, err := splash.EncodeMeta(meta)
	if err != nil {
		s.log.Warn("[DynamicSplash] persist metadata failed: %v", err)
		return persisted(err)
	}
	if err := s.writer.SetString(s.key, raw); err != nil {
		s.log.Warn("[DynamicSplash] persist metadata failed: %v", err)
		return persisted(err)
	}
	return persisted(nil)
}

// Clear resets the cache to EMPTY and removes the persisted key.
func (s *Store) Clear() PersistResult {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	s.meta = splash.EmptyMeta()
	s.version++
	s.mu.Unlock()

	if s.remover == nil {
		s.log.Warn("[DynamicSplash] remove metadata skipped: %v", ErrNoRemover)
		return persisted(ErrNoRemover)
	}
	if err := s.remover.Remove(s.key); err != nil {
		s.log.Warn("[DynamicSplash] remove metadata failed: %v", err)
		return persisted(err)
	}
	return persisted(nil)
}

// LoadState is "uninitialized", "loading" or "ready".
func (s *Store) LoadState() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.String()
}
