package memory

import (
	"context"
	"log/slog"
	"sync"

	"github.com/giantswarm/webkit/storage"
)

// Shared is an in-process store safe for concurrent use. Every operation
// holds one mutex for its whole duration; the mutex is never re-entered, so
// pattern destroys take a snapshot first and then lock once per key.
type Shared struct {
	mu     sync.Mutex
	t      *table
	closed bool
	logger *slog.Logger
}

var _ storage.Store = (*Shared)(nil)

// NewShared returns an empty Shared store.
func NewShared(logger *slog.Logger) *Shared {
	if logger == nil {
		logger = slog.Default()
	}
	return &Shared{t: newTable(), logger: logger}
}

func (s *Shared) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, storage.ErrClosed
	}
	return s.t.exists(key), nil
}

func (s *Shared) HExists(_ context.Context, hash, field string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, storage.ErrClosed
	}
	return s.t.hexists(hash, field), nil
}

func (s *Shared) Read(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", storage.ErrClosed
	}
	return s.t.read(key)
}

func (s *Shared) HRead(_ context.Context, hash, field string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", storage.ErrClosed
	}
	return s.t.hread(hash, field)
}

func (s *Shared) Write(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrClosed
	}
	s.t.write(key, value)
	return nil
}

func (s *Shared) HWrite(_ context.Context, hash, field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrClosed
	}
	s.t.hwrite(hash, field, value)
	return nil
}

func (s *Shared) Destroy(ctx context.Context, key string) error {
	if storage.IsPattern(key) {
		return storage.DestroyMatching(ctx, s, key, s.destroyOne)
	}
	return s.destroyOne(ctx, key)
}

func (s *Shared) destroyOne(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrClosed
	}
	s.t.destroy(key)
	return nil
}

func (s *Shared) HDestroy(_ context.Context, hash, field string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrClosed
	}
	s.t.hdestroy(hash, field)
	return nil
}

// Iterator returns a snapshot iterator; the lock is released before it is
// handed out.
func (s *Shared) Iterator(_ context.Context, pattern string) (storage.Iterator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, storage.ErrClosed
	}
	return storage.NewSliceIterator(s.t.match(pattern)), nil
}

// Len returns the number of plain keys and hashes held.
func (s *Shared) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.t.len()
}

// Close drops every entry; later calls fail with storage.ErrClosed.
func (s *Shared) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.logger.Debug("Closing shared memory store", "entries", s.t.len())
	}
	s.closed = true
	s.t = newTable()
	return nil
}
