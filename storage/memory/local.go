package memory

import (
	"context"

	"github.com/giantswarm/webkit/storage"
)

// Local is an unsynchronized in-process store. It is meant for data owned by
// a single goroutine at a time, such as the roles of one session, and must
// not be shared between goroutines without external locking.
type Local struct {
	t *table
}

var _ storage.Store = (*Local)(nil)

// NewLocal returns an empty Local store.
func NewLocal() *Local {
	return &Local{t: newTable()}
}

func (l *Local) Exists(_ context.Context, key string) (bool, error) {
	return l.t.exists(key), nil
}

func (l *Local) HExists(_ context.Context, hash, field string) (bool, error) {
	return l.t.hexists(hash, field), nil
}

func (l *Local) Read(_ context.Context, key string) (string, error) {
	return l.t.read(key)
}

func (l *Local) HRead(_ context.Context, hash, field string) (string, error) {
	return l.t.hread(hash, field)
}

func (l *Local) Write(_ context.Context, key, value string) error {
	l.t.write(key, value)
	return nil
}

func (l *Local) HWrite(_ context.Context, hash, field, value string) error {
	l.t.hwrite(hash, field, value)
	return nil
}

func (l *Local) Destroy(ctx context.Context, key string) error {
	if storage.IsPattern(key) {
		return storage.DestroyMatching(ctx, l, key, l.destroyOne)
	}
	l.t.destroy(key)
	return nil
}

func (l *Local) destroyOne(_ context.Context, key string) error {
	l.t.destroy(key)
	return nil
}

func (l *Local) HDestroy(_ context.Context, hash, field string) error {
	l.t.hdestroy(hash, field)
	return nil
}

// Iterator returns a snapshot iterator over the keys matching pattern.
func (l *Local) Iterator(_ context.Context, pattern string) (storage.Iterator, error) {
	return storage.NewSliceIterator(l.t.match(pattern)), nil
}

// Len returns the number of plain keys and hashes held.
func (l *Local) Len() int {
	return l.t.len()
}

// Close drops every entry.
func (l *Local) Close() error {
	l.t = newTable()
	return nil
}
