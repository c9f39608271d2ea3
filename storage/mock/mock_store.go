// Package mock provides a mock storage.Store for testing.
package mock

import (
	"context"
	"sync"

	"github.com/giantswarm/webkit/storage"
	"github.com/giantswarm/webkit/storage/memory"
)

// MockStore is a storage.Store whose behaviour can be replaced per method.
// By default every Func delegates to an in-memory Shared store, so tests only
// override the calls they care about (for example to inject
// storage.ErrUnavailable).
type MockStore struct {
	mu         sync.Mutex
	callCounts map[string]int

	// Backing is the store the default Funcs delegate to.
	Backing *memory.Shared

	ExistsFunc   func(ctx context.Context, key string) (bool, error)
	HExistsFunc  func(ctx context.Context, hash, field string) (bool, error)
	ReadFunc     func(ctx context.Context, key string) (string, error)
	HReadFunc    func(ctx context.Context, hash, field string) (string, error)
	WriteFunc    func(ctx context.Context, key, value string) error
	HWriteFunc   func(ctx context.Context, hash, field, value string) error
	DestroyFunc  func(ctx context.Context, key string) error
	HDestroyFunc func(ctx context.Context, hash, field string) error
	IteratorFunc func(ctx context.Context, pattern string) (storage.Iterator, error)
}

var _ storage.Store = (*MockStore)(nil)

// NewMockStore creates a new mock store with pass-through defaults.
func NewMockStore() *MockStore {
	backing := memory.NewShared(nil)
	return &MockStore{
		callCounts:   make(map[string]int),
		Backing:      backing,
		ExistsFunc:   backing.Exists,
		HExistsFunc:  backing.HExists,
		ReadFunc:     backing.Read,
		HReadFunc:    backing.HRead,
		WriteFunc:    backing.Write,
		HWriteFunc:   backing.HWrite,
		DestroyFunc:  backing.Destroy,
		HDestroyFunc: backing.HDestroy,
		IteratorFunc: backing.Iterator,
	}
}

// FailAll makes every operation return err.
func (m *MockStore) FailAll(err error) {
	m.ExistsFunc = func(context.Context, string) (bool, error) { return false, err }
	m.HExistsFunc = func(context.Context, string, string) (bool, error) { return false, err }
	m.ReadFunc = func(context.Context, string) (string, error) { return "", err }
	m.HReadFunc = func(context.Context, string, string) (string, error) { return "", err }
	m.WriteFunc = func(context.Context, string, string) error { return err }
	m.HWriteFunc = func(context.Context, string, string, string) error { return err }
	m.DestroyFunc = func(context.Context, string) error { return err }
	m.HDestroyFunc = func(context.Context, string, string) error { return err }
	m.IteratorFunc = func(context.Context, string) (storage.Iterator, error) { return nil, err }
}

// CallCount returns how many times method was called.
func (m *MockStore) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCounts[method]
}

func (m *MockStore) count(method string) {
	m.mu.Lock()
	m.callCounts[method]++
	m.mu.Unlock()
}

func (m *MockStore) Exists(ctx context.Context, key string) (bool, error) {
	m.count("Exists")
	return m.ExistsFunc(ctx, key)
}

func (m *MockStore) HExists(ctx context.Context, hash, field string) (bool, error) {
	m.count("HExists")
	return m.HExistsFunc(ctx, hash, field)
}

func (m *MockStore) Read(ctx context.Context, key string) (string, error) {
	m.count("Read")
	return m.ReadFunc(ctx, key)
}

func (m *MockStore) HRead(ctx context.Context, hash, field string) (string, error) {
	m.count("HRead")
	return m.HReadFunc(ctx, hash, field)
}

func (m *MockStore) Write(ctx context.Context, key, value string) error {
	m.count("Write")
	return m.WriteFunc(ctx, key, value)
}

func (m *MockStore) HWrite(ctx context.Context, hash, field, value string) error {
	m.count("HWrite")
	return m.HWriteFunc(ctx, hash, field, value)
}

func (m *MockStore) Destroy(ctx context.Context, key string) error {
	m.count("Destroy")
	return m.DestroyFunc(ctx, key)
}

func (m *MockStore) HDestroy(ctx context.Context, hash, field string) error {
	m.count("HDestroy")
	return m.HDestroyFunc(ctx, hash, field)
}

func (m *MockStore) Iterator(ctx context.Context, pattern string) (storage.Iterator, error) {
	m.count("Iterator")
	return m.IteratorFunc(ctx, pattern)
}

// Close closes the backing store.
func (m *MockStore) Close() error {
	m.count("Close")
	return m.Backing.Close()
}
