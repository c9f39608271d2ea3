// Package storage defines the key-value store used for sessions, roles and
// OAuth2 entities. Backends live in the sub-packages memory, valkey, redis
// and bolt; all of them satisfy the same Store contract.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Wildcard is the glob character recognised in patterns and in Destroy keys.
const Wildcard = "*"

var (
	// ErrNotFound is returned by Read and HRead when the key or field is absent.
	ErrNotFound = errors.New("key not found")

	// ErrUnavailable wraps every failure reported by a backend (connection
	// refused, timeouts, protocol errors). It is never used for absence.
	ErrUnavailable = errors.New("store unavailable")

	// ErrClosed is returned by operations on a store that has been closed.
	ErrClosed = errors.New("store closed")
)

// Store is a key-value store holding plain keys and hashes (named groups of
// field/value pairs). Plain keys and hash names share one keyspace: Exists,
// Destroy and pattern iteration see both kinds. Callers must not use the
// same literal key as both a plain key and a hash name.
//
// All methods accept context.Context for tracing and cancellation.
type Store interface {
	// Exists reports whether key is present, either as a plain key or as a hash.
	Exists(ctx context.Context, key string) (bool, error)

	// HExists reports whether field is present in hash.
	HExists(ctx context.Context, hash, field string) (bool, error)

	// Read returns the value of key, or ErrNotFound.
	Read(ctx context.Context, key string) (string, error)

	// HRead returns the value of field in hash, or ErrNotFound.
	HRead(ctx context.Context, hash, field string) (string, error)

	// Write creates or overwrites key.
	Write(ctx context.Context, key, value string) error

	// HWrite creates or overwrites one field of hash.
	HWrite(ctx context.Context, hash, field, value string) error

	// Destroy removes key. When key contains Wildcard it is treated as a
	// pattern and every matching key is removed individually; the removal
	// is not atomic across keys. Destroying an absent key is not an error.
	Destroy(ctx context.Context, key string) error

	// HDestroy removes one field from hash, leaving sibling fields untouched.
	HDestroy(ctx context.Context, hash, field string) error

	// Iterator returns a new iterator over the keys matching pattern.
	Iterator(ctx context.Context, pattern string) (Iterator, error)

	// Close releases the backend's resources.
	Close() error
}

// Iterator walks the keys matching a glob pattern. It follows the scanner
// idiom:
//
//	it, err := store.Iterator(ctx, "session:value:*")
//	if err != nil { ... }
//	defer it.Close()
//	for it.Next() {
//	    key := it.Key()
//	}
//	if err := it.Err(); err != nil { ... }
//
// Iterators are not restartable and never modify the store.
type Iterator interface {
	// Next advances to the next key. It returns false when the sequence is
	// exhausted or an error occurred.
	Next() bool

	// Key returns the key at the current position.
	Key() string

	// Err returns the first error encountered during iteration.
	Err() error

	// Close releases the iterator.
	Close() error
}

// IsPattern reports whether key is treated as a pattern by Destroy.
func IsPattern(key string) bool {
	return strings.Contains(key, Wildcard)
}

// Match drains a fresh iterator over pattern and returns every key it yields.
func Match(ctx context.Context, s Store, pattern string) ([]string, error) {
	it, err := s.Iterator(ctx, pattern)
	if err != nil {
		return nil, err
	}
	defer func() { _ = it.Close() }()

	var keys []string
	for it.Next() {
		keys = append(keys, it.Key())
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("failed to match %q: %w", pattern, err)
	}
	return keys, nil
}

// DestroyMatching resolves pattern through s and removes every resolved key
// with destroy. Backends call it from Destroy when the key is a pattern,
// passing their single-key delete so no lock is re-entered.
func DestroyMatching(ctx context.Context, s Store, pattern string, destroy func(ctx context.Context, key string) error) error {
	keys, err := Match(ctx, s, pattern)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := destroy(ctx, key); err != nil {
			return fmt.Errorf("failed to destroy %q: %w", key, err)
		}
	}
	return nil
}

// Unavailable wraps a backend error with ErrUnavailable. A nil err stays nil.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}
