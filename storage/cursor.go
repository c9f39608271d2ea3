package storage

import (
	"context"
	"fmt"
	"strings"
)

// IteratorMode selects how a remote backend enumerates keys.
type IteratorMode string

const (
	// ModeScan pages through the keyspace with SCAN cursors.
	ModeScan IteratorMode = "scan"

	// ModeKeys fetches every match with a single KEYS call.
	ModeKeys IteratorMode = "keys"
)

// ParseIteratorMode maps a configuration value to an IteratorMode.
func ParseIteratorMode(s string) (IteratorMode, error) {
	switch IteratorMode(strings.ToLower(s)) {
	case "", ModeScan:
		return ModeScan, nil
	case ModeKeys:
		return ModeKeys, nil
	default:
		return "", fmt.Errorf("unknown iterator mode %q", s)
	}
}

// FetchFunc returns one batch of keys matching pattern starting at cursor,
// plus the cursor of the following batch. A returned cursor of 0 means the
// backend has no further batches.
type FetchFunc func(ctx context.Context, pattern string, cursor uint64) (keys []string, next uint64, err error)

// CursorIterator pages through a remote keyspace. Iteration ends only after
// a batch arrives with cursor 0; an empty batch with a non-zero cursor is
// followed by another fetch, since SCAN may return no matches for a cycle.
type CursorIterator struct {
	ctx     context.Context
	fetch   FetchFunc
	pattern string

	batch  []string
	pos    int
	cursor uint64
	done   bool
	err    error
}

var _ Iterator = (*CursorIterator)(nil)

// NewCursorIterator returns a fresh iterator; nothing is fetched until the
// first call to Next.
func NewCursorIterator(ctx context.Context, pattern string, fetch FetchFunc) *CursorIterator {
	it := &CursorIterator{ctx: ctx, fetch: fetch}
	it.Reset(pattern)
	return it
}

// Reset discards the current position and restarts iteration for pattern.
func (it *CursorIterator) Reset(pattern string) {
	it.pattern = pattern
	it.batch = nil
	it.pos = -1
	it.cursor = 0
	it.done = false
	it.err = nil
}

// Next advances to the next key, fetching batches as needed.
func (it *CursorIterator) Next() bool {
	if it.err != nil {
		return false
	}
	for {
		if it.pos+1 < len(it.batch) {
			it.pos++
			return true
		}
		if it.done {
			return false
		}
		if err := it.ctx.Err(); err != nil {
			it.err = err
			return false
		}

		keys, next, err := it.fetch(it.ctx, it.pattern, it.cursor)
		if err != nil {
			it.err = err
			return false
		}
		it.batch = keys
		it.pos = -1
		it.cursor = next
		if next == 0 {
			it.done = true
		}
	}
}

// Key returns the key at the current position.
func (it *CursorIterator) Key() string {
	if it.pos < 0 || it.pos >= len(it.batch) {
		return ""
	}
	return it.batch[it.pos]
}

// Err returns the first fetch error.
func (it *CursorIterator) Err() error {
	return it.err
}

// Close stops further fetches.
func (it *CursorIterator) Close() error {
	it.done = true
	it.batch = nil
	return nil
}
