package storage

import "sort"

// SliceIterator iterates over a snapshot of keys taken when it was built.
// Later writes to the store are not reflected.
type SliceIterator struct {
	keys []string
	pos  int
	err  error
}

var _ Iterator = (*SliceIterator)(nil)

// NewSliceIterator returns an iterator over keys in lexical order.
func NewSliceIterator(keys []string) *SliceIterator {
	sorted := make([]string, len(keys))
	copy(sorted, keys)
	sort.Strings(sorted)
	return &SliceIterator{keys: sorted, pos: -1}
}

// NewErrorIterator returns an iterator that yields nothing and reports err.
func NewErrorIterator(err error) *SliceIterator {
	return &SliceIterator{pos: -1, err: err}
}

// Next advances to the next key of the snapshot.
func (it *SliceIterator) Next() bool {
	if it.err != nil || it.pos+1 >= len(it.keys) {
		it.pos = len(it.keys)
		return false
	}
	it.pos++
	return true
}

// Key returns the current key, or "" outside the sequence.
func (it *SliceIterator) Key() string {
	if it.pos < 0 || it.pos >= len(it.keys) {
		return ""
	}
	return it.keys[it.pos]
}

// Err returns the error the iterator was built with, if any.
func (it *SliceIterator) Err() error {
	return it.err
}

// Close is a no-op.
func (it *SliceIterator) Close() error {
	return nil
}

// Len returns the size of the snapshot.
func (it *SliceIterator) Len() int {
	return len(it.keys)
}
