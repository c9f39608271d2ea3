// Package storagetest provides a contract suite that every storage.Store
// implementation runs from its own tests.
package storagetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/webkit/storage"
)

// Factory returns a fresh, empty store. The suite closes it.
type Factory func(t *testing.T) storage.Store

var prefixCounter atomic.Int64

// prefix returns a key prefix unique to one subtest so suites can run
// against a shared server.
func prefix() string {
	return fmt.Sprintf("storagetest:%d:%d:", time.Now().UnixNano(), prefixCounter.Add(1))
}

// Run executes the full Store contract against stores built by newStore.
// Set concurrent to false for stores that are not safe for concurrent use.
func Run(t *testing.T, newStore Factory, concurrent bool) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s storage.Store, p string)
	}{
		{"WriteRead", testWriteRead},
		{"ReadMissing", testReadMissing},
		{"Overwrite", testOverwrite},
		{"HashRoundTrip", testHashRoundTrip},
		{"HashFieldsIndependent", testHashFieldsIndependent},
		{"ExistsSeesHashes", testExistsSeesHashes},
		{"DestroyIdempotent", testDestroyIdempotent},
		{"DestroyHash", testDestroyHash},
		{"DestroyPattern", testDestroyPattern},
		{"MatchCompleteness", testMatchCompleteness},
		{"MatchEmpty", testMatchEmpty},
		{"IteratorHasNoSideEffects", testIteratorHasNoSideEffects},
	}
	if concurrent {
		tests = append(tests, struct {
			name string
			fn   func(t *testing.T, s storage.Store, p string)
		}{"ConcurrentWriters", testConcurrentWriters})
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s, prefix())
		})
	}
}

func testWriteRead(t *testing.T, s storage.Store, p string) {
	ctx := context.Background()
	require.NoError(t, s.Write(ctx, p+"a", "1"))

	got, err := s.Read(ctx, p+"a")
	require.NoError(t, err)
	assert.Equal(t, "1", got)

	ok, err := s.Exists(ctx, p+"a")
	require.NoError(t, err)
	assert.True(t, ok)
}

func testReadMissing(t *testing.T, s storage.Store, p string) {
	ctx := context.Background()

	got, err := s.Read(ctx, p+"missing")
	require.ErrorIs(t, err, storage.ErrNotFound)
	assert.Empty(t, got)

	got, err = s.HRead(ctx, p+"missing", "field")
	require.ErrorIs(t, err, storage.ErrNotFound)
	assert.Empty(t, got)

	ok, err := s.Exists(ctx, p+"missing")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.HExists(ctx, p+"missing", "field")
	require.NoError(t, err)
	assert.False(t, ok)
}

func testOverwrite(t *testing.T, s storage.Store, p string) {
	ctx := context.Background()
	require.NoError(t, s.Write(ctx, p+"k", "old"))
	require.NoError(t, s.Write(ctx, p+"k", "new"))
	require.NoError(t, s.HWrite(ctx, p+"h", "f", "old"))
	require.NoError(t, s.HWrite(ctx, p+"h", "f", "new"))

	got, err := s.Read(ctx, p+"k")
	require.NoError(t, err)
	assert.Equal(t, "new", got)

	got, err = s.HRead(ctx, p+"h", "f")
	require.NoError(t, err)
	assert.Equal(t, "new", got)
}

func testHashRoundTrip(t *testing.T, s storage.Store, p string) {
	ctx := context.Background()
	cases := map[string]string{
		"update_time": "1700000000",
		"token":       "abc",
		"empty":       "",
		"spaces":      "a b c",
	}
	for field, value := range cases {
		require.NoError(t, s.HWrite(ctx, p+"hash", field, value))
	}
	for field, value := range cases {
		got, err := s.HRead(ctx, p+"hash", field)
		require.NoError(t, err, field)
		assert.Equal(t, value, got, field)
	}

	require.NoError(t, s.HDestroy(ctx, p+"hash", "token"))

	got, err := s.HRead(ctx, p+"hash", "token")
	require.ErrorIs(t, err, storage.ErrNotFound)
	assert.Empty(t, got)

	ok, err := s.HExists(ctx, p+"hash", "token")
	require.NoError(t, err)
	assert.False(t, ok)
}

func testHashFieldsIndependent(t *testing.T, s storage.Store, p string) {
	ctx := context.Background()
	require.NoError(t, s.HWrite(ctx, p+"h", "a", "1"))
	require.NoError(t, s.HWrite(ctx, p+"h", "b", "2"))
	require.NoError(t, s.HDestroy(ctx, p+"h", "a"))

	ok, err := s.HExists(ctx, p+"h", "b")
	require.NoError(t, err)
	assert.True(t, ok)

	// Removing an absent field is a no-op.
	require.NoError(t, s.HDestroy(ctx, p+"h", "nope"))
	require.NoError(t, s.HDestroy(ctx, p+"absent", "nope"))
}

func testExistsSeesHashes(t *testing.T, s storage.Store, p string) {
	ctx := context.Background()
	require.NoError(t, s.HWrite(ctx, p+"hash", "f", "v"))

	ok, err := s.Exists(ctx, p+"hash")
	require.NoError(t, err)
	assert.True(t, ok)
}

func testDestroyIdempotent(t *testing.T, s storage.Store, p string) {
	ctx := context.Background()
	require.NoError(t, s.Write(ctx, p+"keep", "1"))

	require.NoError(t, s.Destroy(ctx, p+"absent"))
	require.NoError(t, s.Destroy(ctx, p+"absent"))

	keys, err := storage.Match(ctx, s, p+"*")
	require.NoError(t, err)
	assert.Equal(t, []string{p + "keep"}, keys)
}

func testDestroyHash(t *testing.T, s storage.Store, p string) {
	ctx := context.Background()
	require.NoError(t, s.HWrite(ctx, p+"h", "a", "1"))
	require.NoError(t, s.HWrite(ctx, p+"h", "b", "2"))
	require.NoError(t, s.Destroy(ctx, p+"h"))

	ok, err := s.Exists(ctx, p+"h")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.HExists(ctx, p+"h", "a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func testDestroyPattern(t *testing.T, s storage.Store, p string) {
	ctx := context.Background()
	require.NoError(t, s.HWrite(ctx, p+"session:value:tok1", "token", "tok1"))
	require.NoError(t, s.HWrite(ctx, p+"session:roles:tok1:admin", "0", "0"))
	require.NoError(t, s.HWrite(ctx, p+"session:roles:tok1:user", "0", "0"))
	require.NoError(t, s.HWrite(ctx, p+"session:value:tok2", "token", "tok2"))
	require.NoError(t, s.Write(ctx, p+"other", "x"))

	require.NoError(t, s.Destroy(ctx, p+"session:*tok1*"))

	keys, err := storage.Match(ctx, s, p+"*")
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{p + "other", p + "session:value:tok2"}, keys)

	// A pattern without matches is a no-op.
	require.NoError(t, s.Destroy(ctx, p+"nothing:*"))
}

func testMatchCompleteness(t *testing.T, s storage.Store, p string) {
	ctx := context.Background()
	written := []string{
		"oauth2:authorization:alice:c1:code1:tok1",
		"oauth2:authorization:alice:c1:code2:tok2",
		"oauth2:authorization:alice:c2:code3:tok3",
		"oauth2:authorization:bob:c1:code4:tok4",
		"oauth2:client:value:c1",
		"session:value:tok1",
	}
	for i, key := range written {
		if i%2 == 0 {
			require.NoError(t, s.Write(ctx, p+key, "0"))
		} else {
			require.NoError(t, s.HWrite(ctx, p+key, "f", "0"))
		}
	}

	tests := []struct {
		pattern string
		want    []string
	}{
		{"oauth2:authorization:alice:*", written[0:3]},
		{"oauth2:authorization:alice:c1:*", written[0:2]},
		{"oauth2:authorization:*:c1:*", []string{written[0], written[1], written[3]}},
		{"oauth2:*", written[0:5]},
		{"*tok1", []string{written[0], written[5]}},
		{"session:value:tok1", []string{written[5]}},
		{"*", written},
	}
	for _, tt := range tests {
		got, err := storage.Match(ctx, s, p+tt.pattern)
		require.NoError(t, err, tt.pattern)

		want := make([]string, len(tt.want))
		for i, key := range tt.want {
			want[i] = p + key
		}
		sort.Strings(got)
		sort.Strings(want)
		assert.Equal(t, want, got, tt.pattern)
	}
}

func testMatchEmpty(t *testing.T, s storage.Store, p string) {
	keys, err := storage.Match(context.Background(), s, p+"none:*")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func testIteratorHasNoSideEffects(t *testing.T, s storage.Store, p string) {
	ctx := context.Background()
	for i := 0; i < 25; i++ {
		require.NoError(t, s.Write(ctx, fmt.Sprintf("%sk%02d", p, i), "v"))
	}

	it, err := s.Iterator(ctx, p+"k*")
	require.NoError(t, err)
	seen := make(map[string]bool)
	for it.Next() {
		assert.False(t, seen[it.Key()], "duplicate key %s", it.Key())
		seen[it.Key()] = true
	}
	require.NoError(t, it.Err())
	require.NoError(t, it.Close())
	assert.Len(t, seen, 25)
	assert.False(t, it.Next())

	keys, err := storage.Match(ctx, s, p+"k*")
	require.NoError(t, err)
	assert.Len(t, keys, 25)
}

func testConcurrentWriters(t *testing.T, s storage.Store, p string) {
	ctx := context.Background()
	const writers = 8
	const perWriter = 20

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				hash := fmt.Sprintf("%sw%d:%d", p, w, i)
				assert.NoError(t, s.HWrite(ctx, hash, "n", "1"))
				_, err := s.HRead(ctx, hash, "n")
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()

	keys, err := storage.Match(ctx, s, p+"w*")
	require.NoError(t, err)
	assert.Len(t, keys, writers*perWriter)
}
