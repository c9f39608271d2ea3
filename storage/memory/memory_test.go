package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/giantswarm/webkit/storage"
	"github.com/giantswarm/webkit/storage/storagetest"
)

func TestLocal_Contract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store { return NewLocal() }, false)
}

func TestShared_Contract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store { return NewShared(nil) }, true)
}

func TestShared_ClosedStore(t *testing.T) {
	ctx := context.Background()
	store := NewShared(nil)
	if err := store.Write(ctx, "a", "1"); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if _, err := store.Read(ctx, "a"); !errors.Is(err, storage.ErrClosed) {
		t.Errorf("Read() after Close error = %v, want ErrClosed", err)
	}
	if err := store.Write(ctx, "a", "1"); !errors.Is(err, storage.ErrClosed) {
		t.Errorf("Write() after Close error = %v, want ErrClosed", err)
	}
	if _, err := store.Iterator(ctx, "*"); !errors.Is(err, storage.ErrClosed) {
		t.Errorf("Iterator() after Close error = %v, want ErrClosed", err)
	}
}

func TestShared_IteratorIsSnapshot(t *testing.T) {
	ctx := context.Background()
	store := NewShared(nil)
	defer store.Close()

	for _, key := range []string{"a:1", "a:2"} {
		if err := store.Write(ctx, key, "v"); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}

	it, err := store.Iterator(ctx, "a:*")
	if err != nil {
		t.Fatalf("Iterator() error = %v", err)
	}
	// Writes after construction are not visible and do not deadlock.
	if err := store.Write(ctx, "a:3", "v"); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	var got []string
	for it.Next() {
		got = append(got, it.Key())
	}
	if len(got) != 2 || got[0] != "a:1" || got[1] != "a:2" {
		t.Errorf("iterated keys = %v, want [a:1 a:2]", got)
	}
}

func TestShared_DestroyPatternWhileWriting(t *testing.T) {
	ctx := context.Background()
	store := NewShared(nil)
	defer store.Close()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_ = store.HWrite(ctx, "session:value:x", "token", "x")
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			if err := store.Destroy(ctx, "session:*x*"); err != nil {
				t.Errorf("Destroy() error = %v", err)
				return
			}
		}
	}()
	wg.Wait()

	if err := store.Destroy(ctx, "session:*x*"); err != nil {
		t.Fatalf("Destroy() error = %v", err)
	}
	if store.Len() != 0 {
		t.Errorf("Len() = %d, want 0", store.Len())
	}
}

func TestLocal_PlainAndHashSameName(t *testing.T) {
	ctx := context.Background()
	store := NewLocal()
	_ = store.Write(ctx, "k", "plain")
	_ = store.HWrite(ctx, "k", "f", "hashed")

	keys, err := storage.Match(ctx, store, "*")
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	sort.Strings(keys)
	if len(keys) != 1 || keys[0] != "k" {
		t.Errorf("Match() = %v, want [k]", keys)
	}

	_ = store.Destroy(ctx, "k")
	if store.Len() != 0 {
		t.Errorf("Len() after Destroy = %d, want 0", store.Len())
	}
}
