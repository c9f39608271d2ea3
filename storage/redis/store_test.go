package redis

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/giantswarm/webkit/storage"
	"github.com/giantswarm/webkit/storage/storagetest"
)

func newTestStore(t *testing.T, mode storage.IteratorMode, prefix string) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewWithClient(client, prefix, mode, nil), mr
}

func TestStore_Contract_Scan(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		s, _ := newTestStore(t, storage.ModeScan, "")
		return s
	}, true)
}

func TestStore_Contract_Keys(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		s, _ := newTestStore(t, storage.ModeKeys, "p:")
		return s
	}, true)
}

func TestNew_ConnectsAndPings(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := New(context.Background(), Config{Address: mr.Addr()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer s.Close()

	if err := s.Write(context.Background(), "k", "v"); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if got, _ := mr.Get("k"); got != "v" {
		t.Errorf("server value = %q, want %q", got, "v")
	}
}

func TestNew_Errors(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Error("New() with empty address should return error")
	}

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	if _, err := New(context.Background(), Config{Address: addr}); err == nil {
		t.Error("New() against a stopped server should return error")
	}
}

func TestStore_ServerErrorIsUnavailable(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t, storage.ModeScan, "")
	defer s.Close()

	// Establish the pooled connection before the server starts failing.
	if err := s.Write(ctx, "warm", "1"); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	mr.SetError("LOADING")
	if _, err := s.HRead(ctx, "h", "f"); !errors.Is(err, storage.ErrUnavailable) {
		t.Errorf("HRead() error = %v, want ErrUnavailable", err)
	}
	if err := s.HWrite(ctx, "h", "f", "v"); !errors.Is(err, storage.ErrUnavailable) {
		t.Errorf("HWrite() error = %v, want ErrUnavailable", err)
	}
	if err := s.Destroy(ctx, "h*"); !errors.Is(err, storage.ErrUnavailable) {
		t.Errorf("Destroy(pattern) error = %v, want ErrUnavailable", err)
	}

	mr.SetError("")
	if _, err := s.HRead(ctx, "h", "f"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("HRead() after recovery error = %v, want ErrNotFound", err)
	}
}
