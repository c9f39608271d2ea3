package session

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/giantswarm/webkit/internal/testutil"
	"github.com/giantswarm/webkit/storage"
)

func forEachRolesMode(t *testing.T, fn func(t *testing.T, mode RolesMode)) {
	for _, mode := range []RolesMode{RolesStore, RolesLocal} {
		t.Run(string(mode), func(t *testing.T) { fn(t, mode) })
	}
}

func TestRoles_Lifecycle(t *testing.T) {
	forEachRolesMode(t, func(t *testing.T, mode RolesMode) {
		store := testutil.NewStore(t)
		h, _ := newTestHandler(t, store, Config{RolesMode: mode})
		ctx := context.Background()

		s, err := h.Open(ctx)
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		roles := s.Roles()

		added, err := roles.Add(ctx, "admin")
		if err != nil || !added {
			t.Fatalf("Add() = %v, %v; want true, nil", added, err)
		}
		added, err = roles.Add(ctx, "admin")
		if err != nil || added {
			t.Fatalf("Add() existing = %v, %v; want false, nil", added, err)
		}
		if _, err := roles.Add(ctx, "user"); err != nil {
			t.Fatalf("Add() error = %v", err)
		}

		if ok, err := roles.Is(ctx, "admin"); err != nil || !ok {
			t.Errorf("Is(admin) = %v, %v", ok, err)
		}
		if ok, err := roles.Is(ctx, "guest"); err != nil || ok {
			t.Errorf("Is(guest) = %v, %v", ok, err)
		}

		if err := roles.SetProperty(ctx, "admin", "username", "alice"); err != nil {
			t.Fatalf("SetProperty() error = %v", err)
		}
		if v, err := roles.GetProperty(ctx, "admin", "username"); err != nil || v != "alice" {
			t.Errorf("GetProperty() = %q, %v; want alice", v, err)
		}
		if err := roles.SetProperty(ctx, "guest", "k", "v"); !errors.Is(err, ErrRoleNotHeld) {
			t.Errorf("SetProperty() on absent role error = %v, want ErrRoleNotHeld", err)
		}
		if _, err := roles.GetProperty(ctx, "admin", "missing"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("GetProperty() missing error = %v, want ErrNotFound", err)
		}

		if err := roles.DestroyProperty(ctx, "admin", "username"); err != nil {
			t.Fatalf("DestroyProperty() error = %v", err)
		}
		if _, err := roles.GetProperty(ctx, "admin", "username"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("GetProperty() after destroy error = %v, want ErrNotFound", err)
		}
		if ok, _ := roles.Is(ctx, "admin"); !ok {
			t.Error("DestroyProperty() removed the role")
		}

		names, err := roles.List(ctx)
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		slices.Sort(names)
		if !slices.Equal(names, []string{"admin", "user"}) {
			t.Errorf("List() = %v, want [admin user]", names)
		}

		if err := roles.Remove(ctx, "user"); err != nil {
			t.Fatalf("Remove() error = %v", err)
		}
		if err := roles.Remove(ctx, "never-added"); err != nil {
			t.Errorf("Remove() absent error = %v", err)
		}
		if ok, _ := roles.Is(ctx, "user"); ok {
			t.Error("Is(user) = true after Remove()")
		}

		if err := roles.RemoveAll(ctx); err != nil {
			t.Fatalf("RemoveAll() error = %v", err)
		}
		if names, _ := roles.List(ctx); len(names) != 0 {
			t.Errorf("List() after RemoveAll() = %v", names)
		}
		if ok, _ := h.SessionExists(ctx, s.Token()); !ok {
			t.Error("RemoveAll() removed the session record")
		}
	})
}

func TestRoles_StorageLocation(t *testing.T) {
	ctx := context.Background()

	t.Run("store", func(t *testing.T) {
		store := testutil.NewStore(t)
		h, _ := newTestHandler(t, store, Config{RolesMode: RolesStore})
		s, _ := h.Open(ctx)
		if _, err := s.Roles().Add(ctx, "admin"); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
		v, err := store.HRead(ctx, "session:roles:"+s.Token()+":admin", "0")
		if err != nil || v != "0" {
			t.Errorf("placeholder field = %q, %v; want \"0\"", v, err)
		}
	})

	t.Run("local", func(t *testing.T) {
		store := testutil.NewStore(t)
		h, _ := newTestHandler(t, store, Config{RolesMode: RolesLocal})
		s, _ := h.Open(ctx)
		if _, err := s.Roles().Add(ctx, "admin"); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
		if keys, _ := storage.Match(ctx, store, "session:roles:*"); len(keys) != 0 {
			t.Errorf("local roles written to shared store: %v", keys)
		}

		// Another handle on the same token sees the same roles.
		other, err := h.Load(ctx, s.Token())
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if ok, _ := other.Roles().Is(ctx, "admin"); !ok {
			t.Error("local roles not shared between handles of one session")
		}

		if err := s.Close(ctx); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
		if len(h.local) != 0 {
			t.Errorf("local role sets left after Close(): %d", len(h.local))
		}
	})
}

func TestRoles_MutationsTouchSession(t *testing.T) {
	forEachRolesMode(t, func(t *testing.T, mode RolesMode) {
		store := testutil.NewStore(t)
		h, clock := newTestHandler(t, store, Config{RolesMode: mode})
		ctx := context.Background()
		s, _ := h.Open(ctx)

		mutations := []struct {
			name string
			fn   func() error
		}{
			{"Add", func() error { _, err := s.Roles().Add(ctx, "admin"); return err }},
			{"SetProperty", func() error { return s.Roles().SetProperty(ctx, "admin", "k", "v") }},
			{"DestroyProperty", func() error { return s.Roles().DestroyProperty(ctx, "admin", "k") }},
			{"Remove", func() error { return s.Roles().Remove(ctx, "admin") }},
			{"RemoveAll", func() error { return s.Roles().RemoveAll(ctx) }},
		}
		for _, m := range mutations {
			clock.Advance(time.Minute)
			if err := m.fn(); err != nil {
				t.Fatalf("%s() error = %v", m.name, err)
			}
			if !s.UpdateTime().Equal(clock.Now()) {
				t.Errorf("%s() did not touch the session", m.name)
			}
		}
	})
}

func TestRoles_RemoveAbsentIsNoop(t *testing.T) {
	forEachRolesMode(t, func(t *testing.T, mode RolesMode) {
		store := testutil.NewStore(t)
		h, clock := newTestHandler(t, store, Config{RolesMode: mode})
		ctx := context.Background()
		s, _ := h.Open(ctx)
		before := s.UpdateTime()

		clock.Advance(time.Minute)
		if err := s.Roles().Remove(ctx, "admin"); err != nil {
			t.Fatalf("Remove() error = %v", err)
		}
		if !s.UpdateTime().Equal(before) {
			t.Errorf("Remove() of an absent role touched the session: update_time = %v, want %v", s.UpdateTime(), before)
		}
	})
}

func TestRoles_NotOpen(t *testing.T) {
	forEachRolesMode(t, func(t *testing.T, mode RolesMode) {
		h, _ := newTestHandler(t, testutil.NewStore(t), Config{RolesMode: mode})
		ctx := context.Background()
		roles := h.New().Roles()

		if _, err := roles.Add(ctx, "admin"); !errors.Is(err, ErrNotOpen) {
			t.Errorf("Add() error = %v, want ErrNotOpen", err)
		}
		if _, err := roles.List(ctx); !errors.Is(err, ErrNotOpen) {
			t.Errorf("List() error = %v, want ErrNotOpen", err)
		}
	})
}

func TestRoles_LocalConcurrent(t *testing.T) {
	store := testutil.NewStore(t)
	h, _ := newTestHandler(t, store, Config{RolesMode: RolesLocal})
	ctx := context.Background()

	s, err := h.Open(ctx)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	token := s.Token()

	var wg sync.WaitGroup
	added := make(chan bool, 20)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			handle, err := h.Load(ctx, token)
			if err != nil {
				t.Errorf("Load() error = %v", err)
				return
			}
			ok, err := handle.Roles().Add(ctx, "admin")
			if err != nil {
				t.Errorf("Add() error = %v", err)
				return
			}
			added <- ok
		}()
	}
	wg.Wait()
	close(added)

	wins := 0
	for ok := range added {
		if ok {
			wins++
		}
	}
	if wins != 1 {
		t.Errorf("Add() succeeded %d times, want 1", wins)
	}
}
