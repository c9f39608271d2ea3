package session

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/giantswarm/webkit/storage"
)

// Roles stores the roles held by a session and a string property map per
// role. Every mutation touches the owning session.
type Roles interface {
	// Is reports whether the session holds role.
	Is(ctx context.Context, role string) (bool, error)

	// Add grants role. It returns false when the role was already held.
	Add(ctx context.Context, role string) (bool, error)

	// Remove drops role and its properties. Removing an absent role is a no-op.
	Remove(ctx context.Context, role string) error

	// RemoveAll drops every role.
	RemoveAll(ctx context.Context) error

	// SetProperty sets a property of a held role, or returns ErrRoleNotHeld.
	SetProperty(ctx context.Context, role, key, value string) error

	// GetProperty returns a property value or storage.ErrNotFound.
	GetProperty(ctx context.Context, role, key string) (string, error)

	// DestroyProperty removes one property of role.
	DestroyProperty(ctx context.Context, role, key string) error

	// List returns the names of the held roles.
	List(ctx context.Context) ([]string, error)
}

// roles serves both RolesMode implementations: with RolesStore the hashes
// live in the handler's store, with RolesLocal in a per-session
// memory.Local owned by the handler and guarded by its mutex. Key layout is
// the same in both.
type roles struct {
	s *Session
}

var _ Roles = (*roles)(nil)

type nopLocker struct{}

func (nopLocker) Lock()   {}
func (nopLocker) Unlock() {}

func (r *roles) backend() (storage.Store, sync.Locker, string, error) {
	token := r.s.token
	if token == "" {
		return nil, nil, "", ErrNotOpen
	}
	h := r.s.handler
	if h.config.RolesMode == RolesLocal {
		entry := h.localRoles(token)
		return entry.store, &entry.mu, token, nil
	}
	return h.store, nopLocker{}, token, nil
}

func (r *roles) Is(ctx context.Context, role string) (bool, error) {
	store, mu, token, err := r.backend()
	if err != nil {
		return false, err
	}
	mu.Lock()
	defer mu.Unlock()
	return store.Exists(ctx, roleKey(token, role))
}

func (r *roles) Add(ctx context.Context, role string) (bool, error) {
	store, mu, token, err := r.backend()
	if err != nil {
		return false, err
	}

	added, err := func() (bool, error) {
		mu.Lock()
		defer mu.Unlock()
		held, err := store.Exists(ctx, roleKey(token, role))
		if err != nil || held {
			return false, err
		}
		return true, store.HWrite(ctx, roleKey(token, role), placeholderField, placeholderField)
	}()
	if err != nil {
		return false, fmt.Errorf("failed to add role %q: %w", role, err)
	}
	if !added {
		return false, nil
	}
	return true, r.s.Update(ctx)
}

func (r *roles) Remove(ctx context.Context, role string) error {
	store, mu, token, err := r.backend()
	if err != nil {
		return err
	}
	removed, err := func() (bool, error) {
		mu.Lock()
		defer mu.Unlock()
		held, err := store.Exists(ctx, roleKey(token, role))
		if err != nil || !held {
			return false, err
		}
		return true, store.Destroy(ctx, roleKey(token, role))
	}()
	if err != nil {
		return fmt.Errorf("failed to remove role %q: %w", role, err)
	}
	if !removed {
		return nil
	}
	return r.s.Update(ctx)
}

func (r *roles) RemoveAll(ctx context.Context) error {
	if err := r.removeAll(ctx); err != nil {
		return fmt.Errorf("failed to remove roles: %w", err)
	}
	return r.s.Update(ctx)
}

// removeAll does not touch the session; Close uses it right before the
// record is deleted.
func (r *roles) removeAll(ctx context.Context) error {
	store, mu, token, err := r.backend()
	if err != nil {
		return err
	}
	mu.Lock()
	defer mu.Unlock()
	return store.Destroy(ctx, roleKey(token, storage.Wildcard))
}

func (r *roles) SetProperty(ctx context.Context, role, key, value string) error {
	store, mu, token, err := r.backend()
	if err != nil {
		return err
	}

	err = func() error {
		mu.Lock()
		defer mu.Unlock()
		held, err := store.Exists(ctx, roleKey(token, role))
		if err != nil {
			return err
		}
		if !held {
			return ErrRoleNotHeld
		}
		return store.HWrite(ctx, roleKey(token, role), key, value)
	}()
	if err != nil {
		return fmt.Errorf("failed to set property %q of role %q: %w", key, role, err)
	}
	return r.s.Update(ctx)
}

func (r *roles) GetProperty(ctx context.Context, role, key string) (string, error) {
	store, mu, token, err := r.backend()
	if err != nil {
		return "", err
	}
	mu.Lock()
	defer mu.Unlock()
	return store.HRead(ctx, roleKey(token, role), key)
}

func (r *roles) DestroyProperty(ctx context.Context, role, key string) error {
	store, mu, token, err := r.backend()
	if err != nil {
		return err
	}
	mu.Lock()
	err = store.HDestroy(ctx, roleKey(token, role), key)
	mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to destroy property %q of role %q: %w", key, role, err)
	}
	return r.s.Update(ctx)
}

func (r *roles) List(ctx context.Context) ([]string, error) {
	store, mu, token, err := r.backend()
	if err != nil {
		return nil, err
	}
	mu.Lock()
	keys, err := storage.Match(ctx, store, roleKey(token, storage.Wildcard))
	mu.Unlock()
	if err != nil {
		return nil, err
	}

	prefix := roleKeyPrefix(token)
	names := make([]string, 0, len(keys))
	for _, key := range keys {
		names = append(names, strings.TrimPrefix(key, prefix))
	}
	return names, nil
}
