package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/giantswarm/webkit/instrumentation"
	"github.com/giantswarm/webkit/security"
	"github.com/giantswarm/webkit/storage"
)

// User is a resource owner. Roles maps every role the user holds to the
// properties copied into sessions carrying that role.
type User struct {
	Username     string                       `json:"username"`
	Roles        map[string]map[string]string `json:"roles"`
	CreationTime time.Time                    `json:"creation_time"`

	key         string
	cryptograph security.Cryptograph
}

// CorrectCredentials reports whether password is the user's password.
func (u *User) CorrectCredentials(password string) bool {
	return checkBinding(u.cryptograph, u.key, u.Username, password)
}

// HasRole reports whether the user holds role.
func (u *User) HasRole(role string) bool {
	_, ok := u.Roles[role]
	return ok
}

// RoleNames returns the user's roles in sorted order.
func (u *User) RoleNames() []string {
	names := make([]string, 0, len(u.Roles))
	for name := range u.Roles {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ToJSON returns the user's public fields as JSON.
func (u *User) ToJSON() ([]byte, error) {
	return json.Marshal(u)
}

// Users is the user repository.
type Users struct {
	store       storage.Store
	cryptograph security.Cryptograph
	now         func() time.Time
	logger      *slog.Logger
	auditor     *security.Auditor
	metrics     *instrumentation.Metrics

	mu sync.Mutex
}

// Exists reports whether username is taken.
func (u *Users) Exists(ctx context.Context, username string) (bool, error) {
	if username == "" {
		return false, nil
	}
	return u.store.Exists(ctx, userKey(username))
}

// Load returns the user, or ErrUserNotFound.
func (u *Users) Load(ctx context.Context, username string) (*User, error) {
	if validateUsername(username) != nil {
		return nil, ErrUserNotFound
	}
	fields, err := readFields(ctx, u.store, userKey(username), fieldKey, fieldRoles, fieldCreationTime)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	roles := map[string]map[string]string{}
	if raw := fields[fieldRoles]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &roles); err != nil {
			return nil, fmt.Errorf("failed to decode roles of user %q: %w", username, err)
		}
	}
	return &User{
		Username:     username,
		Roles:        roles,
		CreationTime: parseUnix(fields[fieldCreationTime]),
		key:          fields[fieldKey],
		cryptograph:  u.cryptograph,
	}, nil
}

// Create registers a user. It returns ErrUserExists for a taken username.
func (u *Users) Create(ctx context.Context, username, password string, roles map[string]map[string]string) (*User, error) {
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	if password == "" {
		return nil, fmt.Errorf("%w: password is required", ErrInvalidEntity)
	}
	if roles == nil {
		roles = map[string]map[string]string{}
	}
	for role := range roles {
		if err := validateRole(role); err != nil {
			return nil, err
		}
	}

	encodedRoles, err := json.Marshal(roles)
	if err != nil {
		return nil, fmt.Errorf("failed to encode roles: %w", err)
	}
	key, err := u.cryptograph.Encrypt(username, password)
	if err != nil {
		return nil, fmt.Errorf("failed to bind password: %w", err)
	}

	user := &User{
		Username:     username,
		Roles:        roles,
		CreationTime: u.now().Truncate(time.Second),
		key:          key,
		cryptograph:  u.cryptograph,
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	taken, err := u.Exists(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to check user: %w", err)
	}
	if taken {
		return nil, ErrUserExists
	}
	err = writeFields(ctx, u.store, userKey(username), [][2]string{
		{fieldKey, key},
		{fieldRoles, string(encodedRoles)},
		{fieldCreationTime, strconv.FormatInt(user.CreationTime.Unix(), 10)},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save user: %w", err)
	}

	if u.metrics != nil {
		u.metrics.RecordUserCreated(ctx)
	}
	u.auditor.LogUserCreated(username)
	u.logger.Info("User created", "roles", len(roles))
	return user, nil
}

// Delete removes the user after verifying password.
func (u *Users) Delete(ctx context.Context, username, password string) error {
	user, err := u.Load(ctx, username)
	if err != nil {
		return err
	}
	if !user.CorrectCredentials(password) {
		u.auditor.LogAuthFailure(username, "", "", "password mismatch on delete")
		return ErrInvalidCredentials
	}
	if err := u.store.Destroy(ctx, userKey(username)); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	u.auditor.LogEvent(security.Event{Type: security.EventUserDeleted, UserID: username})
	return nil
}

// validateUsername rejects names that would break the relation key layout
// or be read as a pattern.
func validateUsername(username string) error {
	if username == "" {
		return fmt.Errorf("%w: username is required", ErrInvalidEntity)
	}
	if strings.ContainsAny(username, reservedChars) {
		return fmt.Errorf("%w: username must not contain any of %q", ErrInvalidEntity, reservedChars)
	}
	return nil
}
