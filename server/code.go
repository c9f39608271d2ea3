package server

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/giantswarm/webkit/instrumentation"
	"github.com/giantswarm/webkit/internal/util"
	"github.com/giantswarm/webkit/security"
	"github.com/giantswarm/webkit/storage"
)

// Code is an authorization code or refresh token. It remembers who
// authorized which client for which roles.
type Code struct {
	Code         string
	ClientID     string
	Username     string
	Roles        []string
	CreationTime time.Time
}

// Scope returns the roles joined with '+'.
func (c *Code) Scope() string {
	return util.JoinList(c.Roles, scopeSep)
}

// Codes is the authorization code repository.
type Codes struct {
	store     storage.Store
	generator security.NonceGenerator
	length    int
	now       func() time.Time
	metrics   *instrumentation.Metrics

	mu sync.Mutex
}

// Exists reports whether code is issued.
func (c *Codes) Exists(ctx context.Context, code string) (bool, error) {
	if code == "" {
		return false, nil
	}
	return c.store.Exists(ctx, codeKey(code))
}

// Load returns the code, or ErrCodeNotFound.
func (c *Codes) Load(ctx context.Context, code string) (*Code, error) {
	if code == "" || strings.ContainsAny(code, reservedChars) {
		return nil, ErrCodeNotFound
	}
	fields, err := readFields(ctx, c.store, codeKey(code), fieldClientID, fieldUsername, fieldRoles, fieldCreationTime)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrCodeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load code: %w", err)
	}
	return &Code{
		Code:         code,
		ClientID:     fields[fieldClientID],
		Username:     fields[fieldUsername],
		Roles:        util.SplitList(fields[fieldRoles], scopeSep),
		CreationTime: parseUnix(fields[fieldCreationTime]),
	}, nil
}

// Create issues a code for clientID on behalf of username.
func (c *Codes) Create(ctx context.Context, clientID, username string, roles []string) (*Code, error) {
	code := &Code{
		ClientID:     clientID,
		Username:     username,
		Roles:        roles,
		CreationTime: c.now().Truncate(time.Second),
	}
	value, err := security.UniqueNonce(ctx, &c.mu, c.generator, c.length,
		func(ctx context.Context, value string) (bool, error) {
			taken, err := c.Exists(ctx, value)
			if taken && c.metrics != nil {
				c.metrics.RecordNonceCollision(ctx, "code")
			}
			return taken, err
		},
		func(ctx context.Context, value string) error {
			return writeFields(ctx, c.store, codeKey(value), [][2]string{
				{fieldClientID, clientID},
				{fieldUsername, username},
				{fieldRoles, code.Scope()},
				{fieldCreationTime, strconv.FormatInt(code.CreationTime.Unix(), 10)},
			})
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create code: %w", err)
	}
	code.Code = value
	return code, nil
}

// Claim deletes code for redemption. Only one caller claims a code; the
// others get ErrCodeNotFound.
func (c *Codes) Claim(ctx context.Context, code string) error {
	if code == "" || strings.ContainsAny(code, reservedChars) {
		return ErrCodeNotFound
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	exists, err := c.Exists(ctx, code)
	if err != nil {
		return fmt.Errorf("failed to claim code: %w", err)
	}
	if !exists {
		return ErrCodeNotFound
	}
	if err := c.store.Destroy(ctx, codeKey(code)); err != nil {
		return fmt.Errorf("failed to claim code: %w", err)
	}
	return nil
}

// Delete removes code. Deleting an unknown code is not an error.
func (c *Codes) Delete(ctx context.Context, code string) error {
	if code == "" || storage.IsPattern(code) {
		return nil
	}
	if err := c.store.Destroy(ctx, codeKey(code)); err != nil {
		return fmt.Errorf("failed to delete code: %w", err)
	}
	return nil
}
