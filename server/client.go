package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/giantswarm/webkit/instrumentation"
	"github.com/giantswarm/webkit/internal/util"
	"github.com/giantswarm/webkit/security"
	"github.com/giantswarm/webkit/storage"
)

// Client types.
const (
	ClientTypePublic       = "public"
	ClientTypeConfidential = "confidential"
)

// blockedRedirectSchemes can execute code in the user agent.
var blockedRedirectSchemes = []string{"javascript", "data", "vbscript", "file"}

// Client is a registered OAuth2 client application.
type Client struct {
	ID              string    `json:"client_id"`
	Type            string    `json:"type"`
	ApplicationName string    `json:"application_name"`
	RedirectURIs    []string  `json:"redirect_uris"`
	Roles           []string  `json:"roles"`
	CreationTime    time.Time `json:"creation_time"`

	key         string
	cryptograph security.Cryptograph
}

// CorrectCredentials reports whether secret is the client's secret.
func (c *Client) CorrectCredentials(secret string) bool {
	return checkBinding(c.cryptograph, c.key, c.ID, secret)
}

// HasRole reports whether the client may request role.
func (c *Client) HasRole(role string) bool {
	return slices.Contains(c.Roles, role)
}

// HasRedirectURI reports whether uri is registered for the client.
func (c *Client) HasRedirectURI(uri string) bool {
	return slices.Contains(c.RedirectURIs, uri)
}

// ToJSON returns the client's public fields as JSON.
func (c *Client) ToJSON() ([]byte, error) {
	return json.Marshal(c)
}

// Clients is the client repository.
type Clients struct {
	store        storage.Store
	cryptograph  security.Cryptograph
	generator    security.NonceGenerator
	idLength     int
	secretLength int
	now          func() time.Time
	logger       *slog.Logger
	auditor      *security.Auditor
	metrics      *instrumentation.Metrics

	mu sync.Mutex
}

// ClientRegistration describes a client to create.
type ClientRegistration struct {
	Type            string
	ApplicationName string
	RedirectURIs    []string
	Roles           []string
}

// Exists reports whether a client with id is registered.
func (c *Clients) Exists(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	return c.store.Exists(ctx, clientKey(id))
}

// Load returns the client with id, or ErrClientNotFound.
func (c *Clients) Load(ctx context.Context, id string) (*Client, error) {
	if id == "" || strings.ContainsAny(id, reservedChars) {
		return nil, ErrClientNotFound
	}
	fields, err := readFields(ctx, c.store, clientKey(id),
		fieldKey, fieldType, fieldApplicationName, fieldRedirectURIs, fieldRoles, fieldCreationTime)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrClientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load client: %w", err)
	}

	return &Client{
		ID:              id,
		Type:            fields[fieldType],
		ApplicationName: fields[fieldApplicationName],
		RedirectURIs:    util.SplitList(fields[fieldRedirectURIs], listSep),
		Roles:           util.SplitList(fields[fieldRoles], listSep),
		CreationTime:    parseUnix(fields[fieldCreationTime]),
		key:             fields[fieldKey],
		cryptograph:     c.cryptograph,
	}, nil
}

// Create registers a client and returns it with its generated secret. The
// secret is only available here.
func (c *Clients) Create(ctx context.Context, reg ClientRegistration) (*Client, string, error) {
	if reg.Type == "" {
		reg.Type = ClientTypeConfidential
	}
	if reg.Type != ClientTypePublic && reg.Type != ClientTypeConfidential {
		return nil, "", fmt.Errorf("%w: unknown client type %q", ErrInvalidEntity, reg.Type)
	}
	for _, uri := range reg.RedirectURIs {
		if err := ValidateRedirectURI(uri); err != nil {
			return nil, "", err
		}
	}
	for _, role := range reg.Roles {
		if err := validateRole(role); err != nil {
			return nil, "", err
		}
	}

	secret, err := c.generator.Generate(c.secretLength)
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate client secret: %w", err)
	}

	client := &Client{
		Type:            reg.Type,
		ApplicationName: reg.ApplicationName,
		RedirectURIs:    reg.RedirectURIs,
		Roles:           reg.Roles,
		CreationTime:    c.now().Truncate(time.Second),
		cryptograph:     c.cryptograph,
	}

	id, err := security.UniqueNonce(ctx, &c.mu, c.generator, c.idLength,
		func(ctx context.Context, id string) (bool, error) {
			taken, err := c.Exists(ctx, id)
			if taken && c.metrics != nil {
				c.metrics.RecordNonceCollision(ctx, "client")
			}
			return taken, err
		},
		func(ctx context.Context, id string) error {
			key, err := c.cryptograph.Encrypt(id, secret)
			if err != nil {
				return err
			}
			client.ID = id
			client.key = key
			return c.save(ctx, client)
		},
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create client: %w", err)
	}

	if c.metrics != nil {
		c.metrics.RecordClientCreated(ctx, client.Type)
	}
	c.auditor.LogClientCreated(id, client.Type)
	c.logger.Info("Client created", "client_id", id, "type", client.Type, "application_name", client.ApplicationName)
	return client, secret, nil
}

func (c *Clients) save(ctx context.Context, client *Client) error {
	return writeFields(ctx, c.store, clientKey(client.ID), [][2]string{
		{fieldKey, client.key},
		{fieldType, client.Type},
		{fieldApplicationName, client.ApplicationName},
		{fieldRedirectURIs, util.JoinList(client.RedirectURIs, listSep)},
		{fieldRoles, util.JoinList(client.Roles, listSep)},
		{fieldCreationTime, strconv.FormatInt(client.CreationTime.Unix(), 10)},
	})
}

// Delete removes the client after verifying secret.
func (c *Clients) Delete(ctx context.Context, id, secret string) error {
	client, err := c.Load(ctx, id)
	if err != nil {
		return err
	}
	if !client.CorrectCredentials(secret) {
		c.auditor.LogAuthFailure("", id, "", "client secret mismatch on delete")
		return ErrInvalidCredentials
	}
	if err := c.store.Destroy(ctx, clientKey(id)); err != nil {
		return fmt.Errorf("failed to delete client: %w", err)
	}
	c.auditor.LogEvent(security.Event{Type: security.EventClientDeleted, ClientID: id})
	return nil
}

// ValidateRedirectURI rejects redirect URIs that are not absolute, carry a
// fragment or use a scheme that executes in the user agent.
func ValidateRedirectURI(uri string) error {
	parsed, err := url.Parse(uri)
	if err != nil {
		return fmt.Errorf("%w: redirect_uri: invalid URI format", ErrInvalidEntity)
	}
	if !parsed.IsAbs() {
		return fmt.Errorf("%w: redirect_uri must be absolute: %s", ErrInvalidEntity, uri)
	}
	if parsed.Fragment != "" {
		return fmt.Errorf("%w: redirect_uri: fragments are not allowed", ErrInvalidEntity)
	}
	if slices.Contains(blockedRedirectSchemes, strings.ToLower(parsed.Scheme)) {
		return fmt.Errorf("%w: redirect_uri: scheme %q is not allowed", ErrInvalidEntity, parsed.Scheme)
	}
	if strings.Contains(uri, listSep) {
		return fmt.Errorf("%w: redirect_uri must not contain %q", ErrInvalidEntity, listSep)
	}
	return nil
}

// validateRole rejects role names that cannot be stored in a list or scope.
func validateRole(role string) error {
	if role == "" || strings.ContainsAny(role, listSep+scopeSep+" "+reservedChars) {
		return fmt.Errorf("%w: invalid role name %q", ErrInvalidEntity, role)
	}
	return nil
}

// checkBinding reports whether key decrypts with secret to id.
func checkBinding(cryptograph security.Cryptograph, key, id, secret string) bool {
	if key == "" || secret == "" {
		return false
	}
	plain, err := cryptograph.Decrypt(key, secret)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(plain), []byte(id)) == 1
}

// readFields reads every field of hash. The first field must exist; missing
// later fields read as "".
func readFields(ctx context.Context, store storage.Store, hash string, fields ...string) (map[string]string, error) {
	out := make(map[string]string, len(fields))
	for i, field := range fields {
		value, err := store.HRead(ctx, hash, field)
		if errors.Is(err, storage.ErrNotFound) && i > 0 {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[field] = value
	}
	return out, nil
}

func writeFields(ctx context.Context, store storage.Store, hash string, fields [][2]string) error {
	for _, f := range fields {
		if err := store.HWrite(ctx, hash, f[0], f[1]); err != nil {
			return err
		}
	}
	return nil
}

func parseUnix(s string) time.Time {
	secs, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(secs, 0).UTC()
}
