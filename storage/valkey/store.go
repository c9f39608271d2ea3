package valkey

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"
	"time"

	valkeygo "github.com/valkey-io/valkey-go"

	"github.com/giantswarm/webkit/storage"
)

const (
	// scanBatchSize is the number of keys to fetch per SCAN iteration
	scanBatchSize = 100

	// connectionVerifyTimeout is the timeout for initial connection verification
	connectionVerifyTimeout = 5 * time.Second
)

// Config holds configuration for the Valkey storage backend.
type Config struct {
	// Address is the Valkey server address (required), e.g., "localhost:6379"
	Address string

	// Password is the optional password for Valkey authentication
	Password string

	// DB is the optional database number (default 0)
	DB int

	// KeyPrefix is prepended to every key and stripped from iterated keys.
	// Empty by default so the key layout is exactly the documented one.
	KeyPrefix string

	// Mode selects KEYS or SCAN iteration (default SCAN)
	Mode storage.IteratorMode

	// TLS is the optional TLS configuration for encrypted connections
	TLS *tls.Config

	// DisableCache turns off client side caching, which needs CLIENT TRACKING
	// support on the server.
	DisableCache bool

	// Logger is the optional structured logger (default: slog.Default())
	Logger *slog.Logger
}

// Store is a Valkey-backed storage.Store.
type Store struct {
	client valkeygo.Client
	prefix string
	mode   storage.IteratorMode
	logger *slog.Logger
}

var _ storage.Store = (*Store)(nil)

// New creates a new Valkey-backed storage instance.
// Returns an error if the connection cannot be established.
func New(cfg Config) (*Store, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("valkey address is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mode := cfg.Mode
	if mode == "" {
		mode = storage.ModeScan
	}

	opts := valkeygo.ClientOption{
		InitAddress:  []string{cfg.Address},
		SelectDB:     cfg.DB,
		DisableCache: cfg.DisableCache,
	}

	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	if cfg.TLS != nil {
		opts.TLSConfig = cfg.TLS
	}

	client, err := valkeygo.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), connectionVerifyTimeout)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}

	logger.Info("Connected to Valkey storage",
		"address", cfg.Address,
		"db", cfg.DB,
		"prefix", cfg.KeyPrefix,
		"iterator", mode)

	return &Store{
		client: client,
		prefix: cfg.KeyPrefix,
		mode:   mode,
		logger: logger,
	}, nil
}

// Close closes the Valkey client connection.
func (s *Store) Close() error {
	s.client.Close()
	s.logger.Info("Valkey storage connection closed")
	return nil
}

func (s *Store) key(k string) string {
	return s.prefix + k
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Do(ctx, s.client.B().Exists().Key(s.key(key)).Build()).AsInt64()
	if err != nil {
		return false, storage.Unavailable("exists", err)
	}
	return n > 0, nil
}

func (s *Store) HExists(ctx context.Context, hash, field string) (bool, error) {
	n, err := s.client.Do(ctx, s.client.B().Hexists().Key(s.key(hash)).Field(field).Build()).AsInt64()
	if err != nil {
		return false, storage.Unavailable("hexists", err)
	}
	return n == 1, nil
}

func (s *Store) Read(ctx context.Context, key string) (string, error) {
	value, err := s.client.Do(ctx, s.client.B().Get().Key(s.key(key)).Build()).ToString()
	if err != nil {
		if isNilError(err) {
			return "", storage.ErrNotFound
		}
		return "", storage.Unavailable("get", err)
	}
	return value, nil
}

func (s *Store) HRead(ctx context.Context, hash, field string) (string, error) {
	value, err := s.client.Do(ctx, s.client.B().Hget().Key(s.key(hash)).Field(field).Build()).ToString()
	if err != nil {
		if isNilError(err) {
			return "", storage.ErrNotFound
		}
		return "", storage.Unavailable("hget", err)
	}
	return value, nil
}

func (s *Store) Write(ctx context.Context, key, value string) error {
	if err := s.client.Do(ctx, s.client.B().Set().Key(s.key(key)).Value(value).Build()).Error(); err != nil {
		return storage.Unavailable("set", err)
	}
	return nil
}

func (s *Store) HWrite(ctx context.Context, hash, field, value string) error {
	cmd := s.client.B().Hset().Key(s.key(hash)).FieldValue().FieldValue(field, value).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return storage.Unavailable("hset", err)
	}
	return nil
}

func (s *Store) Destroy(ctx context.Context, key string) error {
	if storage.IsPattern(key) {
		return storage.DestroyMatching(ctx, s, key, s.del)
	}
	return s.del(ctx, key)
}

func (s *Store) del(ctx context.Context, key string) error {
	if err := s.client.Do(ctx, s.client.B().Del().Key(s.key(key)).Build()).Error(); err != nil {
		return storage.Unavailable("del", err)
	}
	return nil
}

func (s *Store) HDestroy(ctx context.Context, hash, field string) error {
	if err := s.client.Do(ctx, s.client.B().Hdel().Key(s.key(hash)).Field(field).Build()).Error(); err != nil {
		return storage.Unavailable("hdel", err)
	}
	return nil
}

// Iterator returns a KEYS or SCAN backed iterator depending on the
// configured mode. Keys are returned without the store prefix.
func (s *Store) Iterator(ctx context.Context, pattern string) (storage.Iterator, error) {
	if s.mode == storage.ModeKeys {
		return storage.NewCursorIterator(ctx, pattern, s.fetchKeys), nil
	}
	return storage.NewCursorIterator(ctx, pattern, s.fetchScan), nil
}

func (s *Store) fetchKeys(ctx context.Context, pattern string, _ uint64) ([]string, uint64, error) {
	keys, err := s.client.Do(ctx, s.client.B().Keys().Pattern(s.key(pattern)).Build()).AsStrSlice()
	if err != nil {
		return nil, 0, storage.Unavailable("keys", err)
	}
	return s.stripPrefix(keys), 0, nil
}

func (s *Store) fetchScan(ctx context.Context, pattern string, cursor uint64) ([]string, uint64, error) {
	result, err := s.client.Do(ctx,
		s.client.B().Scan().Cursor(cursor).Match(s.key(pattern)).Count(scanBatchSize).Build(),
	).AsScanEntry()
	if err != nil {
		return nil, 0, storage.Unavailable("scan", err)
	}
	return s.stripPrefix(result.Elements), result.Cursor, nil
}

func (s *Store) stripPrefix(keys []string) []string {
	if s.prefix == "" {
		return keys
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, strings.TrimPrefix(k, s.prefix))
	}
	return out
}

// isNilError reports whether err is the Valkey nil reply.
func isNilError(err error) bool {
	return valkeygo.IsValkeyNil(err)
}
