// Package redis provides a Redis storage backend built on go-redis.
//
// It behaves like storage/valkey and exists for deployments that already
// standardise on go-redis (Sentinel, cluster-aware UniversalClient options).
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/giantswarm/webkit/storage"
)

// Default timeouts for Redis operations.
const (
	DefaultDialTimeout  = 5 * time.Second
	DefaultReadTimeout  = 3 * time.Second
	DefaultWriteTimeout = 3 * time.Second
)

// scanBatchSize is the COUNT hint passed to SCAN
const scanBatchSize = 100

// Config holds Redis connection configuration.
type Config struct {
	// Address is host:port of the server (required).
	Address string

	Username string
	Password string
	DB       int

	// KeyPrefix is prepended to every key and stripped from iterated keys.
	KeyPrefix string

	// Mode selects KEYS or SCAN iteration (default SCAN).
	Mode storage.IteratorMode

	// Timeouts (defaults: Dial=5s, Read=3s, Write=3s).
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	Logger *slog.Logger
}

// Store implements storage.Store on a Redis server.
type Store struct {
	client    redis.UniversalClient
	keyPrefix string
	mode      storage.IteratorMode
	logger    *slog.Logger
}

var _ storage.Store = (*Store)(nil)

// New connects to the server described by cfg and verifies the connection.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Address == "" {
		return nil, errors.New("redis address is required")
	}

	// Apply defaults
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		// Close the client to prevent resource leak
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	s := NewWithClient(client, cfg.KeyPrefix, cfg.Mode, cfg.Logger)
	s.logger.Info("Connected to Redis storage", "address", cfg.Address, "db", cfg.DB, "iterator", s.mode)
	return s, nil
}

// NewWithClient creates a Store with a pre-configured client.
// This is useful for testing with miniredis.
func NewWithClient(client redis.UniversalClient, keyPrefix string, mode storage.IteratorMode, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if mode == "" {
		mode = storage.ModeScan
	}
	return &Store{
		client:    client,
		keyPrefix: keyPrefix,
		mode:      mode,
		logger:    logger,
	}
}

func (s *Store) key(k string) string {
	return s.keyPrefix + k
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(key)).Result()
	if err != nil {
		return false, storage.Unavailable("exists", err)
	}
	return n > 0, nil
}

func (s *Store) HExists(ctx context.Context, hash, field string) (bool, error) {
	ok, err := s.client.HExists(ctx, s.key(hash), field).Result()
	if err != nil {
		return false, storage.Unavailable("hexists", err)
	}
	return ok, nil
}

func (s *Store) Read(ctx context.Context, key string) (string, error) {
	value, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", storage.Unavailable("get", err)
	}
	return value, nil
}

func (s *Store) HRead(ctx context.Context, hash, field string) (string, error) {
	value, err := s.client.HGet(ctx, s.key(hash), field).Result()
	if errors.Is(err, redis.Nil) {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", storage.Unavailable("hget", err)
	}
	return value, nil
}

func (s *Store) Write(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		return storage.Unavailable("set", err)
	}
	return nil
}

func (s *Store) HWrite(ctx context.Context, hash, field, value string) error {
	if err := s.client.HSet(ctx, s.key(hash), field, value).Err(); err != nil {
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
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return storage.Unavailable("del", err)
	}
	return nil
}

func (s *Store) HDestroy(ctx context.Context, hash, field string) error {
	if err := s.client.HDel(ctx, s.key(hash), field).Err(); err != nil {
		return storage.Unavailable("hdel", err)
	}
	return nil
}

// Iterator returns a KEYS or SCAN backed iterator depending on the mode.
func (s *Store) Iterator(ctx context.Context, pattern string) (storage.Iterator, error) {
	if s.mode == storage.ModeKeys {
		return storage.NewCursorIterator(ctx, pattern, s.fetchKeys), nil
	}
	return storage.NewCursorIterator(ctx, pattern, s.fetchScan), nil
}

func (s *Store) fetchKeys(ctx context.Context, pattern string, _ uint64) ([]string, uint64, error) {
	keys, err := s.client.Keys(ctx, s.key(pattern)).Result()
	if err != nil {
		return nil, 0, storage.Unavailable("keys", err)
	}
	return s.stripPrefix(keys), 0, nil
}

func (s *Store) fetchScan(ctx context.Context, pattern string, cursor uint64) ([]string, uint64, error) {
	keys, next, err := s.client.Scan(ctx, cursor, s.key(pattern), scanBatchSize).Result()
	if err != nil {
		return nil, 0, storage.Unavailable("scan", err)
	}
	return s.stripPrefix(keys), next, nil
}

func (s *Store) stripPrefix(keys []string) []string {
	if s.keyPrefix == "" {
		return keys
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, strings.TrimPrefix(k, s.keyPrefix))
	}
	return out
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}
