// Package bolt provides a single-file persistent storage backend on bbolt.
//
// Plain keys live in the "values" bucket; each hash is a nested bucket of
// the "hashes" bucket. bbolt serializes writers itself, so the Store is safe
// for concurrent use within one process. Only one process can open the file.
package bolt

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/tidwall/match"
	bolt "go.etcd.io/bbolt"

	"github.com/giantswarm/webkit/storage"
)

const (
	// dirPerm is the permission mode for the database directory.
	dirPerm = fs.FileMode(0o700)

	// filePerm is the permission mode for the database file.
	filePerm = fs.FileMode(0o600)

	// openTimeout is the maximum time to wait for the bolt database lock.
	openTimeout = 5 * time.Second

	// valueTag prefixes every stored value so empty strings survive Get.
	valueTag = 'v'
)

var (
	valuesBucket = []byte("values")
	hashesBucket = []byte("hashes")
)

// Store wraps a bbolt database.
type Store struct {
	db     *bolt.DB
	logger *slog.Logger
}

var _ storage.Store = (*Store)(nil)

// Open opens or creates the database at path.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	db, err := bolt.Open(path, filePerm, &bolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{valuesBucket, hashesBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	logger.Info("Opened bolt storage", "path", path)
	return &Store{db: db, logger: logger}, nil
}

func encode(value string) []byte {
	b := make([]byte, 0, len(value)+1)
	b = append(b, valueTag)
	return append(b, value...)
}

func decode(b []byte) string {
	return string(b[1:])
}

func (s *Store) view(op string, fn func(tx *bolt.Tx) error) error {
	if err := s.db.View(fn); err != nil {
		return storage.Unavailable(op, err)
	}
	return nil
}

func (s *Store) update(op string, fn func(tx *bolt.Tx) error) error {
	if err := s.db.Update(fn); err != nil {
		return storage.Unavailable(op, err)
	}
	return nil
}

func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	var ok bool
	err := s.view("exists", func(tx *bolt.Tx) error {
		k := []byte(key)
		ok = tx.Bucket(valuesBucket).Get(k) != nil || tx.Bucket(hashesBucket).Bucket(k) != nil
		return nil
	})
	return ok, err
}

func (s *Store) HExists(_ context.Context, hash, field string) (bool, error) {
	var ok bool
	err := s.view("hexists", func(tx *bolt.Tx) error {
		if b := tx.Bucket(hashesBucket).Bucket([]byte(hash)); b != nil {
			ok = b.Get([]byte(field)) != nil
		}
		return nil
	})
	return ok, err
}

func (s *Store) Read(_ context.Context, key string) (string, error) {
	var (
		value string
		found bool
	)
	err := s.view("get", func(tx *bolt.Tx) error {
		if v := tx.Bucket(valuesBucket).Get([]byte(key)); v != nil {
			value, found = decode(v), true
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if !found {
		return "", storage.ErrNotFound
	}
	return value, nil
}

func (s *Store) HRead(_ context.Context, hash, field string) (string, error) {
	var (
		value string
		found bool
	)
	err := s.view("hget", func(tx *bolt.Tx) error {
		b := tx.Bucket(hashesBucket).Bucket([]byte(hash))
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(field)); v != nil {
			value, found = decode(v), true
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if !found {
		return "", storage.ErrNotFound
	}
	return value, nil
}

func (s *Store) Write(_ context.Context, key, value string) error {
	return s.update("set", func(tx *bolt.Tx) error {
		return tx.Bucket(valuesBucket).Put([]byte(key), encode(value))
	})
}

func (s *Store) HWrite(_ context.Context, hash, field, value string) error {
	return s.update("hset", func(tx *bolt.Tx) error {
		b, err := tx.Bucket(hashesBucket).CreateBucketIfNotExists([]byte(hash))
		if err != nil {
			return err
		}
		return b.Put([]byte(field), encode(value))
	})
}

func (s *Store) Destroy(ctx context.Context, key string) error {
	if storage.IsPattern(key) {
		return storage.DestroyMatching(ctx, s, key, s.del)
	}
	return s.del(ctx, key)
}

func (s *Store) del(_ context.Context, key string) error {
	return s.update("del", func(tx *bolt.Tx) error {
		k := []byte(key)
		if err := tx.Bucket(valuesBucket).Delete(k); err != nil {
			return err
		}
		hashes := tx.Bucket(hashesBucket)
		if hashes.Bucket(k) != nil {
			return hashes.DeleteBucket(k)
		}
		return nil
	})
}

// HDestroy removes a field and drops the hash once it has no fields left.
func (s *Store) HDestroy(_ context.Context, hash, field string) error {
	return s.update("hdel", func(tx *bolt.Tx) error {
		hashes := tx.Bucket(hashesBucket)
		b := hashes.Bucket([]byte(hash))
		if b == nil {
			return nil
		}
		if err := b.Delete([]byte(field)); err != nil {
			return err
		}
		if k, _ := b.Cursor().First(); k == nil {
			return hashes.DeleteBucket([]byte(hash))
		}
		return nil
	})
}

// Iterator returns a snapshot of the keys matching pattern.
func (s *Store) Iterator(_ context.Context, pattern string) (storage.Iterator, error) {
	var keys []string
	err := s.view("scan", func(tx *bolt.Tx) error {
		seen := make(map[string]struct{})
		collect := func(k, _ []byte) error {
			key := string(k)
			if _, dup := seen[key]; dup {
				return nil
			}
			if match.Match(key, pattern) {
				seen[key] = struct{}{}
				keys = append(keys, key)
			}
			return nil
		}
		if err := tx.Bucket(valuesBucket).ForEach(collect); err != nil {
			return err
		}
		return tx.Bucket(hashesBucket).ForEach(collect)
	})
	if err != nil {
		return nil, err
	}
	return storage.NewSliceIterator(keys), nil
}

// Close closes the database file.
func (s *Store) Close() error {
	return s.db.Close()
}
