// Package webkit is a web application toolkit: sessions kept in a pluggable
// key-value store, and an OAuth 2.0 authorization server whose access tokens
// are those sessions.
//
// A Toolkit is built once at process start and passed to everything that
// needs the store, the session handler or the authorization server:
//
//	cfg, err := webkit.ConfigFromProvider(config.NewEnv("WEBKIT"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	tk, err := webkit.New(ctx, cfg, webkit.Options{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tk.Close()
//	tk.Sessions().Start(ctx)
//
//	h, err := webkit.NewHandler(tk, webkit.HandlerConfig{BasePath: "/oauth2"})
//	http.Handle("/oauth2/", h)
package webkit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	"github.com/giantswarm/webkit/instrumentation"
	"github.com/giantswarm/webkit/security"
	"github.com/giantswarm/webkit/server"
	"github.com/giantswarm/webkit/session"
	"github.com/giantswarm/webkit/storage"
	"github.com/giantswarm/webkit/storage/bolt"
	"github.com/giantswarm/webkit/storage/memory"
	"github.com/giantswarm/webkit/storage/redis"
	"github.com/giantswarm/webkit/storage/valkey"
)

// Options injects collaborators that are not plain configuration.
type Options struct {
	// Store replaces the store built from Config.Cache
	Store storage.Store

	// Instrumentation enables metrics and tracing (optional)
	Instrumentation *instrumentation.Instrumentation

	// Auditor receives security events (optional)
	Auditor *security.Auditor

	// Generator replaces the random generator of tokens, ids and codes
	Generator security.NonceGenerator

	// Cryptograph replaces the credential cryptograph built from Config.Argon2
	Cryptograph security.Cryptograph
}

// Toolkit wires the store, the session handler and the authorization server
// together.
type Toolkit struct {
	config Config
	logger *slog.Logger

	store    storage.Store
	sessions *session.Handler
	server   *server.Server

	auditor         *security.Auditor
	instrumentation *instrumentation.Instrumentation
}

// New builds a Toolkit. Zero Config fields take their defaults.
func New(ctx context.Context, cfg Config, opts Options) (*Toolkit, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger

	if opts.Auditor != nil && opts.Instrumentation != nil {
		opts.Auditor.SetInstrumentation(opts.Instrumentation)
	}

	store := opts.Store
	if store == nil {
		var err error
		store, err = OpenStore(ctx, cfg.Cache, opts.Instrumentation, logger)
		if err != nil {
			return nil, err
		}
	}

	carrier, err := session.NewCarrier(cfg.Session.TokenSupport, cfg.Session.TokenLabel)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	sessions, err := session.NewHandler(store, session.Config{
		Timeout:         cfg.Session.Timeout,
		GarbageExtra:    cfg.Session.GarbageExtra,
		TokenLength:     cfg.Session.TokenLength,
		CleanFrequency:  cfg.Session.CleanFrequency,
		RolesMode:       cfg.Session.RolesMode,
		Carrier:         carrier,
		Generator:       opts.Generator,
		Logger:          logger.With("component", "session"),
		Instrumentation: opts.Instrumentation,
		Auditor:         opts.Auditor,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create session handler: %w", err)
	}

	cryptograph := opts.Cryptograph
	if cryptograph == nil {
		cryptograph = security.NewAEADCryptograph(cfg.Argon2)
	}
	srv, err := server.New(store, sessions, server.Config{
		DisableRefreshToken: !cfg.OAuth2.UseRefreshToken,
		ClientIDLength:      cfg.OAuth2.ClientIDLength,
		CodeLength:          cfg.OAuth2.CodeLength,
		Cryptograph:         cryptograph,
		Generator:           opts.Generator,
		Logger:              logger.With("component", "oauth2"),
		Instrumentation:     opts.Instrumentation,
		Auditor:             opts.Auditor,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create authorization server: %w", err)
	}

	return &Toolkit{
		config:          cfg,
		logger:          logger,
		store:           store,
		sessions:        sessions,
		server:          srv,
		auditor:         opts.Auditor,
		instrumentation: opts.Instrumentation,
	}, nil
}

// OpenStore builds the store selected by cfg. Values are encrypted when
// cfg.EncryptionKey is set, and every operation is measured when inst is
// not nil.
func OpenStore(ctx context.Context, cfg CacheConfig, inst *instrumentation.Instrumentation, logger *slog.Logger) (storage.Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	address := net.JoinHostPort(cfg.Address, strconv.Itoa(cfg.Port))

	var store storage.Store
	switch cfg.Driver {
	case DriverMap:
		store = memory.NewLocal()
	case "", DriverSharedMap:
		store = memory.NewShared(logger)
	case DriverValkey:
		s, err := valkey.New(valkey.Config{
			Address:  address,
			Password: cfg.Password,
			DB:       cfg.DB,
			Mode:     cfg.Iterator,
			Logger:   logger,
		})
		if err != nil {
			return nil, err
		}
		store = s
	case DriverRedis:
		s, err := redis.New(ctx, redis.Config{
			Address:  address,
			Password: cfg.Password,
			DB:       cfg.DB,
			Mode:     cfg.Iterator,
			Logger:   logger,
		})
		if err != nil {
			return nil, err
		}
		store = s
	case DriverBolt:
		s, err := bolt.Open(cfg.Path, logger)
		if err != nil {
			return nil, err
		}
		store = s
	default:
		return nil, fmt.Errorf("%w: unknown cache driver %q", ErrInvalidConfig, cfg.Driver)
	}

	if len(cfg.EncryptionKey) > 0 {
		encryptor, err := security.NewEncryptor(cfg.EncryptionKey)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		encryptor.SetInstrumentation(inst)
		store = storage.NewEncrypted(store, encryptor)
	}
	if inst != nil {
		store = storage.NewInstrumented(store, cfg.Driver, inst)
	}
	return store, nil
}

// Config returns the effective configuration.
func (t *Toolkit) Config() Config {
	return t.config
}

// Logger returns the toolkit logger.
func (t *Toolkit) Logger() *slog.Logger {
	return t.logger
}

// Store returns the shared key-value store.
func (t *Toolkit) Store() storage.Store {
	return t.store
}

// Sessions returns the session handler.
func (t *Toolkit) Sessions() *session.Handler {
	return t.sessions
}

// Server returns the authorization server.
func (t *Toolkit) Server() *server.Server {
	return t.server
}

// Auditor returns the security auditor, which may be nil.
func (t *Toolkit) Auditor() *security.Auditor {
	return t.auditor
}

// Instrumentation returns the instrumentation, which may be nil.
func (t *Toolkit) Instrumentation() *instrumentation.Instrumentation {
	return t.instrumentation
}

// Close stops session collection and closes the store.
func (t *Toolkit) Close() error {
	t.sessions.Stop()
	if err := t.store.Close(); err != nil && !errors.Is(err, storage.ErrClosed) {
		return fmt.Errorf("failed to close store: %w", err)
	}
	return nil
}
