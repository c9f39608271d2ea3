package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/webkit/instrumentation"
	"github.com/giantswarm/webkit/security"
	"github.com/giantswarm/webkit/session"
	"github.com/giantswarm/webkit/storage"
)

// Server is the OAuth 2.0 authorization server. Clients, users, codes and
// relation keys live in the injected store; access tokens are sessions of
// the injected session handler.
type Server struct {
	store    storage.Store
	sessions *session.Handler
	config   Config
	logger   *slog.Logger
	tracer   trace.Tracer

	clients *Clients
	users   *Users
	codes   *Codes
}

// New creates a Server. Zero Config fields take their defaults.
func New(store storage.Store, sessions *session.Handler, config Config) (*Server, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidConfig)
	}
	if sessions == nil {
		return nil, fmt.Errorf("%w: session handler is required", ErrInvalidConfig)
	}
	config.applyDefaults()
	if err := config.validate(); err != nil {
		return nil, err
	}

	s := &Server{
		store:    store,
		sessions: sessions,
		config:   config,
		logger:   config.Logger,
	}
	if config.Instrumentation != nil {
		s.tracer = config.Instrumentation.Tracer("server")
	}

	s.clients = &Clients{
		store:        store,
		cryptograph:  config.Cryptograph,
		generator:    config.Generator,
		idLength:     config.ClientIDLength,
		secretLength: config.SecretLength,
		now:          config.Now,
		logger:       config.Logger,
		auditor:      config.Auditor,
		metrics:      s.metrics(),
	}
	s.users = &Users{
		store:       store,
		cryptograph: config.Cryptograph,
		now:         config.Now,
		logger:      config.Logger,
		auditor:     config.Auditor,
		metrics:     s.metrics(),
	}
	s.codes = &Codes{
		store:     store,
		generator: config.Generator,
		length:    config.CodeLength,
		now:       config.Now,
		metrics:   s.metrics(),
	}
	return s, nil
}

// Config returns the effective configuration.
func (s *Server) Config() Config {
	return s.config
}

// Clients returns the client repository.
func (s *Server) Clients() *Clients {
	return s.clients
}

// Users returns the user repository.
func (s *Server) Users() *Users {
	return s.users
}

// Codes returns the authorization code repository.
func (s *Server) Codes() *Codes {
	return s.codes
}

// Sessions returns the session handler issuing access tokens.
func (s *Server) Sessions() *session.Handler {
	return s.sessions
}

func (s *Server) now() time.Time {
	return s.config.Now()
}

func (s *Server) metrics() *instrumentation.Metrics {
	if s.config.Instrumentation == nil {
		return nil
	}
	return s.config.Instrumentation.Metrics()
}

func (s *Server) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return s.tracer.Start(ctx, name)
}

func (s *Server) audit() *security.Auditor {
	return s.config.Auditor
}
