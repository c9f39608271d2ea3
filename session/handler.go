package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/webkit/instrumentation"
	"github.com/giantswarm/webkit/storage"
	"github.com/giantswarm/webkit/storage/memory"
)

// CloseFunc is called with the state of a session right before it is
// removed.
type CloseFunc func(ctx context.Context, snapshot Snapshot)

type namedCallback struct {
	name string
	fn   CloseFunc
}

type localRoleSet struct {
	mu    sync.Mutex
	store *memory.Local
}

// Handler creates, loads, saves and collects sessions held in a store.
type Handler struct {
	store  storage.Store
	config Config
	logger *slog.Logger
	tracer trace.Tracer

	// openMu serialises the exists-then-save step of token reservation.
	openMu sync.Mutex

	callbacksMu sync.RWMutex
	callbacks   []namedCallback

	localMu sync.Mutex
	local   map[string]*localRoleSet

	gcMu     sync.Mutex
	gcCancel context.CancelFunc
	gcDone   chan struct{}
}

// NewHandler returns a Handler over store. Zero Config fields take their
// defaults.
func NewHandler(store storage.Store, config Config) (*Handler, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidConfig)
	}
	config.applyDefaults()
	if err := config.validate(); err != nil {
		return nil, err
	}

	h := &Handler{
		store:  store,
		config: config,
		logger: config.Logger,
		local:  make(map[string]*localRoleSet),
	}
	if config.Instrumentation != nil {
		h.tracer = config.Instrumentation.Tracer("session")
	}
	return h, nil
}

// Config returns the effective configuration.
func (h *Handler) Config() Config {
	return h.config
}

// New returns an unbound session.
func (h *Handler) New() *Session {
	return newSession(h)
}

// Open returns a freshly opened session.
func (h *Handler) Open(ctx context.Context) (*Session, error) {
	s := h.New()
	if err := s.Open(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Load returns the valid session stored for token and touches it. An
// unknown, expired or empty token yields ErrSessionNotFound.
func (h *Handler) Load(ctx context.Context, token string) (*Session, error) {
	s := h.New()
	if err := h.LoadSession(ctx, token, s); err != nil {
		return nil, err
	}
	if !s.IsOpen() {
		return nil, ErrSessionNotFound
	}
	if err := s.Update(ctx); err != nil {
		return nil, fmt.Errorf("failed to touch session: %w", err)
	}
	return s, nil
}

// Check resolves the session of a request through the configured carrier.
// When no valid session exists and the carrier can embed tokens, a new
// session is opened and its token embedded in w; otherwise an unbound
// session is returned.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) (*Session, error) {
	ctx := r.Context()
	s, err := h.Load(ctx, h.config.Carrier.Extract(r))
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, ErrSessionNotFound) {
		return nil, err
	}

	embedder, ok := h.config.Carrier.(TokenEmbedder)
	if !ok {
		return h.New(), nil
	}
	s, err = h.Open(ctx)
	if err != nil {
		return nil, err
	}
	embedder.Embed(w, s.Token())
	return s, nil
}

// SessionExists reports whether a record exists for token.
func (h *Handler) SessionExists(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	return h.store.Exists(ctx, valueKey(token))
}

// GenerateToken returns a random token candidate. Uniqueness is only
// guaranteed by Session.Open.
func (h *Handler) GenerateToken() (string, error) {
	return h.config.Generator.Generate(h.config.TokenLength)
}

// LoadSession binds virgin to the record stored for token. A missing or
// invalid record leaves virgin unbound without error.
func (h *Handler) LoadSession(ctx context.Context, token string, virgin *Session) error {
	if token == "" {
		return nil
	}
	updateTime, err := h.readUpdateTime(ctx, token)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	virgin.bind(token, updateTime)
	if !virgin.IsValid() {
		virgin.unbind()
	}
	return nil
}

func (h *Handler) readUpdateTime(ctx context.Context, token string) (time.Time, error) {
	raw, err := h.store.HRead(ctx, valueKey(token), fieldUpdateTime)
	if err != nil {
		return time.Time{}, err
	}
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse update time of session: %w", err)
	}
	return time.Unix(secs, 0), nil
}

// SaveSession writes the token and update time of s.
func (h *Handler) SaveSession(ctx context.Context, s *Session) error {
	if !s.IsOpen() {
		return ErrNotOpen
	}
	key := valueKey(s.token)
	if err := h.store.HWrite(ctx, key, fieldToken, s.token); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	if err := h.store.HWrite(ctx, key, fieldUpdateTime, strconv.FormatInt(s.updateTime.Unix(), 10)); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// DeleteSession removes every stored key of token and its in-process roles.
func (h *Handler) DeleteSession(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	h.localMu.Lock()
	delete(h.local, token)
	h.localMu.Unlock()

	if err := h.store.Destroy(ctx, recordPattern(token)); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// CleanSessions closes every stored session that is garbage and returns
// how many were closed. A failure on one session does not stop the sweep;
// all failures are returned joined.
func (h *Handler) CleanSessions(ctx context.Context) (int, error) {
	start := time.Now()
	ctx, span := h.startSpan(ctx, "session.clean")
	defer span.End()

	keys, err := storage.Match(ctx, h.store, valueKey(storage.Wildcard))
	if err != nil {
		h.recordSpanError(span, err)
		return 0, fmt.Errorf("failed to list sessions: %w", err)
	}

	collected := 0
	var errs []error
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		token := strings.TrimPrefix(key, valuePrefix)
		updateTime, err := h.readUpdateTime(ctx, token)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", tokenPrefixForLog(token), err))
			continue
		}

		s := h.New()
		s.bind(token, updateTime)
		if !s.IsGarbage() {
			continue
		}
		if err := s.close(ctx, "gc"); err != nil {
			errs = append(errs, err)
			continue
		}
		collected++
	}

	durationMs := float64(time.Since(start).Microseconds()) / 1000.0
	if m := h.metrics(); m != nil {
		m.RecordSessionSweep(ctx, collected, durationMs)
	}
	span.SetAttributes(attribute.Int(instrumentation.AttrSessionSwept, collected))
	if collected > 0 {
		h.config.Auditor.LogEvent(eventCollected(collected))
		h.logger.Info("Collected expired sessions", "count", collected, "scanned", len(keys))
	}

	err = errors.Join(errs...)
	if err != nil {
		h.recordSpanError(span, err)
	}
	return collected, err
}

// OnClose registers fn under name; it runs whenever a session of this
// handler is closed. Registering an existing name replaces its function.
func (h *Handler) OnClose(name string, fn CloseFunc) {
	h.callbacksMu.Lock()
	defer h.callbacksMu.Unlock()
	for i := range h.callbacks {
		if h.callbacks[i].name == name {
			h.callbacks[i].fn = fn
			return
		}
	}
	h.callbacks = append(h.callbacks, namedCallback{name: name, fn: fn})
}

// RemoveOnClose unregisters the callback registered under name.
func (h *Handler) RemoveOnClose(name string) {
	h.callbacksMu.Lock()
	defer h.callbacksMu.Unlock()
	for i := range h.callbacks {
		if h.callbacks[i].name == name {
			h.callbacks = append(h.callbacks[:i], h.callbacks[i+1:]...)
			return
		}
	}
}

func (h *Handler) runCloseCallbacks(ctx context.Context, snapshot Snapshot) {
	h.callbacksMu.RLock()
	callbacks := make([]namedCallback, len(h.callbacks))
	copy(callbacks, h.callbacks)
	h.callbacksMu.RUnlock()

	for _, cb := range callbacks {
		cb.fn(ctx, snapshot)
	}
}

func (h *Handler) localRoles(token string) *localRoleSet {
	h.localMu.Lock()
	defer h.localMu.Unlock()
	entry, ok := h.local[token]
	if !ok {
		entry = &localRoleSet{store: memory.NewLocal()}
		h.local[token] = entry
	}
	return entry
}

func (h *Handler) now() time.Time {
	return h.config.Now()
}

func (h *Handler) metrics() *instrumentation.Metrics {
	if h.config.Instrumentation == nil {
		return nil
	}
	return h.config.Instrumentation.Metrics()
}

func (h *Handler) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if h.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return h.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.Int64(instrumentation.AttrSessionTimeout, int64(h.config.Timeout.Seconds())),
	))
}

func (h *Handler) recordSpanError(span trace.Span, err error) {
	if h.tracer == nil {
		return
	}
	instrumentation.RecordError(span, err)
}
