package session

import (
	"context"
	"fmt"
	"time"

	"github.com/giantswarm/webkit/security"
)

// tokenLogPrefix is how many token characters appear in logs.
const tokenLogPrefix = 6

// Snapshot is the state of a session handed to close callbacks.
type Snapshot struct {
	Token      string        `json:"token"`
	UpdateTime time.Time     `json:"update_time"`
	Timeout    time.Duration `json:"timeout"`
}

// Session is a handle on one session record. It is bound to a token after
// Open or a successful load and unbound after Close. A Session is not safe
// for concurrent use; concurrent requests each load their own handle.
type Session struct {
	handler    *Handler
	token      string
	updateTime time.Time
	roles      *roles
}

func newSession(h *Handler) *Session {
	s := &Session{handler: h}
	s.roles = &roles{s: s}
	return s
}

// Open binds the session to a fresh unique token and saves it. An already
// open session is closed first.
func (s *Session) Open(ctx context.Context) error {
	h := s.handler
	ctx, span := h.startSpan(ctx, "session.open")
	defer span.End()

	if s.IsOpen() {
		if err := s.Close(ctx); err != nil {
			return err
		}
	}

	_, err := security.UniqueNonce(ctx, &h.openMu, h.config.Generator, h.config.TokenLength,
		func(ctx context.Context, token string) (bool, error) {
			taken, err := h.SessionExists(ctx, token)
			if taken && h.metrics() != nil {
				h.metrics().RecordNonceCollision(ctx, "session")
			}
			return taken, err
		},
		func(ctx context.Context, token string) error {
			s.bind(token, h.now())
			return h.SaveSession(ctx, s)
		},
	)
	if err != nil {
		s.unbind()
		h.recordSpanError(span, err)
		return fmt.Errorf("failed to open session: %w", err)
	}

	if m := h.metrics(); m != nil {
		m.RecordSessionOpened(ctx)
	}
	h.config.Auditor.LogEvent(security.Event{Type: security.EventSessionOpened})
	h.logger.Debug("Session opened", "token_prefix", tokenPrefixForLog(s.token))
	return nil
}

// Update sets the update time to now and saves the session.
func (s *Session) Update(ctx context.Context) error {
	if !s.IsOpen() {
		return ErrNotOpen
	}
	s.updateTime = truncate(s.handler.now())
	return s.handler.SaveSession(ctx, s)
}

// Close runs the close callbacks, removes every role and the persisted
// record, then unbinds the handle. Closing an unbound session is a no-op.
func (s *Session) Close(ctx context.Context) error {
	return s.close(ctx, "close")
}

func (s *Session) close(ctx context.Context, reason string) error {
	if !s.IsOpen() {
		return nil
	}
	h := s.handler
	ctx, span := h.startSpan(ctx, "session.close")
	defer span.End()

	h.runCloseCallbacks(ctx, s.Snapshot())

	if err := s.roles.removeAll(ctx); err != nil {
		h.recordSpanError(span, err)
		return fmt.Errorf("failed to remove session roles: %w", err)
	}
	if err := h.DeleteSession(ctx, s.token); err != nil {
		h.recordSpanError(span, err)
		return err
	}

	if m := h.metrics(); m != nil {
		m.RecordSessionClosed(ctx, reason)
	}
	if reason == "close" {
		h.config.Auditor.LogEvent(security.Event{Type: security.EventSessionClosed})
	}
	h.logger.Debug("Session closed", "token_prefix", tokenPrefixForLog(s.token), "reason", reason)
	s.unbind()
	return nil
}

// IsOpen reports whether the handle is bound to a token.
func (s *Session) IsOpen() bool {
	return s.token != ""
}

// IsTimedOut reports whether the session has been idle for longer than the
// timeout plus extra.
func (s *Session) IsTimedOut(extra time.Duration) bool {
	return security.IsExpired(s.updateTime, s.handler.config.Timeout, extra, s.handler.now())
}

// IsValid reports whether the session is still within its timeout.
func (s *Session) IsValid() bool {
	return !s.IsTimedOut(0)
}

// IsGarbage reports whether the session expired longer than the garbage
// grace window ago.
func (s *Session) IsGarbage() bool {
	return s.IsTimedOut(s.handler.config.GarbageExtra)
}

// Token returns the bound token, or "" when unbound.
func (s *Session) Token() string {
	return s.token
}

// UpdateTime returns the time of the last update.
func (s *Session) UpdateTime() time.Time {
	return s.updateTime
}

// Timeout returns the configured validity window.
func (s *Session) Timeout() time.Duration {
	return s.handler.config.Timeout
}

// TimeRemaining returns how long the session stays valid without activity,
// or security.NeverExpires.
func (s *Session) TimeRemaining() time.Duration {
	return security.Remaining(s.updateTime, s.handler.config.Timeout, s.handler.now())
}

// Roles returns the roles held by the session.
func (s *Session) Roles() Roles {
	return s.roles
}

// Snapshot returns the current state of the session.
func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		Token:      s.token,
		UpdateTime: s.updateTime,
		Timeout:    s.handler.config.Timeout,
	}
}

func (s *Session) bind(token string, updateTime time.Time) {
	s.token = token
	s.updateTime = truncate(updateTime)
}

func (s *Session) unbind() {
	s.token = ""
	s.updateTime = time.Time{}
}

// truncate drops sub-second precision, which the stored record does not keep.
func truncate(t time.Time) time.Time {
	return time.Unix(t.Unix(), 0)
}
