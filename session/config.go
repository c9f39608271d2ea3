package session

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/giantswarm/webkit/instrumentation"
	"github.com/giantswarm/webkit/security"
)

const (
	// DefaultTimeout is how long a session stays valid without activity.
	DefaultTimeout = 24 * time.Hour

	// DefaultGarbageExtra is the grace window after expiry before the
	// collector removes a session.
	DefaultGarbageExtra = 60 * time.Second

	// DefaultTokenLength is the number of characters of a session token.
	DefaultTokenLength = 32

	// DefaultCleanFrequency is the interval between garbage collection sweeps.
	DefaultCleanFrequency = 60 * time.Second

	// DefaultTokenLabel names the cookie, query parameter or JSON field
	// carrying the token.
	DefaultTokenLabel = "token"
)

// RolesMode selects where role properties are kept.
type RolesMode string

const (
	// RolesStore keeps roles in the handler's store next to the session
	// record, visible to every process sharing the store.
	RolesStore RolesMode = "store"

	// RolesLocal keeps roles in process memory, one unsynchronized store per
	// session guarded by its own mutex.
	RolesLocal RolesMode = "local"
)

// Config configures a Handler.
type Config struct {
	// Timeout is the validity window of a session after its last update
	// (default 24h). security.NeverExpires disables expiry.
	Timeout time.Duration

	// GarbageExtra is added to Timeout before a session counts as garbage
	// (default 60s, negative means no grace).
	GarbageExtra time.Duration

	// TokenLength is the length of generated tokens (default 32)
	TokenLength int

	// CleanFrequency is the interval between collector sweeps (default 60s).
	// A negative value runs the initial sweep only.
	CleanFrequency time.Duration

	// RolesMode selects the roles implementation (default RolesStore)
	RolesMode RolesMode

	// Carrier reads tokens from requests (default CookieCarrier "token")
	Carrier TokenCarrier

	// Generator produces tokens (default security.AlphanumericGenerator)
	Generator security.NonceGenerator

	// Now is the clock (default time.Now)
	Now func() time.Time

	Logger          *slog.Logger
	Instrumentation *instrumentation.Instrumentation
	Auditor         *security.Auditor
}

func (c *Config) applyDefaults() {
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.GarbageExtra == 0 {
		c.GarbageExtra = DefaultGarbageExtra
	}
	if c.GarbageExtra < 0 {
		c.GarbageExtra = 0
	}
	if c.TokenLength == 0 {
		c.TokenLength = DefaultTokenLength
	}
	if c.CleanFrequency == 0 {
		c.CleanFrequency = DefaultCleanFrequency
	}
	if c.RolesMode == "" {
		c.RolesMode = RolesStore
	}
	if c.Carrier == nil {
		c.Carrier = CookieCarrier{Label: DefaultTokenLabel}
	}
	if c.Generator == nil {
		c.Generator = security.AlphanumericGenerator{}
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

func (c *Config) validate() error {
	if c.TokenLength < 0 {
		return fmt.Errorf("%w: token length must be positive, got %d", ErrInvalidConfig, c.TokenLength)
	}
	switch c.RolesMode {
	case RolesStore, RolesLocal:
	default:
		return fmt.Errorf("%w: unknown roles mode %q", ErrInvalidConfig, c.RolesMode)
	}
	return nil
}
