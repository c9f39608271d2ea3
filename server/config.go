package server

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/giantswarm/webkit/instrumentation"
	"github.com/giantswarm/webkit/security"
)

const (
	// DefaultClientIDLength is the number of characters of a client id.
	DefaultClientIDLength = 24

	// DefaultCodeLength is the number of characters of an authorization code
	// or refresh token.
	DefaultCodeLength = 24

	// DefaultSecretLength is the number of characters of a generated client
	// secret.
	DefaultSecretLength = 32

	// SessionRole marks the authorization-server session of a logged-in user.
	// Its "username" property names the user.
	SessionRole = "oauth2_session"

	// SessionUsernameProperty is the property of SessionRole holding the
	// username.
	SessionUsernameProperty = "username"
)

// ErrInvalidConfig is returned by New for an unusable configuration.
var ErrInvalidConfig = errors.New("invalid server configuration")

// Config holds the OAuth2 server configuration.
type Config struct {
	// DisableRefreshToken stops authorization_code grants from issuing a
	// refresh token and expires_in.
	DisableRefreshToken bool

	// ClientIDLength is the length of generated client ids (default 24)
	ClientIDLength int

	// CodeLength is the length of authorization codes and refresh tokens
	// (default 24)
	CodeLength int

	// SecretLength is the length of generated client secrets (default 32)
	SecretLength int

	// Cryptograph binds ids to secrets (default AEAD with Argon2id defaults)
	Cryptograph security.Cryptograph

	// Generator produces client ids, secrets and codes
	Generator security.NonceGenerator

	// Now returns the current time (default time.Now)
	Now func() time.Time

	Logger          *slog.Logger
	Instrumentation *instrumentation.Instrumentation
	Auditor         *security.Auditor
}

func (c *Config) applyDefaults() {
	if c.ClientIDLength == 0 {
		c.ClientIDLength = DefaultClientIDLength
	}
	if c.CodeLength == 0 {
		c.CodeLength = DefaultCodeLength
	}
	if c.SecretLength == 0 {
		c.SecretLength = DefaultSecretLength
	}
	if c.Cryptograph == nil {
		c.Cryptograph = security.NewAEADCryptograph(security.DefaultArgon2Params())
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
	if c.ClientIDLength < 0 {
		return fmt.Errorf("%w: client id length must be positive, got %d", ErrInvalidConfig, c.ClientIDLength)
	}
	if c.CodeLength < 0 {
		return fmt.Errorf("%w: code length must be positive, got %d", ErrInvalidConfig, c.CodeLength)
	}
	if c.SecretLength < 0 {
		return fmt.Errorf("%w: secret length must be positive, got %d", ErrInvalidConfig, c.SecretLength)
	}
	return nil
}
