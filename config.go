package webkit

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/giantswarm/webkit/config"
	"github.com/giantswarm/webkit/security"
	"github.com/giantswarm/webkit/server"
	"github.com/giantswarm/webkit/session"
	"github.com/giantswarm/webkit/storage"
)

// Cache drivers.
const (
	DriverMap       = "map"
	DriverSharedMap = "shared_map"
	DriverValkey    = "valkey"
	DriverRedis     = "redis"
	DriverBolt      = "bolt"
)

// Defaults of the toolkit properties.
const (
	DefaultCacheDriver  = DriverSharedMap
	DefaultCacheAddress = "localhost"
	DefaultCachePort    = 6379
	DefaultCachePath    = "webkit.db"

	DefaultTokenSupport = "cookie"

	DefaultAuthorizeURI = "authorize"
	DefaultLogoutURI    = "logout"
	DefaultInfoURI      = "info"
)

// Config is the toolkit configuration. ConfigFromProvider fills it from
// properties; zero fields take their defaults.
type Config struct {
	Cache     CacheConfig
	Session   SessionConfig
	OAuth2    OAuth2Config
	Argon2    security.Argon2Params
	Templates TemplatePaths

	// Logger for structured logging (optional, uses default if not provided)
	Logger *slog.Logger
}

// CacheConfig selects and configures the store backend.
type CacheConfig struct {
	// Driver is one of map, shared_map, valkey, redis or bolt
	Driver string

	// Address and Port locate a valkey or redis server
	Address  string
	Port     int
	Password string
	DB       int

	// Iterator selects KEYS or SCAN iteration on remote servers
	Iterator storage.IteratorMode

	// Path is the bolt database file
	Path string

	// EncryptionKey enables at-rest encryption of every stored value with
	// AES-256-GCM. Nil disables it.
	EncryptionKey []byte
}

// SessionConfig configures the session handler.
type SessionConfig struct {
	// Timeout is the idle lifetime of a session; security.NeverExpires
	// disables expiry
	Timeout time.Duration

	// GarbageExtra is the grace window after expiry before collection
	GarbageExtra time.Duration

	TokenLength int

	// CleanFrequency is the collection interval; negative runs one sweep
	CleanFrequency time.Duration

	// TokenSupport is cookie, query or json
	TokenSupport string

	// TokenLabel names the cookie, parameter or JSON field
	TokenLabel string

	RolesMode session.RolesMode
}

// OAuth2Config configures the authorization server and its routes.
type OAuth2Config struct {
	// UseRefreshToken issues refresh tokens on code exchange
	UseRefreshToken bool

	ClientIDLength int
	CodeLength     int

	// Route names below the handler's base path
	AuthorizeURI string
	LogoutURI    string
	InfoURI      string
}

// TemplatePaths are files overriding the built-in page templates. Empty
// paths keep the built-in page.
type TemplatePaths struct {
	Login   string
	Message string
	Logout  string
	Error   string
}

// DefaultConfig returns the configuration used when no property is set.
func DefaultConfig() Config {
	return Config{
		Cache: CacheConfig{
			Driver:   DefaultCacheDriver,
			Address:  DefaultCacheAddress,
			Port:     DefaultCachePort,
			Iterator: storage.ModeScan,
			Path:     DefaultCachePath,
		},
		Session: SessionConfig{
			Timeout:        session.DefaultTimeout,
			GarbageExtra:   session.DefaultGarbageExtra,
			TokenLength:    session.DefaultTokenLength,
			CleanFrequency: session.DefaultCleanFrequency,
			TokenSupport:   DefaultTokenSupport,
			TokenLabel:     session.DefaultTokenLabel,
			RolesMode:      session.RolesStore,
		},
		OAuth2: OAuth2Config{
			UseRefreshToken: true,
			ClientIDLength:  server.DefaultClientIDLength,
			CodeLength:      server.DefaultCodeLength,
			AuthorizeURI:    DefaultAuthorizeURI,
			LogoutURI:       DefaultLogoutURI,
			InfoURI:         DefaultInfoURI,
		},
		Argon2: security.DefaultArgon2Params(),
	}
}

// ConfigFromProvider reads every toolkit property from p. Unset properties
// keep their defaults; malformed ones are reported together.
func ConfigFromProvider(p config.Provider) (Config, error) {
	cfg := DefaultConfig()
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	intProp := func(name string, def int) int {
		v, err := config.Int(p, name, def)
		collect(err)
		return v
	}
	durationProp := func(name string, def time.Duration) time.Duration {
		v, err := config.Duration(p, name, def)
		collect(err)
		return v
	}

	cfg.Cache.Driver = config.String(p, "cache_driver", cfg.Cache.Driver)
	cfg.Cache.Address = config.String(p, "cache_address", cfg.Cache.Address)
	cfg.Cache.Port = intProp("cache_port", cfg.Cache.Port)
	cfg.Cache.Password = config.String(p, "cache_password", "")
	cfg.Cache.DB = intProp("cache_db", cfg.Cache.DB)
	cfg.Cache.Path = config.String(p, "cache_path", cfg.Cache.Path)
	mode, err := storage.ParseIteratorMode(config.String(p, "cache_iterator", string(cfg.Cache.Iterator)))
	collect(err)
	cfg.Cache.Iterator = mode
	if raw := config.String(p, "session_encryption_key", ""); raw != "" {
		key, err := security.KeyFromBase64(raw)
		if err != nil {
			collect(fmt.Errorf("property session_encryption_key: %w", err))
		}
		cfg.Cache.EncryptionKey = key
	}

	cfg.Session.Timeout = durationProp("session_timeout", cfg.Session.Timeout)
	cfg.Session.GarbageExtra = durationProp("session_garbage_extra_timeout", cfg.Session.GarbageExtra)
	cfg.Session.TokenLength = intProp("session_token_length", cfg.Session.TokenLength)
	cfg.Session.CleanFrequency = durationProp("session_clean_frequency", cfg.Session.CleanFrequency)
	cfg.Session.TokenSupport = config.String(p, "session_token_support", cfg.Session.TokenSupport)
	cfg.Session.TokenLabel = config.String(p, "session_token_label", cfg.Session.TokenLabel)
	cfg.Session.RolesMode = session.RolesMode(config.String(p, "session_roles", string(cfg.Session.RolesMode)))

	refresh, err := config.Bool(p, "oauth2_use_refresh_token", cfg.OAuth2.UseRefreshToken)
	collect(err)
	cfg.OAuth2.UseRefreshToken = refresh
	cfg.OAuth2.ClientIDLength = intProp("oauth2_client_id_length", cfg.OAuth2.ClientIDLength)
	cfg.OAuth2.CodeLength = intProp("oauth2_code_length", cfg.OAuth2.CodeLength)
	cfg.OAuth2.AuthorizeURI = config.String(p, "oauth2_authorize_uri", cfg.OAuth2.AuthorizeURI)
	cfg.OAuth2.LogoutURI = config.String(p, "oauth2_logout_uri", cfg.OAuth2.LogoutURI)
	cfg.OAuth2.InfoURI = config.String(p, "oauth2_info_uri", cfg.OAuth2.InfoURI)

	cfg.Templates = TemplatePaths{
		Login:   config.String(p, "oauth2_authorizing_login_template", ""),
		Message: config.String(p, "oauth2_authorizing_message_template", ""),
		Logout:  config.String(p, "oauth2_logout_template", ""),
		Error:   config.String(p, "oauth2_authorizing_error_template", ""),
	}

	cfg.Argon2.Time = uint32(intProp("argon2_time", int(cfg.Argon2.Time)))
	cfg.Argon2.Memory = uint32(intProp("argon2_memory", int(cfg.Argon2.Memory)))
	cfg.Argon2.Threads = uint8(intProp("argon2_threads", int(cfg.Argon2.Threads)))

	if err := errors.Join(errs...); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.Cache.Driver == "" {
		c.Cache.Driver = d.Cache.Driver
	}
	if c.Cache.Address == "" {
		c.Cache.Address = d.Cache.Address
	}
	if c.Cache.Port == 0 {
		c.Cache.Port = d.Cache.Port
	}
	if c.Cache.Path == "" {
		c.Cache.Path = d.Cache.Path
	}
	if c.Session.TokenSupport == "" {
		c.Session.TokenSupport = d.Session.TokenSupport
	}
	if c.Session.TokenLabel == "" {
		c.Session.TokenLabel = d.Session.TokenLabel
	}
	if c.Session.Timeout < 0 {
		c.Session.Timeout = security.NeverExpires
	}
	if c.OAuth2.AuthorizeURI == "" {
		c.OAuth2.AuthorizeURI = d.OAuth2.AuthorizeURI
	}
	if c.OAuth2.LogoutURI == "" {
		c.OAuth2.LogoutURI = d.OAuth2.LogoutURI
	}
	if c.OAuth2.InfoURI == "" {
		c.OAuth2.InfoURI = d.OAuth2.InfoURI
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

func (c *Config) validate() error {
	switch c.Cache.Driver {
	case DriverMap, DriverSharedMap, DriverValkey, DriverRedis, DriverBolt:
	default:
		return fmt.Errorf("%w: unknown cache driver %q", ErrInvalidConfig, c.Cache.Driver)
	}
	if c.Cache.Port < 0 || c.Cache.Port > 65535 {
		return fmt.Errorf("%w: cache port out of range: %d", ErrInvalidConfig, c.Cache.Port)
	}
	if c.Argon2.Memory > 0 && c.Argon2.Threads > 0 && c.Argon2.Memory < 8*uint32(c.Argon2.Threads) {
		return fmt.Errorf("%w: argon2 memory must be at least 8 KiB per thread", ErrInvalidConfig)
	}
	routes := map[string]string{"authorize": c.OAuth2.AuthorizeURI, "logout": c.OAuth2.LogoutURI, "info": c.OAuth2.InfoURI}
	seen := map[string]string{}
	for name, route := range routes {
		if route == "" {
			continue
		}
		if other, ok := seen[route]; ok {
			return fmt.Errorf("%w: %s and %s share the route %q", ErrInvalidConfig, name, other, route)
		}
		seen[route] = name
	}
	return nil
}
