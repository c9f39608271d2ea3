package webkit

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/giantswarm/webkit/config"
	"github.com/giantswarm/webkit/security"
	"github.com/giantswarm/webkit/session"
	"github.com/giantswarm/webkit/storage"
)

func TestConfigFromProvider_Defaults(t *testing.T) {
	cfg, err := ConfigFromProvider(config.Map{})
	if err != nil {
		t.Fatalf("ConfigFromProvider() error = %v", err)
	}

	if cfg.Cache.Driver != DriverSharedMap {
		t.Errorf("Cache.Driver = %q, want %q", cfg.Cache.Driver, DriverSharedMap)
	}
	if cfg.Cache.Port != DefaultCachePort {
		t.Errorf("Cache.Port = %d, want %d", cfg.Cache.Port, DefaultCachePort)
	}
	if cfg.Cache.Iterator != storage.ModeScan {
		t.Errorf("Cache.Iterator = %q, want scan", cfg.Cache.Iterator)
	}
	if cfg.Session.Timeout != session.DefaultTimeout {
		t.Errorf("Session.Timeout = %v, want %v", cfg.Session.Timeout, session.DefaultTimeout)
	}
	if cfg.Session.TokenSupport != DefaultTokenSupport {
		t.Errorf("Session.TokenSupport = %q, want cookie", cfg.Session.TokenSupport)
	}
	if !cfg.OAuth2.UseRefreshToken {
		t.Error("OAuth2.UseRefreshToken = false, want true")
	}
	if cfg.OAuth2.AuthorizeURI != "authorize" || cfg.OAuth2.LogoutURI != "logout" || cfg.OAuth2.InfoURI != "info" {
		t.Errorf("routes = %+v", cfg.OAuth2)
	}
	if cfg.Argon2 != security.DefaultArgon2Params() {
		t.Errorf("Argon2 = %+v, want defaults", cfg.Argon2)
	}
	if cfg.Cache.EncryptionKey != nil {
		t.Error("Cache.EncryptionKey set without property")
	}
}

func TestConfigFromProvider_Properties(t *testing.T) {
	key, err := security.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}

	cfg, err := ConfigFromProvider(config.Map{
		"cache_driver":                        "redis",
		"cache_address":                       "cache.internal",
		"cache_port":                          "6380",
		"cache_password":                      "hunter2",
		"cache_db":                            "3",
		"cache_iterator":                      "keys",
		"session_timeout":                     "120",
		"session_garbage_extra_timeout":       "30s",
		"session_token_length":                "40",
		"session_clean_frequency":             "-1",
		"session_token_support":               "json",
		"session_token_label":                 "sid",
		"session_roles":                       "local",
		"session_encryption_key":              security.KeyToBase64(key),
		"oauth2_use_refresh_token":            "false",
		"oauth2_client_id_length":             "16",
		"oauth2_code_length":                  "20",
		"oauth2_authorize_uri":                "auth",
		"oauth2_logout_uri":                   "bye",
		"oauth2_info_uri":                     "me",
		"oauth2_authorizing_login_template":   "/etc/webkit/login.html",
		"oauth2_authorizing_message_template": "/etc/webkit/message.html",
		"oauth2_logout_template":              "/etc/webkit/logout.html",
		"oauth2_authorizing_error_template":   "/etc/webkit/error.html",
		"argon2_time":                         "2",
		"argon2_memory":                       "1024",
		"argon2_threads":                      "2",
	})
	if err != nil {
		t.Fatalf("ConfigFromProvider() error = %v", err)
	}

	want := CacheConfig{
		Driver:   DriverRedis,
		Address:  "cache.internal",
		Port:     6380,
		Password: "hunter2",
		DB:       3,
		Iterator: storage.ModeKeys,
		Path:     DefaultCachePath,
	}
	want.EncryptionKey = key
	if !reflect.DeepEqual(cfg.Cache, want) {
		t.Errorf("Cache = %+v, want %+v", cfg.Cache, want)
	}

	wantSession := SessionConfig{
		Timeout:        120 * time.Second,
		GarbageExtra:   30 * time.Second,
		TokenLength:    40,
		CleanFrequency: -time.Second,
		TokenSupport:   "json",
		TokenLabel:     "sid",
		RolesMode:      session.RolesLocal,
	}
	if cfg.Session != wantSession {
		t.Errorf("Session = %+v, want %+v", cfg.Session, wantSession)
	}

	wantOAuth := OAuth2Config{
		ClientIDLength: 16,
		CodeLength:     20,
		AuthorizeURI:   "auth",
		LogoutURI:      "bye",
		InfoURI:        "me",
	}
	if cfg.OAuth2 != wantOAuth {
		t.Errorf("OAuth2 = %+v, want %+v", cfg.OAuth2, wantOAuth)
	}
	if cfg.Templates.Login != "/etc/webkit/login.html" || cfg.Templates.Error != "/etc/webkit/error.html" {
		t.Errorf("Templates = %+v", cfg.Templates)
	}
	if cfg.Argon2 != (security.Argon2Params{Time: 2, Memory: 1024, Threads: 2}) {
		t.Errorf("Argon2 = %+v", cfg.Argon2)
	}
}

func TestConfigFromProvider_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		props config.Map
	}{
		{"malformed port", config.Map{"cache_port": "high"}},
		{"malformed bool", config.Map{"oauth2_use_refresh_token": "maybe"}},
		{"malformed duration", config.Map{"session_timeout": "soon"}},
		{"unknown iterator", config.Map{"cache_iterator": "walk"}},
		{"short encryption key", config.Map{"session_encryption_key": "c2hvcnQ="}},
		{"unknown driver", config.Map{"cache_driver": "memcached"}},
		{"port out of range", config.Map{"cache_port": "70000"}},
		{"shared route", config.Map{"oauth2_info_uri": "authorize"}},
		{"argon2 memory too small", config.Map{"argon2_memory": "8", "argon2_threads": "4"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ConfigFromProvider(tt.props)
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("ConfigFromProvider() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestConfigFromProvider_ReportsEveryError(t *testing.T) {
	_, err := ConfigFromProvider(config.Map{"cache_port": "x", "cache_db": "y"})
	if err == nil {
		t.Fatal("ConfigFromProvider() error = nil")
	}
	for _, name := range []string{"cache_port", "cache_db"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error %q does not name %s", err, name)
		}
	}
}

func TestConfig_ApplyDefaults(t *testing.T) {
	cfg := Config{Session: SessionConfig{Timeout: -5 * time.Second}}
	cfg.applyDefaults()

	if cfg.Session.Timeout != security.NeverExpires {
		t.Errorf("Session.Timeout = %v, want NeverExpires", cfg.Session.Timeout)
	}
	if cfg.Cache.Driver != DefaultCacheDriver {
		t.Errorf("Cache.Driver = %q", cfg.Cache.Driver)
	}
	if cfg.Logger == nil {
		t.Error("Logger = nil")
	}
	if err := cfg.validate(); err != nil {
		t.Errorf("validate() error = %v", err)
	}
}
