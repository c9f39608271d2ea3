package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Process holds the settings of the webkit binary itself. Toolkit
// properties are read separately through a Provider.
type Process struct {
	ListenAddr  string `env:"WEBKIT_LISTEN_ADDR" envDefault:":8080"`
	BasePath    string `env:"WEBKIT_BASE_PATH" envDefault:"/oauth2"`
	ServerURL   string `env:"WEBKIT_SERVER_URL" envDefault:"http://localhost:8080"`
	ConfigFile  string `env:"WEBKIT_CONFIG_FILE"`
	EnvPrefix   string `env:"WEBKIT_ENV_PREFIX" envDefault:"WEBKIT"`
	MetricsAddr string `env:"WEBKIT_METRICS_ADDR" envDefault:":9090"`
	LogLevel    string `env:"WEBKIT_LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"WEBKIT_LOG_FORMAT" envDefault:"text"`

	EnableMetrics bool `env:"WEBKIT_ENABLE_METRICS" envDefault:"true"`
	TrustProxy    bool `env:"WEBKIT_TRUST_PROXY" envDefault:"false"`

	RateLimit      float64 `env:"WEBKIT_RATE_LIMIT" envDefault:"5"`
	RateLimitBurst int     `env:"WEBKIT_RATE_LIMIT_BURST" envDefault:"20"`
}

// LoadProcess loads a .env file when present, then parses the process
// environment.
func LoadProcess() (*Process, error) {
	_ = godotenv.Load()

	p := &Process{}
	if err := env.Parse(p); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := p.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return p, nil
}

func (p *Process) validate() error {
	if p.ListenAddr == "" {
		return fmt.Errorf("WEBKIT_LISTEN_ADDR must not be empty")
	}
	switch p.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("WEBKIT_LOG_FORMAT must be text or json, got %q", p.LogFormat)
	}
	if p.RateLimit < 0 || p.RateLimitBurst < 0 {
		return fmt.Errorf("rate limit settings must not be negative")
	}
	return nil
}
