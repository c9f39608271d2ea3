package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Env reads properties from environment variables. The name
// "session.timeout" with prefix "WEBKIT" is looked up as
// WEBKIT_SESSION_TIMEOUT; dots and dashes become underscores.
type Env struct {
	Prefix string

	// lookup defaults to os.LookupEnv
	lookup func(string) (string, bool)
}

var _ Provider = Env{}

// NewEnv returns an environment provider with the given prefix.
func NewEnv(prefix string) Env {
	return Env{Prefix: prefix}
}

// Variable returns the environment variable consulted for name.
func (e Env) Variable(name string) string {
	key := strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(name))
	if e.Prefix == "" {
		return key
	}
	return strings.ToUpper(strings.TrimSuffix(e.Prefix, "_")) + "_" + key
}

// GetProperty looks up the variable for name.
func (e Env) GetProperty(name string) (string, bool) {
	lookup := e.lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return lookup(e.Variable(name))
}

// Dotenv loads a .env file without touching the process environment.
// Variables are mapped to property names the same way as Env.
type Dotenv struct {
	env    Env
	values map[string]string
}

var _ Provider = (*Dotenv)(nil)

// LoadDotenv parses the given files with godotenv. Later files override
// earlier ones.
func LoadDotenv(prefix string, filenames ...string) (*Dotenv, error) {
	values, err := godotenv.Read(filenames...)
	if err != nil {
		return nil, err
	}
	d := &Dotenv{values: values}
	d.env = Env{Prefix: prefix, lookup: d.lookup}
	return d, nil
}

func (d *Dotenv) lookup(key string) (string, bool) {
	v, ok := d.values[key]
	return v, ok
}

// GetProperty looks up name in the parsed file.
func (d *Dotenv) GetProperty(name string) (string, bool) {
	return d.env.GetProperty(name)
}
