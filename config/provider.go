// Package config supplies named properties to webkit from maps, the
// environment, .env files and YAML documents.
package config

import (
	"maps"
)

// Provider answers property lookups. ok is false when the property is not
// set, which lets callers apply their own default.
type Provider interface {
	GetProperty(name string) (value string, ok bool)
}

// Map is a Provider backed by a plain map.
type Map map[string]string

var _ Provider = Map(nil)

// GetProperty returns m[name].
func (m Map) GetProperty(name string) (string, bool) {
	v, ok := m[name]
	return v, ok
}

// Clone returns an independent copy.
func (m Map) Clone() Map {
	return maps.Clone(m)
}

// Chain asks each provider in order; the first hit wins.
type Chain []Provider

var _ Provider = Chain(nil)

// GetProperty returns the first value set by any provider of the chain.
func (c Chain) GetProperty(name string) (string, bool) {
	for _, p := range c {
		if p == nil {
			continue
		}
		if v, ok := p.GetProperty(name); ok {
			return v, true
		}
	}
	return "", false
}
