package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// String returns the property or def when it is unset or empty.
func String(p Provider, name, def string) string {
	if v, ok := p.GetProperty(name); ok && v != "" {
		return v
	}
	return def
}

// Int parses an integer property.
func Int(p Provider, name string, def int) (int, error) {
	v, ok := p.GetProperty(name)
	if !ok || strings.TrimSpace(v) == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def, fmt.Errorf("property %s: %w", name, err)
	}
	return n, nil
}

// Bool parses a boolean property (strconv.ParseBool syntax plus yes/no/on/off).
func Bool(p Provider, name string, def bool) (bool, error) {
	v, ok := p.GetProperty(name)
	if !ok || strings.TrimSpace(v) == "" {
		return def, nil
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "yes", "on":
		return true, nil
	case "no", "off":
		return false, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return def, fmt.Errorf("property %s: %w", name, err)
	}
	return b, nil
}

// Duration parses a property given either as integer seconds ("86400",
// "-1") or as a Go duration ("24h").
func Duration(p Provider, name string, def time.Duration) (time.Duration, error) {
	v, ok := p.GetProperty(name)
	v = strings.TrimSpace(v)
	if !ok || v == "" {
		return def, nil
	}
	if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, fmt.Errorf("property %s: %w", name, err)
	}
	return d, nil
}

// List splits a comma separated property, dropping empty items.
func List(p Provider, name string, def []string) []string {
	v, ok := p.GetProperty(name)
	if !ok || strings.TrimSpace(v) == "" {
		return def
	}
	return SplitList(v)
}

// SplitList splits s on commas and trims every item.
func SplitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
