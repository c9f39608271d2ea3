package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// YAML is a Provider over a YAML document. Nested mappings are flattened
// with ".", so
//
//	cache:
//	  driver: valkey
//
// answers "cache.driver". Sequences are joined with commas.
type YAML struct {
	values map[string]string
}

var _ Provider = (*YAML)(nil)

// ParseYAML parses a YAML document.
func ParseYAML(data []byte) (*YAML, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}

	y := &YAML{values: make(map[string]string)}
	y.flatten("", doc)
	return y, nil
}

// LoadYAML reads and parses a YAML file.
func LoadYAML(path string) (*YAML, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseYAML(data)
}

// GetProperty returns the flattened value of name.
func (y *YAML) GetProperty(name string) (string, bool) {
	v, ok := y.values[name]
	return v, ok
}

func (y *YAML) flatten(prefix string, node any) {
	switch v := node.(type) {
	case map[string]any:
		for key, child := range v {
			y.flatten(join(prefix, key), child)
		}
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, scalar(item))
		}
		y.values[prefix] = strings.Join(parts, ",")
	case nil:
		y.values[prefix] = ""
	default:
		y.values[prefix] = scalar(v)
	}
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func scalar(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}
