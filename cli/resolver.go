package cli

import (
	"io"
	"strconv"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/goccy/go-yaml"
)

// resolve is a [kong.ConfigurationLoader] that reads a YAML config file.
//
// Each top-level key names a flag. Flag names with hyphens (e.g.,
// "log-level") may be written with underscores (e.g., "log_level"). Numbers
// are passed to kong as strings, and sequences are passed as lists.
//
// Example config file:
//
//	log-level: debug
//	log_format: text
//	path:
//	  - /srv/templates
//	ext: tmpl
//
// Command-line flags override config file values. A config file that does
// not decode to a mapping is ignored.
func resolve(r io.Reader) (kong.Resolver, error) {
	var doc map[string]any

	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		// Empty or malformed file - return empty config
		return config{}, nil //nolint:nilerr
	}

	cfg := make(config, len(doc))
	for key, val := range doc {
		cfg[key] = flagArg(val)
	}

	return cfg, nil
}

// config implements [kong.Resolver] for YAML configs.
type config map[string]any

// Validate implements [kong.Resolver].
func (r config) Validate(*kong.Application) error {
	return nil
}

// Resolve implements [kong.Resolver].
func (r config) Resolve(
	_ *kong.Context,
	_ *kong.Path,
	flag *kong.Flag,
) (any, error) {
	if value, ok := r[flag.Name]; ok {
		return value, nil
	}

	if value, ok := r[strings.ReplaceAll(flag.Name, "-", "_")]; ok {
		return value, nil
	}

	// Not found - return nil to let Kong use defaults
	return nil, nil
}

// flagArg converts a decoded YAML value into a form kong can parse.
func flagArg(val any) any {
	switch v := val.(type) {
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = flagArg(e)
		}

		return out
	default:
		return val
	}
}
