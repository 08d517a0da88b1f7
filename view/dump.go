package view

import (
	"strings"

	"github.com/goccy/go-yaml"
)

// Dump returns a single-line YAML rendering of v, used wherever structured
// data appears in a scalar position.
func Dump(v Value) string {
	if s, ok := v.(Scalar); ok {
		return s.String()
	}

	b, err := yaml.MarshalWithOptions(Native(v), yaml.Flow(true))
	if err != nil {
		return ""
	}

	return strings.TrimRight(string(b), "\n")
}
