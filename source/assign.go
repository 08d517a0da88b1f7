package source

import (
	"log/slog"
	"maps"
	"strings"

	"github.com/expr-lang/expr"

	"github.com/ardnew/muster/view"
)

// Assign parses src of the form "index=expression", evaluates the
// expression against root, and returns the index and resulting value.
// Bare names in the expression resolve to root dictionary entries, then to
// [Builtins]; unknown names evaluate to nil.
func Assign(src string, root view.Map) (string, view.Value, error) {
	index, expression, ok := strings.Cut(src, "=")
	index = strings.TrimSpace(index)

	if !ok || !ValidIndex(index) {
		return "", nil, ErrAssign.With(slog.String("source", src))
	}

	v, err := Evaluate(expression, root)
	if err != nil {
		return "", nil, ErrAssign.Wrap(err).With(slog.String("index", index))
	}

	return index, v, nil
}

// Evaluate runs an expr-lang expression against root and normalizes the
// result into a dictionary value. An empty expression yields an empty
// string.
func Evaluate(expression string, root view.Map) (view.Value, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return view.String(""), nil
	}

	env := Builtins()
	if dict, ok := view.Native(root).(map[string]any); ok {
		maps.Copy(env, dict)
	}

	program, err := expr.Compile(expression,
		expr.Env(env),
		expr.AllowUndefinedVariables(),
	)
	if err != nil {
		return nil, ErrEval.Wrap(err).With(slog.String("expression", expression))
	}

	out, err := expr.Run(program, env)
	if err != nil {
		return nil, ErrEval.Wrap(err).With(slog.String("expression", expression))
	}

	return view.ValueOf(out), nil
}

// ValidIndex reports whether s is a dictionary index usable in markers.
func ValidIndex(s string) bool {
	if s == "" {
		return false
	}

	for i, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case i > 0 && (c >= '0' && c <= '9' || c == '_'):
		default:
			return false
		}
	}

	return true
}
