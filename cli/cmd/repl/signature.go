package repl

import (
	"reflect"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/expr-lang/expr/builtin"

	"github.com/ardnew/muster/source"
)

// Styles for function signature hints.
var (
	signatureStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	signatureNameStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("6")).
				Bold(true)
	currentParamStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("11")).
				Bold(true)
)

// signature describes the parameters of a callable name.
type signature struct {
	name   string
	params []string
}

// String formats the signature as name(p0, p1, ...).
func (s signature) String() string {
	return s.name + "(" + strings.Join(s.params, ", ") + ")"
}

// exprLangSignatures indexes the expr-lang builtin functions by name. The
// parameter list comes from the first declared overload; builtins without
// one are shown as variadic.
//
//nolint:gochecknoglobals
var exprLangSignatures = sync.OnceValue(func() map[string]signature {
	sigs := make(map[string]signature, len(builtin.Builtins))

	for _, fn := range builtin.Builtins {
		sig := signature{name: fn.Name}

		switch {
		case len(fn.Types) > 0:
			sig.params = paramNames(fn.Types[0])
		case fn.Fast != nil:
			sig.params = []string{"v"}
		default:
			sig.params = []string{"...args"}
		}

		if fn.Predicate && len(sig.params) > 0 {
			sig.params[len(sig.params)-1] = "predicate"
		}

		sigs[fn.Name] = sig
	}

	return sigs
})

// ExprLangBuiltinNames returns the names of all expr-lang builtin functions.
func ExprLangBuiltinNames() []string {
	names := make([]string, 0, len(builtin.Builtins))
	for _, fn := range builtin.Builtins {
		names = append(names, fn.Name)
	}

	return names
}

// functionCall represents a detected function call in the input.
type functionCall struct {
	name     string // fully qualified function name (e.g., "path.cat")
	argIndex int    // current argument index (0-based)
	inCall   bool   // true if cursor is inside parameter list
}

// detectFunctionCall reports the innermost function call whose parameter
// list contains cursor, along with the index of the argument being typed.
func detectFunctionCall(input string, cursor int) functionCall {
	cursor = min(max(cursor, 0), len(input))

	// Track the argument index of each open call.
	type frame struct{ open, arg int }

	var stack []frame

	for i := 0; i < cursor; i++ {
		switch input[i] {
		case '(':
			stack = append(stack, frame{open: i})
		case ')':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case ',':
			if len(stack) > 0 {
				stack[len(stack)-1].arg++
			}
		}
	}

	if len(stack) == 0 {
		return functionCall{}
	}

	top := stack[len(stack)-1]

	start := top.open
	for start > 0 && (isIndexRune(rune(input[start-1])) || input[start-1] == '.') {
		start--
	}

	name := strings.Trim(input[start:top.open], ".")
	if name == "" {
		return functionCall{}
	}

	return functionCall{name: name, argIndex: top.arg, inCall: true}
}

// getSignature retrieves the signature of an expr-lang builtin or built-in
// environment function. Returns empty string if the function is not found.
func getSignature(funcName string) (string, []string) {
	if sig, ok := exprLangSignatures()[funcName]; ok {
		return sig.String(), sig.params
	}

	if sig, params, ok := getBuiltinSignature(funcName); ok {
		return sig, params
	}

	return "", nil
}

// getBuiltinSignature uses reflection to extract the signature of a function
// in the built-in expression environment, resolving dotted names through
// nested maps.
func getBuiltinSignature(funcName string) (string, []string, bool) {
	var cur any = source.Builtins()

	for _, seg := range strings.Split(funcName, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return "", nil, false
		}

		if cur, ok = m[seg]; !ok {
			return "", nil, false
		}
	}

	t := reflect.TypeOf(cur)
	if t == nil || t.Kind() != reflect.Func {
		return "", nil, false
	}

	sig := signature{name: funcName, params: paramNames(t)}

	return sig.String(), sig.params, true
}

// paramNames describes the parameters of function type t by type name.
func paramNames(t reflect.Type) []string {
	if t.Kind() != reflect.Func {
		return nil
	}

	params := make([]string, t.NumIn())

	for i := range params {
		in := t.In(i)
		if t.IsVariadic() && i == len(params)-1 {
			params[i] = "..." + typeName(in.Elem())
		} else {
			params[i] = typeName(in)
		}
	}

	return params
}

// typeName converts a reflect.Type to a readable parameter name.
func typeName(t reflect.Type) string {
	switch t.Kind() {
	case reflect.Func:
		return "func"
	case reflect.String:
		return "string"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return "int"
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "uint"
	case reflect.Float32, reflect.Float64:
		return "float"
	case reflect.Bool:
		return "bool"
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.Map:
		return "map"
	case reflect.Pointer:
		return typeName(t.Elem())
	case reflect.Interface:
		return "v"
	default:
		if t.Name() != "" {
			return t.Name()
		}

		return "arg"
	}
}

// renderSignatureHint renders the function signature with the parameter at
// argIdx highlighted. A variadic final parameter stays highlighted for every
// argument past it.
func renderSignatureHint(name string, params []string, argIdx int) string {
	if name == "" {
		return ""
	}

	var b strings.Builder

	b.WriteString(signatureNameStyle.Render(name))
	b.WriteString(signatureStyle.Render("("))

	for i, param := range params {
		if i > 0 {
			b.WriteString(signatureStyle.Render(", "))
		}

		variadic := strings.HasPrefix(param, "...")

		if argIdx == i || (variadic && argIdx > i) {
			b.WriteString(currentParamStyle.Render(param))
		} else {
			b.WriteString(signatureStyle.Render(param))
		}
	}

	b.WriteString(signatureStyle.Render(")"))

	return b.String()
}
