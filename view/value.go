package view

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Value is a dictionary entry. It is always a [Scalar], a [List], or a [Map].
type Value interface {
	value()
}

// Scalar holds a string, boolean, number, nil, or [fmt.Stringer].
//
// A Stringer is stored as-is and converted to text each time the scalar is
// rendered, so an *[Engine] stored in a dictionary renders in place.
type Scalar struct {
	v any
}

// List is an ordered sequence of values.
type List []Value

// Map is a mapping from index name to value.
type Map map[string]Value

func (Scalar) value() {}
func (List) value()   {}
func (Map) value()    {}

// String returns a string scalar.
func String(s string) Scalar { return Scalar{v: s} }

// Bool returns a boolean scalar.
func Bool(b bool) Scalar { return Scalar{v: b} }

// Int returns an integer scalar.
func Int(i int64) Scalar { return Scalar{v: i} }

// Float returns a floating-point scalar.
func Float(f float64) Scalar { return Scalar{v: f} }

// Interface returns the scalar's underlying Go value.
func (s Scalar) Interface() any { return s.v }

// String returns the textual form of s. Booleans render as "1" and "",
// nil renders as "".
func (s Scalar) String() string {
	switch v := s.v.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		if v {
			return "1"
		}

		return ""
	case int64:
		return strconv.FormatInt(v, 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case float64:
		return formatFloat(v)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// formatFloat renders f with fourteen significant digits, switching to
// exponent form for very large or small magnitudes.
func formatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "INF"
	case math.IsInf(f, -1):
		return "-INF"
	case math.IsNaN(f):
		return "NAN"
	}

	s := strconv.FormatFloat(f, 'G', floatPrecision, 64)

	mant, exp, ok := strings.Cut(s, "E")
	if !ok {
		return s
	}

	// Exponent form keeps a fractional mantissa and no exponent padding:
	// 1.0E+20, 1.5E-7.
	if !strings.Contains(mant, ".") {
		mant += ".0"
	}

	return mant + "E" + exp[:1] + strings.TrimLeft(exp[1:], "0")
}

const floatPrecision = 14

// Lookup returns the value stored at index, treating nil entries as absent.
func (m Map) Lookup(index string) (Value, bool) {
	v, ok := m[index]
	if !ok || v == nil {
		return nil, false
	}

	if s, isScalar := v.(Scalar); isScalar && s.v == nil {
		return nil, false
	}

	return v, true
}

// Keys returns the map's indexes in sorted order.
func (m Map) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

// Empty reports whether v is an empty value: nil, false, "", "0", numeric
// zero, or an empty list or map.
func Empty(v Value) bool {
	switch v := v.(type) {
	case nil:
		return true
	case List:
		return len(v) == 0
	case Map:
		return len(v) == 0
	case Scalar:
		switch s := v.v.(type) {
		case nil:
			return true
		case string:
			return s == "" || s == "0"
		case bool:
			return !s
		case int64:
			return s == 0
		case uint64:
			return s == 0
		case float64:
			return s == 0
		}
	}

	return false
}

// IsNumeric reports whether v is a number or a numeric string.
func IsNumeric(v Value) bool {
	s, ok := v.(Scalar)
	if !ok {
		return false
	}

	switch x := s.v.(type) {
	case int64, uint64, float64:
		return true
	case string:
		return numeric(x)
	}

	return false
}

// Truthy reports whether v is non-empty or numeric, so that the string "0"
// is truthy while "" and absent values are not.
func Truthy(v Value) bool {
	return !Empty(v) || IsNumeric(v)
}

// numeric reports whether s is a decimal number with optional surrounding
// whitespace, sign, fraction, and exponent.
func numeric(s string) bool {
	s = strings.Trim(s, " \t\n\r\v\f")
	if s == "" {
		return false
	}

	i := 0
	if s[i] == '+' || s[i] == '-' {
		i++
	}

	digits := 0
	for ; i < len(s) && isDigit(s[i]); i++ {
		digits++
	}

	if i < len(s) && s[i] == '.' {
		i++

		for ; i < len(s) && isDigit(s[i]); i++ {
			digits++
		}
	}

	if digits == 0 {
		return false
	}

	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		i++
		if i < len(s) && (s[i] == '+' || s[i] == '-') {
			i++
		}

		exp := 0
		for ; i < len(s) && isDigit(s[i]); i++ {
			exp++
		}

		if exp == 0 {
			return false
		}
	}

	return i == len(s)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// Stringify returns the textual form of a scalar, or "" for anything else.
func Stringify(v Value) string {
	if s, ok := v.(Scalar); ok {
		return s.String()
	}

	return ""
}

// Native converts v back into plain Go values: scalars become their
// underlying value (Stringers become strings), lists become []any, and maps
// become map[string]any.
func Native(v Value) any {
	switch v := v.(type) {
	case Scalar:
		if s, ok := v.v.(fmt.Stringer); ok {
			return s.String()
		}

		return v.v
	case List:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = Native(e)
		}

		return out
	case Map:
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[k] = Native(e)
		}

		return out
	}

	return nil
}

// ValueOf normalizes an arbitrary Go value into a [Value].
//
// Maps of any key type become [Map] (keys formatted with [fmt.Sprint]);
// slices and arrays become [List]; structs become [Map] of their exported
// fields, named by a `muster:"name"` tag when present and skipped with
// `muster:"-"`; pointers and interfaces are dereferenced. Values already of
// type [Value] are returned unchanged. Functions, channels, and reference
// cycles normalize to an empty scalar.
func ValueOf(x any) Value {
	if v, ok := x.(Value); ok {
		return v
	}

	return normalize(reflect.ValueOf(x), make(map[uintptr]bool))
}

//nolint:gochecknoglobals
var (
	stringerType = reflect.TypeFor[fmt.Stringer]()
	valueType    = reflect.TypeFor[Value]()
)

func normalize(rv reflect.Value, seen map[uintptr]bool) Value {
	if !rv.IsValid() {
		return Scalar{}
	}

	if rv.CanInterface() && rv.Type().Implements(valueType) {
		if rv.Kind() == reflect.Interface && rv.IsNil() {
			return Scalar{}
		}

		if v, ok := rv.Interface().(Value); ok && v != nil {
			return v
		}
	}

	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Interface:
	default:
		if rv.CanInterface() && rv.Type().Implements(stringerType) {
			if rv.Kind() == reflect.Pointer && rv.IsNil() {
				return Scalar{}
			}

			return Scalar{v: rv.Interface()}
		}
	}

	switch rv.Kind() {
	case reflect.Bool:
		return Scalar{v: rv.Bool()}

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Scalar{v: rv.Int()}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32,
		reflect.Uint64, reflect.Uintptr:
		return Scalar{v: rv.Uint()}

	case reflect.Float32, reflect.Float64:
		return Scalar{v: rv.Float()}

	case reflect.String:
		return Scalar{v: rv.String()}

	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return Scalar{}
		}

		if rv.Kind() == reflect.Interface {
			return normalize(rv.Elem(), seen)
		}

		return visit(rv, seen, func() Value { return normalize(rv.Elem(), seen) })

	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return Scalar{v: string(rv.Bytes())}
		}

		if rv.IsNil() {
			return List{}
		}

		return visit(rv, seen, func() Value { return normalizeList(rv, seen) })

	case reflect.Array:
		return normalizeList(rv, seen)

	case reflect.Map:
		if rv.IsNil() {
			return Map{}
		}

		return visit(rv, seen, func() Value { return normalizeMap(rv, seen) })

	case reflect.Struct:
		m := Map{}
		normalizeStruct(rv, m, seen)

		return m
	}

	return Scalar{}
}

// visit guards against reference cycles through pointers, slices, and maps.
func visit(rv reflect.Value, seen map[uintptr]bool, fn func() Value) Value {
	ptr := rv.Pointer()
	if ptr == 0 {
		return fn()
	}

	if seen[ptr] {
		return Scalar{}
	}

	seen[ptr] = true
	defer delete(seen, ptr)

	return fn()
}

func normalizeList(rv reflect.Value, seen map[uintptr]bool) Value {
	l := make(List, rv.Len())
	for i := range l {
		l[i] = normalize(rv.Index(i), seen)
	}

	return l
}

func normalizeMap(rv reflect.Value, seen map[uintptr]bool) Value {
	m := make(Map, rv.Len())

	iter := rv.MapRange()
	for iter.Next() {
		k := iter.Key()
		if k.Kind() == reflect.Interface {
			k = k.Elem()
		}

		var key string
		if k.IsValid() && k.CanInterface() {
			key = fmt.Sprint(k.Interface())
		}

		m[key] = normalize(iter.Value(), seen)
	}

	return m
}

func normalizeStruct(rv reflect.Value, m Map, seen map[uintptr]bool) {
	rt := rv.Type()

	for i := range rt.NumField() {
		f := rt.Field(i)

		name, tagged := f.Tag.Lookup("muster")
		if name == "-" {
			continue
		}

		if f.Anonymous && !tagged {
			ft := f.Type
			if ft.Kind() == reflect.Pointer {
				ft = ft.Elem()
			}

			if ft.Kind() == reflect.Struct {
				fv := rv.Field(i)
				if fv.Kind() == reflect.Pointer {
					if fv.IsNil() {
						continue
					}

					fv = fv.Elem()
				}

				normalizeStruct(fv, m, seen)

				continue
			}
		}

		if !f.IsExported() {
			continue
		}

		if name, _, _ = strings.Cut(name, ","); name == "" {
			name = f.Name
		}

		m[name] = normalize(rv.Field(i), seen)
	}
}

// Clone returns a deep copy of m. Scalars are shared.
func (m Map) Clone() Map {
	if m == nil {
		return nil
	}

	out := make(Map, len(m))
	for k, v := range m {
		out[k] = clone(v)
	}

	return out
}

func clone(v Value) Value {
	switch v := v.(type) {
	case Map:
		return v.Clone()
	case List:
		out := make(List, len(v))
		for i, e := range v {
			out[i] = clone(e)
		}

		return out
	}

	return v
}
