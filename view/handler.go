package view

import (
	"context"
	"log/slog"
	"strings"
)

// dispatch produces the replacement text for tag in scope sc.
func (e *Engine) dispatch(ctx context.Context, tag Tag, sc *scope) string {
	switch tag.Kind {
	case KindGlobalAssertion, KindAssertion,
		KindGlobalSectionAssertion, KindSectionAssertion:
		return e.assertion(ctx, tag, sc)

	case KindGlobalSection, KindSection:
		return e.section(ctx, tag, sc)

	case KindGlobalInverted, KindInverted:
		return e.inverted(ctx, tag, sc)

	case KindPartial:
		return e.partial(ctx, tag, sc)

	case KindComment:
		return ""

	case KindGlobalVar, KindVar:
		return e.variable(ctx, tag, sc, true)

	case KindUnescapedGlobalVar, KindUnescapedVar:
		return e.variable(ctx, tag, sc, false)
	}

	return ""
}

func (e *Engine) assertion(ctx context.Context, tag Tag, sc *scope) string {
	if !Truthy(sc.lookup(tag.Index, tag.Kind.Global())) {
		return ""
	}

	return e.expand(ctx, tag.Body, sc.push(sc.dict))
}

func (e *Engine) inverted(ctx context.Context, tag Tag, sc *scope) string {
	if Truthy(sc.lookup(tag.Index, tag.Kind.Global())) {
		return ""
	}

	return e.expand(ctx, tag.Body, sc.push(sc.dict))
}

// section iterates lists, enters maps, and treats any other truthy value
// as an assertion.
func (e *Engine) section(ctx context.Context, tag Tag, sc *scope) string {
	v := sc.lookup(tag.Index, tag.Kind.Global())
	if !Truthy(v) {
		return ""
	}

	switch v := v.(type) {
	case List:
		var b strings.Builder

		for _, elem := range v {
			dict, ok := elem.(Map)
			if !ok {
				dict = sc.dict
			}

			b.WriteString(e.expand(ctx, tag.Body, sc.push(dict)))
		}

		return b.String()

	case Map:
		return e.expand(ctx, tag.Body, sc.push(v))
	}

	return e.expand(ctx, tag.Body, sc.push(sc.dict))
}

// partial splices another template into the output. A dictionary entry
// named by the index is either inline template text, a list whose first
// element is a lookup key, or a map with "filename" and optional "ext".
// Without an entry the index itself is the lookup key.
func (e *Engine) partial(ctx context.Context, tag Tag, sc *scope) string {
	var text string

	switch v, ok := sc.dict.Lookup(tag.Index); {
	case !ok:
		text = e.retrieve(ctx, tag.Index)

	case isScalar(v):
		text = e.stringify(ctx, v)

	default:
		key, ok := partialKey(v)
		if !ok {
			return ""
		}

		text = e.retrieve(ctx, key)
	}

	if text == "" {
		return ""
	}

	return e.expand(ctx, text, sc.push(sc.dict))
}

// retrieve returns the partial template for key, consulting the cache
// before the template source.
func (e *Engine) retrieve(ctx context.Context, key string) string {
	if text, ok := e.partials.Load(key); ok {
		e.logger.TraceContext(ctx, "partial cache hit", slog.String("key", key))

		return text
	}

	e.logger.TraceContext(ctx, "partial cache miss", slog.String("key", key))

	text := e.fetchTemplate(ctx, key)
	e.partials.Store(key, text)

	return text
}

// variable renders a scalar, escaped when escape is set. Lists and maps
// are always dumped and escaped.
func (e *Engine) variable(ctx context.Context, tag Tag, sc *scope, escape bool) string {
	v := sc.lookup(tag.Index, tag.Kind.Global())

	switch v.(type) {
	case nil:
		return ""

	case List, Map:
		return e.escape(e.dump(ctx, v))
	}

	s := e.stringify(ctx, v)
	if escape {
		return e.escape(s)
	}

	return s
}

func (e *Engine) dump(ctx context.Context, v Value) (s string) {
	defer func() {
		if r := recover(); r != nil {
			e.recovered(ctx, "dump", r)
			s = ""
		}
	}()

	return Dump(v)
}

func isScalar(v Value) bool {
	_, ok := v.(Scalar)

	return ok
}
