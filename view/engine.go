package view

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/ardnew/muster/log"
)

// Engine renders one root template against one root dictionary.
//
// The root dictionary keeps its identity for the engine's lifetime; only
// [Engine.Set] changes its contents. Partials retrieved by key are cached
// for the engine's lifetime. An Engine supports one render at a time;
// concurrent renders require external synchronization.
type Engine struct {
	template      string
	templateKey   string
	dictionaryKey string
	root          Map

	templates    TemplateSource
	dictionaries DictionarySource
	partials     *PartialCache
	grammar      *Grammar
	escape       Escaper
	logger       log.Logger
	maxDepth     int

	// set while Expand runs, so an engine nested in its own dictionary
	// cannot recurse through String
	rendering atomic.Bool
}

// New returns an engine configured by opts. Template and dictionary keys
// are resolved through their sources immediately, using ctx.
func New(ctx context.Context, opts ...Option) *Engine {
	e := &Engine{}

	applyDefaults(e)
	applyOptions(e, opts...)

	if e.templateKey != "" {
		e.template = e.fetchTemplate(ctx, e.templateKey)
	}

	if e.dictionaryKey != "" {
		e.root = e.fetchDictionary(ctx, e.dictionaryKey)
	}

	if e.root == nil {
		e.root = Map{}
	}

	return e
}

// Render expands text against dict with a default engine.
func Render(text string, dict any) string {
	return New(context.Background(),
		WithTemplate(text),
		WithDictionary(dict),
	).Render()
}

// Render returns the fully expanded root template.
func (e *Engine) Render() string {
	return e.RenderContext(context.Background())
}

// RenderContext returns the fully expanded root template. The context is
// passed to collaborators; once it is done, remaining markers expand to "".
func (e *Engine) RenderContext(ctx context.Context) string {
	return e.Expand(ctx, e.template)
}

// Expand renders text against the root dictionary, sharing this engine's
// partial cache and collaborators. A call made while the engine is already
// expanding, such as an engine reached through its own dictionary, yields "".
func (e *Engine) Expand(ctx context.Context, text string) (out string) {
	if !e.rendering.CompareAndSwap(false, true) {
		e.logger.WarnContext(ctx, "expansion aborted",
			slog.Any("error", ErrMaxDepthExceeded.With(
				slog.String("reason", "engine renders itself"),
			)),
		)

		return ""
	}

	defer e.rendering.Store(false)

	defer func() {
		if r := recover(); r != nil {
			e.recovered(ctx, "render", r)
			out = ""
		}
	}()

	e.logger.TraceContext(ctx, "render begin",
		slog.Int("template_bytes", len(text)),
		slog.Int("root_entries", len(e.root)),
	)

	out = e.expand(ctx, text, newScope(e.root))

	e.logger.TraceContext(ctx, "render end",
		slog.Int("output_bytes", len(out)),
		slog.Int("cached_partials", e.partials.Len()),
	)

	return out
}

// String renders the engine so that it may be embedded as a dictionary
// value in another engine.
func (e *Engine) String() string {
	return e.Render()
}

// Template returns the root template text.
func (e *Engine) Template() string { return e.template }

// Root returns the root dictionary.
func (e *Engine) Root() Map { return e.root }

// Partials returns the engine's partial cache.
func (e *Engine) Partials() *PartialCache { return e.partials }

// Get returns the root dictionary entry at index.
func (e *Engine) Get(index string) (Value, bool) {
	return e.root.Lookup(index)
}

// Set stores x, normalized with [ValueOf], at index in the root dictionary.
func (e *Engine) Set(index string, x any) {
	e.root[index] = ValueOf(x)
}

// expand scans text once, replacing every marker with the output of its
// handler. Replacement text is never rescanned.
func (e *Engine) expand(ctx context.Context, text string, sc *scope) string {
	if ctx.Err() != nil {
		return ""
	}

	if sc.depth > e.maxDepth {
		e.logger.WarnContext(ctx, "expansion aborted",
			slog.Any("error", ErrMaxDepthExceeded.With(
				slog.Int("max_depth", e.maxDepth),
			)),
		)

		return ""
	}

	if !strings.Contains(text, delimOpen) {
		return text
	}

	var b strings.Builder

	b.Grow(len(text))

	pos := 0
	for {
		tag, ok := e.grammar.Next(text, pos)
		if !ok {
			break
		}

		b.WriteString(text[pos:tag.Start])
		b.WriteString(e.dispatch(ctx, tag, sc))

		pos = tag.End
	}

	b.WriteString(text[pos:])

	return b.String()
}

// stringify renders a scalar, recovering from a failing Stringer.
func (e *Engine) stringify(ctx context.Context, v Value) (s string) {
	defer func() {
		if r := recover(); r != nil {
			e.recovered(ctx, "stringify", r)
			s = ""
		}
	}()

	return Stringify(v)
}

func (e *Engine) fetchTemplate(ctx context.Context, key string) (text string) {
	defer func() {
		if r := recover(); r != nil {
			e.recovered(ctx, "template source", r)
			text = ""
		}
	}()

	text = e.templates.Template(ctx, key)

	e.logger.TraceContext(ctx, "template retrieved",
		slog.String("key", key),
		slog.Int("bytes", len(text)),
	)

	return text
}

func (e *Engine) fetchDictionary(ctx context.Context, key string) (dict Map) {
	defer func() {
		if r := recover(); r != nil {
			e.recovered(ctx, "dictionary source", r)
			dict = nil
		}
	}()

	dict = e.dictionaries.Dictionary(ctx, key)

	e.logger.TraceContext(ctx, "dictionary retrieved",
		slog.String("key", key),
		slog.Int("entries", len(dict)),
	)

	return dict
}

func (e *Engine) recovered(ctx context.Context, op string, r any) {
	e.logger.WarnContext(ctx, "degraded to empty output",
		slog.Any("error", ErrRecovered.With(
			slog.String("op", op),
			slog.String("panic", fmt.Sprint(r)),
		)),
	)
}
