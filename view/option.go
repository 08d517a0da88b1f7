package view

import "github.com/ardnew/muster/log"

// DefaultMaxDepth is the default limit on nested expansions.
// Users may modify this before constructing engines to change the default.
//
//nolint:gochecknoglobals
var DefaultMaxDepth = 100

// Option configures an [Engine].
type Option func(*Engine)

// WithTemplate sets the literal template text.
func WithTemplate(text string) Option {
	return func(e *Engine) {
		e.template, e.templateKey = text, ""
	}
}

// WithTemplateKey sets a lookup key resolved through the template source
// when the engine is constructed.
func WithTemplateKey(key string) Option {
	return func(e *Engine) {
		e.templateKey = key
	}
}

// WithDictionary sets the root dictionary. The value is normalized with
// [ValueOf]; anything that does not normalize to a [Map] yields an empty
// root dictionary. A [Map] is used directly, so [Engine.Set] mutates it.
func WithDictionary(dict any) Option {
	return func(e *Engine) {
		e.dictionaryKey = ""
		e.root, _ = ValueOf(dict).(Map)
	}
}

// WithDictionaryKey sets a lookup key resolved through the dictionary
// source when the engine is constructed.
func WithDictionaryKey(key string) Option {
	return func(e *Engine) {
		e.dictionaryKey = key
	}
}

// WithTemplateSource sets the collaborator used to resolve template keys
// and partials.
func WithTemplateSource(src TemplateSource) Option {
	return func(e *Engine) {
		if src != nil {
			e.templates = src
		}
	}
}

// WithDictionarySource sets the collaborator used to resolve dictionary
// keys.
func WithDictionarySource(src DictionarySource) Option {
	return func(e *Engine) {
		if src != nil {
			e.dictionaries = src
		}
	}
}

// WithPartialCache shares a partial cache between engines.
func WithPartialCache(cache *PartialCache) Option {
	return func(e *Engine) {
		if cache != nil {
			e.partials = cache
		}
	}
}

// WithLogger sets the structured logger for trace-level debugging.
// If not provided, the logger is zero-valued and all logging is a no-op.
func WithLogger(logger log.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMaxDepth sets the maximum number of nested expansions. Expansions
// beyond the limit produce no output. Values below one are ignored.
func WithMaxDepth(depth int) Option {
	return func(e *Engine) {
		if depth > 0 {
			e.maxDepth = depth
		}
	}
}

// WithEscaper replaces the HTML escaping applied to variables.
func WithEscaper(fn Escaper) Option {
	return func(e *Engine) {
		if fn != nil {
			e.escape = fn
		}
	}
}

func applyDefaults(e *Engine) {
	e.templates = nopSource{}
	e.dictionaries = nopSource{}
	e.partials = NewPartialCache()
	e.grammar = Compile()
	e.escape = EscapeHTML
	e.maxDepth = DefaultMaxDepth
}

func applyOptions(e *Engine, opts ...Option) {
	for _, opt := range opts {
		opt(e)
	}
}
