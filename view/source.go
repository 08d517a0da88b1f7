package view

import "context"

// TemplateSource retrieves template text by lookup key.
// It returns "" when no template exists for key.
type TemplateSource interface {
	Template(ctx context.Context, key string) string
}

// DictionarySource retrieves a dictionary by lookup key.
// It returns an empty (or nil) Map when no dictionary exists for key.
type DictionarySource interface {
	Dictionary(ctx context.Context, key string) Map
}

// TemplateFunc adapts an ordinary function to a [TemplateSource].
type TemplateFunc func(ctx context.Context, key string) string

// Template calls f(ctx, key).
func (f TemplateFunc) Template(ctx context.Context, key string) string {
	return f(ctx, key)
}

// DictionaryFunc adapts an ordinary function to a [DictionarySource].
type DictionaryFunc func(ctx context.Context, key string) Map

// Dictionary calls f(ctx, key).
func (f DictionaryFunc) Dictionary(ctx context.Context, key string) Map {
	return f(ctx, key)
}

// Templates is an in-memory [TemplateSource].
type Templates map[string]string

// Template returns the text stored at key.
func (t Templates) Template(_ context.Context, key string) string {
	return t[key]
}

// nopSource resolves nothing.
type nopSource struct{}

func (nopSource) Template(context.Context, string) string { return "" }
func (nopSource) Dictionary(context.Context, string) Map  { return nil }
