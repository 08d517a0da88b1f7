package view

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/ardnew/muster/log"
)

func TestRender(t *testing.T) {
	tests := []struct {
		name string
		text string
		dict any
		want string
	}{
		{
			name: "literal text",
			text: "plain { text } with {{ stray {{#open markers",
			dict: map[string]any{"open": true},
			want: "plain { text } with {{ stray {{#open markers",
		},
		{
			name: "empty dictionary still expands",
			text: "a{{b}}c{{! note }}",
			dict: nil,
			want: "ac",
		},
		{
			name: "list iteration",
			text: "{{#list}}{{name}}{{/list}}",
			dict: map[string]any{"list": []any{
				map[string]any{"name": "A"},
				map[string]any{"name": "B"},
			}},
			want: "AB",
		},
		{
			name: "list elements cannot see parent scope",
			text: "{{#list}}[{{outer}}{{name}}]{{/list}}",
			dict: map[string]any{
				"outer": "O",
				"list":  []any{map[string]any{"name": "A"}},
			},
			want: "[A]",
		},
		{
			name: "list elements reach root through globals",
			text: "{{#list}}{{*outer}}{{name}}{{/list}}",
			dict: map[string]any{
				"outer": "O",
				"list":  []any{map[string]any{"name": "A"}, map[string]any{"name": "B"}},
			},
			want: "OAOB",
		},
		{
			name: "scalar list elements keep current scope",
			text: "{{#list}}{{x}}{{/list}}",
			dict: map[string]any{"x": "-", "list": []any{1, 2, 3}},
			want: "---",
		},
		{
			name: "map section",
			text: "{{#user}}{{first}} {{last}}{{/user}}",
			dict: map[string]any{"user": map[string]any{"first": "Ada", "last": "L"}},
			want: "Ada L",
		},
		{
			name: "scalar section keeps scope",
			text: "{{#flag}}{{name}}{{/#flag}}",
			dict: map[string]any{"flag": "yes", "name": "N"},
			want: "N",
		},
		{
			name: "falsy section",
			text: "[{{#list}}x{{/list}}{{#none}}y{{/none}}{{#off}}z{{/off}}]",
			dict: map[string]any{"list": []any{}, "off": false},
			want: "[]",
		},
		{
			name: "numeric zero assertion",
			text: "{{?x}}Y{{/x}}",
			dict: map[string]any{"x": "0"},
			want: "Y",
		},
		{
			name: "numeric zero inversion",
			text: "{{^x}}Y{{/x}}",
			dict: map[string]any{"x": "0"},
			want: "",
		},
		{
			name: "absent inversion",
			text: "{{^x}}Y{{/x}}",
			dict: map[string]any{},
			want: "Y",
		},
		{
			name: "empty string assertion",
			text: "{{?x}}Y{{/?x}}{{#?x}}Z{{/#?x}}",
			dict: map[string]any{"x": ""},
			want: "",
		},
		{
			name: "section assertion keeps scope",
			text: "{{#?m}}{{v}}{{/m}}",
			dict: map[string]any{"m": map[string]any{"v": "inner"}, "v": "outer"},
			want: "outer",
		},
		{
			name: "global bypasses shadowing",
			text: "{{#inner}}{{*x}}|{{x}}{{/inner}}",
			dict: map[string]any{"x": "root", "inner": map[string]any{"x": "shadow"}},
			want: "root|shadow",
		},
		{
			name: "global block kinds",
			text: "{{#inner}}{{?*g}}a{{/?*g}}{{#?*g}}b{{/#?*g}}{{^*g}}c{{/^*g}}{{#*gl}}{{v}}{{/#*gl}}{{/inner}}",
			dict: map[string]any{
				"g":     1,
				"gl":    []any{map[string]any{"v": "d"}},
				"inner": map[string]any{"g": false},
			},
			want: "abd",
		},
		{
			name: "escaping",
			text: "{{h}}|{{&h}}|{{*h}}|{{&*h}}",
			dict: map[string]any{"h": `<b a="1">'&'</b>`},
			want: "&lt;b a=&quot;1&quot;&gt;&#039;&amp;&#039;&lt;/b&gt;|<b a=\"1\">'&'</b>|" +
				"&lt;b a=&quot;1&quot;&gt;&#039;&amp;&#039;&lt;/b&gt;|<b a=\"1\">'&'</b>",
		},
		{
			name: "structured values are dumped and escaped",
			text: "{{l}}|{{&m}}",
			dict: map[string]any{"l": []int{1, 2}, "m": map[string]string{"k": "<v>"}},
			want: "[1, 2]|{k: &lt;v&gt;}",
		},
		{
			name: "scalars",
			text: "{{t}}.{{f}}.{{i}}.{{r}}.{{n}}",
			dict: map[string]any{"t": true, "f": false, "i": 42, "r": 2.5, "n": nil},
			want: "1..42.2.5.",
		},
		{
			name: "first closer wins",
			text: "{{?a}}x{{?a}}y{{/a}}z{{/a}}",
			dict: map[string]any{"a": 1},
			want: "x{{?a}}yz{{/a}}",
		},
		{
			name: "nested different indexes",
			text: "{{#a}}{{#b}}{{c}}{{/b}}{{/a}}",
			dict: map[string]any{"a": map[string]any{"b": map[string]any{"c": "deep"}}},
			want: "deep",
		},
		{
			name: "unclosed block emitted verbatim, inner markers expand",
			text: "{{#x}}open {{y}}",
			dict: map[string]any{"x": true, "y": "Y"},
			want: "{{#x}}open Y",
		},
		{
			name: "replacement text is not rescanned",
			text: "{{&v}}",
			dict: map[string]any{"v": "{{w}}", "w": "no"},
			want: "{{w}}",
		},
		{
			name: "inline partial expands against current scope",
			text: "{{#item}}{{>row}}{{/item}}",
			dict: map[string]any{"item": map[string]any{"row": "<{{v}}>", "v": "1"}},
			want: "<1>",
		},
		{
			name: "comment spans lines",
			text: "a{{! one\ntwo }}b",
			want: "ab",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Render(tt.text, tt.dict); got != tt.want {
				t.Errorf("Render(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

// countingSource records every retrieval.
type countingSource struct {
	mu    sync.Mutex
	text  map[string]string
	calls map[string]int
}

func newCountingSource(text map[string]string) *countingSource {
	return &countingSource{text: text, calls: map[string]int{}}
}

func (s *countingSource) Template(_ context.Context, key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls[key]++

	return s.text[key]
}

func TestEngine_PartialCache(t *testing.T) {
	src := newCountingSource(map[string]string{
		"frag":     "<{{name}}>",
		"row.txt":  "({{name}})",
		"listed":   "[{{name}}]",
		"notfound": "",
	})

	e := New(context.Background(),
		WithTemplate("{{>frag}}{{>frag}}{{#items}}{{>frag}}{{/items}}"+
			"{{>byfile}}{{>byfile}}{{>bylist}}{{>bylist}}{{>notfound}}{{>notfound}}"),
		WithDictionary(map[string]any{
			"name":   "root",
			"items":  []any{map[string]any{"name": "a"}, map[string]any{"name": "b"}},
			"byfile": map[string]any{"filename": "row", "ext": "txt"},
			"bylist": []any{"listed"},
		}),
		WithTemplateSource(src),
	)

	want := "<root><root><a><b>(root)(root)[root][root]"
	if got := e.Render(); got != want {
		t.Errorf("Render() = %q, want %q", got, want)
	}

	for key, n := range map[string]int{
		"frag": 1, "row.txt": 1, "listed": 1, "notfound": 2,
	} {
		if src.calls[key] != n {
			t.Errorf("retrievals of %q = %d, want %d", key, src.calls[key], n)
		}
	}

	if got := e.Partials().Keys(); strings.Join(got, ",") != "frag,listed,row.txt" {
		t.Errorf("cached keys = %v", got)
	}

	e.Render()

	if src.calls["frag"] != 1 {
		t.Errorf("cache not kept across renders: %d retrievals", src.calls["frag"])
	}
}

func TestEngine_PartialForms(t *testing.T) {
	src := Templates{"p": "P", "p.html": "H"}

	tests := []struct {
		name string
		dict map[string]any
		want string
	}{
		{"index is key", nil, "P"},
		{"inline", map[string]any{"p": "inline {{v}}", "v": 1}, "inline 1"},
		{"list key", map[string]any{"p": []any{"p.html", "ignored"}}, "H"},
		{"empty list", map[string]any{"p": []any{}}, ""},
		{"map without ext", map[string]any{"p": map[string]any{"filename": "p"}}, "P"},
		{"map without filename", map[string]any{"p": map[string]any{"ext": "html"}}, ""},
		{"nil entry uses index", map[string]any{"p": nil}, "P"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(context.Background(),
				WithTemplate("{{>p}}"),
				WithDictionary(tt.dict),
				WithTemplateSource(src),
			)

			if got := e.Render(); got != tt.want {
				t.Errorf("Render() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEngine_Keys(t *testing.T) {
	templates := Templates{"page": "{{title}}: {{>body}}", "body": "{{&*html}}"}
	dicts := DictionaryFunc(func(_ context.Context, key string) Map {
		if key != "site" {
			return nil
		}

		return Map{"title": String("Home"), "html": String("<p>")}
	})

	e := New(context.Background(),
		WithTemplateKey("page"),
		WithDictionaryKey("site"),
		WithTemplateSource(templates),
		WithDictionarySource(dicts),
	)

	if got := e.Render(); got != "Home: <p>" {
		t.Errorf("Render() = %q", got)
	}

	missing := New(context.Background(),
		WithTemplate("[{{title}}]"),
		WithDictionaryKey("absent"),
		WithDictionarySource(dicts),
	)

	if got := missing.Render(); got != "[]" {
		t.Errorf("Render() with missing dictionary = %q", got)
	}

	if missing.Root() == nil {
		t.Error("Root() is nil for missing dictionary")
	}
}

func TestEngine_GetSet(t *testing.T) {
	root := Map{"a": String("1")}
	e := New(context.Background(), WithTemplate("{{a}}{{b}}"), WithDictionary(root))

	if got := e.Render(); got != "1" {
		t.Fatalf("Render() = %q", got)
	}

	e.Set("b", []string{"x"})
	e.Set("a", 2)

	if v, ok := e.Get("a"); !ok || Stringify(v) != "2" {
		t.Errorf("Get(a) = %v, %v", v, ok)
	}

	if _, ok := e.Get("missing"); ok {
		t.Error("Get(missing) found entry")
	}

	if root["b"] == nil {
		t.Error("Set did not mutate the root dictionary in place")
	}

	if got := e.Render(); got != "2[x]" {
		t.Errorf("Render() after Set = %q", got)
	}
}

func TestEngine_Nested(t *testing.T) {
	inner := New(context.Background(),
		WithTemplate("<i>{{v}}</i>"),
		WithDictionary(map[string]any{"v": "in"}),
	)

	outer := Render("{{&child}}|{{child}}", map[string]any{"child": inner})

	if want := "<i>in</i>|&lt;i&gt;in&lt;/i&gt;"; outer != want {
		t.Errorf("Render() = %q, want %q", outer, want)
	}

	if inner.String() != "<i>in</i>" {
		t.Errorf("String() = %q", inner.String())
	}
}

var errBoom = errors.New("boom")

type panicStringer struct{}

func (panicStringer) String() string { panic(errBoom) }

func TestEngine_NeverPanics(t *testing.T) {
	var buf bytes.Buffer

	logger := log.Make(&buf, log.WithPretty(false), log.WithLevel(log.LevelWarn))

	panicking := TemplateFunc(func(context.Context, string) string { panic(errBoom) })

	e := New(context.Background(),
		WithTemplate("a{{bad}}b{{>p}}c{{l}}d"),
		WithDictionary(map[string]any{
			"bad": panicStringer{},
			"l":   []any{panicStringer{}},
		}),
		WithTemplateSource(panicking),
		WithLogger(logger),
	)

	if got := e.Render(); got != "abcd" {
		t.Errorf("Render() = %q, want %q", got, "abcd")
	}

	if !strings.Contains(buf.String(), ErrRecovered.Error()) {
		t.Errorf("recovery not logged: %q", buf.String())
	}

	for _, text := range []string{
		"{{", "}}", "{{{{}}}}", "{{#}}{{/}}", "{{/a}}{{#a}}", "{{!", "{{>",
		"{{#a}}{{#a}}{{/a}}", "\x00{{\xff}}", strings.Repeat("{{#a}}", 50),
	} {
		_ = Render(text, map[string]any{"a": []any{map[string]any{}}})
	}
}

func TestEngine_SelfReference(t *testing.T) {
	var buf bytes.Buffer

	e := New(context.Background(),
		WithTemplate("[{{&self}}|{{name}}]"),
		WithDictionary(map[string]any{"name": "outer"}),
		WithMaxDepth(5),
		WithLogger(log.Make(&buf, log.WithPretty(false))),
	)
	e.Set("self", e)

	if got := e.Render(); got != "[|outer]" {
		t.Errorf("Render() = %q, want %q", got, "[|outer]")
	}

	if !strings.Contains(buf.String(), ErrMaxDepthExceeded.Error()) {
		t.Errorf("self reference not logged: %q", buf.String())
	}

	// The guard is released after each render, and distinct engines
	// still nest.
	inner := New(context.Background(), WithTemplate("<{{name}}>"),
		WithDictionary(map[string]any{"name": "inner"}))
	e.Set("self", inner)

	if got := e.Render(); got != "[<inner>|outer]" {
		t.Errorf("Render() = %q, want %q", got, "[<inner>|outer]")
	}
}

func TestEngine_MaxDepth(t *testing.T) {
	var buf bytes.Buffer

	logger := log.Make(&buf, log.WithPretty(false))

	self := Templates{"loop": "x{{>loop}}"}

	e := New(context.Background(),
		WithTemplate("{{>loop}}"),
		WithTemplateSource(self),
		WithMaxDepth(5),
		WithLogger(logger),
	)

	if got := e.Render(); got != "xxxx" {
		t.Errorf("Render() = %q, want %q", got, "xxxx")
	}

	if !strings.Contains(buf.String(), ErrMaxDepthExceeded.Error()) {
		t.Errorf("depth limit not logged: %q", buf.String())
	}

	var open, closing strings.Builder

	dict := map[string]any{}

	for i := range 10 {
		name := fmt.Sprintf("a%d", i)
		dict[name] = true

		open.WriteString("{{#" + name + "}}")
		closing.WriteString("{{/a" + strconv.Itoa(9-i) + "}}")
	}

	if nested := Render(open.String()+"v"+closing.String(), dict); nested != "v" {
		t.Errorf("well-formed nesting affected by depth guard: %q", nested)
	}
}

func TestEngine_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := New(context.Background(), WithTemplate("text"))

	if got := e.RenderContext(ctx); got != "" {
		t.Errorf("RenderContext(canceled) = %q, want empty", got)
	}
}

func TestEngine_Expand(t *testing.T) {
	src := newCountingSource(map[string]string{"f": "{{v}}"})
	cache := NewPartialCache()

	a := New(context.Background(),
		WithDictionary(map[string]any{"v": "A"}),
		WithTemplateSource(src),
		WithPartialCache(cache),
	)
	b := New(context.Background(),
		WithDictionary(map[string]any{"v": "B"}),
		WithTemplateSource(src),
		WithPartialCache(cache),
	)

	if got := a.Expand(context.Background(), "{{>f}}"); got != "A" {
		t.Errorf("a.Expand() = %q", got)
	}

	if got := b.Expand(context.Background(), "{{>f}}"); got != "B" {
		t.Errorf("b.Expand() = %q", got)
	}

	if src.calls["f"] != 1 {
		t.Errorf("shared cache retrievals = %d, want 1", src.calls["f"])
	}
}

func TestEngine_Escaper(t *testing.T) {
	e := New(context.Background(),
		WithTemplate("{{v}}"),
		WithDictionary(map[string]any{"v": "<a>"}),
		WithEscaper(strings.ToUpper),
	)

	if got := e.Render(); got != "<A>" {
		t.Errorf("Render() = %q", got)
	}

	if got := Render("{{v}}", map[string]any{"v": "a&b"}); got != "a&amp;b" {
		t.Errorf("default escaper: %q", got)
	}
}

func TestEngine_TraceLogging(t *testing.T) {
	var buf bytes.Buffer

	logger := log.Make(&buf, log.WithPretty(false), log.WithLevel(log.LevelTrace))

	New(context.Background(),
		WithTemplate("{{>p}}{{>p}}"),
		WithTemplateSource(Templates{"p": "x"}),
		WithLogger(logger),
	).Render()

	out := buf.String()
	for _, msg := range []string{"render begin", "partial cache miss", "partial cache hit", "render end"} {
		if !strings.Contains(out, msg) {
			t.Errorf("trace output missing %q", msg)
		}
	}
}

func BenchmarkRender(b *testing.B) {
	items := make([]any, 100)
	for i := range items {
		items[i] = map[string]any{"name": "item", "price": i}
	}

	e := New(context.Background(),
		WithTemplate("<ul>{{#items}}<li>{{name}}: {{price}}{{?price}}!{{/price}}</li>{{/items}}</ul>"),
		WithDictionary(map[string]any{"items": items}),
	)

	for b.Loop() {
		_ = e.Render()
	}
}
