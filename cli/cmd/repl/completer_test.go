package repl

import (
	"context"
	"slices"
	"testing"

	"github.com/ardnew/muster/log"
	"github.com/ardnew/muster/view"
)

func TestWordBounds_ExprOperators(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		cursor    int
		wantWord  string
		wantStart int
		wantEnd   int
	}{
		{"simple", "foo", 3, "foo", 0, 3},
		{"dot_separated", "bar.baz", 7, "baz", 4, 7},
		{"after_plus", "a + fo", 6, "fo", 4, 6},
		{"after_minus", "a-fo", 4, "fo", 2, 4},
		{"after_paren", "upper(fo", 8, "fo", 6, 8},
		{"after_comma", "join(a, fo", 10, "fo", 8, 10},
		{"in_ternary", "x ? fo", 6, "fo", 4, 6},
		{"after_quote", `env("HO`, 7, "HO", 5, 7},
		{"empty_at_boundary", "a + ", 4, "", 4, 4},
		{"mid_word", "foobar", 3, "foobar", 0, 6},
		{"at_start", "foo", 0, "foo", 0, 3},
		{"cursor_past_end", "foo", 9, "foo", 0, 3},
		{"empty_after_dot", "platform.", 9, "", 9, 9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			word, start, end := wordBounds(tt.input, tt.cursor)
			if word != tt.wantWord || start != tt.wantStart || end != tt.wantEnd {
				t.Errorf("wordBounds(%q, %d) = (%q, %d, %d), want (%q, %d, %d)",
					tt.input, tt.cursor, word, start, end,
					tt.wantWord, tt.wantStart, tt.wantEnd)
			}
		})
	}
}

func TestParentPath(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wordStart int
		want      string
	}{
		{"top_level", "fo", 0, ""},
		{"simple_chain", "platform.", 9, "platform"},
		{"after_operator", "x + platform.", 13, "platform"},
		{"after_paren", "(file.", 6, "file"},
		{"no_chain", "a + ", 4, ""},
		{"deep_chain", "a.b.c.", 6, "a.b.c"},
		{"after_equals", "x=a.b.", 6, "a.b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parentPath(tt.input, tt.wordStart)
			if got != tt.want {
				t.Errorf("parentPath(%q, %d) = %q, want %q",
					tt.input, tt.wordStart, got, tt.want)
			}
		})
	}
}

func TestOpenTag(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		cursor     int
		wantOpen   bool
		wantSigils string
	}{
		{"plain_text", "hello", 5, false, ""},
		{"variable", "Hi {{na", 7, true, ""},
		{"section", "{{#it", 5, true, "#"},
		{"global_inverted", "{{^*fl", 6, true, "^*"},
		{"partial_spaced", "{{> pa", 6, true, ">"},
		{"after_sigil", "{{?", 3, true, "?"},
		{"closed", "{{x}} y", 7, false, ""},
		{"reopened", "{{x}} {{&y", 10, true, "&"},
		{"cursor_inside_closed", "{{name}}", 4, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := openTag(tt.input, tt.cursor)
			if got.open != tt.wantOpen || got.sigils != tt.wantSigils {
				t.Errorf("openTag(%q, %d) = {%q, %v}, want {%q, %v}",
					tt.input, tt.cursor, got.sigils, got.open,
					tt.wantSigils, tt.wantOpen)
			}
		})
	}
}

func TestIndexCandidates(t *testing.T) {
	root := view.Map{"b": view.String("x"), "a": view.Int(1)}
	partials := []string{"row", "a"}

	if got, want := indexCandidates(root, partials, "#"), []string{"a", "b"}; !slices.Equal(got, want) {
		t.Errorf("section candidates = %v, want %v", got, want)
	}

	if got, want := indexCandidates(root, partials, ">"), []string{"a", "b", "row"}; !slices.Equal(got, want) {
		t.Errorf("partial candidates = %v, want %v", got, want)
	}
}

func TestExprCandidates(t *testing.T) {
	root := view.Map{
		"name": view.String("World"),
		"cfg":  view.Map{"port": view.Int(80), "host": view.String("h")},
	}

	top := exprCandidates(root, "")
	for _, want := range []string{"name", "cfg", "platform", "path", "upper", "len"} {
		if !slices.Contains(top, want) {
			t.Errorf("top-level candidates missing %q: %v", want, top)
		}
	}

	if !slices.IsSorted(top) {
		t.Errorf("top-level candidates not sorted: %v", top)
	}

	tests := []struct {
		parent string
		want   []string
	}{
		{"platform", []string{"arch", "os"}},
		{"cfg", []string{"host", "port"}},
		{"name", nil},
		{"nope", nil},
		{"platform.os", nil},
	}

	for _, tt := range tests {
		if got := exprCandidates(root, tt.parent); !slices.Equal(got, tt.want) {
			t.Errorf("exprCandidates(%q) = %v, want %v", tt.parent, got, tt.want)
		}
	}
}

func testModel(t *testing.T, root view.Map, partials ...string) model {
	t.Helper()

	engine := view.New(context.Background(), view.WithDictionary(root))

	return newModel(context.Background(), engine, partials, NewHistory(""), log.Discard())
}

func TestComputeMatches(t *testing.T) {
	root := view.Map{
		"alpha": view.String("a"),
		"beta":  view.String("b"),
		"nums":  view.List{view.Int(1)},
	}

	tests := []struct {
		name  string
		mode  inputMode
		input string
		want  []string
	}{
		{"outside_marker", modeRender, "alpha", nil},
		{"marker_empty_word", modeRender, "{{", []string{"alpha", "beta", "nums"}},
		{"marker_word", modeRender, "{{#be", []string{"beta"}},
		{"partial_keys", modeRender, "{{>ro", []string{"row"}},
		{"comment", modeRender, "{{!al", nil},
		{"ctrl_prefix_command", modeRender, ":ke", []string{"keys"}},
		{"ctrl_command", modeCtrl, "qu", []string{"quit"}},
		{"ctrl_empty", modeCtrl, "", nil},
		{"get_index", modeCtrl, "get al", []string{"alpha"}},
		{"set_index", modeCtrl, "set nu", []string{"nums"}},
		{"set_member", modeCtrl, "set x=platform.", []string{"arch", "os"}},
		{"set_expr_empty", modeCtrl, "set x=", nil},
		{"unknown_command_args", modeCtrl, "help me", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := testModel(t, root, "row")
			m.mode = tt.mode
			m.input.SetValue(tt.input)
			m.input.CursorEnd()

			matches, _, _, _ := m.computeMatches()

			var got []string
			for _, match := range matches {
				got = append(got, match.Str)
			}

			if !slices.Equal(got, tt.want) {
				t.Errorf("computeMatches(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestFormatPreview(t *testing.T) {
	tests := []struct {
		name string
		v    view.Value
		want string
	}{
		{"scalar", view.String("hi"), `"hi"`},
		{"number", view.Int(3), `"3"`},
		{"list", view.List{view.Int(1), view.Int(2)}, "[1, 2]"},
		{"long", view.String("0123456789012345678901234567890123456789xx"), `"012345678901234567890123456789012345...`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatPreview(tt.v); got != tt.want {
				t.Errorf("formatPreview() = %q, want %q", got, tt.want)
			}
		})
	}
}
