package view

import (
	"strings"
	"sync"
)

// Kind identifies one of the fourteen marker forms. Kinds are declared in
// precedence order: at any position the first kind that matches wins.
type Kind int

const (
	KindGlobalAssertion        Kind = iota // {{?*i}}…{{/i}}
	KindAssertion                          // {{?i}}…{{/i}}
	KindGlobalSectionAssertion             // {{#?*i}}…{{/i}}
	KindSectionAssertion                   // {{#?i}}…{{/i}}
	KindGlobalSection                      // {{#*i}}…{{/i}}
	KindSection                            // {{#i}}…{{/i}}
	KindGlobalInverted                     // {{^*i}}…{{/i}}
	KindInverted                           // {{^i}}…{{/i}}
	KindPartial                            // {{>i}}
	KindComment                            // {{!…}}
	KindUnescapedGlobalVar                 // {{&*i}}
	KindGlobalVar                          // {{*i}}
	KindUnescapedVar                       // {{&i}}
	KindVar                                // {{i}}
)

// String returns a human-readable name of the kind.
func (k Kind) String() string {
	switch k {
	case KindGlobalAssertion:
		return "global assertion"
	case KindAssertion:
		return "assertion"
	case KindGlobalSectionAssertion:
		return "global section assertion"
	case KindSectionAssertion:
		return "section assertion"
	case KindGlobalSection:
		return "global section"
	case KindSection:
		return "section"
	case KindGlobalInverted:
		return "global inverted section"
	case KindInverted:
		return "inverted section"
	case KindPartial:
		return "partial"
	case KindComment:
		return "comment"
	case KindUnescapedGlobalVar:
		return "unescaped global variable"
	case KindGlobalVar:
		return "global variable"
	case KindUnescapedVar:
		return "unescaped variable"
	case KindVar:
		return "variable"
	default:
		return "unknown"
	}
}

// Block reports whether markers of this kind enclose a body.
func (k Kind) Block() bool { return k >= KindGlobalAssertion && k <= KindInverted }

// Global reports whether markers of this kind resolve against the root
// dictionary.
func (k Kind) Global() bool {
	switch k {
	case KindGlobalAssertion, KindGlobalSectionAssertion, KindGlobalSection,
		KindGlobalInverted, KindUnescapedGlobalVar, KindGlobalVar:
		return true
	default:
		return false
	}
}

const (
	delimOpen  = "{{"
	delimClose = "}}"
	delimEnd   = "{{/"
)

// Tag is a single marker found in template text.
type Tag struct {
	Kind  Kind
	Index string // empty for comments
	Body  string // block kinds only
	Start int    // offset of the opening "{{"
	End   int    // offset just past the final "}}"
}

// rule describes how one kind is recognized: the sigil following "{{" in
// the opening marker, and the sigils accepted after "{{/" in the closing
// marker (the empty sigil is the bare form).
type rule struct {
	kind  Kind
	open  string
	close []string
}

// Grammar is the compiled, ordered set of marker rules.
type Grammar struct {
	rules []rule
}

// Compile returns the marker grammar. The result is shared and immutable.
//
//nolint:gochecknoglobals
var Compile = sync.OnceValue(func() *Grammar {
	return &Grammar{rules: []rule{
		{KindGlobalAssertion, "?*", []string{"", "?*"}},
		{KindAssertion, "?", []string{"", "?"}},
		{KindGlobalSectionAssertion, "#?*", []string{"", "?", "#?", "?*", "#?*"}},
		{KindSectionAssertion, "#?", []string{"", "?", "#?"}},
		{KindGlobalSection, "#*", []string{"", "#*"}},
		{KindSection, "#", []string{"", "#"}},
		{KindGlobalInverted, "^*", []string{"", "^*"}},
		{KindInverted, "^", []string{"", "^"}},
		{KindPartial, ">", nil},
		{KindComment, "!", nil},
		{KindUnescapedGlobalVar, "&*", nil},
		{KindGlobalVar, "*", nil},
		{KindUnescapedVar, "&", nil},
		{KindVar, "", nil},
	}}
})

// Next returns the first marker at or after offset pos in text.
func (g *Grammar) Next(text string, pos int) (Tag, bool) {
	for pos >= 0 && pos < len(text) {
		i := strings.Index(text[pos:], delimOpen)
		if i < 0 {
			break
		}

		pos += i
		if tag, ok := g.Match(text, pos); ok {
			return tag, true
		}

		pos++
	}

	return Tag{}, false
}

// Match attempts every rule, in precedence order, against the marker that
// begins at offset pos in text.
func (g *Grammar) Match(text string, pos int) (Tag, bool) {
	if pos < 0 || !strings.HasPrefix(text[min(pos, len(text)):], delimOpen) {
		return Tag{}, false
	}

	for _, r := range g.rules {
		if tag, ok := r.match(text, pos); ok {
			return tag, true
		}
	}

	return Tag{}, false
}

func (r rule) match(text string, pos int) (Tag, bool) {
	at := pos + len(delimOpen)

	if !strings.HasPrefix(text[at:], r.open) {
		return Tag{}, false
	}

	at += len(r.open)

	if r.kind == KindComment {
		end := strings.Index(text[at:], delimClose)
		if end < 0 {
			return Tag{}, false
		}

		return Tag{Kind: r.kind, Start: pos, End: at + end + len(delimClose)}, true
	}

	index, end, ok := scanTerminated(text, at)
	if !ok {
		return Tag{}, false
	}

	tag := Tag{Kind: r.kind, Index: index, Start: pos, End: end}
	if !r.kind.Block() {
		return tag, true
	}

	body, stop, ok := r.scanBody(text, end, index)
	if !ok {
		return Tag{}, false
	}

	tag.Body, tag.End = body, stop

	return tag, true
}

// scanBody finds the first closing marker for index at or after offset
// from, returning the enclosed body and the offset just past the closer.
func (r rule) scanBody(text string, from int, index string) (string, int, bool) {
	for at := from; at < len(text); {
		i := strings.Index(text[at:], delimEnd)
		if i < 0 {
			break
		}

		at += i
		if stop, ok := r.closes(text, at+len(delimEnd), index); ok {
			return text[from:at], stop, true
		}

		at++
	}

	return "", 0, false
}

// closes reports whether the text at offset at, just past "{{/", completes
// a closing marker for index.
func (r rule) closes(text string, at int, index string) (int, bool) {
	for _, sigil := range r.close {
		rest := text[at:]
		if !strings.HasPrefix(rest, sigil) ||
			!strings.HasPrefix(rest[len(sigil):], index) {
			continue
		}

		if stop, ok := scanDelim(text, at+len(sigil)+len(index)); ok {
			return stop, true
		}
	}

	return 0, false
}

// scanTerminated scans an index at offset at followed by optional blanks
// and "}}". It returns the index and the offset just past "}}".
func scanTerminated(text string, at int) (string, int, bool) {
	n := scanIndex(text, at)
	if n == 0 {
		return "", 0, false
	}

	end, ok := scanDelim(text, at+n)
	if !ok {
		return "", 0, false
	}

	return text[at : at+n], end, true
}

// scanIndex returns the length of the identifier at offset at.
func scanIndex(text string, at int) int {
	if at >= len(text) || !isAlpha(text[at]) {
		return 0
	}

	n := 1
	for at+n < len(text) && isWord(text[at+n]) {
		n++
	}

	return n
}

// scanDelim skips spaces and tabs at offset at and expects "}}".
func scanDelim(text string, at int) (int, bool) {
	for at < len(text) && (text[at] == ' ' || text[at] == '\t') {
		at++
	}

	if !strings.HasPrefix(text[at:], delimClose) {
		return 0, false
	}

	return at + len(delimClose), true
}

func isAlpha(c byte) bool { return (c|0x20) >= 'a' && (c|0x20) <= 'z' }

func isWord(c byte) bool { return isAlpha(c) || isDigit(c) || c == '_' }
