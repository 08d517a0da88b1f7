package repl

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
	"github.com/expr-lang/expr/builtin"
	"github.com/sahilm/fuzzy"

	"github.com/ardnew/muster/source"
	"github.com/ardnew/muster/view"
)

// ctrlCommands are the available control-mode commands.
var ctrlCommands = []string{"help", "set", "get", "keys", "edit", "clear", "quit"}

// ctrlPrefix introduces a control command typed in render mode.
const ctrlPrefix = ":"

// isWordBoundary returns true if the rune is a word delimiter for expression
// completion. This includes whitespace, the member-access dot, and expr-lang
// operator/punctuation characters.
func isWordBoundary(r rune) bool {
	switch r {
	case '.', ' ', '\t',
		'(', ')', '[', ']',
		'+', '-', '*', '/', '%',
		'<', '>', '=', '!',
		'&', '|', ',', '?', ':', ';',
		'"', '\'':
		return true
	}

	return false
}

// isIndexRune reports whether r may appear in a dictionary index.
func isIndexRune(r rune) bool {
	return r == '_' ||
		(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

// wordBounds returns the current word at the cursor position and its byte
// boundaries within input. Words are delimited by whitespace, dots, and
// expr-lang operator/punctuation characters.
// Returns an empty word when the cursor sits on a boundary (after a space,
// between dots, start of line, etc.).
func wordBounds(input string, cursor int) (word string, start, end int) {
	return bounds(input, cursor, func(r rune) bool { return !isWordBoundary(r) })
}

// bounds expands from cursor in both directions over runes accepted by in.
func bounds(input string, cursor int, in func(rune) bool) (word string, start, end int) {
	cursor = min(max(cursor, 0), len(input))

	start = cursor

	for start > 0 {
		r, size := utf8.DecodeLastRuneInString(input[:start])
		if !in(r) {
			break
		}

		start -= size
	}

	end = cursor

	for end < len(input) {
		r, size := utf8.DecodeRuneInString(input[end:])
		if !in(r) {
			break
		}

		end += size
	}

	return input[start:end], start, end
}

// parentPath returns the dot-separated prefix path leading up to the current
// word, considering only the contiguous member-access chain. For input
// "x + platform.o" with the word "o", the parent path is "platform".
// Returns "" for top-level words.
func parentPath(input string, wordStart int) string {
	prefix := input[:wordStart]
	if !strings.HasSuffix(prefix, ".") {
		return ""
	}

	prefix = strings.TrimRight(prefix, ".")

	pos := len(prefix)

	for pos > 0 {
		r, size := utf8.DecodeLastRuneInString(prefix[:pos])
		if r == '.' {
			pos -= size

			continue
		}

		if isWordBoundary(r) {
			break
		}

		pos -= size
	}

	return strings.TrimSpace(prefix[pos:])
}

// tagContext describes the template marker open at the cursor.
type tagContext struct {
	sigils string // marker characters between "{{" and the index
	open   bool   // cursor is inside an unterminated marker
}

// openTag reports the marker left open before cursor, if any. A marker is
// open when "{{" occurs before cursor with no "}}" after it.
func openTag(input string, cursor int) tagContext {
	cursor = min(max(cursor, 0), len(input))
	head := input[:cursor]

	at := strings.LastIndex(head, "{{")
	if at < 0 || strings.Contains(head[at:], "}}") {
		return tagContext{}
	}

	rest := head[at+2:]

	n := strings.IndexFunc(rest, isIndexRune)
	if n < 0 {
		n = len(rest)
	}

	return tagContext{sigils: strings.TrimSpace(rest[:n]), open: true}
}

// indexCandidates returns the index names completing a marker with the given
// sigils. Partial markers also complete template keys.
func indexCandidates(root view.Map, partials []string, sigils string) []string {
	names := root.Keys()

	if strings.Contains(sigils, ">") {
		names = append(names, partials...)
	}

	return unique(names)
}

// exprCandidates returns the names that complete an expression word under
// the given parent path: root dictionary entries, the built-in environment,
// and expr-lang builtin functions at the top level; the keys of the resolved
// map otherwise.
func exprCandidates(root view.Map, parent string) []string {
	env := source.Builtins()
	if dict, ok := view.Native(root).(map[string]any); ok {
		maps.Copy(env, dict)
	}

	if parent == "" {
		names := slices.Collect(maps.Keys(env))

		return unique(append(names, ExprLangBuiltinNames()...))
	}

	var cur any = env

	for _, seg := range strings.Split(parent, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}

		if cur, ok = m[seg]; !ok {
			return nil
		}
	}

	m, ok := cur.(map[string]any)
	if !ok {
		return nil
	}

	return slices.Sorted(maps.Keys(m))
}

func unique(names []string) []string {
	slices.Sort(names)

	return slices.Compact(names)
}

// ctrlLine splits input into the control command text and its byte offset
// within input, reporting false when input is not a control command.
func (m model) ctrlLine(input string) (string, int, bool) {
	if m.mode == modeCtrl {
		return input, 0, true
	}

	if rest, ok := strings.CutPrefix(input, ctrlPrefix); ok {
		return rest, len(ctrlPrefix), true
	}

	return "", 0, false
}

// computeMatches calculates the fuzzy match results for the word at the cursor.
// It returns the matches (ranked best-first), the candidate list, and the word
// boundaries. An empty word completes only directly after a marker opening,
// a member-access dot, or a command that takes an index.
func (m model) computeMatches() (
	matches fuzzy.Matches,
	candidates []string,
	wordStart, wordEnd int,
) {
	input := m.input.Value()
	cursor := m.cursor()

	if line, off, ok := m.ctrlLine(input); ok {
		candidates, wordStart, wordEnd, ok = m.ctrlCandidates(line, cursor-off)
		wordStart, wordEnd = wordStart+off, wordEnd+off

		if !ok {
			return nil, nil, wordStart, wordEnd
		}
	} else {
		tag := openTag(input, cursor)

		var word string

		word, wordStart, wordEnd = bounds(input, cursor, isIndexRune)
		if !tag.open || strings.Contains(tag.sigils, "!") {
			return nil, nil, wordStart, wordEnd
		}

		candidates = indexCandidates(m.engine.Root(), m.partials, tag.sigils)

		if word == "" {
			return all(candidates), candidates, wordStart, wordEnd
		}
	}

	if len(candidates) == 0 {
		return nil, nil, wordStart, wordEnd
	}

	word := input[wordStart:wordEnd]
	if word == "" {
		return all(candidates), candidates, wordStart, wordEnd
	}

	return fuzzy.Find(word, candidates), candidates, wordStart, wordEnd
}

// ctrlCandidates returns the candidates for the word at cursor within a
// control command line. It reports false when nothing should complete.
func (m model) ctrlCandidates(line string, cursor int) ([]string, int, int, bool) {
	cursor = min(max(cursor, 0), len(line))

	name, args, hasArgs := strings.Cut(line, " ")
	if !hasArgs || cursor <= len(name) {
		word, start, end := bounds(line, cursor, isIndexRune)

		return ctrlCommands, start, end, word != ""
	}

	argStart := len(name) + 1

	switch name {
	case "get":
		_, start, end := bounds(line, cursor, isIndexRune)

		return m.engine.Root().Keys(), start, end, true

	case "set":
		eq := strings.IndexByte(args, '=')
		if eq < 0 || cursor <= argStart+eq {
			word, start, end := bounds(line, cursor, isIndexRune)

			return m.engine.Root().Keys(), start, end, word != ""
		}

		word, start, end := wordBounds(line, cursor)
		parent := parentPath(line, start)

		if word == "" && parent == "" {
			return nil, start, end, false
		}

		return exprCandidates(m.engine.Root(), parent), start, end, true
	}

	return nil, cursor, cursor, false
}

// all returns every candidate as an unfiltered match.
func all(candidates []string) fuzzy.Matches {
	if len(candidates) == 0 {
		return nil
	}

	matches := make(fuzzy.Matches, len(candidates))
	for i, c := range candidates {
		matches[i] = fuzzy.Match{Str: c, Index: i}
	}

	return matches
}

// renderCandidateBar builds the single-line completion bar, ellipsized to fit
// within the given terminal width. Each candidate is rendered with its matched
// characters highlighted. The selected candidate (when tabbing) uses the
// selected style.
func renderCandidateBar(
	matches fuzzy.Matches,
	suggIdx int,
	tabActive bool,
	width int,
) string {
	if len(matches) == 0 || width <= 0 {
		return ""
	}

	const sep = "  "

	sepWidth := lipgloss.Width(sep)
	ellipsis := hintStyle.Render("...")
	ellipsisWidth := lipgloss.Width(ellipsis)

	var b strings.Builder

	used := 0

	for i, match := range matches {
		selected := tabActive && i == suggIdx
		rendered := renderCandidate(match, selected)
		candidateWidth := lipgloss.Width(rendered)

		entryWidth := candidateWidth
		if i > 0 {
			entryWidth += sepWidth
		}

		// Check if adding this candidate would exceed width.
		if used+entryWidth+ellipsisWidth > width && i > 0 {
			b.WriteString(sep)
			b.WriteString(ellipsis)

			break
		}

		if i > 0 {
			b.WriteString(sep)
		}

		b.WriteString(rendered)

		used += entryWidth
	}

	return b.String()
}

// renderCandidate renders a single candidate with matched characters
// highlighted. Functions are displayed with a "()" suffix.
func renderCandidate(match fuzzy.Match, selected bool) string {
	baseStyle := suggestionStyle
	highlightStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("4")).
		Bold(true)

	if selected {
		baseStyle = selectedStyle
		highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("4")).
			Bold(true)
	}

	matchSet := make(map[int]bool, len(match.MatchedIndexes))
	for _, idx := range match.MatchedIndexes {
		matchSet[idx] = true
	}

	var b strings.Builder

	for i, r := range match.Str {
		ch := string(r)
		if matchSet[i] {
			b.WriteString(highlightStyle.Render(ch))
		} else {
			b.WriteString(baseStyle.Render(ch))
		}
	}

	if isFunction(match.Str) {
		b.WriteString(baseStyle.Render("()"))
	}

	return b.String()
}

// previewWidth bounds the dictionary value preview shown by the keys command.
const previewWidth = 40

// formatPreview generates a short single-line preview of a dictionary value.
func formatPreview(v view.Value) string {
	var s string

	switch v.(type) {
	case view.List, view.Map:
		s = view.Dump(v)
	default:
		s = fmt.Sprintf("%q", view.Stringify(v))
	}

	s = strings.ReplaceAll(s, "\n", " ")
	if utf8.RuneCountInString(s) > previewWidth {
		r := []rune(s)

		return string(r[:previewWidth-3]) + "..."
	}

	return s
}

// isFunction checks if a name refers to a callable expr-lang builtin or
// built-in environment function.
func isFunction(name string) bool {
	if _, ok := builtin.Index[name]; ok {
		return true
	}

	_, _, ok := getBuiltinSignature(name)

	return ok
}
