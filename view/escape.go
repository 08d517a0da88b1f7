package view

import "strings"

// Escaper transforms variable text before it is written to the output.
type Escaper func(string) string

//nolint:gochecknoglobals
var htmlReplacer = strings.NewReplacer(
	"&", "&amp;",
	`"`, "&quot;",
	"'", "&#039;",
	"<", "&lt;",
	">", "&gt;",
)

// EscapeHTML replaces the five HTML special characters with entities.
func EscapeHTML(s string) string {
	return htmlReplacer.Replace(s)
}

// NoEscape returns s unchanged.
func NoEscape(s string) string { return s }
