// Package view renders text templates by recursively substituting
// mustache-style markers against a nested, scoped dictionary.
//
// # Markers
//
// Every marker is delimited by "{{" and "}}" and names an index matching
// [A-Za-z]\w*. Markers are recognized in the following precedence order;
// a leading "*" after the sigil resolves the index against the root
// dictionary instead of the current scope:
//
//	{{?*i}}…{{/i}}   global assertion
//	{{?i}}…{{/i}}    assertion
//	{{#?*i}}…{{/i}}  global section assertion
//	{{#?i}}…{{/i}}   section assertion
//	{{#*i}}…{{/i}}   global section
//	{{#i}}…{{/i}}    section
//	{{^*i}}…{{/i}}   global inverted section
//	{{^i}}…{{/i}}    inverted section
//	{{>i}}           partial
//	{{!…}}           comment
//	{{&*i}}          unescaped global variable
//	{{*i}}           global variable
//	{{&i}}           unescaped variable
//	{{i}}            variable
//
// Block markers end at the first closing marker naming the same index.
// The bare form "{{/i}}" always closes a block; each block kind also
// accepts its qualified form, for example "{{/#*i}}" for a global section.
// Markers that do not match the grammar are copied to the output verbatim.
//
// # Truthiness
//
// A value is truthy when it is non-empty or numeric. The empty values are
// absent entries, nil, false, "", "0", numeric zero, and empty lists and
// maps; numbers and numeric strings (including "0") are always truthy.
//
// # Scopes
//
// Sections push a new scope: a list expands its body once per element
// with that element as the scope, a map expands its body once with the map
// as the scope, and any other truthy value expands its body once against
// the current scope. Assertions and inverted sections never change scope.
//
// Rendering is total: missing data, malformed markers, and failing
// collaborators degrade to literal or empty output and are reported only
// through the engine's logger.
package view
