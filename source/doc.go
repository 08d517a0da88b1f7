// Package source provides the template and dictionary collaborators used by
// the view engine: a filesystem tree searched along a path list, a SQLite
// store, dictionary decoding, and expression-based dictionary assignment.
//
// Templates live under a "views" directory and dictionaries under a
// "frames" directory in each search path entry:
//
//	<dir>/views/<key>.html
//	<dir>/views/<key>
//	<dir>/frames/<key>.yaml
//	<dir>/frames/<key>.yml
//	<dir>/frames/<key>.json
//
// The first match along the search path wins.
package source
