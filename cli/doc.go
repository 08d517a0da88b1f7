// Package cli contains the command line interface for muster.
//
// # Usage
//
// Render is the default command, so a template file is all that is needed:
//
//	muster -d page.yaml page.html
//	muster render --key page --dict-key site --set 'year=2024'
//	muster --store site.db render -k page -o public/index.html
//
// Templates and dictionaries named by key are resolved through the search
// path, formed by the --path (-I) directories followed by the entries of
// $MUSTER_PATH. Each entry holds a views directory of templates and a frames
// directory of YAML or JSON dictionaries. With --store, keys resolve through
// a SQLite store instead; populate one with "muster store import DB".
//
// # Configuration
//
// Flag defaults are read from a YAML file in the user configuration
// directory (config.yaml). Keys are flag names, with hyphens or underscores:
//
//	log-level: debug
//	path:
//	  - /srv/templates
//
// "muster init" writes the current flag values to that file.
//
// # Logging Options
//
//   - --log-level: Set minimum log level (trace, debug, info, warn, error)
//   - --log-format: Set log output format (json, text)
//   - --log-time-layout: Set timestamp format (RFC3339, Kitchen, etc.)
//   - --log-caller: Include caller information in log output
//   - --log-pretty: Colorize log output
//
// # Profiling Options
//
// Profiling is only available when built with the pprof build tag:
//
//	go build -tags pprof .
//
// Flags:
//
//   - --pprof-mode: Enable profiling (allocs, block, clock, cpu, goroutine,
//     heap, mem, mutex, thread, trace)
//   - --pprof-dir: Set profile output directory (default: the pprof
//     directory in the user cache directory)
package cli
