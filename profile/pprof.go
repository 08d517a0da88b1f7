//go:build pprof

package profile

import (
	"maps"
	"path/filepath"
	"slices"
	"sync"

	"github.com/pkg/profile"

	_ "net/http/pprof" // register HTTP handlers
)

// Modes returns the list of supported profiling modes.
//
//nolint:gochecknoglobals
var Modes = sync.OnceValue(
	func() []string {
		return slices.Sorted(maps.Keys(mode))
	},
)

//nolint:gochecknoglobals
var mode = map[string]func(*profile.Profile){
	"allocs":    profile.MemProfileAllocs,
	"block":     profile.BlockProfile,
	"clock":     profile.ClockProfile,
	"cpu":       profile.CPUProfile,
	"goroutine": profile.GoroutineProfile,
	"heap":      profile.MemProfileHeap,
	"mem":       profile.MemProfile,
	"mutex":     profile.MutexProfile,
	"thread":    profile.ThreadcreationProfile,
	"trace":     profile.TraceProfile,
}

// start begins profiling in mode m. Each mode writes into its own
// subdirectory of dir, so runs with different modes keep their results.
func start(m, dir string, quiet bool) interface{ Stop() } {
	fn, ok := mode[m]
	if !ok {
		return ignore{}
	}

	args := []func(*profile.Profile){fn, profile.NoShutdownHook}

	if dir != "" {
		args = append(args, profile.ProfilePath(filepath.Join(dir, m)))
	}

	if quiet {
		args = append(args, profile.Quiet)
	}

	return profile.Start(args...)
}
