// Package profile provides optional runtime profiling for muster.
//
// Profiling wraps [github.com/pkg/profile] and is compiled in only with the
// "pprof" build tag. Without the tag every operation is a no-op and
// [Modes] returns nil.
//
//	go build -tags pprof .
//	muster --pprof-mode cpu --pprof-dir ./profiles render page.html
//	go tool pprof -http=: ./profiles/cpu/cpu.pprof
//
// Supported modes are allocs, block, clock, cpu, goroutine, heap, mem,
// mutex, thread, and trace. When built with the tag, the package also
// registers the [net/http/pprof] handlers.
package profile
