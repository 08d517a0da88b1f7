package source

// This file defines the built-in environment available to assignment
// expressions. Dictionary entries shadow built-in names.

import (
	"maps"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/ardnew/mung"
)

//nolint:gochecknoglobals
var builtins = sync.OnceValue(func() map[string]any {
	return map[string]any{
		"platform": map[string]any{
			"os":   runtime.GOOS,
			"arch": runtime.GOARCH,
		},
		"hostname": hostname(),
		"user":     username(),
		"cwd":      cwd,
		"env":      os.Getenv,
		"file": map[string]any{
			"exists": fileExists,
			"isDir":  isDir,
			"read":   fileRead,
		},
		"path": map[string]any{
			"abs":  pathAbs,
			"cat":  filepath.Join,
			"base": filepath.Base,
			"dir":  filepath.Dir,
			"ext":  filepath.Ext,
		},
		"mung": map[string]any{
			"prefix": mungPrefix,
		},
	}
})

// Builtins returns a copy of the built-in expression environment.
func Builtins() map[string]any {
	return maps.Clone(builtins())
}

// BuiltinKeys returns the sorted top-level names of the built-in
// environment.
func BuiltinKeys() []string {
	keys := make([]string, 0, len(builtins()))
	for k := range builtins() {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return ""
	}

	return h
}

func username() string {
	u, err := user.Current()
	if err != nil {
		return os.Getenv("USER")
	}

	return u.Username
}

func cwd() string {
	dir, err := os.Getwd()
	if err != nil {
		return pathAbs(".")
	}

	return dir
}

func fileExists(path string) bool {
	_, err := os.Stat(path)

	return !os.IsNotExist(err)
}

func fileRead(path string) string {
	data, err := ReadFile(path)
	if err != nil {
		return ""
	}

	return strings.TrimRight(string(data), "\n")
}

func pathAbs(path string) string {
	p, err := filepath.Abs(path)
	if err != nil {
		return path
	}

	return p
}

func mungPrefix(list string, prefix ...string) string {
	return mung.Make(
		mung.WithSubjectItems(list),
		mung.WithDelim(string(os.PathListSeparator)),
		mung.WithPrefixItems(prefix...),
	).String()
}
