package source

import (
	"os"
	"path/filepath"

	"github.com/ardnew/mung"

	"github.com/ardnew/muster/pkg"
)

// SearchPath returns the directories searched for templates and
// dictionaries: dirs first, followed by the entries of the path list in
// the environment variable [pkg.EnvPath]. Only existing directories are
// kept.
func SearchPath(dirs ...string) []string {
	return JoinPath(os.Getenv(pkg.EnvPath), dirs...)
}

// JoinPath prefixes dirs onto the path list value, keeping only existing
// directories and dropping duplicates.
func JoinPath(value string, dirs ...string) []string {
	list := mung.Make(
		mung.WithSubjectItems(value),
		mung.WithDelim(string(os.PathListSeparator)),
		mung.WithPrefixItems(dirs...),
		mung.WithFilter(isDir),
	).String()

	var (
		out  []string
		seen = make(map[string]bool)
	)

	for _, dir := range filepath.SplitList(list) {
		if dir == "" || seen[dir] || !isDir(dir) {
			continue
		}

		seen[dir] = true
		out = append(out, dir)
	}

	return out
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}

	return info.IsDir()
}
