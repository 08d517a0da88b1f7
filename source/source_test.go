package source

import (
	"os"
	"path/filepath"
	"testing"
)

// writeTree creates files under root from a map of slash-separated
// relative paths to contents.
func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()

	for rel, body := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))

		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}

		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

// fixture returns two search path directories; the first shadows the
// second.
func fixture(t *testing.T) (string, string) {
	t.Helper()

	primary, secondary := t.TempDir(), t.TempDir()

	writeTree(t, primary, map[string]string{
		"views/index.html":       "<h1>{{title}}</h1>{{>part}}",
		"views/part.html":        "P",
		"views/nested/item.html": "[{{name}}]",
		"frames/site.yaml":       "title: Home\nitems:\n  - name: a\n  - name: b\n",
		"frames/broken.yaml":     "a: [1, 2\n",
		"frames/notes.txt":       "ignored",
	})

	writeTree(t, secondary, map[string]string{
		"views/part.html":   "P2",
		"views/frag.txt":    "F",
		"frames/site.json":  `{"title": "Shadowed"}`,
		"frames/other.json": `{"a": 1}`,
	})

	return primary, secondary
}
