package source

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/klauspost/readahead"
	"github.com/zeebo/xxh3"

	"github.com/ardnew/muster/log"
	"github.com/ardnew/muster/pkg"
	"github.com/ardnew/muster/view"
)

// Default layout of a search path entry.
const (
	DefaultViewsDir    = "views"
	DefaultFramesDir   = "frames"
	DefaultTemplateExt = "html"
)

// DictionaryExts lists the recognized dictionary file extensions in
// lookup order.
//
//nolint:gochecknoglobals
var DictionaryExts = []string{"yaml", "yml", "json"}

// Files resolves templates and dictionaries from a list of directories.
// It implements both [view.TemplateSource] and [view.DictionarySource].
type Files struct {
	dirs        []string
	views       string
	frames      string
	templateExt string
	logger      log.Logger

	// parsed dictionaries keyed by the xxh3 hash of their content
	parsed sync.Map
}

// FilesOption configures [Files].
type FilesOption func(*Files)

// WithViewsDir sets the template subdirectory name.
func WithViewsDir(name string) FilesOption {
	return func(f *Files) { f.views = name }
}

// WithFramesDir sets the dictionary subdirectory name.
func WithFramesDir(name string) FilesOption {
	return func(f *Files) { f.frames = name }
}

// WithTemplateExt sets the default template file extension.
func WithTemplateExt(ext string) FilesOption {
	return func(f *Files) { f.templateExt = strings.TrimPrefix(ext, ".") }
}

// WithLogger sets the structured logger.
func WithLogger(logger log.Logger) FilesOption {
	return func(f *Files) { f.logger = logger }
}

// NewFiles returns a file source searching dirs in order.
func NewFiles(dirs []string, opts ...FilesOption) *Files {
	f := &Files{
		dirs:        dirs,
		views:       DefaultViewsDir,
		frames:      DefaultFramesDir,
		templateExt: DefaultTemplateExt,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Dirs returns the search path.
func (f *Files) Dirs() []string { return f.dirs }

// Template returns the template text for key, or "" if none exists.
func (f *Files) Template(ctx context.Context, key string) string {
	path, err := f.FindTemplate(key)
	if err != nil {
		f.logger.DebugContext(ctx, "template unavailable", slog.Any("error", err))

		return ""
	}

	data, err := ReadFile(path)
	if err != nil {
		f.logger.DebugContext(ctx, "template unavailable", slog.Any("error", err))

		return ""
	}

	f.logger.TraceContext(ctx, "template loaded",
		slog.String("key", key),
		slog.String("path", path),
	)

	return string(data)
}

// Dictionary returns the dictionary for key, or an empty Map if none
// exists or it cannot be decoded.
func (f *Files) Dictionary(ctx context.Context, key string) view.Map {
	path, err := f.FindDictionary(key)
	if err == nil {
		var dict view.Map
		if dict, err = f.LoadDictionary(path); err == nil {
			f.logger.TraceContext(ctx, "dictionary loaded",
				slog.String("key", key),
				slog.String("path", path),
			)

			return dict
		}
	}

	f.logger.DebugContext(ctx, "dictionary unavailable", slog.Any("error", err))

	return view.Map{}
}

// FindTemplate returns the path of the first file named key, with the
// default template extension or as given, in a views directory.
func (f *Files) FindTemplate(key string) (string, error) {
	return f.find(f.views, key, f.templateExt, "")
}

// FindDictionary returns the path of the first dictionary file named key
// in a frames directory.
func (f *Files) FindDictionary(key string) (string, error) {
	return f.find(f.frames, key, DictionaryExts...)
}

func (f *Files) find(sub, key string, exts ...string) (string, error) {
	rel := filepath.FromSlash(key)
	if key == "" || !filepath.IsLocal(rel) {
		return "", ErrNotFound.With(slog.String("key", key))
	}

	for _, dir := range f.dirs {
		for _, ext := range exts {
			path := filepath.Join(dir, sub, rel)
			if ext != "" {
				path += "." + ext
			}

			if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
				return path, nil
			}
		}
	}

	return "", ErrNotFound.With(
		slog.String("key", key),
		slog.String("dir", sub),
	)
}

// LoadDictionary reads and decodes the dictionary file at path. Decoded
// content is cached by hash; each call returns an independent copy.
func (f *Files) LoadDictionary(path string) (view.Map, error) {
	data, err := ReadFile(path)
	if err != nil {
		return nil, err
	}

	sum := xxh3.Hash(data)
	if cached, ok := f.parsed.Load(sum); ok {
		return cached.(view.Map).Clone(), nil
	}

	dict, err := DecodeDictionary(data)
	if err != nil {
		return nil, pkg.WrapError(err).With(slog.String("path", path))
	}

	f.parsed.Store(sum, dict)

	return dict.Clone(), nil
}

// Kind distinguishes templates from dictionaries in an [Entry].
type Kind int

const (
	KindTemplate Kind = iota
	KindDictionary
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	if k == KindDictionary {
		return "dictionary"
	}

	return "template"
}

// Entry is a resolvable file found along the search path.
type Entry struct {
	Kind Kind
	Key  string
	Path string
}

// Entries lists every template and dictionary reachable through the search
// path, keeping only the entry that lookup would resolve for each key.
func (f *Files) Entries() ([]Entry, error) {
	var (
		out  []Entry
		seen = map[Kind]map[string]bool{
			KindTemplate:   {},
			KindDictionary: {},
		}
	)

	add := func(kind Kind, key, path string) {
		if !seen[kind][key] {
			seen[kind][key] = true
			out = append(out, Entry{Kind: kind, Key: key, Path: path})
		}
	}

	for _, dir := range f.dirs {
		err := walk(filepath.Join(dir, f.views), func(rel, path string) {
			key := strings.TrimSuffix(rel, "."+f.templateExt)
			if found, _ := f.FindTemplate(key); found == path {
				add(KindTemplate, key, path)
			}
		})
		if err != nil {
			return nil, err
		}

		err = walk(filepath.Join(dir, f.frames), func(rel, path string) {
			for _, ext := range DictionaryExts {
				if key, ok := strings.CutSuffix(rel, "."+ext); ok {
					if found, _ := f.FindDictionary(key); found == path {
						add(KindDictionary, key, path)
					}

					return
				}
			}
		})
		if err != nil {
			return nil, err
		}
	}

	return out, nil
}

// walk calls fn with the slash-separated relative path of every regular
// file under root. A missing root is not an error.
func walk(root string, fn func(rel, path string)) error {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		fn(filepath.ToSlash(rel), path)

		return nil
	})

	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	if err != nil {
		return ErrRead.Wrap(err).With(slog.String("path", root))
	}

	return nil
}

// ReadFile reads the named file through a read-ahead buffer.
func ReadFile(path string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, ErrRead.Wrap(err).With(slog.String("path", path))
	}
	defer file.Close()

	return ReadAll(file)
}

// ReadAll reads r to EOF through a read-ahead buffer.
func ReadAll(r io.Reader) ([]byte, error) {
	ra := readahead.NewReader(r)
	defer ra.Close()

	data, err := io.ReadAll(ra)
	if err != nil {
		return nil, ErrRead.Wrap(err)
	}

	return data, nil
}
