package cmd

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/ardnew/muster/log"
	"github.com/ardnew/muster/source"
	"github.com/ardnew/muster/view"
)

// ContextKey is used to store a [kong.Context] value in [context.Context].
type contextKey struct{}

// WithContext returns a new context.Context containing the given kong.Context.
func WithContext(ctx context.Context, ktx *kong.Context) context.Context {
	return context.WithValue(ctx, contextKey{}, ktx)
}

func kongContextFrom(ctx context.Context) *kong.Context {
	ktx, ok := ctx.Value(contextKey{}).(*kong.Context)
	if !ok || ktx == nil {
		return nil
	}

	return ktx
}

// stdout returns the writer for command output: the kong application's
// Stdout when available, os.Stdout otherwise.
func stdout(ctx context.Context) io.Writer {
	if ktx := kongContextFrom(ctx); ktx != nil && ktx.Stdout != nil {
		return ktx.Stdout
	}

	return os.Stdout
}

// Sources describes where templates and dictionaries are resolved from.
//
// When Store is set, keys resolve through the SQLite store at that path.
// Otherwise they resolve through the views and frames directories found in
// each of Dirs.
type Sources struct {
	Dirs   []string
	Store  string
	Views  string
	Frames string
	Ext    string
}

type sourcesKey struct{}

// WithSources returns a new context.Context containing src.
func WithSources(ctx context.Context, src Sources) context.Context {
	return context.WithValue(ctx, sourcesKey{}, src)
}

func sourcesFrom(ctx context.Context) Sources {
	src, _ := ctx.Value(sourcesKey{}).(Sources)

	return src
}

// files returns the filesystem collaborator described by s.
func (s Sources) files(logger log.Logger) *source.Files {
	opts := []source.FilesOption{source.WithLogger(logger)}

	if s.Views != "" {
		opts = append(opts, source.WithViewsDir(s.Views))
	}

	if s.Frames != "" {
		opts = append(opts, source.WithFramesDir(s.Frames))
	}

	if s.Ext != "" {
		opts = append(opts, source.WithTemplateExt(s.Ext))
	}

	return source.NewFiles(s.Dirs, opts...)
}

// collaborator resolves template and dictionary keys for an engine and
// enumerates the keys it can resolve.
type collaborator interface {
	view.TemplateSource
	view.DictionarySource
	Keys(ctx context.Context, kind source.Kind) ([]string, error)
}

// filesCollaborator adapts [source.Files] to collaborator.
type filesCollaborator struct{ *source.Files }

func (f filesCollaborator) Keys(_ context.Context, kind source.Kind) ([]string, error) {
	entries, err := f.Entries()
	if err != nil {
		return nil, err
	}

	var keys []string

	for _, e := range entries {
		if e.Kind == kind {
			keys = append(keys, e.Key)
		}
	}

	return keys, nil
}

// open returns the collaborator described by s and a function that releases
// it. The release function is always non-nil.
func (s Sources) open(
	ctx context.Context,
	logger log.Logger,
) (collaborator, func(), error) {
	if s.Store == "" {
		logger.TraceContext(ctx, "using file sources",
			slog.Any("dirs", s.Dirs),
		)

		return filesCollaborator{s.files(logger)}, func() {}, nil
	}

	store, err := source.OpenStore(ctx, s.Store, source.WithStoreLogger(logger))
	if err != nil {
		return nil, func() {}, err
	}

	logger.TraceContext(ctx, "using store source",
		slog.String("store", s.Store),
	)

	return store, func() {
		if err := store.Close(); err != nil {
			logger.WarnContext(ctx, "close store", slog.Any("error", err))
		}
	}, nil
}

type (
	sourceFiles struct {
		read     []io.Reader
		hasStdin bool
		multi    io.Reader
	}

	// SourceFiles reads the concatenated content of a set of input files.
	SourceFiles interface {
		IsZero() bool
		Stdin() io.Reader
		io.Reader
		io.WriterTo
		io.Closer
	}
)

// IsZero reports whether there are no source files.
func (s *sourceFiles) IsZero() bool { return len(s.read) == 0 && !s.hasStdin }

// Stdin returns os.Stdin if stdin was included as a source, or nil otherwise.
func (s *sourceFiles) Stdin() io.Reader {
	if s.hasStdin {
		return os.Stdin
	}

	return nil
}

func (s *sourceFiles) reader() io.Reader {
	if s.multi == nil {
		readers := make([]io.Reader, len(s.read), len(s.read)+1)
		copy(readers, s.read)

		if s.hasStdin {
			readers = append(readers, os.Stdin)
		}

		s.multi = io.MultiReader(readers...)
	}

	return s.multi
}

// Read implements io.Reader by reading from all source files in order,
// including stdin if present.
func (s *sourceFiles) Read(p []byte) (n int, err error) {
	return s.reader().Read(p)
}

// WriteTo implements io.WriterTo by writing all source files to w in order,
// including stdin if present.
func (s *sourceFiles) WriteTo(w io.Writer) (n int64, err error) {
	return io.Copy(w, s.reader())
}

// Close closes every opened source file. Stdin is left open.
func (s *sourceFiles) Close() error {
	var first error

	for _, r := range s.read {
		if c, ok := r.(io.Closer); ok {
			if err := c.Close(); err != nil && first == nil {
				first = err
			}
		}
	}

	return first
}

// fileKey uniquely identifies a file by its device and inode numbers.
// This handles deduplication across symlinks, absolute/relative paths, and
// special device files.
type fileKey struct {
	dev uint64
	ino uint64
}

// stdinSource is the special source indicator for reading from stdin.
const stdinSource = "-"

// openSourceFiles constructs a SourceFiles from the given source paths.
// It deduplicates readers by resolving symlinks and comparing device/inode
// pairs. All occurrences of "-" are replaced with a single stdin reader placed
// last so it reads after all regular files.
func openSourceFiles(sources []string) SourceFiles {
	if len(sources) == 0 {
		return nil
	}

	var srcs sourceFiles

	srcs.read = make([]io.Reader, 0, len(sources))
	seen := make(map[fileKey]struct{})

	var stdinKey fileKey
	if stdinInfo, err := os.Stdin.Stat(); err == nil {
		stdinKey, _ = makeFileKey(stdinInfo)
	}

	for _, src := range sources {
		if src == stdinSource {
			seen[stdinKey] = struct{}{}

			continue
		}

		reader, ok := openUniqueFile(src, seen)
		if !ok {
			continue
		}

		srcs.read = append(srcs.read, reader)
	}

	// Stdin may have been included via "-" or as a named file.
	// Both of which will be represented by stdinKey in seen.
	_, srcs.hasStdin = seen[stdinKey]

	if len(srcs.read) == 0 && !srcs.hasStdin {
		return nil
	}

	return &srcs
}

// openUniqueFile opens the file at path if it hasn't been seen before.
// It resolves symlinks and uses device/inode to detect duplicates.
// Returns the opened file and true if successful, or nil and false if the file
// is a duplicate or cannot be opened.
func openUniqueFile(path string, seen map[fileKey]struct{}) (io.Reader, bool) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, false
	}

	resolved, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		return nil, false
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return nil, false
	}

	key, ok := makeFileKey(info)
	if !ok {
		return nil, false
	}

	if _, exists := seen[key]; exists {
		return nil, false
	}

	seen[key] = struct{}{}

	file, err := os.Open(resolved)
	if err != nil {
		return nil, false
	}

	return file, true
}

// makeFileKey creates a fileKey from os.FileInfo.
// Returns false if the underlying Sys() data is not of type *syscall.Stat_t.
func makeFileKey(info os.FileInfo) (key fileKey, ok bool) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return key, false
	}

	return fileKey{dev: uint64(stat.Dev), ino: stat.Ino}, true
}
