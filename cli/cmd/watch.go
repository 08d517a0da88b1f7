package cmd

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ardnew/muster/log"
	"github.com/ardnew/muster/source"
)

// watchDelay is the quiet period after the last change event before the
// template is rendered again.
const watchDelay = 100 * time.Millisecond

// changeOps are the event operations that trigger a render.
const changeOps = fsnotify.Create | fsnotify.Write | fsnotify.Remove | fsnotify.Rename

// watch renders again after each burst of changes to the command inputs
// until ctx is done. Render failures are logged and do not end the loop.
func (r *Render) watch(ctx context.Context, coll collaborator, logger log.Logger) error {
	if slices.Contains(r.Files, stdinSource) {
		return ErrWatch.With(slog.String("reason", "stdin cannot be watched"))
	}

	set, err := r.watchSet(ctx)
	if err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return ErrWatch.Wrap(err)
	}
	defer w.Close()

	for _, dir := range set.dirs {
		if err := w.Add(dir); err != nil {
			return ErrWatch.Wrap(err).With(slog.String("path", dir))
		}
	}

	logger.InfoContext(ctx, "watching inputs",
		slog.Int("dirs", len(set.dirs)),
		slog.Int("files", len(set.files)),
	)

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			if dir, ok := set.grow(ev); ok {
				if err := w.Add(dir); err != nil {
					logger.WarnContext(ctx, "watch directory",
						slog.Any("error", ErrWatch.Wrap(err).With(slog.String("path", dir))),
					)
				}
			}

			if !set.match(ev) {
				continue
			}

			logger.TraceContext(ctx, "input changed",
				slog.String("path", ev.Name),
				slog.String("op", ev.Op.String()),
			)

			if timer == nil {
				timer = time.NewTimer(watchDelay)
				defer timer.Stop()
			} else {
				timer.Reset(watchDelay)
			}

			fire = timer.C

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}

			logger.WarnContext(ctx, "watch failed", slog.Any("error", ErrWatch.Wrap(err)))

		case <-fire:
			fire = nil

			if err := r.emit(ctx, coll, logger); err != nil {
				logger.WarnContext(ctx, "render failed", slog.Any("error", err))
			}
		}
	}
}

// watchSet builds the set of paths whose changes affect the render output.
func (r *Render) watchSet(ctx context.Context) (*watchSet, error) {
	set := &watchSet{
		files: make(map[string]bool),
		trees: make(map[string]bool),
	}

	if r.Output != "" {
		set.skip = absPath(r.Output)
	}

	for _, file := range slices.Concat(r.Files, r.Dict) {
		set.addFile(file)
	}

	src := sourcesFrom(ctx)

	if src.Store != "" {
		set.addFile(src.Store)
		set.addFile(src.Store + "-wal")

		return set, nil
	}

	views, frames := src.Views, src.Frames
	if views == "" {
		views = source.DefaultViewsDir
	}

	if frames == "" {
		frames = source.DefaultFramesDir
	}

	for _, dir := range src.Dirs {
		for _, sub := range []string{views, frames} {
			if err := set.addTree(filepath.Join(dir, sub)); err != nil {
				return nil, err
			}
		}
	}

	return set, nil
}

// watchSet holds the directories registered with the watcher. Events in a
// tree directory always count; events in any other watched directory count
// only for the named files.
type watchSet struct {
	dirs  []string
	files map[string]bool
	trees map[string]bool
	skip  string
}

func (s *watchSet) addDir(dir string) {
	if !slices.Contains(s.dirs, dir) {
		s.dirs = append(s.dirs, dir)
	}
}

// addFile watches the parent directory of path, so the file may be replaced
// by rename without losing the watch.
func (s *watchSet) addFile(path string) {
	path = absPath(path)
	s.files[path] = true
	s.addDir(filepath.Dir(path))
}

// addTree watches root and every directory beneath it. A missing root is
// ignored.
func (s *watchSet) addTree(root string) error {
	root = absPath(root)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root && os.IsNotExist(err) {
				return fs.SkipDir
			}

			return err
		}

		if d.IsDir() {
			s.trees[path] = true
			s.addDir(path)
		}

		return nil
	})
	if err != nil {
		return ErrWatch.Wrap(err).With(slog.String("path", root))
	}

	return nil
}

// grow registers a directory created inside a tree and reports it.
func (s *watchSet) grow(ev fsnotify.Event) (string, bool) {
	if !ev.Has(fsnotify.Create) {
		return "", false
	}

	name := filepath.Clean(ev.Name)
	if !s.trees[filepath.Dir(name)] || s.trees[name] {
		return "", false
	}

	if info, err := os.Stat(name); err != nil || !info.IsDir() {
		return "", false
	}

	s.trees[name] = true
	s.addDir(name)

	return name, true
}

// match reports whether ev changes an input. Events for the output file and
// its temporary siblings never match.
func (s *watchSet) match(ev fsnotify.Event) bool {
	if !ev.Has(changeOps) {
		return false
	}

	name := filepath.Clean(ev.Name)

	if s.skip != "" && filepath.Dir(name) == filepath.Dir(s.skip) &&
		strings.HasPrefix(filepath.Base(name), filepath.Base(s.skip)) {
		return false
	}

	return s.files[name] || s.trees[filepath.Dir(name)]
}

func absPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}

	return abs
}
