package cmd

import (
	"context"
	"io"
	"log/slog"
	"maps"
	"strings"

	"github.com/natefinch/atomic"

	"github.com/ardnew/muster/log"
	"github.com/ardnew/muster/source"
	"github.com/ardnew/muster/view"
)

// Render expands a template against a dictionary.
type Render struct {
	Files    []string `arg:"" help:"Template file(s) or '-' for stdin"                           name:"file"      optional:""                  type:"path"`
	Key      string   `       help:"Template key resolved through the search path or store"                                    short:"k"`
	Dict     []string `       help:"Dictionary file(s); later files override earlier entries"     name:"dict"      placeholder:"FILE"           short:"d" type:"existingfile"`
	DictKey  string   `       help:"Dictionary key resolved through the search path or store"     name:"dict-key"  placeholder:"KEY"`
	Set      []string `       help:"Assign the result of expression EXPR to root index INDEX"                      placeholder:"INDEX=EXPR"     short:"s"`
	Output   string   `       help:"Write output atomically to file instead of stdout"                               placeholder:"FILE"           short:"o" type:"path"`
	Raw      bool     `       help:"Disable HTML escaping of variables"`
	MaxDepth int      `       help:"Limit on nested expansions"                                   default:"100"`
	Watch    bool     `       help:"Render again whenever an input changes"                                                                     short:"w"`
}

// Run executes the render command.
func (r *Render) Run(ctx context.Context) (err error) {
	ctx, cancel := context.WithCancelCause(ctx)

	defer func(err *error) { cancel(*err) }(&err)

	logger := log.FromContext(ctx).With(slog.String("command", "render"))

	if r.Key == "" && len(r.Files) == 0 {
		r.Files = []string{stdinSource}
	}

	coll, release, err := sourcesFrom(ctx).open(ctx, logger)
	if err != nil {
		return err
	}
	defer release()

	if err := r.emit(ctx, coll, logger); err != nil {
		return err
	}

	if !r.Watch {
		return nil
	}

	return r.watch(ctx, coll, logger)
}

// emit renders once and writes the result.
func (r *Render) emit(ctx context.Context, coll collaborator, logger log.Logger) error {
	out, err := r.render(ctx, coll, logger)
	if err != nil {
		return err
	}

	return r.write(ctx, out)
}

// render builds a fresh engine from the command inputs and expands it.
func (r *Render) render(
	ctx context.Context,
	coll collaborator,
	logger log.Logger,
) (string, error) {
	dict, err := r.dictionary(ctx, coll)
	if err != nil {
		return "", err
	}

	opts := []view.Option{
		view.WithTemplateSource(coll),
		view.WithDictionarySource(coll),
		view.WithDictionary(dict),
		view.WithLogger(logger),
		view.WithMaxDepth(r.MaxDepth),
	}

	if r.Raw {
		opts = append(opts, view.WithEscaper(view.NoEscape))
	}

	if len(r.Files) > 0 {
		text, err := readTemplate(r.Files)
		if err != nil {
			return "", err
		}

		opts = append(opts, view.WithTemplate(text))
	} else {
		opts = append(opts, view.WithTemplateKey(r.Key))
	}

	engine := view.New(ctx, opts...)

	if err := assign(ctx, logger, engine.Root(), r.Set); err != nil {
		return "", err
	}

	return engine.RenderContext(ctx), nil
}

// dictionary returns the root dictionary: the entries of DictKey, if any,
// overlaid with each Dict file in order.
func (r *Render) dictionary(ctx context.Context, coll collaborator) (view.Map, error) {
	return loadDictionary(ctx, coll, r.DictKey, r.Dict)
}

func (r *Render) write(ctx context.Context, out string) error {
	if r.Output == "" {
		if _, err := io.WriteString(stdout(ctx), out); err != nil {
			return ErrWriteOutput.Wrap(err)
		}

		return nil
	}

	if err := atomic.WriteFile(r.Output, strings.NewReader(out)); err != nil {
		return ErrWriteOutput.Wrap(err).With(slog.String("file", r.Output))
	}

	log.DebugContext(ctx, "wrote output",
		slog.String("file", r.Output),
		slog.Int("bytes", len(out)),
	)

	return nil
}

// loadDictionary resolves key through coll, when non-empty, and overlays the
// decoded content of each file.
func loadDictionary(
	ctx context.Context,
	coll collaborator,
	key string,
	files []string,
) (view.Map, error) {
	dict := view.Map{}

	if key != "" {
		maps.Copy(dict, coll.Dictionary(ctx, key))
	}

	for _, file := range files {
		data, err := source.ReadFile(file)
		if err != nil {
			return nil, err
		}

		m, err := source.DecodeDictionary(data)
		if err != nil {
			return nil, ErrReadInput.Wrap(err).With(slog.String("file", file))
		}

		maps.Copy(dict, m)
	}

	return dict, nil
}

// readTemplate returns the concatenated content of the named template files.
func readTemplate(files []string) (string, error) {
	src := openSourceFiles(files)
	if src == nil || src.IsZero() {
		return "", ErrNoTemplate.With(slog.Any("files", files))
	}
	defer src.Close()

	data, err := source.ReadAll(src)
	if err != nil {
		return "", ErrReadInput.Wrap(err).With(slog.Any("files", files))
	}

	return string(data), nil
}

// assign evaluates each INDEX=EXPR pair in order against root, so later
// expressions observe earlier assignments.
func assign(ctx context.Context, logger log.Logger, root view.Map, pairs []string) error {
	for _, pair := range pairs {
		index, value, err := source.Assign(pair, root)
		if err != nil {
			return err
		}

		root[index] = value

		if logger.Active(ctx, log.LevelTrace) {
			logger.TraceContext(ctx, "assigned",
				slog.String("index", index),
				slog.String("value", view.Dump(value)),
			)
		}
	}

	return nil
}
