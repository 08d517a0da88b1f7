package cmd

import (
	"context"
	"log/slog"

	"github.com/ardnew/muster/cli/cmd/repl"
	"github.com/ardnew/muster/log"
	"github.com/ardnew/muster/pkg"
	"github.com/ardnew/muster/source"
	"github.com/ardnew/muster/view"
)

// Repl renders template text interactively against a dictionary.
type Repl struct {
	Dict    []string `help:"Dictionary file(s); later files override earlier entries" name:"dict"     placeholder:"FILE"       short:"d" type:"existingfile"`
	DictKey string   `help:"Dictionary key resolved through the search path or store" name:"dict-key" placeholder:"KEY"`
	Set     []string `help:"Assign the result of expression EXPR to root index INDEX"                   placeholder:"INDEX=EXPR" short:"s"`
	Raw     bool     `help:"Disable HTML escaping of variables"`
}

// Run executes the repl command.
func (r *Repl) Run(ctx context.Context) (err error) {
	ctx, cancel := context.WithCancelCause(ctx)

	defer func(err *error) { cancel(*err) }(&err)

	logger := log.FromContext(ctx).With(slog.String("command", "repl"))

	coll, release, err := sourcesFrom(ctx).open(ctx, logger)
	if err != nil {
		return err
	}
	defer release()

	engine, err := r.engine(ctx, coll, logger)
	if err != nil {
		return err
	}

	partials, err := coll.Keys(ctx, source.KindTemplate)
	if err != nil {
		logger.WarnContext(ctx, "template keys unavailable", slog.Any("error", err))
	}

	return repl.Run(ctx, engine, partials, cacheDir(ctx), logger)
}

// engine builds the session engine with the root dictionary and
// assignments applied.
func (r *Repl) engine(
	ctx context.Context,
	coll collaborator,
	logger log.Logger,
) (*view.Engine, error) {
	dict, err := loadDictionary(ctx, coll, r.DictKey, r.Dict)
	if err != nil {
		return nil, err
	}

	opts := []view.Option{
		view.WithTemplateSource(coll),
		view.WithDictionarySource(coll),
		view.WithDictionary(dict),
		view.WithLogger(logger),
	}

	if r.Raw {
		opts = append(opts, view.WithEscaper(view.NoEscape))
	}

	engine := view.New(ctx, opts...)

	if err := assign(ctx, logger, engine.Root(), r.Set); err != nil {
		return nil, err
	}

	return engine, nil
}

// cacheDir returns the cache directory configured on the kong application,
// falling back to the user cache directory.
func cacheDir(ctx context.Context) string {
	if ktx := kongContextFrom(ctx); ktx != nil {
		if dir, ok := ktx.Model.Vars()[CacheIdentifier]; ok && dir != "" {
			return dir
		}
	}

	return pkg.CacheDir()
}
