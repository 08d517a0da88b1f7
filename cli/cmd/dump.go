package cmd

import (
	"context"
	"io"
	"log/slog"

	"github.com/ardnew/muster/log"
	"github.com/ardnew/muster/source"
)

// Dump prints a dictionary in its normalized form.
type Dump struct {
	Dict    []string `help:"Dictionary file(s); later files override earlier entries" name:"dict"     placeholder:"FILE"       short:"d" type:"existingfile"`
	DictKey string   `help:"Dictionary key resolved through the search path or store" name:"dict-key" placeholder:"KEY"`
	Set     []string `help:"Assign the result of expression EXPR to root index INDEX"                   placeholder:"INDEX=EXPR" short:"s"`
	JSON    bool     `help:"Print JSON instead of YAML"                                                                          short:"j"`
}

// Run executes the dump command.
func (d *Dump) Run(ctx context.Context) (err error) {
	ctx, cancel := context.WithCancelCause(ctx)

	defer func(err *error) { cancel(*err) }(&err)

	logger := log.FromContext(ctx).With(slog.String("command", "dump"))

	coll, release, err := sourcesFrom(ctx).open(ctx, logger)
	if err != nil {
		return err
	}
	defer release()

	dict, err := loadDictionary(ctx, coll, d.DictKey, d.Dict)
	if err != nil {
		return err
	}

	if err := assign(ctx, logger, dict, d.Set); err != nil {
		return err
	}

	data, err := source.EncodeDictionary(dict, d.JSON)
	if err != nil {
		return ErrEncode.Wrap(err)
	}

	if _, err := stdout(ctx).Write(data); err != nil {
		return ErrWriteOutput.Wrap(err)
	}

	if n := len(data); n == 0 || data[n-1] != '\n' {
		_, _ = io.WriteString(stdout(ctx), "\n")
	}

	return nil
}
