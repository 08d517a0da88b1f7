package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ardnew/muster/log"
	"github.com/ardnew/muster/source"
)

// Store manages a SQLite template store.
type Store struct {
	Import StoreImport `cmd:"" help:"Copy the search path into a store"`
	List   StoreList   `cmd:"" help:"List the keys held in a store"`
}

// StoreImport copies every template and dictionary found through the search
// path into a SQLite store.
type StoreImport struct {
	DB string `arg:"" help:"Store database file" name:"db" type:"path"`
}

// Run executes the store import command.
func (s *StoreImport) Run(ctx context.Context) (err error) {
	ctx, cancel := context.WithCancelCause(ctx)

	defer func(err *error) { cancel(*err) }(&err)

	logger := log.FromContext(ctx).With(slog.String("command", "store import"))

	src := sourcesFrom(ctx)

	store, err := source.OpenStore(ctx, s.DB, source.WithStoreLogger(logger))
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.Import(ctx, src.files(logger))
	if err != nil {
		return err
	}

	logger.InfoContext(ctx, "imported entries",
		slog.String("db", s.DB),
		slog.Int("count", n),
		slog.Any("dirs", src.Dirs),
	)

	return nil
}

// StoreList prints the keys held in a store.
type StoreList struct {
	DB           string `arg:"" help:"Store database file" name:"db" type:"existingfile"`
	Dictionaries bool   `help:"List dictionary keys instead of template keys" short:"D"`
}

// Run executes the store list command.
func (s *StoreList) Run(ctx context.Context) (err error) {
	ctx, cancel := context.WithCancelCause(ctx)

	defer func(err *error) { cancel(*err) }(&err)

	store, err := source.OpenStore(ctx, s.DB,
		source.WithStoreLogger(log.FromContext(ctx).With(slog.String("command", "store list"))),
	)
	if err != nil {
		return err
	}
	defer store.Close()

	kind := source.KindTemplate
	if s.Dictionaries {
		kind = source.KindDictionary
	}

	keys, err := store.Keys(ctx, kind)
	if err != nil {
		return err
	}

	for _, key := range keys {
		if _, err := fmt.Fprintln(stdout(ctx), key); err != nil {
			return ErrWriteOutput.Wrap(err)
		}
	}

	return nil
}
