package source

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/ardnew/muster/log"
	"github.com/ardnew/muster/view"
)

const storeSchema = `
CREATE TABLE IF NOT EXISTS templates (
	name       TEXT PRIMARY KEY,
	body       TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS dictionaries (
	name       TEXT PRIMARY KEY,
	body       TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
);`

// Store keeps templates and dictionaries in a SQLite database. It
// implements both [view.TemplateSource] and [view.DictionarySource].
type Store struct {
	db     *sql.DB
	path   string
	logger log.Logger
}

// StoreOption configures a [Store].
type StoreOption func(*Store)

// WithStoreLogger sets the structured logger.
func WithStoreLogger(logger log.Logger) StoreOption {
	return func(s *Store) { s.logger = logger }
}

// OpenStore opens (creating if needed) the SQLite database at path.
func OpenStore(ctx context.Context, path string, opts ...StoreOption) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, ErrStore.Wrap(err).With(slog.String("path", path))
	}

	s := &Store{db: db, path: path}
	for _, opt := range opts {
		opt(s)
	}

	if _, err := db.ExecContext(ctx, storeSchema); err != nil {
		_ = db.Close()

		return nil, ErrStore.Wrap(err).With(slog.String("path", path))
	}

	s.logger.DebugContext(ctx, "store opened", slog.String("path", path))

	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return ErrStore.Wrap(err).With(slog.String("path", s.path))
	}

	return nil
}

// PutTemplate stores text at key, replacing any previous template.
func (s *Store) PutTemplate(ctx context.Context, key, text string) error {
	return s.put(ctx, s.db, "templates", key, text)
}

// PutDictionary stores dict at key, replacing any previous dictionary.
func (s *Store) PutDictionary(ctx context.Context, key string, dict view.Map) error {
	data, err := EncodeDictionary(dict, false)
	if err != nil {
		return ErrStore.Wrap(err).With(slog.String("key", key))
	}

	return s.put(ctx, s.db, "dictionaries", key, string(data))
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) put(ctx context.Context, db execer, table, key, body string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO `+table+` (name, body, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at
	`, key, body, time.Now().UTC())
	if err != nil {
		return ErrStore.Wrap(err).With(
			slog.String("table", table),
			slog.String("key", key),
		)
	}

	return nil
}

// LookupTemplate returns the template stored at key.
func (s *Store) LookupTemplate(ctx context.Context, key string) (string, error) {
	return s.get(ctx, "templates", key)
}

// LookupDictionary returns the dictionary stored at key.
func (s *Store) LookupDictionary(ctx context.Context, key string) (view.Map, error) {
	body, err := s.get(ctx, "dictionaries", key)
	if err != nil {
		return nil, err
	}

	return DecodeDictionary([]byte(body))
}

func (s *Store) get(ctx context.Context, table, key string) (string, error) {
	var body string

	err := s.db.QueryRowContext(ctx,
		"SELECT body FROM "+table+" WHERE name = ?", key,
	).Scan(&body)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return "", ErrNotFound.With(
			slog.String("table", table),
			slog.String("key", key),
		)
	case err != nil:
		return "", ErrStore.Wrap(err).With(
			slog.String("table", table),
			slog.String("key", key),
		)
	}

	return body, nil
}

// Template returns the template stored at key, or "".
func (s *Store) Template(ctx context.Context, key string) string {
	text, err := s.LookupTemplate(ctx, key)
	if err != nil {
		s.logger.DebugContext(ctx, "template unavailable", slog.Any("error", err))
	}

	return text
}

// Dictionary returns the dictionary stored at key, or an empty Map.
func (s *Store) Dictionary(ctx context.Context, key string) view.Map {
	dict, err := s.LookupDictionary(ctx, key)
	if err != nil {
		s.logger.DebugContext(ctx, "dictionary unavailable", slog.Any("error", err))

		return view.Map{}
	}

	return dict
}

// Keys returns the stored keys of the given kind in sorted order.
func (s *Store) Keys(ctx context.Context, kind Kind) ([]string, error) {
	table := "templates"
	if kind == KindDictionary {
		table = "dictionaries"
	}

	rows, err := s.db.QueryContext(ctx, "SELECT name FROM "+table+" ORDER BY name")
	if err != nil {
		return nil, ErrStore.Wrap(err).With(slog.String("table", table))
	}
	defer rows.Close()

	var keys []string

	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, ErrStore.Wrap(err).With(slog.String("table", table))
		}

		keys = append(keys, key)
	}

	if err := rows.Err(); err != nil {
		return nil, ErrStore.Wrap(err).With(slog.String("table", table))
	}

	return keys, nil
}

// Import copies every entry resolvable through files into the store in a
// single transaction and returns the number of entries written.
func (s *Store) Import(ctx context.Context, files *Files) (int, error) {
	entries, err := files.Entries()
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, ErrStore.Wrap(err)
	}
	defer func(tx *sql.Tx) { _ = tx.Rollback() }(tx)

	for _, e := range entries {
		var body []byte

		switch e.Kind {
		case KindTemplate:
			if body, err = ReadFile(e.Path); err != nil {
				return 0, err
			}

		case KindDictionary:
			dict, err := files.LoadDictionary(e.Path)
			if err != nil {
				return 0, err
			}

			if body, err = EncodeDictionary(dict, false); err != nil {
				return 0, ErrStore.Wrap(err).With(slog.String("path", e.Path))
			}
		}

		table := "templates"
		if e.Kind == KindDictionary {
			table = "dictionaries"
		}

		if err := s.put(ctx, tx, table, e.Key, string(body)); err != nil {
			return 0, err
		}

		s.logger.TraceContext(ctx, "imported",
			slog.String("kind", e.Kind.String()),
			slog.String("key", e.Key),
			slog.String("path", e.Path),
		)
	}

	if err := tx.Commit(); err != nil {
		return 0, ErrStore.Wrap(err)
	}

	return len(entries), nil
}
