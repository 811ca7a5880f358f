package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/davidroman0O/stagepipe"
	_ "modernc.org/sqlite"
)

const schemaSQL = `CREATE TABLE IF NOT EXISTS pipelines (
	name       TEXT PRIMARY KEY,
	document   TEXT NOT NULL,
	updated_at INTEGER NOT NULL
)`

// SQLStore is a Store backed by SQLite. Each pipeline is kept as the same JSON
// document stagepipe.MarshalPipeline produces, so rows can be exported as
// files unchanged.
type SQLStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (creating if needed) the SQLite database at dsn. Use
// ":memory:" for a private in-memory database.
func OpenSQLite(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating pipelines table: %w", err)
	}
	return &SQLStore{db: db, now: time.Now}, nil
}

// Save implements Store.
func (s *SQLStore) Save(ctx context.Context, name string, sp stagepipe.SerializedPipeline) error {
	name, err := checkName(name)
	if err != nil {
		return err
	}
	doc, err := stagepipe.MarshalPipeline(sp)
	if err != nil {
		return fmt.Errorf("encoding pipeline %s: %w", name, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO pipelines (name, document, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET document = excluded.document, updated_at = excluded.updated_at`,
		name, string(doc), s.now().UnixNano())
	if err != nil {
		return fmt.Errorf("saving pipeline %s: %w", name, err)
	}
	return nil
}

// Load implements Store.
func (s *SQLStore) Load(ctx context.Context, name string) (Entry, error) {
	name, err := checkName(name)
	if err != nil {
		return Entry{}, err
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT name, document, updated_at FROM pipelines WHERE name = ?`, name)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, notFound(name)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("loading pipeline %s: %w", name, err)
	}
	return e, nil
}

// List implements Store.
func (s *SQLStore) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, document, updated_at FROM pipelines ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing pipelines: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("listing pipelines: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Delete implements Store.
func (s *SQLStore) Delete(ctx context.Context, name string) error {
	name, err := checkName(name)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM pipelines WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("deleting pipeline %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting pipeline %s: %w", name, err)
	}
	if n == 0 {
		return notFound(name)
	}
	return nil
}

// Close implements Store.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (Entry, error) {
	var (
		e       Entry
		doc     string
		updated int64
	)
	if err := row.Scan(&e.Name, &doc, &updated); err != nil {
		return Entry{}, err
	}
	sp, err := stagepipe.UnmarshalPipeline([]byte(doc))
	if err != nil {
		return Entry{}, fmt.Errorf("decoding pipeline %s: %w", e.Name, err)
	}
	e.Pipeline = sp
	e.UpdatedAt = time.Unix(0, updated)
	return e, nil
}
