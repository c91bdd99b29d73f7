package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"regexp"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/open-edge-platform/srcsec/internal/utils/logger"
)

const queryPageSize = 256

var tableNameRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// DB is a SQLite database file holding one document table per record kind.
type DB struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the database file at path.
func Open(path string) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is empty")
	}
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", path, err)
	}
	// A single connection serialises writers; Query pages so that no cursor
	// stays open while the caller writes back.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connecting to database %s: %w", path, err)
	}
	return &DB{db: db, path: path}, nil
}

// Path returns the database file path.
func (d *DB) Path() string { return d.path }

// Close optimises and closes the database.
func (d *DB) Close() error {
	if d.db == nil {
		return nil
	}
	if _, err := d.db.Exec("PRAGMA optimize;"); err != nil {
		logger.Logger().Warnf("database optimize failed: %v", err)
	}
	err := d.db.Close()
	d.db = nil
	if err != nil {
		return fmt.Errorf("closing database %s: %w", d.path, err)
	}
	return nil
}

// SQLiteTable stores records of type T as JSON documents.
type SQLiteTable[T any] struct {
	db   *sql.DB
	name string
	key  KeyFunc[T]
}

var _ Table[struct{}] = (*SQLiteTable[struct{}])(nil)

// NewTable creates the named table if it does not exist yet.
func NewTable[T any](ctx context.Context, d *DB, name string, key KeyFunc[T]) (*SQLiteTable[T], error) {
	if !tableNameRe.MatchString(name) {
		return nil, fmt.Errorf("invalid table name %q", name)
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		key TEXT PRIMARY KEY,
		doc TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);`, name)
	if _, err := d.db.ExecContext(ctx, ddl); err != nil {
		return nil, fmt.Errorf("creating table %s: %w", name, err)
	}
	return &SQLiteTable[T]{db: d.db, name: name, key: key}, nil
}

func (t *SQLiteTable[T]) Upsert(ctx context.Context, rec T) (Status, error) {
	key := t.key(rec)
	if key == "" {
		return Unchanged, fmt.Errorf("%s: record has empty key", t.name)
	}
	doc, err := json.Marshal(rec)
	if err != nil {
		return Unchanged, fmt.Errorf("%s: encoding %s: %w", t.name, key, err)
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return Unchanged, fmt.Errorf("%s: begin: %w", t.name, err)
	}
	defer func() { _ = tx.Rollback() }()

	var existing []byte
	err = tx.QueryRowContext(ctx, fmt.Sprintf("SELECT doc FROM %s WHERE key=?;", t.name), key).Scan(&existing)
	status := Updated
	switch {
	case errors.Is(err, sql.ErrNoRows):
		status = Inserted
	case err != nil:
		return Unchanged, fmt.Errorf("%s: reading %s: %w", t.name, key, err)
	case bytes.Equal(existing, doc):
		return Unchanged, nil
	}

	now := time.Now().Unix()
	if status == Inserted {
		_, err = tx.ExecContext(ctx, fmt.Sprintf("INSERT INTO %s (key, doc, updated_at) VALUES (?, ?, ?);", t.name), key, doc, now)
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			// inserted by someone else in the meantime; replace it
			status = Updated
			err = nil
		}
		if err != nil {
			return Unchanged, fmt.Errorf("%s: inserting %s: %w", t.name, key, err)
		}
	}
	if status == Updated {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("UPDATE %s SET doc=?, updated_at=? WHERE key=?;", t.name), doc, now, key); err != nil {
			return Unchanged, fmt.Errorf("%s: updating %s: %w", t.name, key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return Unchanged, fmt.Errorf("%s: commit %s: %w", t.name, key, err)
	}
	return status, nil
}

func (t *SQLiteTable[T]) Get(ctx context.Context, key string) (T, error) {
	var rec T
	var doc []byte
	err := t.db.QueryRowContext(ctx, fmt.Sprintf("SELECT doc FROM %s WHERE key=?;", t.name), key).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, fmt.Errorf("%s %q: %w", t.name, key, ErrNotFound)
	}
	if err != nil {
		return rec, fmt.Errorf("%s: reading %s: %w", t.name, key, err)
	}
	if err := json.Unmarshal(doc, &rec); err != nil {
		return rec, fmt.Errorf("%s: decoding %s: %w", t.name, key, err)
	}
	return rec, nil
}

func (t *SQLiteTable[T]) Query(ctx context.Context, match func(T) bool) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		after := ""
		for {
			page, last, err := t.page(ctx, after)
			if err != nil {
				yield(zero, err)
				return
			}
			for _, rec := range page {
				if match != nil && !match(rec) {
					continue
				}
				if !yield(rec, nil) {
					return
				}
			}
			if last == "" {
				return
			}
			after = last
		}
	}
}

// page reads the next batch of records with keys greater than after. It
// returns the last key scanned, or "" when the table is exhausted.
func (t *SQLiteTable[T]) page(ctx context.Context, after string) ([]T, string, error) {
	rows, err := t.db.QueryContext(ctx,
		fmt.Sprintf("SELECT key, doc FROM %s WHERE key > ? ORDER BY key LIMIT ?;", t.name), after, queryPageSize)
	if err != nil {
		return nil, "", fmt.Errorf("%s: query: %w", t.name, err)
	}
	defer rows.Close()

	var (
		out  []T
		last string
		n    int
	)
	for rows.Next() {
		var key string
		var doc []byte
		if err := rows.Scan(&key, &doc); err != nil {
			return nil, "", fmt.Errorf("%s: scan: %w", t.name, err)
		}
		var rec T
		if err := json.Unmarshal(doc, &rec); err != nil {
			return nil, "", fmt.Errorf("%s: decoding %s: %w", t.name, key, err)
		}
		out = append(out, rec)
		last = key
		n++
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("%s: query: %w", t.name, err)
	}
	if n < queryPageSize {
		last = ""
	}
	return out, last, nil
}
