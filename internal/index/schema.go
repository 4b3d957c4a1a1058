// Package index provides the SQLite-backed inverted index: (field, token) postings
// with per-note frequencies, a reverse mapping from note to postings, and
// single-transaction write batches.
package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/mattn/go-sqlite3"

	"github.com/starford/zest/internal/apperr"
)

// schemaVersion is stored in PRAGMA user_version. A mismatch means the file
// was written by an incompatible build and must be rebuilt.
const schemaVersion = 1

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS notes (
	doc   INTEGER PRIMARY KEY,
	id    TEXT NOT NULL UNIQUE,
	mtime INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS postings (
	field TEXT NOT NULL,
	token TEXT NOT NULL,
	doc   INTEGER NOT NULL REFERENCES notes(doc) ON DELETE CASCADE,
	freq  INTEGER NOT NULL DEFAULT 1,
	PRIMARY KEY (field, token, doc)
) WITHOUT ROWID;

CREATE INDEX IF NOT EXISTS idx_postings_doc ON postings(doc);
`

// CorruptError reports an index file that cannot be used. The only recovery
// is a full rebuild (see Recreate).
type CorruptError struct {
	Path string
	Err  error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("index: %s is corrupt (rebuild required): %v", e.Path, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, apperr.ErrIndexCorrupt) match.
func (e *CorruptError) Is(target error) bool { return target == apperr.ErrIndexCorrupt }

// Store is the persistent inverted index.
type Store struct {
	path string
	conn *sql.DB

	// writeMu serialises batches inside the process; the file lock guards
	// against a second process.
	writeMu sync.Mutex
	lock    *fileLock
}

// Open opens (or creates) the index at path and verifies it.
func Open(path string) (*Store, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, classify(path, fmt.Errorf("ping: %w", err))
	}
	if err := verify(conn); err != nil {
		conn.Close()
		return nil, classify(path, err)
	}
	return &Store{path: path, conn: conn, lock: newFileLock(path + ".lock")}, nil
}

// Recreate deletes whatever is at path and opens a fresh, empty index.
func Recreate(path string) (*Store, error) {
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("index: remove %s: %w", p, err)
		}
	}
	return Open(path)
}

// verify runs an integrity check, then creates the schema on a fresh file or
// checks the version of an existing one.
func verify(conn *sql.DB) error {
	var check string
	if err := conn.QueryRow(`PRAGMA quick_check`).Scan(&check); err != nil {
		return fmt.Errorf("quick_check: %w", err)
	}
	if check != "ok" {
		return &CorruptError{Err: fmt.Errorf("quick_check: %s", check)}
	}

	var version, tables int
	if err := conn.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}
	if err := conn.QueryRow(`SELECT count(*) FROM sqlite_master WHERE type = 'table'`).Scan(&tables); err != nil {
		return fmt.Errorf("read tables: %w", err)
	}

	switch {
	case version == 0 && tables == 0:
		if _, err := conn.Exec(coreSchemaSQL); err != nil {
			return fmt.Errorf("apply core schema: %w", err)
		}
		if _, err := conn.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, schemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	case version == schemaVersion:
		if _, err := conn.Exec(coreSchemaSQL); err != nil {
			return fmt.Errorf("apply core schema: %w", err)
		}
	default:
		return &CorruptError{Err: fmt.Errorf("schema version %d, want %d", version, schemaVersion)}
	}
	return nil
}

// classify turns SQLite "not a database"/"corrupt" failures into CorruptError.
func classify(path string, err error) error {
	var ce *CorruptError
	if errors.As(err, &ce) {
		ce.Path = path
		return ce
	}
	var se sqlite3.Error
	if errors.As(err, &se) && (se.Code == sqlite3.ErrNotADB || se.Code == sqlite3.ErrCorrupt) {
		return &CorruptError{Path: path, Err: err}
	}
	return fmt.Errorf("index: %w", err)
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Snapshot opens a read view of the last committed state.
func (s *Store) Snapshot(ctx context.Context) (*Snapshot, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("index: begin read: %w", err)
	}
	return &Snapshot{ctx: ctx, tx: tx}, nil
}
