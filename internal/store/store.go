// Package store provides the embedded SQLite metric store for cadence.
//
// The store is the single shared handle owned by every part of the ingestion
// pipeline and the query layer. It holds:
//   - metrics: one row per (file_path, name, date) with an integer value
//   - file_meta: the last observed modification time of each journal file
//   - settings: string key/value pairs (journal root)
//   - tracked_metrics: the set of front-matter keys worth extracting
//
// Architecture:
//   - Database file: $XDG_DATA_HOME/cadence/cadence.db by default
//   - WAL mode: concurrent readers during writes
//   - Every pooled connection gets the same pragmas through the DSN
//   - Write transactions take the RESERVED lock up front (_txlock=immediate)
//
// Every method performs one statement or one transaction. No method holds a
// connection while journal files are being read or parsed.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// DateLayout is the on-disk format of metric dates and journal file names.
const DateLayout = "2006-01-02"

// Store wraps the SQLite connection pool holding metrics, fingerprints and settings.
type Store struct {
	conn *sql.DB
	path string
	now  func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for updated_at and added_at stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Open creates a new store at the specified path.
//
// The parent directory is created if needed. The schema is not created;
// call InitSchema before first use.
//
// The caller MUST call Close() when done so the WAL is checkpointed.
//
// Example:
//
//	st, err := store.Open("/home/me/.local/share/cadence/cadence.db")
//	if err != nil {
//	    return err
//	}
//	defer st.Close()
func Open(path string, opts ...Option) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(8)
	conn.SetMaxIdleConns(4)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{
		conn: conn,
		path: path,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// dsn builds the connection string so that every pooled connection carries
// the same pragmas.
func dsn(path string) string {
	params := url.Values{}
	params.Add("_pragma", "journal_mode(wal)")
	params.Add("_pragma", "busy_timeout(5000)")
	params.Add("_pragma", "foreign_keys(1)")
	params.Add("_pragma", "synchronous(normal)")
	params.Set("_txlock", "immediate")
	return "file:" + path + "?" + params.Encode()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the connection pool after checkpointing the WAL.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	s.conn = nil
	return nil
}

// InitSchema creates the tables and indexes if they don't exist.
// It is idempotent.
func (s *Store) InitSchema() error {
	return s.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the schema with context support.
func (s *Store) InitSchemaContext(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS metrics (
		file_path TEXT NOT NULL,
		name TEXT NOT NULL,
		value INTEGER NOT NULL DEFAULT 0,
		date TEXT NOT NULL,        -- YYYY-MM-DD, taken from the file name
		updated_at TEXT NOT NULL,  -- RFC3339Nano
		PRIMARY KEY (file_path, name, date)
	);

	CREATE TABLE IF NOT EXISTS file_meta (
		file_path TEXT PRIMARY KEY,
		last_modified TEXT NOT NULL  -- RFC3339Nano, UTC
	);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tracked_metrics (
		name TEXT PRIMARY KEY,
		added_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_metrics_file ON metrics(file_path);
	CREATE INDEX IF NOT EXISTS idx_metrics_name_date ON metrics(name, date);
	CREATE INDEX IF NOT EXISTS idx_metrics_date ON metrics(date);
	`

	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// CivilDate truncates t to its calendar date, expressed as midnight UTC so
// that day arithmetic is never affected by DST transitions.
func CivilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD date as stored in the metrics table.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

func formatDate(t time.Time) string {
	return t.Format(DateLayout)
}

func formatStamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseStamp(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
