package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by single-row lookups that match nothing.
var ErrNotFound = errors.New("db: not found")

// timeLayout is fixed width UTC so that text comparison in SQL orders the
// same way as time comparison.
const timeLayout = "2006-01-02T15:04:05.000Z"

// sqlNow renders CURRENT_TIMESTAMP in timeLayout.
const sqlNow = `strftime('%Y-%m-%dT%H:%M:%fZ', 'now')`

// DB wraps a SQLite database connection
type DB struct {
	conn *sql.DB
}

// Options controls how the database file is opened.
type Options struct {
	WAL         bool
	BusyTimeout time.Duration
}

// New opens dbPath with WAL enabled and initializes the schema.
func New(dbPath string) (*DB, error) {
	return Open(dbPath, Options{WAL: true})
}

// Open creates a database connection with opts and initializes schema
func Open(dbPath string, opts Options) (*DB, error) {
	dbDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	if opts.BusyTimeout == 0 {
		opts.BusyTimeout = 5 * time.Second
	}
	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)",
		dbPath, opts.BusyTimeout.Milliseconds())
	if opts.WAL {
		dsn += "&_pragma=journal_mode(WAL)"
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(1) // SQLite only supports one writer
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(time.Hour)

	db := &DB{conn: conn}

	if err := db.initSchema(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if err := db.runMigrations(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

// Query executes a query that returns rows
func (db *DB) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return db.conn.QueryContext(ctx, query, args...)
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// Tx is a write transaction handed to WithTx callbacks.
type Tx struct {
	tx *sql.Tx
}

// WithTx runs fn inside BEGIN/COMMIT. Any error from fn, or a panic, rolls
// the transaction back before it propagates.
func (db *DB) WithTx(ctx context.Context, fn func(*Tx) error) (err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
			}
		}
	}()

	if err = fn(&Tx{tx: tx}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// FormatTime renders t the way timestamps are stored, for use in queries.
func FormatTime(t time.Time) string { return formatTime(t) }

// ParseTime reads a stored timestamp; unparseable input yields zero.
func ParseTime(s string) time.Time { return parseTime(s) }

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(t), Valid: true}
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(timeLayout, s); err == nil {
		return t
	}
	// rows written by older builds used RFC 3339 or SQLite's default format
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func parseNullTime(ns sql.NullString) time.Time {
	if !ns.Valid {
		return time.Time{}
	}
	return parseTime(ns.String)
}
