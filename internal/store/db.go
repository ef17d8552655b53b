package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a space, workbook, sheet or job does not exist.
var ErrNotFound = errors.New("not found")

// DB is the local staging store. It implements every collaborator the
// pipeline needs: sheets, record pages, space metadata, credentials and jobs.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the sqlite database at dbPath and creates tables.
func Open(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn(dbPath))
	if err != nil {
		return nil, err
	}
	// sqlite allows a single writer
	conn.SetMaxOpenConns(1)

	s := New(conn)
	if err := s.Migrate(context.Background()); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// dsn appends the connection options, keeping any query the path carries
func dsn(dbPath string) string {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return dbPath + sep + "_foreign_keys=on&_busy_timeout=5000"
}

// New wraps an existing connection
func New(conn *sql.DB) *DB {
	return &DB{db: conn}
}

// Close closes the connection
func (s *DB) Close() error {
	return s.db.Close()
}

// Ping checks the connection
func (s *DB) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS spaces (
		id TEXT PRIMARY KEY,
		name TEXT,
		metadata TEXT,
		created_at DATETIME
	);`,
	`CREATE TABLE IF NOT EXISTS workbooks (
		id TEXT PRIMARY KEY,
		space_id TEXT REFERENCES spaces(id),
		name TEXT,
		created_at DATETIME
	);`,
	`CREATE TABLE IF NOT EXISTS sheets (
		id TEXT PRIMARY KEY,
		workbook_id TEXT REFERENCES workbooks(id),
		name TEXT,
		slug TEXT,
		position INTEGER,
		created_at DATETIME
	);`,
	`CREATE TABLE IF NOT EXISTS records (
		id TEXT PRIMARY KEY,
		sheet_id TEXT REFERENCES sheets(id),
		position INTEGER,
		fields TEXT,
		processed INTEGER NOT NULL DEFAULT 0,
		valid INTEGER,
		messages TEXT,
		updated_at DATETIME
	);`,
	`CREATE INDEX IF NOT EXISTS idx_records_sheet_position ON records (sheet_id, position);`,
	`CREATE TABLE IF NOT EXISTS secrets (
		space_id TEXT,
		name TEXT,
		value TEXT,
		updated_at DATETIME,
		PRIMARY KEY (space_id, name)
	);`,
	`CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		workbook_id TEXT,
		space_id TEXT,
		operation TEXT,
		status TEXT,
		info TEXT,
		progress INTEGER,
		created_at DATETIME,
		updated_at DATETIME
	);`,
	`CREATE TABLE IF NOT EXISTS job_errors (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id TEXT,
		error_message TEXT,
		created_at DATETIME
	);`,
}

// Migrate creates tables if they do not exist
func (s *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate: %w", err)
		}
	}
	return nil
}

func (s *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
