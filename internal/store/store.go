// Package store persists validation records, recommendations, workflows and
// the admin entities in a single SQLite database. All writes that must land
// together run inside a Session; reads go through the same query helpers on
// the shared connection.
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"

	"docvet/internal/logging"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// execer is the subset of sqlx shared by *sqlx.DB and *sqlx.Tx. The query
// helpers are written against it so every repository method works both on
// the bare store and inside a session transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// queries holds every repository method. Store and Session both embed it;
// the only difference is whether q is the database or an open transaction.
type queries struct {
	q execer
}

// Store is the SQLite-backed persistence layer.
type Store struct {
	queries
	db   *sqlx.DB
	path string
}

// Open opens (creating if needed) the database at path and runs pending
// migrations. Use ":memory:" for an ephemeral database in tests.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sqlx.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite handles one writer at a time; a single pooled connection keeps
	// transactions and pragmas on the same handle.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			logging.StoreDebug("pragma failed (%s): %v", pragma, err)
		}
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logging.Store("database opened: %s", path)
	return &Store{queries: queries{q: db}, db: db, path: path}, nil
}

func migrate(db *sqlx.DB) error {
	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.Up(db.DB, "migrations")
}

// MigrationVersion returns the schema version the database is currently at.
func (s *Store) MigrationVersion() (int64, error) {
	return goose.GetDBVersion(s.db.DB)
}

// Close closes the underlying database.
func (s *Store) Close() error {
	logging.Store("database closed: %s", s.path)
	return s.db.Close()
}

// Path returns the database file path as opened.
func (s *Store) Path() string {
	return s.path
}

// FileSize returns the database file size in bytes, or 0 for in-memory
// databases.
func (s *Store) FileSize() int64 {
	if s.path == ":memory:" {
		return 0
	}
	info, err := os.Stat(s.path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// Ping verifies the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
