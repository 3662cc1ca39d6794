// Package db records the history of build and clean runs in a SQLite file.
package db

import (
	"database/sql"
	"fmt"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/projectopenrap/buildimage/src/buildimage/db/migrations"
	"github.com/projectopenrap/buildimage/src/common/paths"
)

// Database wraps the SQLite connection
type Database struct {
	db   *sql.DB
	path string
}

// Config holds the database configuration
type Config struct {
	// Path is the SQLite file; ":memory:" keeps the history in memory
	Path string
}

// DefaultConfig returns the history database under the build directory of baseDir
func DefaultConfig(baseDir string) Config {
	return Config{
		Path: filepath.Join(baseDir, "build", "history.db"),
	}
}

// New opens the database and applies pending migrations
func New(cfg Config) (*Database, error) {
	path := paths.Expand(cfg.Path)
	if path == "" {
		return nil, fmt.Errorf("database path not configured")
	}

	if path != ":memory:" {
		if err := paths.EnsureDirPath(filepath.Dir(path)); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	// A single connection keeps ":memory:" databases shared and serialises writers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := migrations.NewRunner(db).Run(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Database{
		db:   db,
		path: path,
	}, nil
}

// DB returns the underlying sql.DB
func (d *Database) DB() *sql.DB {
	return d.db
}

// Path returns the database file path
func (d *Database) Path() string {
	return d.path
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}
