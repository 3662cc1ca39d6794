// Package migrations versions the history database schema. The applied
// version is kept in SQLite's user_version header field, so a history file
// carries its schema level without a bookkeeping table.
package migrations

import (
	"database/sql"
	"fmt"

	"github.com/projectopenrap/buildimage/src/common/logs"
)

// package-level logger, can be set via SetLogger
var log *logs.Logger

// SetLogger sets the logger for the migrations package
func SetLogger(l *logs.Logger) {
	log = l
}

// Migration is one schema step. Statements run in order inside a single
// transaction together with the version bump.
type Migration struct {
	Version     int
	Description string
	Statements  []string
}

// history lists every schema step of the build history database
func history() []Migration {
	return []Migration{
		migration001BuildRuns(),
		migration002RunStages(),
	}
}

// Runner applies pending migrations to a database
type Runner struct {
	db         *sql.DB
	migrations []Migration
}

// NewRunner creates a runner for the build history schema
func NewRunner(db *sql.DB) *Runner {
	return newRunner(db, history()...)
}

func newRunner(db *sql.DB, ms ...Migration) *Runner {
	return &Runner{db: db, migrations: ms}
}

// validate checks that versions start at 1 and have no gaps
func (r *Runner) validate() error {
	for i, m := range r.migrations {
		if m.Version != i+1 {
			return fmt.Errorf("migration %q has version %d, expected %d", m.Description, m.Version, i+1)
		}
		if len(m.Statements) == 0 {
			return fmt.Errorf("migration %d (%s) has no statements", m.Version, m.Description)
		}
	}
	return nil
}

// Latest returns the version the schema reaches once every migration is applied
func (r *Runner) Latest() int {
	return len(r.migrations)
}

// CurrentVersion returns the schema version recorded in the database
func (r *Runner) CurrentVersion() (int, error) {
	var version int
	if err := r.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}

// PendingCount returns the number of migrations not yet applied
func (r *Runner) PendingCount() (int, error) {
	current, err := r.CurrentVersion()
	if err != nil {
		return 0, err
	}
	if current >= r.Latest() {
		return 0, nil
	}
	return r.Latest() - current, nil
}

// Run brings the schema up to the latest version. A database written by a
// newer buildimage is refused rather than modified.
func (r *Runner) Run() error {
	if err := r.validate(); err != nil {
		return err
	}

	current, err := r.CurrentVersion()
	if err != nil {
		return err
	}
	if current > r.Latest() {
		return fmt.Errorf("history schema version %d is newer than supported version %d", current, r.Latest())
	}

	for _, m := range r.migrations[current:] {
		if err := r.apply(m); err != nil {
			if log != nil {
				log.Error("Migration failed", "version", m.Version, "description", m.Description, "error", err)
			}
			return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Description, err)
		}
	}
	return nil
}

// apply runs one migration and records its version in the same transaction
func (r *Runner) apply(m Migration) error {
	if log != nil {
		log.Debug("Applying migration", "version", m.Version, "description", m.Description)
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range m.Statements {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	// PRAGMA values cannot be bound as parameters
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.Version)); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}

	return tx.Commit()
}
