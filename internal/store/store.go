// Package store writes ProjectAnalysis snapshots to SQLite and reads them
// back. A database holds at most one run per entry point; exporting an
// entry point again replaces its previous run.
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the SQLite data access layer for analysis snapshots.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database at dbPath with WAL mode enabled.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates every table and index. Idempotent.
func (s *Store) Migrate() error {
	if _, err := s.db.Exec(schemaDDL); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS runs (
  id              INTEGER PRIMARY KEY,
  uuid            TEXT NOT NULL UNIQUE,
  entry_point     TEXT NOT NULL UNIQUE,
  name            TEXT NOT NULL,
  started         TIMESTAMP NOT NULL,
  elapsed_ms      INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS files (
  id              INTEGER PRIMARY KEY,
  run_id          INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
  uri             TEXT NOT NULL,
  hash            TEXT NOT NULL,
  line_count      INTEGER NOT NULL,
  ordinal         INTEGER NOT NULL,
  UNIQUE (run_id, uri)
);

CREATE TABLE IF NOT EXISTS procedures (
  id              INTEGER PRIMARY KEY,
  file_id         INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
  name            TEXT NOT NULL,
  comment         TEXT,
  start_line      INTEGER,
  start_col       INTEGER,
  end_line        INTEGER,
  end_col         INTEGER
);

CREATE TABLE IF NOT EXISTS arguments (
  id              INTEGER PRIMARY KEY,
  procedure_id    INTEGER NOT NULL REFERENCES procedures(id) ON DELETE CASCADE,
  ordinal         INTEGER NOT NULL,
  name            TEXT NOT NULL,
  has_default     BOOLEAN DEFAULT FALSE,
  default_value   TEXT
);

CREATE TABLE IF NOT EXISTS variables (
  id              INTEGER PRIMARY KEY,
  file_id         INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
  name            TEXT NOT NULL,
  value           TEXT NOT NULL,
  comment         TEXT,
  start_line      INTEGER,
  start_col       INTEGER,
  end_line        INTEGER,
  end_col         INTEGER
);

CREATE TABLE IF NOT EXISTS calls (
  id              INTEGER PRIMARY KEY,
  file_id         INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
  procedure_id    INTEGER REFERENCES procedures(id) ON DELETE CASCADE,
  name            TEXT NOT NULL,
  start_line      INTEGER,
  start_col       INTEGER,
  end_line        INTEGER,
  end_col         INTEGER
);

CREATE TABLE IF NOT EXISTS retrievals (
  id              INTEGER PRIMARY KEY,
  file_id         INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
  variable_id     INTEGER REFERENCES variables(id) ON DELETE CASCADE,
  source          TEXT NOT NULL,
  start_line      INTEGER,
  start_col       INTEGER,
  end_line        INTEGER,
  end_col         INTEGER
);

CREATE TABLE IF NOT EXISTS productions (
  id              INTEGER PRIMARY KEY,
  file_id         INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
  name            TEXT NOT NULL,
  body            TEXT NOT NULL,
  body_hash       TEXT NOT NULL,
  start_line      INTEGER,
  start_col       INTEGER,
  end_line        INTEGER,
  end_col         INTEGER
);

CREATE TABLE IF NOT EXISTS sourcing (
  id              INTEGER PRIMARY KEY,
  file_id         INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
  target_uri      TEXT NOT NULL,
  found           BOOLEAN NOT NULL
);

CREATE TABLE IF NOT EXISTS diagnostics (
  id              INTEGER PRIMARY KEY,
  file_id         INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
  severity        INTEGER NOT NULL,
  code            TEXT,
  message         TEXT NOT NULL,
  start_line      INTEGER,
  start_col       INTEGER,
  end_line        INTEGER,
  end_col         INTEGER
);

CREATE INDEX IF NOT EXISTS idx_files_run ON files(run_id);
CREATE INDEX IF NOT EXISTS idx_procedures_file ON procedures(file_id);
CREATE INDEX IF NOT EXISTS idx_procedures_name ON procedures(name);
CREATE INDEX IF NOT EXISTS idx_arguments_procedure ON arguments(procedure_id);
CREATE INDEX IF NOT EXISTS idx_variables_file ON variables(file_id);
CREATE INDEX IF NOT EXISTS idx_variables_name ON variables(name);
CREATE INDEX IF NOT EXISTS idx_calls_file ON calls(file_id);
CREATE INDEX IF NOT EXISTS idx_calls_procedure ON calls(procedure_id);
CREATE INDEX IF NOT EXISTS idx_retrievals_file ON retrievals(file_id);
CREATE INDEX IF NOT EXISTS idx_retrievals_variable ON retrievals(variable_id);
CREATE INDEX IF NOT EXISTS idx_productions_file ON productions(file_id);
CREATE INDEX IF NOT EXISTS idx_productions_name ON productions(name);
CREATE INDEX IF NOT EXISTS idx_sourcing_file ON sourcing(file_id);
CREATE INDEX IF NOT EXISTS idx_diagnostics_file ON diagnostics(file_id);
`

// DeleteRun removes the run exported for entryPoint together with every
// row that belongs to it. It reports whether there was one.
func (s *Store) DeleteRun(entryPoint string) (bool, error) {
	res, err := s.db.Exec("DELETE FROM runs WHERE entry_point = ?", entryPoint)
	if err != nil {
		return false, fmt.Errorf("store: delete run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: delete run: %w", err)
	}
	return n > 0, nil
}
