package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hpungsan/veileder/internal/config"
	_ "modernc.org/sqlite"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 2

// Init initializes the SQLite knowledge store at baseDir/veileder.db.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.veileder.
func Init(baseDir string) (*sql.DB, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	_ = os.Chmod(baseDir, 0700)

	// Pragmas in the connection string apply to every pooled connection
	dbPath := filepath.Join(baseDir, "veileder.db")
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	_ = os.Chmod(dbPath, 0600)

	return db, nil
}

// ConfigurePool applies connection pool settings from config.
// Only sets limits if explicitly configured (non-zero values).
func ConfigurePool(db *sql.DB, cfg *config.Config) {
	if cfg == nil {
		return
	}
	if cfg.DBMaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	}
}

// migrate applies schema migrations based on user_version.
func migrate(db *sql.DB) error {
	version, err := GetUserVersion(db)
	if err != nil {
		return err
	}

	// Migration 0 -> 1: Initial schema (v1)
	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS courses (
		  code                 TEXT PRIMARY KEY,
		  name                 TEXT NOT NULL,
		  credits              REAL,
		  semester             TEXT,
		  faculty              TEXT,
		  coordinator          TEXT,
		  language             TEXT,
		  places               INTEGER,
		  learning_outcomes    TEXT,
		  prerequisites        TEXT,
		  learning_activities  TEXT,
		  assessment           TEXT,
		  mandatory_activities TEXT,
		  notes                TEXT,
		  priority_rules       TEXT,
		  updated_at           INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS programs (
		  id          INTEGER PRIMARY KEY AUTOINCREMENT,
		  name        TEXT NOT NULL,
		  name_norm   TEXT NOT NULL,
		  degree_type TEXT,
		  cohort      INTEGER,
		  updated_at  INTEGER NOT NULL
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_programs_name_norm
		ON programs(name_norm);

		CREATE TABLE IF NOT EXISTS specializations (
		  id         INTEGER PRIMARY KEY AUTOINCREMENT,
		  program_id INTEGER NOT NULL REFERENCES programs(id) ON DELETE CASCADE,
		  name       TEXT NOT NULL,
		  position   INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_specializations_program
		ON specializations(program_id, position);

		CREATE TABLE IF NOT EXISTS curriculum_entries (
		  id                INTEGER PRIMARY KEY AUTOINCREMENT,
		  program_id        INTEGER NOT NULL REFERENCES programs(id) ON DELETE CASCADE,
		  specialization_id INTEGER REFERENCES specializations(id) ON DELETE CASCADE,
		  study_year        INTEGER NOT NULL,
		  semester          TEXT,
		  course_code       TEXT NOT NULL,
		  mandatory         INTEGER NOT NULL DEFAULT 0,
		  comment           TEXT,
		  position          INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_curriculum_program
		ON curriculum_entries(program_id, specialization_id, position);

		CREATE TABLE IF NOT EXISTS rule_chunks (
		  id         INTEGER PRIMARY KEY AUTOINCREMENT,
		  source     TEXT NOT NULL,
		  content    TEXT NOT NULL,
		  dims       INTEGER NOT NULL,
		  embedding  BLOB NOT NULL,
		  created_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_rule_chunks_source
		ON rule_chunks(source);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := SetUserVersion(db, 1); err != nil {
			return err
		}
	}

	// Migration 1 -> 2: exam results per course and year
	if version < 2 {
		schema := `
		CREATE TABLE IF NOT EXISTS grade_results (
		  course_code TEXT NOT NULL,
		  year        INTEGER NOT NULL,
		  a           INTEGER NOT NULL DEFAULT 0,
		  b           INTEGER NOT NULL DEFAULT 0,
		  c           INTEGER NOT NULL DEFAULT 0,
		  d           INTEGER NOT NULL DEFAULT 0,
		  e           INTEGER NOT NULL DEFAULT 0,
		  f           INTEGER NOT NULL DEFAULT 0,
		  passed      INTEGER NOT NULL DEFAULT 0,
		  failed      INTEGER NOT NULL DEFAULT 0,
		  PRIMARY KEY (course_code, year)
		);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 2 failed: %w", err)
		}
		if err := SetUserVersion(db, 2); err != nil {
			return err
		}
	}

	return nil
}

// verifyWALMode checks that WAL mode is active (set via connection string).
func verifyWALMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

// GetUserVersion returns the current schema version (user_version pragma).
func GetUserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

// SetUserVersion sets the schema version (user_version pragma).
func SetUserVersion(db *sql.DB, version int) error {
	_, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version))
	if err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}
