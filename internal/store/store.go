package store

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added index on work_items.status
const currentSchemaVersion = 1

// ErrNotFound is returned when a requested item has no record.
var ErrNotFound = errors.New("item not found")

// Store provides durable storage for work item statuses.
// Uses SQLite with WAL mode for concurrent read access.
//
// Store satisfies engine.Gateway. All writes go through a single
// connection, so concurrent workers are serialized by database/sql.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// Connection settings:
//   - WAL journal so `txsim status` can read while a run is writing
//   - synchronous NORMAL for cheaper per-status commits
//   - 5s busy timeout for a second process holding the write lock
//
// Pass ":memory:" for a throwaway store (the test harness does). This
// function is idempotent - safe to call multiple times.
func Open(path string) (*Store, error) {
	// The file is created on first open.
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// sql.Open is lazy; fail here rather than on the first status write.
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections.
	// Every worker's UpsertStatus queues on this one connection.
	db.SetMaxOpenConns(1) // single writer, no SQLITE_BUSY between workers
	db.SetMaxIdleConns(1) // a ":memory:" database lives only as long as its connection

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database connection.
// Safe on a zero Store.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Tests use it to inspect rows; production code goes through Store methods.
func (s *Store) DB() *sql.DB {
	return s.db
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000", // milliseconds
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// schema.sql only uses IF NOT EXISTS, so re-running it is a no-op.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	// Bring databases created by older builds up to date
	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	// Migrations run in order; each one must be idempotent
	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	// Stamp the version only after every step succeeded
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 indexes status for LoadPending and status counts.
// schema.sql only creates the table, so every database, new or old, gets
// the index through this step.
func migrateToV1(db *sql.DB) error {
	// IF NOT EXISTS keeps a re-run harmless
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_work_items_status
		ON work_items(status)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
