// db.go
//
// SQLite bootstrap for the duel server's persistent store: connection setup
// and schema migrations for the users and match-history tables the rating
// transaction writes.

package main

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

const migrationDir = "sql"

// openDB opens (creating if missing) the SQLite file at path, with WAL
// journaling, a busy timeout, and foreign keys enforced.
func openDB(path string) (*sql.DB, error) {
	if parent := filepath.Dir(path); parent != "." && parent != "" {
		if err := os.MkdirAll(parent, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir %s: %w", parent, err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}
	for _, pragma := range []string{
		`PRAGMA foreign_keys = ON`,
		`PRAGMA journal_mode = WAL`,
	} {
		if _, err := db.Exec(pragma); err != nil {
			return nil, fmt.Errorf("%s: %w", strings.ToLower(pragma), err)
		}
	}
	return db, nil
}

// migrate brings the database up to date by applying any .sql file under
// sql/ that has not been recorded in schema_migrations, in lexical order.
// Afterwards it verifies the tables the rating commit depends on exist.
func migrate(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		name TEXT PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return fmt.Errorf("bootstrap schema_migrations: %w", err)
	}

	applied, err := appliedMigrations(db)
	if err != nil {
		return err
	}
	pending, err := pendingMigrations(applied)
	if err != nil {
		return err
	}

	for _, name := range pending {
		if err := applyMigration(db, name); err != nil {
			return err
		}
		log.Info().Str("migration", name).Msg("schema migration applied")
	}
	if len(pending) == 0 {
		log.Debug().Int("applied", len(applied)).Msg("schema up to date")
	}

	return ensureDuelSchema(db)
}

// appliedMigrations loads the set of migration names already recorded.
func appliedMigrations(db *sql.DB) (map[string]bool, error) {
	rows, err := db.Query(`SELECT name FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		applied[name] = true
	}
	return applied, rows.Err()
}

// pendingMigrations lists sql/*.sql files not yet applied, sorted so that
// numbered prefixes run in order.
func pendingMigrations(applied map[string]bool) ([]string, error) {
	entries, err := os.ReadDir(migrationDir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", migrationDir, err)
	}
	var pending []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), ".sql") {
			continue
		}
		if !applied[e.Name()] {
			pending = append(pending, e.Name())
		}
	}
	sort.Strings(pending)
	return pending, nil
}

// applyMigration runs one migration file and records it, both inside a
// single transaction.
func applyMigration(db *sql.DB, name string) error {
	script, err := os.ReadFile(filepath.Join(migrationDir, name))
	if err != nil {
		return fmt.Errorf("load migration %s: %w", name, err)
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(string(script)); err != nil {
		return fmt.Errorf("run migration %s: %w", name, err)
	}
	stamp := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.Exec(`INSERT INTO schema_migrations (name, applied_at) VALUES (?,?)`, name, stamp); err != nil {
		return fmt.Errorf("record migration %s: %w", name, err)
	}
	return tx.Commit()
}

// ensureDuelSchema fails fast when the tables the rating transaction writes
// (user rows and the match-history row) are missing, rather than surfacing
// the gap as a mid-match commit failure.
func ensureDuelSchema(db *sql.DB) error {
	for _, table := range []string{"users", "matches"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("table %q missing after migrations", table)
		}
		if err != nil {
			return fmt.Errorf("inspect table %q: %w", table, err)
		}
	}
	return nil
}
