package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Migration represents a database schema migration.
type Migration struct {
	Version     int
	Description string
	Up          string
	Down        string
}

// migrations contains all database migrations in order.
var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema with entries and key metadata",
		Up:          migrationV1Up,
		Down:        migrationV1Down,
	},
	{
		Version:     2,
		Description: "Add tags and ordered custom fields",
		Up:          migrationV2Up,
		Down:        migrationV2Down,
	},
}

const migrationV1Up = `
-- Key derivation salt, parameters and passphrase check value
CREATE TABLE IF NOT EXISTS meta (
    key     TEXT PRIMARY KEY,
    value   BLOB NOT NULL
);

-- Entries; password and otp are sealed with the field key
CREATE TABLE IF NOT EXISTS entries (
    id                      TEXT PRIMARY KEY,
    title                   TEXT NOT NULL,
    username                TEXT NOT NULL DEFAULT '',
    password                BLOB,
    url                     TEXT NOT NULL DEFAULT '',
    notes                   TEXT NOT NULL DEFAULT '',
    otp                     BLOB,
    auto_type_enabled       INTEGER NOT NULL DEFAULT 1,
    auto_type_sequence      TEXT NOT NULL DEFAULT '',
    auto_type_obfuscation   INTEGER NOT NULL DEFAULT 0,
    modified_ns             INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entries_title ON entries(title);
`

const migrationV1Down = `
DROP INDEX IF EXISTS idx_entries_title;
DROP TABLE IF EXISTS entries;
DROP TABLE IF EXISTS meta;
`

const migrationV2Up = `
ALTER TABLE entries ADD COLUMN tags TEXT NOT NULL DEFAULT '';

-- Custom fields keep their order; protected values are sealed
CREATE TABLE IF NOT EXISTS fields (
    entry_id    TEXT NOT NULL REFERENCES entries(id) ON DELETE CASCADE,
    ordinal     INTEGER NOT NULL,
    name        TEXT NOT NULL,
    value       BLOB NOT NULL,
    protected   INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (entry_id, ordinal)
);
`

const migrationV2Down = `
DROP TABLE IF EXISTS fields;
ALTER TABLE entries DROP COLUMN tags;
`

// MigrateDB applies all pending migrations to the database.
func MigrateDB(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version     INTEGER PRIMARY KEY,
			applied_at  INTEGER NOT NULL,
			description TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	current, err := currentVersion(db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction for migration %d: %w", m.Version, err)
		}
		if _, err := tx.Exec(m.Up); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Description, err)
		}
		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, applied_at, description) VALUES (?, ?, ?)",
			m.Version, time.Now().UnixNano(), m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}
	return nil
}

// RollbackMigration rolls back the last applied migration.
func RollbackMigration(db *sql.DB) error {
	current, err := currentVersion(db)
	if err != nil {
		return err
	}
	if current == 0 {
		return fmt.Errorf("no migrations to rollback")
	}

	var m *Migration
	for i := range migrations {
		if migrations[i].Version == current {
			m = &migrations[i]
			break
		}
	}
	if m == nil {
		return fmt.Errorf("migration %d not found", current)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if _, err := tx.Exec(m.Down); err != nil {
		tx.Rollback()
		return fmt.Errorf("rollback migration %d: %w", current, err)
	}
	if _, err := tx.Exec("DELETE FROM schema_migrations WHERE version = ?", current); err != nil {
		tx.Rollback()
		return fmt.Errorf("remove migration record: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rollback: %w", err)
	}
	return nil
}

func currentVersion(db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&v); err != nil {
		return 0, fmt.Errorf("get current version: %w", err)
	}
	return v, nil
}

// MigrationStatus describes which migrations have been applied.
type MigrationStatus struct {
	CurrentVersion int
	LatestVersion  int
	Pending        []Migration
}

// GetMigrationStatus returns the current migration status.
func GetMigrationStatus(db *sql.DB) (*MigrationStatus, error) {
	status := &MigrationStatus{LatestVersion: migrations[len(migrations)-1].Version}

	current, err := currentVersion(db)
	if err != nil {
		// Table might not exist yet
		status.Pending = migrations
		return status, nil
	}
	status.CurrentVersion = current
	for _, m := range migrations {
		if m.Version > current {
			status.Pending = append(status.Pending, m)
		}
	}
	return status, nil
}
