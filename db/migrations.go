package db

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
)

// Migration represents a database migration
type Migration struct {
	Version int
	Name    string
	Up      string
	Down    string
}

// MigrationStatus represents the status of a migration
type MigrationStatus struct {
	Version int    `json:"version"`
	Name    string `json:"name"`
	Applied bool   `json:"applied"`
}

// migrationsFor returns the migration set of a driver, sorted by version
func migrationsFor(driver string) ([]Migration, error) {
	var source []Migration
	switch driver {
	case DriverPostgres:
		source = postgresMigrations
	case DriverSQLite:
		source = sqliteMigrations
	default:
		return nil, fmt.Errorf("unsupported database driver: %q", driver)
	}

	sorted := make([]Migration, len(source))
	copy(sorted, source)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Version < sorted[j].Version
	})
	return sorted, nil
}

// Migrate runs all pending migrations for the given driver
func Migrate(db *sql.DB, driver string) error {
	migrations, err := migrationsFor(driver)
	if err != nil {
		return err
	}

	if err := ensureMigrationsTable(db); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	currentVersion, err := getCurrentVersion(db)
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= currentVersion {
			continue
		}

		if err := runMigration(db, driver, m); err != nil {
			return fmt.Errorf("failed to run migration %d (%s): %w", m.Version, m.Name, err)
		}
	}

	return nil
}

// ensureMigrationsTable creates the schema version table if it doesn't exist
func ensureMigrationsTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS linker_schema_version (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`)
	return err
}

// getCurrentVersion returns the current migration version
func getCurrentVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM linker_schema_version").Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}

// runMigration executes a single migration
func runMigration(db *sql.DB, driver string, m Migration) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(m.Up); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	if _, err := tx.Exec(
		rebind(driver, "INSERT INTO linker_schema_version (version, name) VALUES (?, ?)"),
		m.Version, m.Name,
	); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}

	slog.Default().Info("migration applied successfully", "driver", driver, "version", m.Version, "name", m.Name)
	return nil
}

// Rollback rolls back the last migration
func Rollback(db *sql.DB, driver string) error {
	migrations, err := migrationsFor(driver)
	if err != nil {
		return err
	}

	currentVersion, err := getCurrentVersion(db)
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	if currentVersion == 0 {
		return fmt.Errorf("no migrations to rollback")
	}

	var target *Migration
	for i := range migrations {
		if migrations[i].Version == currentVersion {
			target = &migrations[i]
			break
		}
	}

	if target == nil {
		return fmt.Errorf("migration %d not found", currentVersion)
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(target.Down); err != nil {
		return fmt.Errorf("failed to rollback migration: %w", err)
	}

	if _, err := tx.Exec(rebind(driver, "DELETE FROM linker_schema_version WHERE version = ?"), currentVersion); err != nil {
		return fmt.Errorf("failed to remove migration record: %w", err)
	}

	return tx.Commit()
}

// GetMigrationStatus returns the current migration status
func GetMigrationStatus(db *sql.DB, driver string) ([]MigrationStatus, error) {
	migrations, err := migrationsFor(driver)
	if err != nil {
		return nil, err
	}

	currentVersion, err := getCurrentVersion(db)
	if err != nil {
		return nil, err
	}

	status := make([]MigrationStatus, 0, len(migrations))
	for _, m := range migrations {
		status = append(status, MigrationStatus{
			Version: m.Version,
			Name:    m.Name,
			Applied: m.Version <= currentVersion,
		})
	}

	return status, nil
}
