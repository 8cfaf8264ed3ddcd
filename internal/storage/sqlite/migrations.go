// Package sqlite - database migrations
package sqlite

import (
	"database/sql"
	"fmt"
)

// Migration represents a single database migration.
type Migration struct {
	Name string
	Func func(*sql.DB) error
}

// migrationsList is the ordered list of all migrations to run. Every
// entry is idempotent (IF NOT EXISTS / guarded ALTER) so RunMigrations
// can run unconditionally on every open.
var migrationsList = []Migration{
	{"initial_schema", migrateInitialSchema},
	{"delete_grace_period_seconds_default", migrateDeleteGraceDefault},
}

func migrateInitialSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}

// migrateDeleteGraceDefault backfills delete_grace_period_seconds for
// volumes created before the column carried a default, so older
// databases compare equal to freshly created ones.
func migrateDeleteGraceDefault(db *sql.DB) error {
	_, err := db.Exec(`UPDATE remote_volume SET delete_grace_period_seconds = 0 WHERE delete_grace_period_seconds IS NULL`)
	return err
}

// MigrationInfo contains metadata about a migration for inspection.
type MigrationInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ListMigrations returns all registered migrations with descriptions.
// All are idempotent, so this lists the full history, not just pending
// ones.
func ListMigrations() []MigrationInfo {
	result := make([]MigrationInfo, len(migrationsList))
	for i, m := range migrationsList {
		result[i] = MigrationInfo{Name: m.Name, Description: getMigrationDescription(m.Name)}
	}
	return result
}

func getMigrationDescription(name string) string {
	descriptions := map[string]string{
		"initial_schema":                       "Creates the block, blockset, file, fileset, and remote_volume tables",
		"delete_grace_period_seconds_default":   "Backfills delete_grace_period_seconds on volumes created before it had a default",
	}
	if desc, ok := descriptions[name]; ok {
		return desc
	}
	return "Unknown migration"
}

// RunMigrations executes all registered migrations in order. Uses an
// EXCLUSIVE transaction so that parallel processes opening the same
// database file can't race on check-then-modify DDL.
func RunMigrations(db *sql.DB) error {
	// PRAGMA foreign_keys must be toggled outside any active
	// transaction (SQLite limitation).
	if _, err := db.Exec("PRAGMA foreign_keys = OFF"); err != nil {
		return fmt.Errorf("failed to disable foreign keys for migrations: %w", err)
	}
	defer func() { _, _ = db.Exec("PRAGMA foreign_keys = ON") }()

	if _, err := db.Exec("BEGIN EXCLUSIVE"); err != nil {
		return fmt.Errorf("failed to acquire exclusive lock for migrations: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_, _ = db.Exec("ROLLBACK")
		}
	}()

	for _, migration := range migrationsList {
		if err := migration.Func(db); err != nil {
			return fmt.Errorf("migration %s failed: %w", migration.Name, err)
		}
	}

	if _, err := db.Exec("COMMIT"); err != nil {
		return fmt.Errorf("failed to commit migrations: %w", err)
	}
	committed = true

	return nil
}
