package store

import (
	"database/sql"
	"embed"
	"fmt"
	"strconv"
	"strings"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// MigrateDB runs all pending migrations. Every migration only adds
// columns/tables with defaults, never drops one, and the whole sequence is
// idempotent, so it is safe to run on every startup.
func MigrateDB(db *sql.DB, dbPath string) error {
	return RunMigrations(db)
}

// SchemaVersion returns the current and latest migration versions. Returns
// (0, latest, nil) for a fresh database.
func SchemaVersion(db *sql.DB) (current int64, latest int64, err error) {
	if err := setGooseDialect(); err != nil {
		return 0, 0, err
	}

	current, err = goose.GetDBVersion(db)
	if err != nil {
		current = 0
	}

	latest, err = latestMigrationVersion()
	if err != nil {
		return current, 0, fmt.Errorf("determine latest version: %w", err)
	}
	return current, latest, nil
}

// CheckSchemaVersion verifies the database schema is up to date.
func CheckSchemaVersion(db *sql.DB) error {
	current, latest, err := SchemaVersion(db)
	if err != nil {
		return fmt.Errorf("check schema version: %w", err)
	}
	if current < latest {
		return fmt.Errorf("schema version %d, expected %d: run migrations to upgrade", current, latest)
	}
	return nil
}

func setGooseDialect() error {
	goose.SetBaseFS(embedMigrations)
	goose.SetVerbose(false)
	goose.SetLogger(goose.NopLogger())
	// goose's dialect name "sqlite3" controls SQL generation only; the
	// actual driver registered is modernc.org/sqlite under the name "sqlite".
	return goose.SetDialect("sqlite3")
}

func latestMigrationVersion() (int64, error) {
	entries, err := embedMigrations.ReadDir("migrations")
	if err != nil {
		return 0, fmt.Errorf("read migrations dir: %w", err)
	}
	var max int64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		idx := strings.IndexByte(name, '_')
		if idx <= 0 {
			continue
		}
		v, err := strconv.ParseInt(name[:idx], 10, 64)
		if err != nil {
			continue
		}
		if v > max {
			max = v
		}
	}
	return max, nil
}

// RunMigrations applies all pending embedded migrations via goose.
func RunMigrations(db *sql.DB) error {
	if err := setGooseDialect(); err != nil {
		return err
	}
	return goose.Up(db, "migrations")
}
