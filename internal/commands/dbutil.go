package commands

import (
	"database/sql"
	"log/slog"

	"github.com/clawflow/clawflow/internal/app"
	"github.com/clawflow/clawflow/internal/store"
)

// resolveGlobalDBPath honors a --db-path override (propagated via the
// CLAWFLOW_DB_PATH env var by root's PersistentPreRunE), then the
// CLAWFLOW_DB_PATH env var directly, then config.yaml's db_path, before
// falling back to the default global database location.
func resolveGlobalDBPath() (string, error) {
	return app.GetDBPath("")
}

// printedError marks an error whose user-facing message has already been
// logged, so root's top-level handler does not log it a second time.
type printedError struct {
	err error
}

func (e printedError) Error() string {
	return "error already printed"
}

func openGlobalDB() (*sql.DB, func(), error) {
	dbPath, err := resolveGlobalDBPath()
	if err != nil {
		return nil, nil, err
	}
	db, err := store.InitDBWithPath(dbPath)
	if err != nil {
		return nil, nil, err
	}
	return db, func() { _ = db.Close() }, nil
}

func withGlobalDB(fn func(db *sql.DB) error) error {
	db, closeDB, err := openGlobalDB()
	if err != nil {
		return cmdErr(err)
	}
	defer closeDB()
	if err := fn(db); err != nil {
		return cmdErr(err)
	}
	return nil
}

func cmdErr(err error) error {
	if err == nil {
		return nil
	}
	slog.Error("command error", "error", err.Error())
	return printedError{err: err}
}
