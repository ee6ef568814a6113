package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clawflow/clawflow/internal/models"
)

// Project is a registered working copy: a directory with its own per-project
// database, tracked in the global registry.
type Project struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Path         string     `json:"path"`
	RegisteredAt time.Time  `json:"registered_at"`
	LastOpenedAt *time.Time `json:"last_opened_at,omitempty"`
}

// RegisterProject adds a new project to the global registry, or returns the
// existing registration if the name is already taken.
func RegisterProject(globalDB *sql.DB, name, path string) (*Project, error) {
	if name == "" || path == "" {
		return nil, models.NewValidationError("project name and path are required", nil)
	}
	return TransactValue(globalDB, func(tx *sql.Tx) (*Project, error) {
		var existingID string
		err := tx.QueryRowContext(context.Background(), `SELECT id FROM projects WHERE name = ?`, name).Scan(&existingID)
		if err == nil {
			return getProjectTx(tx, existingID)
		}
		if err != sql.ErrNoRows {
			return nil, fmt.Errorf("check existing project: %w", err)
		}

		id := uuid.NewString()
		_, err = tx.ExecContext(context.Background(), `
			INSERT INTO projects (id, name, path) VALUES (?, ?, ?)
		`, id, name, path)
		if err != nil {
			return nil, fmt.Errorf("register project %q: %w", name, err)
		}
		return getProjectTx(tx, id)
	})
}

func getProjectTx(tx *sql.Tx, id string) (*Project, error) {
	row := tx.QueryRowContext(context.Background(), `
		SELECT id, name, path, registered_at, last_opened_at FROM projects WHERE id = ?
	`, id)
	return scanProject(row)
}

func scanProject(row scannable) (*Project, error) {
	var p Project
	var lastOpened sql.NullTime
	if err := row.Scan(&p.ID, &p.Name, &p.Path, &p.RegisteredAt, &lastOpened); err != nil {
		return nil, err
	}
	if lastOpened.Valid {
		p.LastOpenedAt = &lastOpened.Time
	}
	return &p, nil
}

// ListProjects returns every registered project, most recently opened first.
func ListProjects(globalDB *sql.DB) ([]*Project, error) {
	rows, err := globalDB.QueryContext(context.Background(), `
		SELECT id, name, path, registered_at, last_opened_at FROM projects
		ORDER BY last_opened_at DESC NULLS LAST, registered_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetProjectByName looks up a registered project by its unique name.
func GetProjectByName(globalDB *sql.DB, name string) (*Project, error) {
	row := globalDB.QueryRowContext(context.Background(), `
		SELECT id, name, path, registered_at, last_opened_at FROM projects WHERE name = ?
	`, name)
	p, err := scanProject(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.NewValidationError(fmt.Sprintf("project %q is not registered", name), nil)
		}
		return nil, fmt.Errorf("get project %q: %w", name, err)
	}
	return p, nil
}

// OpenProject stamps last_opened_at to now and returns the project.
func OpenProject(globalDB *sql.DB, id string) (*Project, error) {
	return TransactValue(globalDB, func(tx *sql.Tx) (*Project, error) {
		_, err := tx.ExecContext(context.Background(), `
			UPDATE projects SET last_opened_at = CURRENT_TIMESTAMP WHERE id = ?
		`, id)
		if err != nil {
			return nil, fmt.Errorf("open project %s: %w", id, err)
		}
		return getProjectTx(tx, id)
	})
}

// DeregisterProject removes a project from the registry without touching
// its files or its per-project database.
func DeregisterProject(globalDB *sql.DB, id string) error {
	return Transact(globalDB, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(context.Background(), `DELETE FROM projects WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("deregister project %s: %w", id, err)
		}
		return nil
	})
}
