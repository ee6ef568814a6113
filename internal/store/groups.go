package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/clawflow/clawflow/internal/models"
)

const groupSelectColumns = `SELECT id, title, session_id, status, shared_context, design_artifact, created_at, version`

// CreateGroup inserts a new task group in the planning status.
func CreateGroup(db *sql.DB, title, sessionID string) (*models.TaskGroup, error) {
	if title == "" {
		return nil, models.NewValidationError("group title is required", nil)
	}
	return TransactValue(db, func(tx *sql.Tx) (*models.TaskGroup, error) {
		res, err := tx.ExecContext(context.Background(), `
			INSERT INTO task_groups (title, session_id, status) VALUES (?, ?, ?)
		`, title, nullableStringArg(sessionID), string(models.GroupStatusPlanning))
		if err != nil {
			return nil, fmt.Errorf("insert group: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		return getGroupTx(tx, id)
	})
}

func nullableStringArg(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// GetGroup loads a group by id.
func GetGroup(db *sql.DB, id int64) (*models.TaskGroup, error) {
	return TransactValue(db, func(tx *sql.Tx) (*models.TaskGroup, error) {
		return getGroupTx(tx, id)
	})
}

func getGroupTx(tx *sql.Tx, id int64) (*models.TaskGroup, error) {
	row := tx.QueryRowContext(context.Background(), groupSelectColumns+` FROM task_groups WHERE id = ?`, id)
	g, err := scanGroup(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.NewValidationError(fmt.Sprintf("group %d not found", id), nil)
		}
		return nil, fmt.Errorf("scan group %d: %w", id, err)
	}
	return g, nil
}

func scanGroup(row scannable) (*models.TaskGroup, error) {
	var g models.TaskGroup
	var sessionID, designArtifact sql.NullString
	var status string

	if err := row.Scan(&g.ID, &g.Title, &sessionID, &status, &g.SharedContext, &designArtifact, &g.CreatedAt, &g.Version); err != nil {
		return nil, err
	}
	g.Status = models.GroupStatus(status)
	g.SessionID = nullableFromSQL(sessionID)
	g.DesignArtifact = nullableFromSQL(designArtifact)
	return &g, nil
}

// ListGroups returns all task groups, newest first.
func ListGroups(db *sql.DB) ([]*models.TaskGroup, error) {
	rows, err := db.QueryContext(context.Background(), groupSelectColumns+` FROM task_groups ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.TaskGroup
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// GroupPatch whitelists the group fields that may be updated.
type GroupPatch struct {
	Status         *models.GroupStatus
	SharedContext  *string
	DesignArtifact **string
}

// UpdateGroup applies patch with the same optimistic-concurrency semantics
// as UpdateTask.
func UpdateGroup(db *sql.DB, id int64, patch GroupPatch, expectedVersion int) (*models.TaskGroup, error) {
	return TransactValue(db, func(tx *sql.Tx) (*models.TaskGroup, error) {
		var sets []string
		var args []any
		add := func(col string, val any) {
			sets = append(sets, col+" = ?")
			args = append(args, val)
		}
		if patch.Status != nil {
			add("status", string(*patch.Status))
		}
		if patch.SharedContext != nil {
			add("shared_context", *patch.SharedContext)
		}
		if patch.DesignArtifact != nil {
			add("design_artifact", nullableStringValue(*patch.DesignArtifact))
		}
		if len(sets) == 0 {
			return getGroupTx(tx, id)
		}

		query := `UPDATE task_groups SET ` + joinSets(sets) + `, version = version + 1 WHERE id = ?`
		args = append(args, id)
		if expectedVersion >= 0 {
			query += ` AND version = ?`
			args = append(args, expectedVersion)
		}
		res, err := tx.ExecContext(context.Background(), query, args...)
		if err != nil {
			return nil, fmt.Errorf("update group %d: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			if expectedVersion >= 0 {
				return nil, ErrVersionConflict
			}
			return nil, models.NewValidationError(fmt.Sprintf("group %d not found", id), nil)
		}
		return getGroupTx(tx, id)
	})
}

// DeleteGroup removes a group. Member tasks are unlinked (group_id set to
// NULL) by the ON DELETE SET NULL foreign key rather than deleted.
func DeleteGroup(db *sql.DB, id int64) error {
	return Transact(db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(context.Background(), `DELETE FROM task_groups WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete group %d: %w", id, err)
		}
		return nil
	})
}

// GetTasksByGroup returns every task linked to the given group id,
// archived ones included, newest first (dependency order is not applied).
func GetTasksByGroup(db *sql.DB, groupID int64) ([]*models.Task, error) {
	return ListTasks(db, ListTasksFilter{GroupID: groupID, IncludeArchived: true})
}
