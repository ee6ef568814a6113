package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/clawflow/clawflow/internal/models"
)

// AddDependency records that taskID depends on dependsOnID, refusing to
// create a cycle. The cycle check walks the existing dependency graph
// starting at dependsOnID: if taskID is reachable from it, adding the edge
// would close a loop.
func AddDependency(db *sql.DB, taskID, dependsOnID int64) error {
	if taskID == dependsOnID {
		return models.NewValidationError("a task cannot depend on itself", nil)
	}
	return Transact(db, func(tx *sql.Tx) error {
		if _, err := getTaskTx(tx, taskID); err != nil {
			return err
		}
		if _, err := getTaskTx(tx, dependsOnID); err != nil {
			return err
		}

		cyclic, err := wouldCreateCycle(tx, taskID, dependsOnID)
		if err != nil {
			return fmt.Errorf("cycle check: %w", err)
		}
		if cyclic {
			return models.NewValidationError(
				fmt.Sprintf("adding dependency %d -> %d would create a cycle", taskID, dependsOnID), nil)
		}

		_, err = tx.ExecContext(context.Background(), `
			INSERT OR IGNORE INTO task_dependencies (task_id, depends_on_id) VALUES (?, ?)
		`, taskID, dependsOnID)
		if err != nil {
			return fmt.Errorf("insert dependency: %w", err)
		}
		return nil
	})
}

// wouldCreateCycle reports whether dependsOnID can already (transitively)
// reach taskID, which would make the new edge taskID -> dependsOnID a cycle.
func wouldCreateCycle(tx *sql.Tx, taskID, dependsOnID int64) (bool, error) {
	visited := map[int64]bool{}
	stack := []int64{dependsOnID}

	for len(stack) > 0 {
		n := len(stack) - 1
		cur := stack[n]
		stack = stack[:n]

		if cur == taskID {
			return true, nil
		}
		if visited[cur] {
			continue
		}
		visited[cur] = true

		next, err := queryInt64Column(tx, `SELECT depends_on_id FROM task_dependencies WHERE task_id = ?`, cur)
		if err != nil {
			return false, err
		}
		stack = append(stack, next...)
	}
	return false, nil
}

// RemoveDependency deletes a single dependency edge.
func RemoveDependency(db *sql.DB, taskID, dependsOnID int64) error {
	return Transact(db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(context.Background(), `
			DELETE FROM task_dependencies WHERE task_id = ? AND depends_on_id = ?
		`, taskID, dependsOnID)
		if err != nil {
			return fmt.Errorf("remove dependency: %w", err)
		}
		return nil
	})
}

// GetDependencies returns the ids of tasks that taskID depends on.
func GetDependencies(db *sql.DB, taskID int64) ([]int64, error) {
	return queryInt64Column(db, `SELECT depends_on_id FROM task_dependencies WHERE task_id = ?`, taskID)
}

// GetDependents returns the ids of tasks that depend on taskID.
func GetDependents(db *sql.DB, taskID int64) ([]int64, error) {
	return queryInt64Column(db, `SELECT task_id FROM task_dependencies WHERE depends_on_id = ?`, taskID)
}

// AreDependenciesMet reports whether every task taskID depends on is in the
// done status. A task with no dependencies is always ready.
func AreDependenciesMet(db *sql.DB, taskID int64) (bool, error) {
	deps, err := GetDependencies(db, taskID)
	if err != nil {
		return false, fmt.Errorf("load dependencies: %w", err)
	}
	if len(deps) == 0 {
		return true, nil
	}

	for _, depID := range deps {
		dep, err := GetTask(db, depID)
		if err != nil {
			return false, fmt.Errorf("load dependency %d: %w", depID, err)
		}
		if dep.Status != models.StatusDone {
			return false, nil
		}
	}
	return true, nil
}
