package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/clawflow/clawflow/internal/models"
)

// AppendLogEntry records one agent action against a task's audit trail.
// Entries are append-only and never edited or deleted by normal operation.
func AppendLogEntry(db *sql.DB, e models.AgentLogEntry) error {
	return Transact(db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(context.Background(), `
			INSERT INTO agent_log_entries (task_id, agent, model, action, details)
			VALUES (?, ?, ?, ?, ?)
		`, e.TaskID, e.Agent, e.Model, e.Action, e.Details)
		if err != nil {
			return fmt.Errorf("insert agent log entry: %w", err)
		}
		return nil
	})
}

// ListLogEntries returns a task's audit trail, oldest first.
func ListLogEntries(db *sql.DB, taskID int64) ([]*models.AgentLogEntry, error) {
	rows, err := db.QueryContext(context.Background(), `
		SELECT id, task_id, timestamp, agent, model, action, details
		FROM agent_log_entries WHERE task_id = ? ORDER BY id ASC
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list log entries for task %d: %w", taskID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.AgentLogEntry
	for rows.Next() {
		var e models.AgentLogEntry
		if err := rows.Scan(&e.ID, &e.TaskID, &e.Timestamp, &e.Agent, &e.Model, &e.Action, &e.Details); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
