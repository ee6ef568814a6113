package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/clawflow/clawflow/internal/models"
)

// AppendHandoff inserts a handoff record. Handoffs are append-only: stages
// never edit a prior handoff, they only add the next one in the chain.
func AppendHandoff(db *sql.DB, h models.Handoff) (*models.Handoff, error) {
	return TransactValue(db, func(tx *sql.Tx) (*models.Handoff, error) {
		res, err := tx.ExecContext(context.Background(), `
			INSERT INTO handoffs (task_id, stage, agent, model, status, summary, key_decisions, open_questions, files_modified, next_stage_needs, warnings)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, h.TaskID, string(h.Stage), h.Agent, h.Model, string(h.Status), h.Summary,
			h.KeyDecisions, h.OpenQuestions, h.FilesModified, h.NextStageNeeds, h.Warnings)
		if err != nil {
			return nil, fmt.Errorf("insert handoff: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		return getHandoffTx(tx, id)
	})
}

func getHandoffTx(tx *sql.Tx, id int64) (*models.Handoff, error) {
	row := tx.QueryRowContext(context.Background(), `
		SELECT id, task_id, stage, agent, model, timestamp, status, summary, key_decisions, open_questions, files_modified, next_stage_needs, warnings
		FROM handoffs WHERE id = ?
	`, id)
	return scanHandoff(row)
}

func scanHandoff(row scannable) (*models.Handoff, error) {
	var h models.Handoff
	var stage, status string
	if err := row.Scan(
		&h.ID, &h.TaskID, &stage, &h.Agent, &h.Model, &h.Timestamp, &status,
		&h.Summary, &h.KeyDecisions, &h.OpenQuestions, &h.FilesModified, &h.NextStageNeeds, &h.Warnings,
	); err != nil {
		return nil, err
	}
	h.Stage = models.Stage(stage)
	h.Status = models.HandoffStatus(status)
	return &h, nil
}

// ListHandoffs returns every handoff for a task in chain order (oldest
// first), which is the order the prompt assembler replays them in.
func ListHandoffs(db *sql.DB, taskID int64) ([]*models.Handoff, error) {
	rows, err := db.QueryContext(context.Background(), `
		SELECT id, task_id, stage, agent, model, timestamp, status, summary, key_decisions, open_questions, files_modified, next_stage_needs, warnings
		FROM handoffs WHERE task_id = ? ORDER BY id ASC
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list handoffs for task %d: %w", taskID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.Handoff
	for rows.Next() {
		h, err := scanHandoff(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// DeleteHandoffs removes every handoff recorded for a task. Used by restart,
// which rolls the task back to an earlier stage: the rolled-back stages'
// handoffs no longer describe reachable history and would otherwise
// re-enter the re-run prompt as stale context.
func DeleteHandoffs(db *sql.DB, taskID int64) error {
	_, err := db.ExecContext(context.Background(), `DELETE FROM handoffs WHERE task_id = ?`, taskID)
	if err != nil {
		return fmt.Errorf("delete handoffs for task %d: %w", taskID, err)
	}
	return nil
}

// LatestHandoff returns the most recent handoff for a task, or nil if none
// exists yet.
func LatestHandoff(db *sql.DB, taskID int64) (*models.Handoff, error) {
	row := db.QueryRowContext(context.Background(), `
		SELECT id, task_id, stage, agent, model, timestamp, status, summary, key_decisions, open_questions, files_modified, next_stage_needs, warnings
		FROM handoffs WHERE task_id = ? ORDER BY id DESC LIMIT 1
	`, taskID)
	h, err := scanHandoff(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("latest handoff for task %d: %w", taskID, err)
	}
	return h, nil
}
