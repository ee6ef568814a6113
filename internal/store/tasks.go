package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/clawflow/clawflow/internal/models"
)

// TaskPatch is the explicit whitelist of fields CreateTask/UpdateTask may
// write. Partial updates never go through reflection over arbitrary field
// names — only the pointers set here are ever written, and unknown fields
// passed at a higher layer (e.g. the HTTP command surface) must be rejected
// before they reach this struct.
type TaskPatch struct {
	Title        *string
	Description  *string
	Tier         *models.Tier
	Priority     *models.Priority
	Status       *models.TaskStatus
	CurrentAgent **models.Stage // double pointer: nil means "don't touch", pointing-to-nil means "clear"
	AutoMode     *bool
	AutoMerge    *bool

	StartedAt   **time.Time
	CompletedAt **time.Time
	ArchivedAt  **time.Time

	BrainstormOutput    **string
	DesignReview        **string
	Plan                **string
	ImplementationNotes **string
	ReviewComments      **string
	ReviewScore         **float64
	TestResults         **models.TestResults
	VerifyResult        **string
	CommitHash          **string

	PlanReviewCount *int
	ImplReviewCount *int

	PausedFromStatus **models.TaskStatus
	PauseReason      **models.PauseReason

	BranchName   **string
	WorktreePath **string

	GroupID       **int64
	WorkOrder     **models.WorkOrder
	AssignedSkill **string

	ActiveSessionID **string
	RichHandoff     **string
	Todos           **string
}

// CreateTask inserts a new task in the backlog state and returns it with its
// assigned ID.
func CreateTask(db *sql.DB, t models.Task) (*models.Task, error) {
	if t.Title == "" {
		return nil, models.NewValidationError("task title is required", nil)
	}
	if t.Tier == "" {
		t.Tier = models.TierL2
	}
	if t.Priority == "" {
		t.Priority = models.PriorityMedium
	}
	t.Status = models.StatusBacklog
	t.CurrentAgent = nil

	var workOrderJSON any
	if t.WorkOrder != nil {
		b, err := json.Marshal(t.WorkOrder)
		if err != nil {
			return nil, fmt.Errorf("marshal work order: %w", err)
		}
		workOrderJSON = string(b)
	}

	out, err := TransactValue(db, func(tx *sql.Tx) (*models.Task, error) {
		res, err := tx.ExecContext(context.Background(), `
			INSERT INTO tasks (title, description, tier, priority, status, auto_mode, auto_merge, group_id, work_order, assigned_skill)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, t.Title, t.Description, string(t.Tier), string(t.Priority), string(t.Status),
			boolToInt(t.AutoMode), boolToInt(t.AutoMerge), nullableInt64(t.GroupID), workOrderJSON, nullableString(t.AssignedSkill))
		if err != nil {
			return nil, fmt.Errorf("insert task: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("read inserted task id: %w", err)
		}
		return getTaskTx(tx, id)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetTask loads one task by id.
func GetTask(db *sql.DB, id int64) (*models.Task, error) {
	return TransactValue(db, func(tx *sql.Tx) (*models.Task, error) {
		return getTaskTx(tx, id)
	})
}

func getTaskTx(tx *sql.Tx, id int64) (*models.Task, error) {
	row := tx.QueryRowContext(context.Background(), taskSelectColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.NewValidationError(fmt.Sprintf("task %d not found", id), map[string]string{"task_id": fmt.Sprintf("%d", id)})
		}
		return nil, fmt.Errorf("scan task %d: %w", id, err)
	}
	deps, err := queryInt64Column(tx, `SELECT depends_on_id FROM task_dependencies WHERE task_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("load dependencies for task %d: %w", id, err)
	}
	t.DependsOn = deps
	return t, nil
}

// ListTasksFilter narrows ListTasks; a zero Status or GroupID means "no
// filter," and archived tasks are left out unless IncludeArchived is set.
type ListTasksFilter struct {
	Status        models.TaskStatus
	GroupID       int64
	IncludeArchived bool
}

// ListTasks returns tasks matching filter, newest first.
func ListTasks(db *sql.DB, filter ListTasksFilter) ([]*models.Task, error) {
	query := taskSelectColumns + ` FROM tasks WHERE 1=1`
	var args []any
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.GroupID != 0 {
		query += ` AND group_id = ?`
		args = append(args, filter.GroupID)
	}
	if !filter.IncludeArchived {
		query += ` AND archived_at IS NULL`
	}
	query += ` ORDER BY id DESC`

	rows, err := db.QueryContext(context.Background(), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.Task
	for rows.Next() {
		t, err := scanTaskRows(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task row: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, t := range out {
		deps, err := queryInt64Column(db, `SELECT depends_on_id FROM task_dependencies WHERE task_id = ?`, t.ID)
		if err != nil {
			return nil, fmt.Errorf("load dependencies for task %d: %w", t.ID, err)
		}
		t.DependsOn = deps
	}
	return out, nil
}

// UpdateTask applies patch to task id inside one transaction, bumping the
// optimistic-concurrency version column. Returns ErrVersionConflict if
// expectedVersion is non-negative and does not match the stored version.
func UpdateTask(db *sql.DB, id int64, patch TaskPatch, expectedVersion int) (*models.Task, error) {
	return TransactValue(db, func(tx *sql.Tx) (*models.Task, error) {
		sets, args, err := buildTaskPatchSQL(patch)
		if err != nil {
			return nil, err
		}
		if len(sets) == 0 {
			return getTaskTx(tx, id)
		}

		query := `UPDATE tasks SET ` + joinSets(sets) + `, version = version + 1 WHERE id = ?`
		args = append(args, id)
		if expectedVersion >= 0 {
			query += ` AND version = ?`
			args = append(args, expectedVersion)
		}

		res, err := tx.ExecContext(context.Background(), query, args...)
		if err != nil {
			return nil, fmt.Errorf("update task %d: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("rows affected for task %d update: %w", id, err)
		}
		if n == 0 {
			if expectedVersion >= 0 {
				return nil, ErrVersionConflict
			}
			return nil, models.NewValidationError(fmt.Sprintf("task %d not found", id), nil)
		}
		return getTaskTx(tx, id)
	})
}

// DeleteTask removes a task. Dependencies referencing it are cascaded away
// by the foreign key, and group linkage is cleared by the caller beforehand
// if needed.
func DeleteTask(db *sql.DB, id int64) error {
	return Transact(db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(context.Background(), `DELETE FROM tasks WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete task %d: %w", id, err)
		}
		return nil
	})
}

// ArchiveTask sets archived_at to now.
func ArchiveTask(db *sql.DB, id int64) (*models.Task, error) {
	now := time.Now().UTC()
	return UpdateTask(db, id, TaskPatch{ArchivedAt: ptrptr(&now)}, -1)
}

// UnarchiveTask clears archived_at.
func UnarchiveTask(db *sql.DB, id int64) (*models.Task, error) {
	var nilTime *time.Time
	return UpdateTask(db, id, TaskPatch{ArchivedAt: ptrptr(nilTime)}, -1)
}

// ArchiveAllDone archives every task currently in the done status.
func ArchiveAllDone(db *sql.DB) (int, error) {
	var n int64
	err := Transact(db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(context.Background(), `
			UPDATE tasks SET archived_at = CURRENT_TIMESTAMP, version = version + 1
			WHERE status = ? AND archived_at IS NULL
		`, string(models.StatusDone))
		if err != nil {
			return fmt.Errorf("archive done tasks: %w", err)
		}
		n, err = res.RowsAffected()
		return err
	})
	return int(n), err
}

// TaskStats is the aggregate returned by Stats.
type TaskStats struct {
	Backlog             int     `json:"backlog"`
	InProgress           int     `json:"in_progress"`
	Done                 int     `json:"done"`
	Blocked              int     `json:"blocked"`
	CompletionRate       float64 `json:"completion_rate"`
	AvgReviewScore       float64 `json:"avg_review_score"`
	CircuitBreakerTrips  int     `json:"circuit_breaker_trips"`
}

// Stats computes task-level statistics. completionRate = done / max(1,
// total - backlog), excluding tasks that never left the backlog from the
// denominator so a large unstarted queue doesn't dilute the rate.
func Stats(db *sql.DB) (*TaskStats, error) {
	var backlog, inProgress, done, blocked, total, trips int
	var avgScore sql.NullFloat64

	err := RetryWithBackoff(context.Background(), func() error {
		return db.QueryRowContext(context.Background(), `
			SELECT
				COALESCE(SUM(CASE WHEN status = 'backlog' THEN 1 ELSE 0 END), 0),
				COALESCE(SUM(CASE WHEN status = 'done' THEN 1 ELSE 0 END), 0),
				COALESCE(SUM(CASE WHEN status = 'blocked' THEN 1 ELSE 0 END), 0),
				COALESCE(SUM(CASE WHEN status NOT IN ('backlog','done','blocked') THEN 1 ELSE 0 END), 0),
				COUNT(*),
				AVG(review_score),
				COALESCE(SUM(CASE WHEN plan_review_count >= 3 OR impl_review_count >= 3 THEN 1 ELSE 0 END), 0)
			FROM tasks WHERE archived_at IS NULL
		`).Scan(&backlog, &done, &blocked, &inProgress, &total, &avgScore, &trips)
	})
	if err != nil {
		return nil, fmt.Errorf("compute task stats: %w", err)
	}

	denom := total - backlog
	if denom < 1 {
		denom = 1
	}

	stats := &TaskStats{
		Backlog:            backlog,
		InProgress:         inProgress,
		Done:               done,
		Blocked:            blocked,
		CompletionRate:     float64(done) / float64(denom),
		CircuitBreakerTrips: trips,
	}
	if avgScore.Valid {
		stats.AvgReviewScore = avgScore.Float64
	}
	return stats, nil
}

const taskSelectColumns = `SELECT
	id, title, description, tier, priority, status, current_agent, auto_mode, auto_merge,
	created_at, started_at, completed_at, archived_at,
	brainstorm_output, design_review, plan, implementation_notes, review_comments, review_score,
	test_results, verify_result, commit_hash,
	plan_review_count, impl_review_count,
	paused_from_status, pause_reason,
	branch_name, worktree_path,
	group_id, work_order, assigned_skill,
	active_session_id, rich_handoff, todos,
	version`

type scannable interface {
	Scan(dest ...any) error
}

func scanTask(row scannable) (*models.Task, error) {
	return scanTaskInto(row)
}

func scanTaskRows(rows *sql.Rows) (*models.Task, error) {
	return scanTaskInto(rows)
}

func scanTaskInto(row scannable) (*models.Task, error) {
	var t models.Task
	var tier, priority, status string
	var currentAgent, pausedFromStatus, pauseReason sql.NullString
	var startedAt, completedAt, archivedAt sql.NullTime
	var brainstorm, design, plan, implNotes, reviewComments, verifyResult, commitHash sql.NullString
	var reviewScore sql.NullFloat64
	var testResultsJSON sql.NullString
	var branchName, worktreePath, assignedSkill, activeSessionID, richHandoff, todos sql.NullString
	var workOrderJSON sql.NullString
	var groupID sql.NullInt64
	var autoMode, autoMerge int

	if err := row.Scan(
		&t.ID, &t.Title, &t.Description, &tier, &priority, &status, &currentAgent, &autoMode, &autoMerge,
		&t.CreatedAt, &startedAt, &completedAt, &archivedAt,
		&brainstorm, &design, &plan, &implNotes, &reviewComments, &reviewScore,
		&testResultsJSON, &verifyResult, &commitHash,
		&t.PlanReviewCount, &t.ImplReviewCount,
		&pausedFromStatus, &pauseReason,
		&branchName, &worktreePath,
		&groupID, &workOrderJSON, &assignedSkill,
		&activeSessionID, &richHandoff, &todos,
		&t.Version,
	); err != nil {
		return nil, err
	}

	t.Tier = models.Tier(tier)
	t.Priority = models.Priority(priority)
	t.Status = models.TaskStatus(status)
	t.AutoMode = autoMode != 0
	t.AutoMerge = autoMerge != 0
	if currentAgent.Valid {
		s := models.Stage(currentAgent.String)
		t.CurrentAgent = &s
	}
	if startedAt.Valid {
		t.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		t.CompletedAt = &completedAt.Time
	}
	if archivedAt.Valid {
		t.ArchivedAt = &archivedAt.Time
	}
	t.BrainstormOutput = nullableFromSQL(brainstorm)
	t.DesignReview = nullableFromSQL(design)
	t.Plan = nullableFromSQL(plan)
	t.ImplementationNotes = nullableFromSQL(implNotes)
	t.ReviewComments = nullableFromSQL(reviewComments)
	if reviewScore.Valid {
		t.ReviewScore = &reviewScore.Float64
	}
	if testResultsJSON.Valid && testResultsJSON.String != "" {
		var tr models.TestResults
		if err := json.Unmarshal([]byte(testResultsJSON.String), &tr); err == nil {
			t.TestResults = &tr
		}
	}
	t.VerifyResult = nullableFromSQL(verifyResult)
	t.CommitHash = nullableFromSQL(commitHash)
	if pausedFromStatus.Valid {
		s := models.TaskStatus(pausedFromStatus.String)
		t.PausedFromStatus = &s
	}
	if pauseReason.Valid {
		r := models.PauseReason(pauseReason.String)
		t.PauseReason = &r
	}
	t.BranchName = nullableFromSQL(branchName)
	t.WorktreePath = nullableFromSQL(worktreePath)
	if groupID.Valid {
		t.GroupID = &groupID.Int64
	}
	if workOrderJSON.Valid && workOrderJSON.String != "" {
		var wo models.WorkOrder
		if err := json.Unmarshal([]byte(workOrderJSON.String), &wo); err == nil {
			t.WorkOrder = &wo
		}
	}
	t.AssignedSkill = nullableFromSQL(assignedSkill)
	t.ActiveSessionID = nullableFromSQL(activeSessionID)
	t.RichHandoff = nullableFromSQL(richHandoff)
	t.Todos = nullableFromSQL(todos)

	return &t, nil
}

func buildTaskPatchSQL(p TaskPatch) ([]string, []any, error) {
	var sets []string
	var args []any

	add := func(col string, val any) {
		sets = append(sets, col+" = ?")
		args = append(args, val)
	}

	if p.Title != nil {
		add("title", *p.Title)
	}
	if p.Description != nil {
		add("description", *p.Description)
	}
	if p.Tier != nil {
		add("tier", string(*p.Tier))
	}
	if p.Priority != nil {
		add("priority", string(*p.Priority))
	}
	if p.Status != nil {
		add("status", string(*p.Status))
	}
	if p.CurrentAgent != nil {
		if *p.CurrentAgent == nil {
			add("current_agent", nil)
		} else {
			add("current_agent", string(**p.CurrentAgent))
		}
	}
	if p.AutoMode != nil {
		add("auto_mode", boolToInt(*p.AutoMode))
	}
	if p.AutoMerge != nil {
		add("auto_merge", boolToInt(*p.AutoMerge))
	}
	if p.StartedAt != nil {
		add("started_at", nullableTimeValue(*p.StartedAt))
	}
	if p.CompletedAt != nil {
		add("completed_at", nullableTimeValue(*p.CompletedAt))
	}
	if p.ArchivedAt != nil {
		add("archived_at", nullableTimeValue(*p.ArchivedAt))
	}
	if p.BrainstormOutput != nil {
		add("brainstorm_output", nullableStringValue(*p.BrainstormOutput))
	}
	if p.DesignReview != nil {
		add("design_review", nullableStringValue(*p.DesignReview))
	}
	if p.Plan != nil {
		add("plan", nullableStringValue(*p.Plan))
	}
	if p.ImplementationNotes != nil {
		add("implementation_notes", nullableStringValue(*p.ImplementationNotes))
	}
	if p.ReviewComments != nil {
		add("review_comments", nullableStringValue(*p.ReviewComments))
	}
	if p.ReviewScore != nil {
		if *p.ReviewScore == nil {
			add("review_score", nil)
		} else {
			add("review_score", **p.ReviewScore)
		}
	}
	if p.TestResults != nil {
		if *p.TestResults == nil {
			add("test_results", nil)
		} else {
			b, err := json.Marshal(**p.TestResults)
			if err != nil {
				return nil, nil, fmt.Errorf("marshal test results: %w", err)
			}
			add("test_results", string(b))
		}
	}
	if p.VerifyResult != nil {
		add("verify_result", nullableStringValue(*p.VerifyResult))
	}
	if p.CommitHash != nil {
		add("commit_hash", nullableStringValue(*p.CommitHash))
	}
	if p.PlanReviewCount != nil {
		add("plan_review_count", *p.PlanReviewCount)
	}
	if p.ImplReviewCount != nil {
		add("impl_review_count", *p.ImplReviewCount)
	}
	if p.PausedFromStatus != nil {
		if *p.PausedFromStatus == nil {
			add("paused_from_status", nil)
		} else {
			add("paused_from_status", string(**p.PausedFromStatus))
		}
	}
	if p.PauseReason != nil {
		if *p.PauseReason == nil {
			add("pause_reason", nil)
		} else {
			add("pause_reason", string(**p.PauseReason))
		}
	}
	if p.BranchName != nil {
		add("branch_name", nullableStringValue(*p.BranchName))
	}
	if p.WorktreePath != nil {
		add("worktree_path", nullableStringValue(*p.WorktreePath))
	}
	if p.GroupID != nil {
		if *p.GroupID == nil {
			add("group_id", nil)
		} else {
			add("group_id", **p.GroupID)
		}
	}
	if p.WorkOrder != nil {
		if *p.WorkOrder == nil {
			add("work_order", nil)
		} else {
			b, err := json.Marshal(**p.WorkOrder)
			if err != nil {
				return nil, nil, fmt.Errorf("marshal work order: %w", err)
			}
			add("work_order", string(b))
		}
	}
	if p.AssignedSkill != nil {
		add("assigned_skill", nullableStringValue(*p.AssignedSkill))
	}
	if p.ActiveSessionID != nil {
		add("active_session_id", nullableStringValue(*p.ActiveSessionID))
	}
	if p.RichHandoff != nil {
		add("rich_handoff", nullableStringValue(*p.RichHandoff))
	}
	if p.Todos != nil {
		add("todos", nullableStringValue(*p.Todos))
	}

	return sets, args, nil
}

func joinSets(sets []string) string {
	out := ""
	for i, s := range sets {
		if i > 0 {
			out += ", "
		}
		out += s
	}
	return out
}
