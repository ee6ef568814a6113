// Package models defines the entity structs persisted by the Store and
// passed between the Pipeline Engine, Group Orchestrator, and SDK Runner.
package models

import "time"

// Tier selects the stage sequence a task flows through.
type Tier string

const (
	TierL1 Tier = "L1"
	TierL2 Tier = "L2"
	TierL3 Tier = "L3"
)

// Priority is the task's scheduling priority within a group.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// TaskStatus is the task's externally visible lifecycle state.
type TaskStatus string

const (
	StatusBacklog         TaskStatus = "backlog"
	StatusBrainstorming    TaskStatus = "brainstorming"
	StatusDesignReview     TaskStatus = "design_review"
	StatusPlanning         TaskStatus = "planning"
	StatusImplementing     TaskStatus = "implementing"
	StatusCodeReview       TaskStatus = "code_review"
	StatusVerifying        TaskStatus = "verifying"
	StatusDone             TaskStatus = "done"
	StatusBlocked          TaskStatus = "blocked"
	StatusPaused           TaskStatus = "paused"
)

// IsTerminal reports whether the status can no longer advance on its own.
func (s TaskStatus) IsTerminal() bool {
	return s == StatusDone || s == StatusBlocked
}

// PauseReason explains why a task is paused.
type PauseReason string

const (
	PauseReasonManual        PauseReason = "manual"
	PauseReasonUsageLimit    PauseReason = "usage_limit"
	PauseReasonMergeConflict PauseReason = "merge_conflict"
)

// Stage is one step in a tier's pipeline sequence.
type Stage string

const (
	StageBrainstorm   Stage = "brainstorm"
	StageDesignReview Stage = "design_review"
	StagePlan         Stage = "plan"
	StageImplement    Stage = "implement"
	StageCodeReview   Stage = "code_review"
	StageVerify       Stage = "verify"
	StageDone         Stage = "done"
)

// WorkOrder is the file-level assignment handed to a grouped task.
type WorkOrder struct {
	Objective         string              `json:"objective"`
	FileAssignments   []FileAssignment    `json:"file_assignments,omitempty"`
	Patterns          []string            `json:"patterns,omitempty"`
	IntegrationNotes  string              `json:"integration_notes,omitempty"`
	Constraints       []string            `json:"constraints,omitempty"`
	Tests             []string            `json:"tests,omitempty"`
}

// FileAssignmentAction is the kind of change a file assignment calls for.
type FileAssignmentAction string

const (
	FileActionCreate FileAssignmentAction = "create"
	FileActionModify FileAssignmentAction = "modify"
)

// FileAssignment names one file a grouped task is responsible for.
type FileAssignment struct {
	Path   string               `json:"path"`
	Action FileAssignmentAction `json:"action"`
}

// TestResults is the stage-output payload produced by the verify stage.
type TestResults struct {
	Passed  bool   `json:"passed"`
	Summary string `json:"summary,omitempty"`
}

// Task is one unit of work flowing through the pipeline.
type Task struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`

	Tier     Tier     `json:"tier"`
	Priority Priority `json:"priority"`

	Status       TaskStatus `json:"status"`
	CurrentAgent *Stage     `json:"current_agent,omitempty"`
	AutoMode     bool       `json:"auto_mode"`
	AutoMerge    bool       `json:"auto_merge"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	ArchivedAt  *time.Time `json:"archived_at,omitempty"`

	BrainstormOutput    *string      `json:"brainstorm_output,omitempty"`
	DesignReview        *string      `json:"design_review,omitempty"`
	Plan                *string      `json:"plan,omitempty"`
	ImplementationNotes *string      `json:"implementation_notes,omitempty"`
	ReviewComments      *string      `json:"review_comments,omitempty"`
	ReviewScore         *float64     `json:"review_score,omitempty"`
	TestResults         *TestResults `json:"test_results,omitempty"`
	VerifyResult        *string      `json:"verify_result,omitempty"`
	CommitHash          *string      `json:"commit_hash,omitempty"`

	PlanReviewCount int `json:"plan_review_count"`
	ImplReviewCount int `json:"impl_review_count"`

	PausedFromStatus *TaskStatus  `json:"paused_from_status,omitempty"`
	PauseReason      *PauseReason `json:"pause_reason,omitempty"`

	BranchName    *string `json:"branch_name,omitempty"`
	WorktreePath  *string `json:"worktree_path,omitempty"`

	DependsOn []int64 `json:"depends_on,omitempty"`

	GroupID       *int64     `json:"group_id,omitempty"`
	WorkOrder     *WorkOrder `json:"work_order,omitempty"`
	AssignedSkill *string    `json:"assigned_skill,omitempty"`

	ActiveSessionID *string `json:"active_session_id,omitempty"`
	RichHandoff     *string `json:"rich_handoff,omitempty"`
	Todos           *string `json:"todos,omitempty"` // JSON-encoded todo list

	Version int `json:"version"`
}

// CurrentAgentInvariant reports whether the status/currentAgent co-update
// invariant holds for this task.
func (t *Task) CurrentAgentInvariant() bool {
	nilAgent := t.CurrentAgent == nil
	terminalOrBacklog := t.Status == StatusBacklog || t.Status == StatusDone
	return nilAgent == terminalOrBacklog
}

// IsPaused reports whether the task is currently paused.
func (t *Task) IsPaused() bool {
	return t.Status == StatusPaused
}
