package models

import (
	"encoding/json"
	"time"
)

// Event kinds emitted by the core on the streaming event protocol. Agents
// may also emit freeform text events (thinking, progress notes) which are
// not enumerated here.
const (
	EventPipelineStream           = "pipeline:stream"
	EventPipelineTodosUpdated     = "pipeline:todos-updated"
	EventPipelineApprovalRequest  = "pipeline:approval-request"
	EventPipelineStageChange      = "pipeline:stageChange"
	EventStageStart               = "stage:start"
	EventStageComplete            = "stage:complete"
	EventStageError               = "stage:error"
	EventStagePause                = "stage:pause"
	EventCircuitBreaker            = "circuit-breaker"
	EventGroupCreated              = "group:created"
	EventGroupTaskStageComplete    = "group:task-stage-complete"
	EventGroupPaused               = "group:paused"
	EventGroupCompleted            = "group:completed"
	EventGroupDeleted              = "group:deleted"
	EventContextUpdate             = "context-update"
	EventGitError                  = "git:error"
	EventWorktreeCreated           = "worktree:created"
	EventBranchCreated             = "branch:created"
	EventCommitComplete            = "commit:complete"
	EventPushComplete               = "push:complete"
	EventMergeComplete              = "merge:complete"
	EventMergeConflict               = "merge:conflict"
	EventWorktreeRemoved             = "worktree:removed"
	EventBranchDeleted               = "branch:deleted"
)

// StreamType is the sub-kind of a pipeline:stream payload.
type StreamType string

const (
	StreamText      StreamType = "text"
	StreamToolUse   StreamType = "tool_use"
	StreamContext   StreamType = "context"
	StreamThinking  StreamType = "thinking"
)

// Event is a single record on the streaming event protocol: a typed kind
// plus a JSON payload. The renderer treats events as idempotent updates.
type Event struct {
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}
