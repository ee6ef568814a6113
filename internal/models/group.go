package models

import "time"

// GroupStatus is the lifecycle state of a TaskGroup.
type GroupStatus string

const (
	GroupStatusPlanning  GroupStatus = "planning"
	GroupStatusQueued    GroupStatus = "queued"
	GroupStatusRunning   GroupStatus = "running"
	GroupStatusPaused    GroupStatus = "paused"
	GroupStatusCompleted GroupStatus = "completed"
)

// TaskGroup is a set of tasks implementing one feature, produced together
// from a conversational session.
type TaskGroup struct {
	ID        int64       `json:"id"`
	Title     string      `json:"title"`
	SessionID *string     `json:"session_id,omitempty"`
	Status    GroupStatus `json:"status"`

	SharedContext  string  `json:"shared_context,omitempty"`
	DesignArtifact *string `json:"design_artifact,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	Version   int       `json:"version"`
}
