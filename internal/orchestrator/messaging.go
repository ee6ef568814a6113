package orchestrator

import (
	"context"
	"fmt"

	"github.com/clawflow/clawflow/internal/models"
	"github.com/clawflow/clawflow/internal/store"
)

// MessageAgent records content as a "message" entry in the task's audit
// log. The task must have an active session. The entry is not delivered to
// the running session: no stage prompt reads audit-log entries.
func (o *Orchestrator) MessageAgent(ctx context.Context, taskID int64, content string) error {
	task, err := store.GetTask(o.db, taskID)
	if err != nil {
		return err
	}
	if task.ActiveSessionID == nil {
		return models.NewPreconditionError(fmt.Sprintf("task %d has no active session", taskID), nil)
	}
	return store.AppendLogEntry(o.db, models.AgentLogEntry{
		TaskID: taskID,
		Action: "message",
		Details: content,
	})
}

// PeekAgent returns a snapshot of the task's most recent stage output,
// without interrupting its running session.
func (o *Orchestrator) PeekAgent(ctx context.Context, taskID int64) (string, error) {
	task, err := store.GetTask(o.db, taskID)
	if err != nil {
		return "", err
	}
	if task.CurrentAgent == nil {
		return "", nil
	}
	switch *task.CurrentAgent {
	case models.StageBrainstorm:
		return derefString(task.BrainstormOutput), nil
	case models.StageDesignReview:
		return derefString(task.DesignReview), nil
	case models.StagePlan:
		return derefString(task.Plan), nil
	case models.StageImplement:
		return derefString(task.ImplementationNotes), nil
	case models.StageCodeReview:
		return derefString(task.ReviewComments), nil
	case models.StageVerify:
		return derefString(task.VerifyResult), nil
	default:
		return "", nil
	}
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
