package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/clawflow/clawflow/internal/models"
)

func TestAppendHandoff_ListedInChainOrder(t *testing.T) {
	db := newTestDB(t)

	task := mustCreateTask(t, db, "plan the thing")

	_, err := AppendHandoff(db, models.Handoff{TaskID: task, Stage: models.StageBrainstorm, Status: models.HandoffCompleted, Summary: "first"})
	require.NoError(t, err)
	_, err = AppendHandoff(db, models.Handoff{TaskID: task, Stage: models.StagePlan, Status: models.HandoffCompleted, Summary: "second"})
	require.NoError(t, err)

	chain, err := ListHandoffs(db, task)
	require.NoError(t, err)
	require.Len(t, chain, 2)
	require.Equal(t, "first", chain[0].Summary)
	require.Equal(t, "second", chain[1].Summary)

	latest, err := LatestHandoff(db, task)
	require.NoError(t, err)
	require.Equal(t, "second", latest.Summary)
}

func TestLatestHandoff_NoneYetReturnsNil(t *testing.T) {
	db := newTestDB(t)
	task := mustCreateTask(t, db, "untouched")

	latest, err := LatestHandoff(db, task)
	require.NoError(t, err)
	require.Nil(t, latest)
}

func TestAppendLogEntry_AuditTrailOrdered(t *testing.T) {
	db := newTestDB(t)
	task := mustCreateTask(t, db, "audited")

	require.NoError(t, AppendLogEntry(db, models.AgentLogEntry{TaskID: task, Agent: "implementer", Action: "tool_call", Details: "read file"}))
	require.NoError(t, AppendLogEntry(db, models.AgentLogEntry{TaskID: task, Agent: "implementer", Action: "tool_call", Details: "write file"}))

	entries, err := ListLogEntries(db, task)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "read file", entries[0].Details)
	require.Equal(t, "write file", entries[1].Details)
}
