package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/clawflow/clawflow/internal/models"
)

func TestCreateTask_DefaultsAndValidation(t *testing.T) {
	db := newTestDB(t)

	_, err := CreateTask(db, models.Task{})
	require.Error(t, err)

	task, err := CreateTask(db, models.Task{Title: "add retry budget"})
	require.NoError(t, err)
	require.Equal(t, models.StatusBacklog, task.Status)
	require.Equal(t, models.TierL2, task.Tier)
	require.Equal(t, models.PriorityMedium, task.Priority)
	require.Nil(t, task.CurrentAgent)
	require.Equal(t, 0, task.Version)
}

func TestGetTask_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := GetTask(db, 999)
	require.Error(t, err)
}

func TestUpdateTask_OptimisticConcurrency(t *testing.T) {
	db := newTestDB(t)

	task, err := CreateTask(db, models.Task{Title: "wire circuit breaker"})
	require.NoError(t, err)

	newTitle := "wire circuit breaker v2"
	updated, err := UpdateTask(db, task.ID, TaskPatch{Title: &newTitle}, task.Version)
	require.NoError(t, err)
	require.Equal(t, newTitle, updated.Title)
	require.Equal(t, task.Version+1, updated.Version)

	// Reusing the stale version must fail.
	staleTitle := "stale"
	_, err = UpdateTask(db, task.ID, TaskPatch{Title: &staleTitle}, task.Version)
	require.ErrorIs(t, err, ErrVersionConflict)
}

func TestUpdateTask_CurrentAgentDoublePointerSemantics(t *testing.T) {
	db := newTestDB(t)

	task, err := CreateTask(db, models.Task{Title: "implement stage"})
	require.NoError(t, err)

	stage := models.StageImplement
	stagePtr := &stage
	updated, err := UpdateTask(db, task.ID, TaskPatch{CurrentAgent: &stagePtr}, -1)
	require.NoError(t, err)
	require.NotNil(t, updated.CurrentAgent)
	require.Equal(t, models.StageImplement, *updated.CurrentAgent)

	var clearedAgent *models.Stage
	cleared, err := UpdateTask(db, task.ID, TaskPatch{CurrentAgent: &clearedAgent}, -1)
	require.NoError(t, err)
	require.Nil(t, cleared.CurrentAgent)
}

func TestListTasks_FiltersByStatusAndArchival(t *testing.T) {
	db := newTestDB(t)

	a, err := CreateTask(db, models.Task{Title: "task a"})
	require.NoError(t, err)
	b, err := CreateTask(db, models.Task{Title: "task b"})
	require.NoError(t, err)

	doneStatus := models.StatusDone
	_, err = UpdateTask(db, a.ID, TaskPatch{Status: &doneStatus}, -1)
	require.NoError(t, err)

	archived, err := ArchiveTask(db, b.ID)
	require.NoError(t, err)
	require.NotNil(t, archived.ArchivedAt)

	done, err := ListTasks(db, ListTasksFilter{Status: models.StatusDone})
	require.NoError(t, err)
	require.Len(t, done, 1)
	require.Equal(t, a.ID, done[0].ID)

	withoutArchived, err := ListTasks(db, ListTasksFilter{})
	require.NoError(t, err)
	for _, task := range withoutArchived {
		require.NotEqual(t, b.ID, task.ID)
	}

	all, err := ListTasks(db, ListTasksFilter{IncludeArchived: true})
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestDeleteTask(t *testing.T) {
	db := newTestDB(t)

	task, err := CreateTask(db, models.Task{Title: "throwaway"})
	require.NoError(t, err)

	require.NoError(t, DeleteTask(db, task.ID))

	_, err = GetTask(db, task.ID)
	require.Error(t, err)
}

func TestStats_ExcludesBacklogFromCompletionDenominator(t *testing.T) {
	db := newTestDB(t)

	inProgress, err := CreateTask(db, models.Task{Title: "in flight"})
	require.NoError(t, err)
	implementing := models.StatusImplementing
	_, err = UpdateTask(db, inProgress.ID, TaskPatch{Status: &implementing}, -1)
	require.NoError(t, err)

	done, err := CreateTask(db, models.Task{Title: "finished"})
	require.NoError(t, err)
	doneStatus := models.StatusDone
	_, err = UpdateTask(db, done.ID, TaskPatch{Status: &doneStatus}, -1)
	require.NoError(t, err)

	// Backlog tasks should not dilute the completion rate.
	_, err = CreateTask(db, models.Task{Title: "untouched backlog"})
	require.NoError(t, err)

	stats, err := Stats(db)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Backlog)
	require.Equal(t, 1, stats.Done)
	require.Equal(t, 1, stats.InProgress)
	require.InDelta(t, 0.5, stats.CompletionRate, 0.0001)
}
