package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/clawflow/clawflow/internal/models"
)

func TestCreateGroup_Defaults(t *testing.T) {
	db := newTestDB(t)

	_, err := CreateGroup(db, "", "session-1")
	require.Error(t, err)

	group, err := CreateGroup(db, "refactor auth", "session-1")
	require.NoError(t, err)
	require.Equal(t, models.GroupStatusPlanning, group.Status)
	require.NotNil(t, group.SessionID)
	require.Equal(t, "session-1", *group.SessionID)
}

func TestUpdateGroup_VersionConflict(t *testing.T) {
	db := newTestDB(t)

	group, err := CreateGroup(db, "refactor auth", "")
	require.NoError(t, err)

	active := models.GroupStatusActive
	updated, err := UpdateGroup(db, group.ID, GroupPatch{Status: &active}, group.Version)
	require.NoError(t, err)
	require.Equal(t, models.GroupStatusActive, updated.Status)

	_, err = UpdateGroup(db, group.ID, GroupPatch{Status: &active}, group.Version)
	require.ErrorIs(t, err, ErrVersionConflict)
}

func TestDeleteGroup_UnlinksMemberTasks(t *testing.T) {
	db := newTestDB(t)

	group, err := CreateGroup(db, "rollout", "")
	require.NoError(t, err)

	groupID := group.ID
	groupIDPtr := &groupID
	task, err := CreateTask(db, models.Task{Title: "member task"})
	require.NoError(t, err)
	_, err = UpdateTask(db, task.ID, TaskPatch{GroupID: &groupIDPtr}, -1)
	require.NoError(t, err)

	require.NoError(t, DeleteGroup(db, group.ID))

	reloaded, err := GetTask(db, task.ID)
	require.NoError(t, err)
	require.Nil(t, reloaded.GroupID)
}

func TestGetTasksByGroup(t *testing.T) {
	db := newTestDB(t)

	group, err := CreateGroup(db, "batch", "")
	require.NoError(t, err)
	groupID := group.ID
	groupIDPtr := &groupID

	for i := 0; i < 3; i++ {
		task, err := CreateTask(db, models.Task{Title: "member"})
		require.NoError(t, err)
		_, err = UpdateTask(db, task.ID, TaskPatch{GroupID: &groupIDPtr}, -1)
		require.NoError(t, err)
	}

	members, err := GetTasksByGroup(db, group.ID)
	require.NoError(t, err)
	require.Len(t, members, 3)
}
