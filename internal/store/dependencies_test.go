package store

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/clawflow/clawflow/internal/models"
)

func mustCreateTask(t *testing.T, db *sql.DB, title string) int64 {
	t.Helper()
	task, err := CreateTask(db, models.Task{Title: title})
	require.NoError(t, err)
	return task.ID
}

func TestAddDependency_RefusesSelfAndCycle(t *testing.T) {
	db := newTestDB(t)

	a := mustCreateTask(t, db, "a")
	b := mustCreateTask(t, db, "b")
	c := mustCreateTask(t, db, "c")

	require.Error(t, AddDependency(db, a, a))

	require.NoError(t, AddDependency(db, b, a)) // b depends on a
	require.NoError(t, AddDependency(db, c, b)) // c depends on b

	// a -> c would close the loop a -> c -> b -> a.
	err := AddDependency(db, a, c)
	require.Error(t, err)
}

func TestAreDependenciesMet(t *testing.T) {
	db := newTestDB(t)

	a := mustCreateTask(t, db, "a")
	b := mustCreateTask(t, db, "b")
	require.NoError(t, AddDependency(db, b, a))

	met, err := AreDependenciesMet(db, b)
	require.NoError(t, err)
	require.False(t, met)

	doneStatus := models.StatusDone
	_, err = UpdateTask(db, a, TaskPatch{Status: &doneStatus}, -1)
	require.NoError(t, err)

	met, err = AreDependenciesMet(db, b)
	require.NoError(t, err)
	require.True(t, met)
}

func TestRemoveDependency(t *testing.T) {
	db := newTestDB(t)

	a := mustCreateTask(t, db, "a")
	b := mustCreateTask(t, db, "b")
	require.NoError(t, AddDependency(db, b, a))

	require.NoError(t, RemoveDependency(db, b, a))

	deps, err := GetDependencies(db, b)
	require.NoError(t, err)
	require.Empty(t, deps)
}
