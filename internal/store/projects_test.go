package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegisterProject_IsIdempotentByName(t *testing.T) {
	db := newTestDB(t)

	first, err := RegisterProject(db, "clawflow", "/home/user/clawflow")
	require.NoError(t, err)

	second, err := RegisterProject(db, "clawflow", "/home/user/clawflow")
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	_, err = RegisterProject(db, "", "/tmp")
	require.Error(t, err)
}

func TestOpenProject_StampsLastOpenedAt(t *testing.T) {
	db := newTestDB(t)

	project, err := RegisterProject(db, "widgets", "/srv/widgets")
	require.NoError(t, err)
	require.Nil(t, project.LastOpenedAt)

	opened, err := OpenProject(db, project.ID)
	require.NoError(t, err)
	require.NotNil(t, opened.LastOpenedAt)
}

func TestDeregisterProject(t *testing.T) {
	db := newTestDB(t)

	project, err := RegisterProject(db, "gone-soon", "/tmp/gone")
	require.NoError(t, err)

	require.NoError(t, DeregisterProject(db, project.ID))

	_, err = GetProjectByName(db, "gone-soon")
	require.Error(t, err)
}
