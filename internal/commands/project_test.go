package commands

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/clawflow/clawflow/internal/store"
)

// captureStdout runs fn with os.Stdout redirected to a pipe and returns
// everything written to it. printResult writes straight to os.Stdout rather
// than a cobra-injected writer, so tests exercising it must intercept the
// process-level file descriptor.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	orig := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	fn()

	require.NoError(t, w.Close())
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(out)
}

func TestProjectRegister_RequiresNameAndPath(t *testing.T) {
	t.Setenv("CLAWFLOW_DB_PATH", filepath.Join(t.TempDir(), "global.db"))
	cmd := newProjectRegisterCmd()
	cmd.SetArgs([]string{})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	err := cmd.Execute()
	require.Error(t, err)
}

func TestProjectRegisterAndList_RoundTrips(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "global.db")
	t.Setenv("CLAWFLOW_DB_PATH", dbPath)

	registerCmd := newProjectRegisterCmd()
	registerCmd.SetArgs([]string{"--name", "demo", "--path", "/tmp/demo"})
	out := captureStdout(t, func() {
		require.NoError(t, registerCmd.Execute())
	})
	var registered store.Project
	require.NoError(t, json.Unmarshal([]byte(out), &registered))
	require.Equal(t, "demo", registered.Name)

	listCmd := newProjectListCmd()
	out = captureStdout(t, func() {
		require.NoError(t, listCmd.Execute())
	})
	var projects []*store.Project
	require.NoError(t, json.Unmarshal([]byte(out), &projects))
	require.Len(t, projects, 1)
	require.Equal(t, "demo", projects[0].Name)
}

func TestProjectDeregister_RequiresName(t *testing.T) {
	t.Setenv("CLAWFLOW_DB_PATH", filepath.Join(t.TempDir(), "global.db"))
	cmd := newProjectDeregisterCmd()
	cmd.SetArgs([]string{})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	err := cmd.Execute()
	require.Error(t, err)
}

func TestProjectDeregister_UnknownNameReturnsError(t *testing.T) {
	t.Setenv("CLAWFLOW_DB_PATH", filepath.Join(t.TempDir(), "global.db"))
	cmd := newProjectDeregisterCmd()
	cmd.SetArgs([]string{"--name", "does-not-exist"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	err := cmd.Execute()
	require.Error(t, err)
}
