package sdkrunner

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckPermission_ReadOnlyToolAlwaysAllowed(t *testing.T) {
	r := &Runner{registry: NewRegistry()}
	decision, waitCh, _ := r.checkPermission(context.Background(), RunParams{}, "Read", nil)
	require.True(t, decision.allowed)
	require.Nil(t, waitCh)
}

func TestCheckPermission_OrchestrationToolAlwaysAllowed(t *testing.T) {
	r := &Runner{registry: NewRegistry()}
	decision, waitCh, _ := r.checkPermission(context.Background(), RunParams{}, "TaskUpdate", nil)
	require.True(t, decision.allowed)
	require.Nil(t, waitCh)
}

func TestCheckPermission_WriteWithinWorkingDirAllowed(t *testing.T) {
	r := &Runner{registry: NewRegistry()}
	dir := t.TempDir()
	input, _ := json.Marshal(writeEditInput{FilePath: filepath.Join(dir, "sub", "file.go")})

	decision, waitCh, _ := r.checkPermission(context.Background(), RunParams{WorkingDir: dir}, "Write", input)
	require.True(t, decision.allowed)
	require.Nil(t, waitCh)
	require.DirExists(t, filepath.Join(dir, "sub"))
}

func TestCheckPermission_WriteOutsideWorkingDirSuspendsForApproval(t *testing.T) {
	r := &Runner{registry: NewRegistry()}
	dir := t.TempDir()
	input, _ := json.Marshal(writeEditInput{FilePath: "/etc/passwd"})

	decision, waitCh, requestID := r.checkPermission(context.Background(), RunParams{WorkingDir: dir, SessionKey: "task-1"}, "Write", input)
	require.False(t, decision.allowed)
	require.NotNil(t, waitCh)
	require.NotEmpty(t, requestID)
}

func TestCheckPermission_MkdirBashCommandAllowed(t *testing.T) {
	r := &Runner{registry: NewRegistry()}
	input, _ := json.Marshal(struct {
		Command string `json:"command"`
	}{Command: "mkdir -p build/output"})

	decision, waitCh, _ := r.checkPermission(context.Background(), RunParams{}, "Bash", input)
	require.True(t, decision.allowed)
	require.Nil(t, waitCh)
}

func TestCheckPermission_ArbitraryBashSuspendsUnlessAutoMode(t *testing.T) {
	r := &Runner{registry: NewRegistry()}
	input, _ := json.Marshal(struct {
		Command string `json:"command"`
	}{Command: "rm -rf /"})

	decision, waitCh, _ := r.checkPermission(context.Background(), RunParams{SessionKey: "task-1"}, "Bash", input)
	require.False(t, decision.allowed)
	require.NotNil(t, waitCh)

	autoDecision, autoWaitCh, _ := r.checkPermission(context.Background(), RunParams{AutoMode: true}, "Bash", input)
	require.True(t, autoDecision.allowed)
	require.Nil(t, autoWaitCh)
}

func TestPathWithin_RejectsEscapingPaths(t *testing.T) {
	dir := t.TempDir()
	require.True(t, pathWithin(dir, filepath.Join(dir, "a", "b.txt")))
	require.False(t, pathWithin(dir, filepath.Join(dir, "..", "outside.txt")))
}
