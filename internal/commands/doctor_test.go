package commands

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDoctor_ReportsDBAndGitHealth(t *testing.T) {
	t.Setenv("CLAWFLOW_DB_PATH", filepath.Join(t.TempDir(), "global.db"))

	cmd := NewDoctorCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	out := captureStdout(t, func() {
		require.NoError(t, cmd.Execute())
	})

	var report struct {
		DBPath  string `json:"db_path"`
		DBOK    bool   `json:"db_ok"`
		QueryOK bool   `json:"query_ok"`
		GitOK   bool   `json:"git_ok"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.True(t, report.DBOK)
	require.True(t, report.QueryOK)
	require.True(t, report.GitOK)
}
