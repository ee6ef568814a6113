package commands

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// withArgs temporarily replaces os.Args for the duration of fn, since
// Execute builds its root cobra.Command fresh each call and parses
// os.Args[1:] rather than taking an explicit argument list.
func withArgs(t *testing.T, args []string, fn func()) {
	t.Helper()
	orig := os.Args
	os.Args = append([]string{"clawflow"}, args...)
	defer func() { os.Args = orig }()
	fn()
}

func TestExecute_VersionFlagPrintsAndReturnsNil(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("CLAWFLOW_DB_PATH", filepath.Join(t.TempDir(), "global.db"))

	withArgs(t, []string{"--version"}, func() {
		require.NoError(t, Execute("test-version"))
	})
}

func TestExecute_DoctorSubcommandRunsClean(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("CLAWFLOW_DB_PATH", filepath.Join(t.TempDir(), "global.db"))

	withArgs(t, []string{"doctor"}, func() {
		out := captureStdout(t, func() {
			require.NoError(t, Execute("test-version"))
		})
		require.Contains(t, out, "db_ok")
	})
}
