package commands

import (
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/clawflow/clawflow/internal/store"
)

// NewDoctorCmd checks configuration, database connectivity, and that git is
// on PATH, since the VCS Adapter shells out to it for every operation.
func NewDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, database connectivity, and git availability",
		RunE: func(cmd *cobra.Command, args []string) error {
			dbPath, err := resolveGlobalDBPath()
			if err != nil {
				return cmdErr(err)
			}

			var dbOK bool
			var dbErr string
			db, err := store.InitDBWithPath(dbPath)
			if err != nil {
				dbErr = err.Error()
			} else {
				dbOK = true
				defer db.Close()
			}

			queryOK := false
			if dbOK {
				var one int
				if qerr := db.QueryRow("SELECT 1").Scan(&one); qerr == nil {
					queryOK = true
				}
			}

			_, gitErr := exec.LookPath("git")

			type resp struct {
				DBPath  string `json:"db_path"`
				DBOK    bool   `json:"db_ok"`
				DBErr   string `json:"db_error,omitempty"`
				QueryOK bool   `json:"query_ok"`
				GitOK   bool   `json:"git_ok"`
			}
			return printResult(resp{
				DBPath:  dbPath,
				DBOK:    dbOK,
				DBErr:   dbErr,
				QueryOK: queryOK,
				GitOK:   gitErr == nil,
			})
		},
	}
}
