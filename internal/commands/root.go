package commands

import (
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/clawflow/clawflow/internal/app"
)

// Execute runs the CLI application.
func Execute(version string) error {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	root := &cobra.Command{
		Use:           "clawflow",
		Short:         "Local orchestration for multi-stage LLM coding agents",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := app.EnsureConfigDir(); err != nil {
				return err
			}
			if dbPath, err := cmd.Flags().GetString("db-path"); err == nil && dbPath != "" {
				os.Setenv("CLAWFLOW_DB_PATH", dbPath)
			}
			return nil
		},
	}

	root.PersistentFlags().String("db-path", "", "Override the global database path")
	root.Flags().BoolP("version", "v", false, "print the version and exit")
	root.RunE = func(cmd *cobra.Command, args []string) error {
		showVersion, _ := cmd.Flags().GetBool("version")
		if showVersion {
			slog.Info("clawflow version", "version", version)
			return nil
		}
		return cmd.Help()
	}

	root.AddCommand(NewServeCmd())
	root.AddCommand(NewProjectCmd())
	root.AddCommand(NewDoctorCmd())

	err := root.Execute()
	if err != nil {
		var pe printedError
		if !errors.As(err, &pe) {
			slog.Default().Error("command failed", "error", err.Error())
		}
	}
	return err
}
