package commands

import (
	"database/sql"
	"errors"

	"github.com/spf13/cobra"

	"github.com/clawflow/clawflow/internal/store"
)

// NewProjectCmd creates the project command group for registering and
// inspecting projects outside of a running server.
func NewProjectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Register and inspect projects",
	}

	cmd.AddCommand(newProjectRegisterCmd())
	cmd.AddCommand(newProjectListCmd())
	cmd.AddCommand(newProjectDeregisterCmd())

	return cmd
}

func newProjectRegisterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a project directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			path, _ := cmd.Flags().GetString("path")
			if name == "" || path == "" {
				return cmdErr(errors.New("--name and --path are required"))
			}

			var project *store.Project
			if err := withGlobalDB(func(db *sql.DB) error {
				p, err := store.RegisterProject(db, name, path)
				if err != nil {
					return err
				}
				project = p
				return nil
			}); err != nil {
				return err
			}
			return printResult(project)
		},
	}
	cmd.Flags().String("name", "", "Project name (required)")
	cmd.Flags().String("path", "", "Path to the project's git repository (required)")
	return cmd
}

func newProjectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			var projects []*store.Project
			if err := withGlobalDB(func(db *sql.DB) error {
				p, err := store.ListProjects(db)
				if err != nil {
					return err
				}
				projects = p
				return nil
			}); err != nil {
				return err
			}
			return printResult(projects)
		},
	}
}

func newProjectDeregisterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deregister",
		Short: "Deregister a project (leaves its files and database untouched)",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			if name == "" {
				return cmdErr(errors.New("--name is required"))
			}
			if err := withGlobalDB(func(db *sql.DB) error {
				p, err := store.GetProjectByName(db, name)
				if err != nil {
					return err
				}
				return store.DeregisterProject(db, p.ID)
			}); err != nil {
				return err
			}
			return printResult(map[string]bool{"deregistered": true})
		},
	}
	cmd.Flags().String("name", "", "Project name (required)")
	return cmd
}
