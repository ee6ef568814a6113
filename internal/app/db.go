package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// GlobalDBPath returns ~/.clawflow/clawflow.db: the projects registry,
// global settings, and global knowledge store.
func GlobalDBPath() (string, error) {
	home, err := HomeDir()
	if err != nil {
		return "", err
	}
	return EnsureDBDir(filepath.Join(home, "clawflow.db"))
}

// ProjectDBPath returns ~/.clawflow/dbs/{projectName}.db.
func ProjectDBPath(projectName string) (string, error) {
	home, err := HomeDir()
	if err != nil {
		return "", err
	}
	return EnsureDBDir(filepath.Join(home, "dbs", projectName+".db"))
}

// ProjectMarkerPath returns {projectPath}/.clawflow/project.json.
func ProjectMarkerPath(projectPath string) string {
	return filepath.Join(projectPath, ".clawflow", "project.json")
}

// WorktreesDir returns {projectPath}/.clawflow/worktrees.
func WorktreesDir(projectPath string) string {
	return filepath.Join(projectPath, ".clawflow", "worktrees")
}

// WorktreePath returns {projectPath}/.clawflow/worktrees/{taskID}.
func WorktreePath(projectPath string, taskID int64) string {
	return filepath.Join(WorktreesDir(projectPath), fmt.Sprintf("%d", taskID))
}

// GetDBPath resolves the database path with precedence: CLI override > env
// var CLAWFLOW_DB_PATH > config.yaml db_path > default global path.
func GetDBPath(cliOverride string) (string, error) {
	if cliOverride != "" {
		return EnsureDBDir(cliOverride)
	}
	if envPath := os.Getenv("CLAWFLOW_DB_PATH"); envPath != "" {
		return EnsureDBDir(envPath)
	}
	cfg, err := LoadSettings()
	if err != nil {
		return "", fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.DBPath != "" {
		return EnsureDBDir(cfg.DBPath)
	}
	return GlobalDBPath()
}

// EnsureDBDir creates the parent directory of dbPath if needed and returns
// dbPath unchanged.
func EnsureDBDir(dbPath string) (string, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create database directory: %w", err)
	}
	return dbPath, nil
}
