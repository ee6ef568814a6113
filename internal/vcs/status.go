package vcs

import (
	"context"
	"strings"
)

// FileStatus is one line of `git status --porcelain`, split into its
// two-letter code and path.
type FileStatus struct {
	Code string `json:"code"`
	Path string `json:"path"`
}

// WorkingTreeStatus is the file-level status of a task's worktree.
type WorkingTreeStatus struct {
	Files []FileStatus `json:"files"`
	Clean bool         `json:"clean"`
}

// GetWorkingTreeStatus reports file-level status for a task's worktree.
func (a *Adapter) GetWorkingTreeStatus(ctx context.Context, taskID int64) (*WorkingTreeStatus, error) {
	path := a.worktreePath(taskID)
	lock := a.lockFor(path)
	lock.Lock()
	defer lock.Unlock()

	out, err := a.runGit(ctx, path, "status", "--porcelain")
	if err != nil {
		return nil, err
	}

	var files []FileStatus
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if len(line) < 4 {
			continue
		}
		files = append(files, FileStatus{Code: strings.TrimSpace(line[:2]), Path: line[3:]})
	}
	return &WorkingTreeStatus{Files: files, Clean: len(files) == 0}, nil
}

// StageAllResult reports best-effort staging outcome.
type StageAllResult struct {
	Staged int      `json:"staged"`
	Errors []string `json:"errors,omitempty"`
}

// StageAll stages every changed file, tolerating partial failures (e.g.
// invalid paths surfaced by a case-insensitive filesystem) by reporting
// them in Errors instead of failing the whole operation.
func (a *Adapter) StageAll(ctx context.Context, taskID int64) (*StageAllResult, error) {
	path := a.worktreePath(taskID)
	lock := a.lockFor(path)
	lock.Lock()
	defer lock.Unlock()

	statusOut, err := a.runGit(ctx, path, "status", "--porcelain")
	if err != nil {
		return nil, err
	}
	lines := strings.Split(statusOut, "\n")

	result := &StageAllResult{}
	if _, err := a.runGit(ctx, path, "add", "-A"); err != nil {
		// Fall back to per-file staging so one bad path doesn't block the rest.
		for _, line := range lines {
			if strings.TrimSpace(line) == "" || len(line) < 4 {
				continue
			}
			file := line[3:]
			if _, err := a.runGit(ctx, path, "add", "--", file); err != nil {
				result.Errors = append(result.Errors, file+": "+err.Error())
				continue
			}
			result.Staged++
		}
		return result, nil
	}

	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			result.Staged++
		}
	}
	return result, nil
}
