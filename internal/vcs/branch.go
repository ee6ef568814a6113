package vcs

import (
	"context"
	"os"
	"strconv"
	"strings"

	"github.com/clawflow/clawflow/internal/models"
)

// BranchDetailStatus classifies a task branch for display.
type BranchDetailStatus string

const (
	BranchActive    BranchDetailStatus = "active"
	BranchCompleted BranchDetailStatus = "completed"
	BranchStale     BranchDetailStatus = "stale"
	BranchMerged    BranchDetailStatus = "merged"
)

// BranchSummary is the list-view row returned by GetBranches.
type BranchSummary struct {
	Branch        string `json:"branch"`
	TaskID        int64  `json:"task_id"`
	WorktreeActive bool  `json:"worktree_active"`
}

// BranchDetail is the rich per-branch status returned by GetBranchDetail.
type BranchDetail struct {
	Branch          string             `json:"branch"`
	TaskID          int64              `json:"task_id"`
	Ahead           int                `json:"ahead"`
	Behind          int                `json:"behind"`
	LastCommitMsg   string             `json:"last_commit_message"`
	LastCommitDate  string             `json:"last_commit_date"`
	CommitCount     int                `json:"commit_count"`
	Pushed          bool               `json:"pushed"`
	Status          BranchDetailStatus `json:"status"`
	DirtyFileCount  int                `json:"dirty_file_count"`
	WorktreeActive  bool               `json:"worktree_active"`
}

// GetBranches lists every task/* branch known to the repository, noting
// which have an active worktree.
func (a *Adapter) GetBranches(ctx context.Context) ([]BranchSummary, error) {
	out, err := a.runGit(ctx, a.repoPath, "for-each-ref", "--format=%(refname:short)", "refs/heads/task/")
	if err != nil {
		return nil, err
	}
	var summaries []BranchSummary
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		taskID := parseTaskIDFromBranch(line)
		path := a.worktreePath(taskID)
		_, statErr := os.Stat(path)
		summaries = append(summaries, BranchSummary{
			Branch:         line,
			TaskID:         taskID,
			WorktreeActive: statErr == nil,
		})
	}
	return summaries, nil
}

func parseTaskIDFromBranch(branch string) int64 {
	rest := strings.TrimPrefix(branch, "task/")
	idPart := rest
	if idx := strings.IndexByte(rest, '-'); idx >= 0 {
		idPart = rest[:idx]
	}
	id, _ := strconv.ParseInt(idPart, 10, 64)
	return id
}

// GetBranchDetail computes rich per-branch status. taskStatus is supplied
// by the caller (the Store owns task lifecycle state, not this package) so
// the derived BranchDetailStatus can reflect it.
func (a *Adapter) GetBranchDetail(ctx context.Context, taskID int64, branch string, taskStatus models.TaskStatus) (*BranchDetail, error) {
	path := a.worktreePath(taskID)
	_, statErr := os.Stat(path)
	worktreeActive := statErr == nil

	aheadBehind, err := a.runGit(ctx, a.repoPath, "rev-list", "--left-right", "--count", branch+"..."+a.baseBranch)
	ahead, behind := 0, 0
	if err == nil {
		fields := strings.Fields(aheadBehind)
		if len(fields) == 2 {
			ahead, _ = strconv.Atoi(fields[0])
			behind, _ = strconv.Atoi(fields[1])
		}
	}

	lastMsg, _ := a.runGit(ctx, a.repoPath, "log", "-1", "--pretty=format:%s", branch)
	lastDate, _ := a.runGit(ctx, a.repoPath, "log", "-1", "--pretty=format:%cI", branch)
	commitCountStr, _ := a.runGit(ctx, a.repoPath, "rev-list", "--count", branch)
	commitCount, _ := strconv.Atoi(strings.TrimSpace(commitCountStr))

	pushed := false
	if _, err := a.runGit(ctx, a.repoPath, "rev-parse", "--verify", "refs/remotes/origin/"+branch); err == nil {
		pushed = true
	}

	dirtyCount := 0
	if worktreeActive {
		status, err := a.runGit(ctx, path, "status", "--porcelain")
		if err == nil {
			for _, line := range strings.Split(status, "\n") {
				if strings.TrimSpace(line) != "" {
					dirtyCount++
				}
			}
		}
	}

	detail := &BranchDetail{
		Branch:         branch,
		TaskID:         taskID,
		Ahead:          ahead,
		Behind:         behind,
		LastCommitMsg:  lastMsg,
		LastCommitDate: lastDate,
		CommitCount:    commitCount,
		Pushed:         pushed,
		DirtyFileCount: dirtyCount,
		WorktreeActive: worktreeActive,
		Status:         deriveBranchStatus(taskStatus, ahead, worktreeActive),
	}
	return detail, nil
}

func deriveBranchStatus(taskStatus models.TaskStatus, ahead int, worktreeActive bool) BranchDetailStatus {
	switch taskStatus {
	case models.StatusDone:
		if ahead == 0 {
			return BranchMerged
		}
		return BranchCompleted
	case models.StatusBlocked:
		return BranchStale
	}
	if worktreeActive {
		return BranchActive
	}
	return BranchStale
}
