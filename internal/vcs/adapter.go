package vcs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/clawflow/clawflow/internal/models"
	"github.com/clawflow/clawflow/internal/telemetry"
)

// Adapter drives git for a single project repository. Each task gets its
// own worktree, so many tasks can evolve code in parallel; shell
// invocations are serialized per worktree path via a per-path mutex but run
// freely across different worktrees.
type Adapter struct {
	repoPath      string
	worktreesDir  string
	baseBranch    string
	sink          EventSink

	mu       sync.Mutex
	worktreeLocks map[string]*sync.Mutex
}

// NewAdapter opens an Adapter over repoPath, auto-detecting the base branch
// from "main"/"master" or the current HEAD if neither exists.
func NewAdapter(repoPath string, sink EventSink) (*Adapter, error) {
	a := &Adapter{
		repoPath:      repoPath,
		worktreesDir:  filepath.Join(repoPath, ".clawflow", "worktrees"),
		sink:          sink,
		worktreeLocks: make(map[string]*sync.Mutex),
	}
	base, err := a.detectBaseBranch(context.Background())
	if err != nil {
		return nil, fmt.Errorf("detect base branch: %w", err)
	}
	a.baseBranch = base
	return a, nil
}

func (a *Adapter) detectBaseBranch(ctx context.Context) (string, error) {
	for _, candidate := range []string{"main", "master"} {
		if _, err := a.runGit(ctx, a.repoPath, "rev-parse", "--verify", "refs/heads/"+candidate); err == nil {
			return candidate, nil
		}
	}
	head, err := a.runGit(ctx, a.repoPath, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	if head == "" || head == "HEAD" {
		return "main", nil
	}
	return head, nil
}

func (a *Adapter) lockFor(path string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	l, ok := a.worktreeLocks[path]
	if !ok {
		l = &sync.Mutex{}
		a.worktreeLocks[path] = l
	}
	return l
}

func branchName(taskID int64, slug string) string {
	if slug == "" {
		return fmt.Sprintf("task/%d", taskID)
	}
	return fmt.Sprintf("task/%d-%s", taskID, slug)
}

func (a *Adapter) worktreePath(taskID int64) string {
	return filepath.Join(a.worktreesDir, strconv.FormatInt(taskID, 10))
}

// CreateWorktree creates branch+directory in one step. Idempotent: if a
// worktree already exists at the expected path it is returned unchanged.
func (a *Adapter) CreateWorktree(ctx context.Context, taskID int64, slug string) (branch, path string, err error) {
	branch = branchName(taskID, slug)
	path = a.worktreePath(taskID)

	lock := a.lockFor(path)
	lock.Lock()
	defer lock.Unlock()

	if info, statErr := os.Stat(path); statErr == nil && info.IsDir() {
		return branch, path, nil
	}

	if err := os.MkdirAll(a.worktreesDir, 0o755); err != nil {
		return "", "", fmt.Errorf("create worktrees dir: %w", err)
	}

	if _, err := a.runGit(ctx, a.repoPath, "worktree", "add", "-b", branch, path, a.baseBranch); err != nil {
		if strings.Contains(err.Error(), "already exists") {
			if _, err := a.runGit(ctx, a.repoPath, "worktree", "add", path, branch); err != nil {
				return "", "", err
			}
		} else {
			return "", "", err
		}
	}

	a.emit(models.EventWorktreeCreated, map[string]any{"task_id": taskID, "branch": branch, "path": path})
	a.emit(models.EventBranchCreated, map[string]any{"task_id": taskID, "branch": branch})
	return branch, path, nil
}

// RecoverWorktrees scans the worktrees directory on startup and returns the
// task-id -> path map for every worktree still present on disk, since the
// in-process map is not persisted.
func (a *Adapter) RecoverWorktrees() (map[int64]string, error) {
	entries, err := os.ReadDir(a.worktreesDir)
	if os.IsNotExist(err) {
		return map[int64]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan worktrees dir: %w", err)
	}
	out := make(map[int64]string)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		id, err := strconv.ParseInt(e.Name(), 10, 64)
		if err != nil {
			continue
		}
		out[id] = filepath.Join(a.worktreesDir, e.Name())
	}
	return out, nil
}

func stageCommitMessage(taskID int64, stage models.Stage) string {
	return fmt.Sprintf("task/%d: complete %s stage", taskID, stage)
}

// CommitRecord describes a single stage-tagged commit.
type CommitRecord struct {
	Hash    string `json:"hash"`
	Message string `json:"message"`
}

// StageCommit stages all changes and commits with the canonical stage
// message, returning nil if the working tree is clean.
func (a *Adapter) StageCommit(ctx context.Context, taskID int64, stage models.Stage) (*CommitRecord, error) {
	ctx, span := telemetry.StartVCSSpan(ctx, "stage_commit", taskID)
	defer span.End()

	path := a.worktreePath(taskID)
	lock := a.lockFor(path)
	lock.Lock()
	defer lock.Unlock()

	if _, err := a.runGit(ctx, path, "add", "-A"); err != nil {
		return nil, err
	}
	status, err := a.runGit(ctx, path, "status", "--porcelain")
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(status) == "" {
		return nil, nil
	}

	msg := stageCommitMessage(taskID, stage)
	if _, err := a.runGit(ctx, path, "commit", "-m", msg); err != nil {
		return nil, err
	}
	hash, err := a.runGit(ctx, path, "rev-parse", "HEAD")
	if err != nil {
		return nil, err
	}

	rec := &CommitRecord{Hash: hash, Message: msg}
	a.emit(models.EventCommitComplete, map[string]any{"task_id": taskID, "hash": hash, "stage": stage})
	return rec, nil
}

// StashAndReset stashes any uncommitted changes with a labeled entry, then
// hard-resets the worktree to the merge-base of the task branch and the
// base branch. Returns whether a stash was created. Calling it twice in a
// row is safe: the second call finds a clean tree, creates no stash, and
// resets to the same merge-base.
func (a *Adapter) StashAndReset(ctx context.Context, taskID int64) (stashed bool, err error) {
	path := a.worktreePath(taskID)
	lock := a.lockFor(path)
	lock.Lock()
	defer lock.Unlock()

	status, err := a.runGit(ctx, path, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	if strings.TrimSpace(status) != "" {
		label := fmt.Sprintf("clawflow-task-%d-rollback", taskID)
		if _, err := a.runGit(ctx, path, "stash", "push", "-u", "-m", label); err != nil {
			return false, err
		}
		stashed = true
	}

	mergeBase, err := a.runGit(ctx, path, "merge-base", "HEAD", "origin/"+a.baseBranch)
	if err != nil {
		mergeBase, err = a.runGit(ctx, path, "merge-base", "HEAD", a.baseBranch)
		if err != nil {
			return stashed, err
		}
	}
	if _, err := a.runGit(ctx, path, "reset", "--hard", mergeBase); err != nil {
		return stashed, err
	}
	return stashed, nil
}

var stageCommitLogRe = regexp.MustCompile(`^([0-9a-f]+) (.+)$`)

// ResetToStageCommit searches the branch log for the canonical stage-commit
// message and hard-resets to that commit. Falls back to StashAndReset if no
// such commit is found, so a missing history entry never blocks a restart.
func (a *Adapter) ResetToStageCommit(ctx context.Context, taskID int64, stage models.Stage) error {
	path := a.worktreePath(taskID)
	lock := a.lockFor(path)
	lock.Lock()

	want := stageCommitMessage(taskID, stage)
	log, err := a.runGit(ctx, path, "log", "--pretty=format:%H %s")
	if err == nil {
		for _, line := range strings.Split(log, "\n") {
			m := stageCommitLogRe.FindStringSubmatch(line)
			if m != nil && m[2] == want {
				hash := m[1]
				if _, err := a.runGit(ctx, path, "reset", "--hard", hash); err == nil {
					lock.Unlock()
					return nil
				}
				break
			}
		}
	}
	lock.Unlock()

	_, err = a.StashAndReset(ctx, taskID)
	return err
}

// Push pushes the task branch to the remote. Failures are translated into
// the two kinds callers need to distinguish: no remote configured, and
// non-fast-forward (the remote has diverged).
func (a *Adapter) Push(ctx context.Context, taskID int64, branch string) error {
	path := a.worktreePath(taskID)
	lock := a.lockFor(path)
	lock.Lock()
	defer lock.Unlock()

	_, err := a.runGit(ctx, path, "push", "-u", "origin", branch)
	if err != nil {
		msg := err.Error()
		switch {
		case strings.Contains(msg, "No configured push destination") || strings.Contains(msg, "does not appear to be a git repository"):
			return models.NewPreconditionError("no remote configured for push", map[string]string{"task_id": strconv.FormatInt(taskID, 10)})
		case strings.Contains(msg, "non-fast-forward") || strings.Contains(msg, "fetch first"):
			return models.NewPreconditionError("push rejected: non-fast-forward", map[string]string{"task_id": strconv.FormatInt(taskID, 10)})
		}
		return err
	}
	a.emit(models.EventPushComplete, map[string]any{"task_id": taskID, "branch": branch})
	return nil
}

// MergeResult is the outcome of Merge.
type MergeResult struct {
	Success   bool   `json:"success"`
	Conflicts bool   `json:"conflicts"`
	Message   string `json:"message"`
}

// Merge checks out target (defaulting to the base branch), performs a
// non-fast-forward merge of the task branch, and returns to whichever
// branch was checked out beforehand. On conflict markers it aborts the
// merge and reports conflicts=true; on "local changes would be
// overwritten" it reports a structured failure without touching anything.
func (a *Adapter) Merge(ctx context.Context, taskID int64, branch, target string) (*MergeResult, error) {
	if target == "" {
		target = a.baseBranch
	}

	prevBranch, err := a.runGit(ctx, a.repoPath, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return nil, err
	}

	if _, err := a.runGit(ctx, a.repoPath, "checkout", target); err != nil {
		return nil, err
	}
	defer func() { _, _ = a.runGit(ctx, a.repoPath, "checkout", prevBranch) }()

	out, err := a.runGit(ctx, a.repoPath, "merge", "--no-ff", "-m", fmt.Sprintf("merge %s into %s", branch, target), branch)
	if err == nil {
		a.emit(models.EventMergeComplete, map[string]any{"task_id": taskID, "branch": branch, "target": target})
		return &MergeResult{Success: true, Message: strings.TrimSpace(out)}, nil
	}

	combined := out + " " + err.Error()
	if strings.Contains(combined, "CONFLICT") || strings.Contains(combined, "Automatic merge failed") {
		_, _ = a.runGit(ctx, a.repoPath, "merge", "--abort")
		a.emit(models.EventMergeConflict, map[string]any{"task_id": taskID, "branch": branch, "target": target})
		return &MergeResult{Success: false, Conflicts: true, Message: "merge conflict"}, nil
	}
	if strings.Contains(combined, "would be overwritten") {
		return &MergeResult{Success: false, Conflicts: false, Message: "local changes would be overwritten by merge"}, nil
	}
	return nil, err
}

// DeleteBranch removes the worktree if active, then deletes the branch.
func (a *Adapter) DeleteBranch(ctx context.Context, taskID int64, branch string) error {
	path := a.worktreePath(taskID)
	lock := a.lockFor(path)
	lock.Lock()
	defer lock.Unlock()

	if _, err := os.Stat(path); err == nil {
		if _, err := a.runGit(ctx, a.repoPath, "worktree", "remove", "--force", path); err != nil {
			return err
		}
		a.emit(models.EventWorktreeRemoved, map[string]any{"task_id": taskID, "path": path})
	}

	if _, err := a.runGit(ctx, a.repoPath, "branch", "-D", branch); err != nil {
		return err
	}
	a.emit(models.EventBranchDeleted, map[string]any{"task_id": taskID, "branch": branch})
	return nil
}
