package vcs

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/clawflow/clawflow/internal/models"
)

func setupGitRepo(t *testing.T, dir string) {
	t.Helper()

	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoErrorf(t, err, "git %v: %s", args, out)
	}

	run("init", "-b", "main")
	run("config", "user.email", "test@clawflow.dev")
	run("config", "user.name", "clawflow test")

	readme := filepath.Join(dir, "README.md")
	require.NoError(t, os.WriteFile(readme, []byte("# test\n"), 0o644))
	run("add", "README.md")
	run("commit", "-m", "initial commit")
}

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	dir := t.TempDir()
	setupGitRepo(t, dir)

	var events []models.Event
	sink := func(ev models.Event) { events = append(events, ev) }

	adapter, err := NewAdapter(dir, EventSink(sink))
	require.NoError(t, err)
	require.Equal(t, "main", adapter.baseBranch)
	return adapter
}

func TestCreateWorktree_IsIdempotent(t *testing.T) {
	adapter := newTestAdapter(t)
	ctx := context.Background()

	branch, path, err := adapter.CreateWorktree(ctx, 1, "retry-budget")
	require.NoError(t, err)
	require.Equal(t, "task/1-retry-budget", branch)
	require.DirExists(t, path)

	branch2, path2, err := adapter.CreateWorktree(ctx, 1, "retry-budget")
	require.NoError(t, err)
	require.Equal(t, branch, branch2)
	require.Equal(t, path, path2)
}

func TestRecoverWorktrees_FindsOnDiskWorktrees(t *testing.T) {
	adapter := newTestAdapter(t)
	ctx := context.Background()

	_, path, err := adapter.CreateWorktree(ctx, 42, "")
	require.NoError(t, err)

	recovered, err := adapter.RecoverWorktrees()
	require.NoError(t, err)
	require.Equal(t, path, recovered[42])
}

func TestStageCommit_NoopOnCleanWorktree(t *testing.T) {
	adapter := newTestAdapter(t)
	ctx := context.Background()

	_, _, err := adapter.CreateWorktree(ctx, 1, "")
	require.NoError(t, err)

	rec, err := adapter.StageCommit(ctx, 1, models.StageImplement)
	require.NoError(t, err)
	require.Nil(t, rec)
}

func TestStageCommit_CommitsPendingChanges(t *testing.T) {
	adapter := newTestAdapter(t)
	ctx := context.Background()

	_, path, err := adapter.CreateWorktree(ctx, 1, "")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(path, "new.txt"), []byte("hello"), 0o644))

	rec, err := adapter.StageCommit(ctx, 1, models.StageImplement)
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.NotEmpty(t, rec.Hash)
	require.Contains(t, rec.Message, "implement")
}

func TestResetToStageCommit_RestoresCanonicalCommit(t *testing.T) {
	adapter := newTestAdapter(t)
	ctx := context.Background()

	_, path, err := adapter.CreateWorktree(ctx, 1, "")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(path, "plan.txt"), []byte("plan"), 0o644))
	planCommit, err := adapter.StageCommit(ctx, 1, models.StagePlan)
	require.NoError(t, err)
	require.NotNil(t, planCommit)

	require.NoError(t, os.WriteFile(filepath.Join(path, "impl.txt"), []byte("impl"), 0o644))
	implCommit, err := adapter.StageCommit(ctx, 1, models.StageImplement)
	require.NoError(t, err)
	require.NotNil(t, implCommit)

	require.NoError(t, adapter.ResetToStageCommit(ctx, 1, models.StagePlan))

	head, err := adapter.runGit(ctx, path, "rev-parse", "HEAD")
	require.NoError(t, err)
	require.Equal(t, planCommit.Hash, head)
	require.NoFileExists(t, filepath.Join(path, "impl.txt"))
}

func TestStashAndReset_IsSafeToCallTwice(t *testing.T) {
	adapter := newTestAdapter(t)
	ctx := context.Background()

	_, path, err := adapter.CreateWorktree(ctx, 1, "")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(path, "scratch.txt"), []byte("wip"), 0o644))

	stashed, err := adapter.StashAndReset(ctx, 1)
	require.NoError(t, err)
	require.True(t, stashed)

	stashedAgain, err := adapter.StashAndReset(ctx, 1)
	require.NoError(t, err)
	require.False(t, stashedAgain)
}

func TestMerge_ReportsConflict(t *testing.T) {
	adapter := newTestAdapter(t)
	ctx := context.Background()

	_, path, err := adapter.CreateWorktree(ctx, 1, "conflict")
	require.NoError(t, err)

	conflictFile := filepath.Join(path, "README.md")
	require.NoError(t, os.WriteFile(conflictFile, []byte("task branch change\n"), 0o644))
	_, err = adapter.StageCommit(ctx, 1, models.StageImplement)
	require.NoError(t, err)

	baseReadme := filepath.Join(adapter.repoPath, "README.md")
	require.NoError(t, os.WriteFile(baseReadme, []byte("main branch change\n"), 0o644))
	_, err = adapter.runGit(ctx, adapter.repoPath, "add", "README.md")
	require.NoError(t, err)
	_, err = adapter.runGit(ctx, adapter.repoPath, "commit", "-m", "main branch change")
	require.NoError(t, err)

	result, err := adapter.Merge(ctx, 1, "task/1-conflict", "main")
	require.NoError(t, err)
	require.False(t, result.Success)
	require.True(t, result.Conflicts)
}

func TestDeleteBranch_RemovesWorktreeAndBranch(t *testing.T) {
	adapter := newTestAdapter(t)
	ctx := context.Background()

	branch, path, err := adapter.CreateWorktree(ctx, 7, "")
	require.NoError(t, err)

	require.NoError(t, adapter.DeleteBranch(ctx, 7, branch))
	require.NoDirExists(t, path)

	_, err = adapter.runGit(ctx, adapter.repoPath, "rev-parse", "--verify", "refs/heads/"+branch)
	require.Error(t, err)
}
