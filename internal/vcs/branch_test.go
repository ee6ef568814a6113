package vcs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/clawflow/clawflow/internal/models"
)

func TestGetBranches_ListsTaskBranchesWithWorktreeState(t *testing.T) {
	adapter := newTestAdapter(t)
	ctx := context.Background()

	_, _, err := adapter.CreateWorktree(ctx, 3, "feature")
	require.NoError(t, err)

	branches, err := adapter.GetBranches(ctx)
	require.NoError(t, err)
	require.Len(t, branches, 1)
	require.Equal(t, "task/3-feature", branches[0].Branch)
	require.Equal(t, int64(3), branches[0].TaskID)
	require.True(t, branches[0].WorktreeActive)
}

func TestGetBranchDetail_StatusReflectsTaskLifecycle(t *testing.T) {
	adapter := newTestAdapter(t)
	ctx := context.Background()

	branch, path, err := adapter.CreateWorktree(ctx, 5, "")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(path, "change.txt"), []byte("x"), 0o644))
	_, err = adapter.StageCommit(ctx, 5, models.StageImplement)
	require.NoError(t, err)

	detail, err := adapter.GetBranchDetail(ctx, 5, branch, models.StatusImplementing)
	require.NoError(t, err)
	require.True(t, detail.WorktreeActive)
	require.Equal(t, BranchActive, detail.Status)

	doneDetail, err := adapter.GetBranchDetail(ctx, 5, branch, models.StatusDone)
	require.NoError(t, err)
	require.Equal(t, BranchCompleted, doneDetail.Status) // ahead of base, not yet merged
}

func TestGetWorkingTreeStatus_ReportsDirtyFiles(t *testing.T) {
	adapter := newTestAdapter(t)
	ctx := context.Background()

	_, path, err := adapter.CreateWorktree(ctx, 1, "")
	require.NoError(t, err)

	clean, err := adapter.GetWorkingTreeStatus(ctx, 1)
	require.NoError(t, err)
	require.True(t, clean.Clean)

	require.NoError(t, os.WriteFile(filepath.Join(path, "dirty.txt"), []byte("x"), 0o644))

	dirty, err := adapter.GetWorkingTreeStatus(ctx, 1)
	require.NoError(t, err)
	require.False(t, dirty.Clean)
	require.Len(t, dirty.Files, 1)
	require.Equal(t, "dirty.txt", dirty.Files[0].Path)
}

func TestStageAll_StagesEveryChangedFile(t *testing.T) {
	adapter := newTestAdapter(t)
	ctx := context.Background()

	_, path, err := adapter.CreateWorktree(ctx, 1, "")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(path, "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(path, "b.txt"), []byte("b"), 0o644))

	result, err := adapter.StageAll(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 2, result.Staged)
	require.Empty(t, result.Errors)
}
