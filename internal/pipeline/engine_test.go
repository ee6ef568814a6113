package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/clawflow/clawflow/internal/models"
	"github.com/clawflow/clawflow/internal/sdkrunner"
	"github.com/clawflow/clawflow/internal/store"
	"github.com/clawflow/clawflow/internal/vcs"
)

// scriptedProvider is a test double for sdkrunner.Provider. Each call to
// Stream pops the next queued output off the front of the queue so a test
// can script a sequence of stage runs without a real model endpoint.
type scriptedProvider struct {
	mu     sync.Mutex
	output []string
	calls  int
}

func (p *scriptedProvider) push(output string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.output = append(p.output, output)
}

func (p *scriptedProvider) Stream(ctx context.Context, req sdkrunner.ChatRequest) (<-chan sdkrunner.Chunk, <-chan error) {
	chunks := make(chan sdkrunner.Chunk, 4)
	errs := make(chan error, 1)

	p.mu.Lock()
	p.calls++
	var out string
	if len(p.output) > 0 {
		out = p.output[0]
		p.output = p.output[1:]
	}
	p.mu.Unlock()

	chunks <- sdkrunner.Chunk{Type: "text", Text: out}
	chunks <- sdkrunner.Chunk{Type: "result", ResultSubtype: "success", FinalResult: out, SessionID: "sess-1", Done: true}
	close(chunks)
	close(errs)
	return chunks, errs
}

func handoffText(status models.HandoffStatus, summary string) string {
	return fmt.Sprintf("work done\n\n## Handoff\nstatus: %s\nsummary: %s\n", status, summary)
}

func newTestVCSAdapter(t *testing.T) *vcs.Adapter {
	t.Helper()
	dir := t.TempDir()

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

	adapter, err := vcs.NewAdapter(dir, nil)
	require.NoError(t, err)
	return adapter
}

func newTestEngineDB(t *testing.T) *sql.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := store.InitDBWithPath(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newEngineHarness(t *testing.T, provider sdkrunner.Provider) (*Engine, *sql.DB, int64) {
	return newEngineHarnessTier(t, provider, models.TierL1)
}

func newEngineHarnessTier(t *testing.T, provider sdkrunner.Provider, tier models.Tier) (*Engine, *sql.DB, int64) {
	t.Helper()
	db := newTestEngineDB(t)
	adapter := newTestVCSAdapter(t)
	runner := sdkrunner.NewRunner(provider, nil)
	engine := NewEngine(db, adapter, runner, nil, nil, nil)

	task, err := store.CreateTask(db, models.Task{Title: "ship the thing", Tier: tier})
	require.NoError(t, err)

	_, _, err = adapter.CreateWorktree(context.Background(), task.ID, "")
	require.NoError(t, err)

	return engine, db, task.ID
}

func TestStartTask_RunsFirstStageAndPausesForApproval(t *testing.T) {
	provider := &scriptedProvider{}
	provider.push(handoffText(models.HandoffCompleted, "plan drafted"))
	engine, db, taskID := newEngineHarness(t, provider)

	require.NoError(t, engine.StartTask(context.Background(), taskID))

	task, err := store.GetTask(db, taskID)
	require.NoError(t, err)
	require.Equal(t, models.StatusPlanning, task.Status)
	require.NotNil(t, task.CurrentAgent)
	require.Equal(t, models.StagePlan, *task.CurrentAgent)
	require.NotNil(t, task.Plan)
	require.Equal(t, 1, provider.calls)
}

func TestStartTask_RequiresBacklogStatus(t *testing.T) {
	provider := &scriptedProvider{}
	engine, db, taskID := newEngineHarness(t, provider)

	_, err := store.UpdateTask(db, taskID, store.TaskPatch{Status: statusPtr(models.StatusDone)}, -1)
	require.NoError(t, err)

	err = engine.StartTask(context.Background(), taskID)
	require.Error(t, err)
}

func TestApproveStage_AdvancesToNextStage(t *testing.T) {
	// L2's brainstorm and plan stages both pause, so approving out of
	// brainstorm lands on plan and stops there rather than cascading
	// through the non-pausing implement/verify/done stages.
	provider := &scriptedProvider{}
	provider.push(handoffText(models.HandoffCompleted, "ideas gathered"))
	provider.push(handoffText(models.HandoffCompleted, "plan drafted"))
	engine, db, taskID := newEngineHarnessTier(t, provider, models.TierL2)

	ctx := context.Background()
	require.NoError(t, engine.StartTask(ctx, taskID))
	require.NoError(t, engine.ApproveStage(ctx, taskID))

	task, err := store.GetTask(db, taskID)
	require.NoError(t, err)
	require.Equal(t, models.StatusPlanning, task.Status)
	require.Equal(t, models.StagePlan, *task.CurrentAgent)
	require.NotNil(t, task.Plan)
}

func TestRejectStage_TripsCircuitBreakerAfterThreeRejections(t *testing.T) {
	provider := &scriptedProvider{}
	for i := 0; i < 4; i++ {
		provider.push(handoffText(models.HandoffCompleted, "draft"))
	}
	engine, db, taskID := newEngineHarness(t, provider)

	ctx := context.Background()
	require.NoError(t, engine.StartTask(ctx, taskID))

	require.NoError(t, engine.RejectStage(ctx, taskID, "needs more detail"))
	require.NoError(t, engine.RejectStage(ctx, taskID, "still missing edge cases"))
	require.NoError(t, engine.RejectStage(ctx, taskID, "one more pass"))

	task, err := store.GetTask(db, taskID)
	require.NoError(t, err)
	require.Equal(t, models.StatusBlocked, task.Status)
	require.Equal(t, 3, task.PlanReviewCount)
}

func TestRunStage_BlockedHandoffSetsStatusBlocked(t *testing.T) {
	provider := &scriptedProvider{}
	provider.push(handoffText(models.HandoffBlocked, "missing credentials"))
	engine, db, taskID := newEngineHarness(t, provider)

	require.NoError(t, engine.StartTask(context.Background(), taskID))

	task, err := store.GetTask(db, taskID)
	require.NoError(t, err)
	require.Equal(t, models.StatusBlocked, task.Status)
}

func TestRunStage_OpenQuestionsPausesWithoutAdvancing(t *testing.T) {
	provider := &scriptedProvider{}
	output := "## Handoff\nstatus: completed\nsummary: drafted\nopenQuestions: which auth provider?\n"
	provider.push(output)
	engine, db, taskID := newEngineHarness(t, provider)

	require.NoError(t, engine.StartTask(context.Background(), taskID))

	task, err := store.GetTask(db, taskID)
	require.NoError(t, err)
	require.Equal(t, models.StagePlan, *task.CurrentAgent)
	require.Equal(t, models.StatusPlanning, task.Status)
}

func TestPauseAndResumeTask(t *testing.T) {
	provider := &scriptedProvider{}
	provider.push(handoffText(models.HandoffCompleted, "plan drafted"))
	engine, db, taskID := newEngineHarness(t, provider)
	ctx := context.Background()

	require.NoError(t, engine.StartTask(ctx, taskID))
	require.NoError(t, engine.PauseTask(ctx, taskID, models.PauseReasonManual))

	paused, err := store.GetTask(db, taskID)
	require.NoError(t, err)
	require.True(t, paused.IsPaused())
	require.NotNil(t, paused.PausedFromStatus)
	require.Equal(t, models.StatusPlanning, *paused.PausedFromStatus)

	require.NoError(t, engine.PauseTask(ctx, taskID, models.PauseReasonManual))

	provider.push(handoffText(models.HandoffCompleted, "resumed plan"))
	require.NoError(t, engine.ResumeTask(ctx, taskID))

	resumed, err := store.GetTask(db, taskID)
	require.NoError(t, err)
	require.Equal(t, models.StatusPlanning, resumed.Status)
	require.Nil(t, resumed.PausedFromStatus)
}

func TestRestartToStage_ClearsLaterStageOutputsAndResetsVCS(t *testing.T) {
	provider := &scriptedProvider{}
	provider.push(handoffText(models.HandoffCompleted, "plan drafted"))
	engine, db, taskID := newEngineHarness(t, provider)
	ctx := context.Background()

	require.NoError(t, engine.StartTask(ctx, taskID))

	// Simulate implement having already run and moved the task past plan,
	// without driving the engine through another live stage run.
	implStage := models.StageImplement
	notes := "wrote the feature"
	_, err := store.UpdateTask(db, taskID, store.TaskPatch{
		Status:              statusPtr(models.StatusImplementing),
		CurrentAgent:        stagePtrPtr(&implStage),
		ImplementationNotes: stringPtrPtr(&notes),
	}, -1)
	require.NoError(t, err)

	handoffsBeforeRestart, err := store.ListHandoffs(db, taskID)
	require.NoError(t, err)
	require.NotEmpty(t, handoffsBeforeRestart)

	require.NoError(t, engine.RestartToStage(ctx, taskID, models.StagePlan))

	restarted, err := store.GetTask(db, taskID)
	require.NoError(t, err)
	require.Equal(t, models.StatusPlanning, restarted.Status)
	require.Equal(t, models.StagePlan, *restarted.CurrentAgent)
	require.Nil(t, restarted.ImplementationNotes)
	require.Nil(t, restarted.Plan)

	handoffsAfterRestart, err := store.ListHandoffs(db, taskID)
	require.NoError(t, err)
	require.Empty(t, handoffsAfterRestart)
}
