package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"time"

	"github.com/clawflow/clawflow/internal/models"
	"github.com/clawflow/clawflow/internal/prompt"
	"github.com/clawflow/clawflow/internal/sdkrunner"
	"github.com/clawflow/clawflow/internal/store"
	"github.com/clawflow/clawflow/internal/telemetry"
	"github.com/clawflow/clawflow/internal/vcs"
)

// EventSink receives Engine observability events.
type EventSink func(models.Event)

// Engine drives a task through its tier's stage sequence, mutating the
// Store and coordinating the VCS Adapter, emitting events for the renderer
// at each transition.
type Engine struct {
	db     *sql.DB
	vcs    *vcs.Adapter
	runner *sdkrunner.Runner
	sink   EventSink
	skills prompt.SkillResolver
	knowledge prompt.KnowledgeIndex
	defaultModel string
}

// NewEngine builds an Engine over its collaborators. skills/knowledge may
// be nil; Engine falls back to built-in skill defaults and an empty
// knowledge index.
func NewEngine(db *sql.DB, vcsAdapter *vcs.Adapter, runner *sdkrunner.Runner, sink EventSink, skills prompt.SkillResolver, knowledge prompt.KnowledgeIndex) *Engine {
	return &Engine{db: db, vcs: vcsAdapter, runner: runner, sink: sink, skills: skills, knowledge: knowledge}
}

// SetDefaultModel overrides the "default" model alias every StageConfig
// carries with a concrete model id the configured Provider understands.
func (e *Engine) SetDefaultModel(model string) {
	e.defaultModel = model
}

func (e *Engine) resolveModel(model string) string {
	if model == "default" && e.defaultModel != "" {
		return e.defaultModel
	}
	return model
}

func (e *Engine) emit(kind string, payload any) {
	if e.sink == nil {
		return
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return
	}
	e.sink(models.Event{Kind: kind, Payload: b, Timestamp: time.Now()})
}

// StartTask requires status=backlog. It sets status to the first stage's
// status, stamps startedAt, records an audit entry, and runs the first
// stage.
func (e *Engine) StartTask(ctx context.Context, taskID int64) error {
	task, err := store.GetTask(e.db, taskID)
	if err != nil {
		return err
	}
	if task.Status != models.StatusBacklog {
		return models.NewPreconditionError(
			fmt.Sprintf("task %d is not in backlog (status=%s)", taskID, task.Status), nil)
	}

	seq := StageSequence(task.Tier)
	if len(seq) == 0 {
		return models.NewValidationError(fmt.Sprintf("unknown tier %q", task.Tier), nil)
	}
	firstStage := seq[0]
	now := time.Now().UTC()

	_, err = store.UpdateTask(e.db, taskID, store.TaskPatch{
		Status:       statusPtr(StatusFor(firstStage)),
		CurrentAgent: stagePtrPtr(&firstStage),
		StartedAt:    timePtrPtr(&now),
	}, -1)
	if err != nil {
		return fmt.Errorf("start task %d: %w", taskID, err)
	}

	_ = store.AppendLogEntry(e.db, models.AgentLogEntry{TaskID: taskID, Action: "start", Details: string(firstStage)})

	return e.runStage(ctx, taskID, firstStage, "")
}

// StepTask re-runs the current stage, e.g. after a transient failure.
func (e *Engine) StepTask(ctx context.Context, taskID int64) error {
	task, err := store.GetTask(e.db, taskID)
	if err != nil {
		return err
	}
	if task.IsPaused() {
		return models.NewPreconditionError(fmt.Sprintf("task %d is paused", taskID), nil)
	}
	if task.CurrentAgent == nil {
		return models.NewPreconditionError(fmt.Sprintf("task %d has no active stage", taskID), nil)
	}
	return e.runStage(ctx, taskID, *task.CurrentAgent, "")
}

// RunFullPipeline advances through stages, invoking runStage at each, until
// a pausing stage is reached (and the task is not in autoMode), or the
// task reaches done/blocked.
func (e *Engine) RunFullPipeline(ctx context.Context, taskID int64) error {
	for {
		task, err := store.GetTask(e.db, taskID)
		if err != nil {
			return err
		}
		if task.Status.IsTerminal() || task.IsPaused() {
			return nil
		}
		if task.CurrentAgent == nil {
			return nil
		}
		stage := *task.CurrentAgent
		cfg := Config(stage)
		if cfg.Pauses && !task.AutoMode {
			return nil
		}
		if err := e.runStage(ctx, taskID, stage, ""); err != nil {
			return err
		}

		after, err := store.GetTask(e.db, taskID)
		if err != nil {
			return err
		}
		if after.CurrentAgent != nil && *after.CurrentAgent == stage && !after.Status.IsTerminal() && !after.IsPaused() {
			// stage did not advance (e.g. paused for human input mid-stage); stop.
			return nil
		}
	}
}

// ApproveStage records an approve audit entry, computes the next stage, and
// either transitions and runs it or marks the task blocked via the circuit
// breaker.
func (e *Engine) ApproveStage(ctx context.Context, taskID int64) error {
	task, err := store.GetTask(e.db, taskID)
	if err != nil {
		return err
	}
	if task.CurrentAgent == nil {
		return models.NewPreconditionError(fmt.Sprintf("task %d has no active stage to approve", taskID), nil)
	}
	current := *task.CurrentAgent
	_ = store.AppendLogEntry(e.db, models.AgentLogEntry{TaskID: taskID, Action: "approve", Details: string(current)})

	next, ok := NextStage(task.Tier, current)
	if !ok {
		return e.markDone(taskID)
	}
	if !canTransition(task, next) {
		return e.tripCircuitBreaker(taskID, task)
	}

	_, err = store.UpdateTask(e.db, taskID, store.TaskPatch{
		Status:       statusPtr(StatusFor(next)),
		CurrentAgent: stagePtrPtr(&next),
	}, -1)
	if err != nil {
		return fmt.Errorf("advance task %d to %s: %w", taskID, next, err)
	}
	return e.runStage(ctx, taskID, next, "")
}

// RejectStage increments the appropriate review counter, checks the
// circuit breaker, and either blocks the task or re-runs the current stage
// with feedback appended to the prompt.
func (e *Engine) RejectStage(ctx context.Context, taskID int64, feedback string) error {
	task, err := store.GetTask(e.db, taskID)
	if err != nil {
		return err
	}
	if task.CurrentAgent == nil {
		return models.NewPreconditionError(fmt.Sprintf("task %d has no active stage to reject", taskID), nil)
	}
	current := *task.CurrentAgent
	_ = store.AppendLogEntry(e.db, models.AgentLogEntry{TaskID: taskID, Action: "reject", Details: feedback})

	patch := store.TaskPatch{}
	if isPlanCounterStage(current) {
		n := task.PlanReviewCount + 1
		patch.PlanReviewCount = &n
	} else {
		n := task.ImplReviewCount + 1
		patch.ImplReviewCount = &n
	}
	updated, err := store.UpdateTask(e.db, taskID, patch, -1)
	if err != nil {
		return fmt.Errorf("record rejection for task %d: %w", taskID, err)
	}

	if tripped(updated) {
		return e.tripCircuitBreaker(taskID, updated)
	}
	return e.runStage(ctx, taskID, current, feedback)
}

// ResolveApproval forwards a renderer's approve/deny decision to the SDK
// Runner's pending-approval registry.
func (e *Engine) ResolveApproval(requestID string, approved bool, message string) bool {
	return e.runner.Registry().ResolveApproval(requestID, approved, message)
}

func (e *Engine) tripCircuitBreaker(taskID int64, task *models.Task) error {
	_, err := store.UpdateTask(e.db, taskID, store.TaskPatch{
		Status: statusPtr(models.StatusBlocked),
	}, -1)
	if err != nil {
		return fmt.Errorf("block task %d on circuit breaker: %w", taskID, err)
	}
	e.emit(models.EventCircuitBreaker, map[string]any{
		"task_id":           taskID,
		"plan_review_count": task.PlanReviewCount,
		"impl_review_count": task.ImplReviewCount,
	})
	kind := "impl_review"
	if task.PlanReviewCount >= task.ImplReviewCount {
		kind = "plan_review"
	}
	telemetry.RecordCircuitBreakerTrip(kind)
	return nil
}

func (e *Engine) markDone(taskID int64) error {
	now := time.Now().UTC()
	_, err := store.UpdateTask(e.db, taskID, store.TaskPatch{
		Status:       statusPtr(models.StatusDone),
		CurrentAgent: stagePtrPtr(nil),
		CompletedAt:  timePtrPtr(&now),
	}, -1)
	if err != nil {
		return fmt.Errorf("complete task %d: %w", taskID, err)
	}
	e.emit(models.EventPipelineStageChange, map[string]any{"task_id": taskID, "action": "done"})
	return nil
}

// PauseTask saves status -> pausedFromStatus, aborts the current session,
// and sets status=paused. Idempotent for an already-paused task.
func (e *Engine) PauseTask(ctx context.Context, taskID int64, reason models.PauseReason) error {
	task, err := store.GetTask(e.db, taskID)
	if err != nil {
		return err
	}
	if task.IsPaused() {
		return nil
	}

	if task.CurrentAgent != nil {
		e.runner.Registry().AbortSession(sessionKeyFor(taskID))
	}

	prevStatus := task.Status
	_, err = store.UpdateTask(e.db, taskID, store.TaskPatch{
		Status:           statusPtr(models.StatusPaused),
		PausedFromStatus: statusPtrPtr(&prevStatus),
		PauseReason:      pauseReasonPtrPtr(&reason),
	}, -1)
	if err != nil {
		return fmt.Errorf("pause task %d: %w", taskID, err)
	}
	e.emit(models.EventStagePause, map[string]any{"task_id": taskID, "reason": reason})
	return nil
}

// ResumeTask restores status from pausedFromStatus, clears pause fields,
// and resumes the current stage's session rather than restarting it.
func (e *Engine) ResumeTask(ctx context.Context, taskID int64) error {
	task, err := store.GetTask(e.db, taskID)
	if err != nil {
		return err
	}
	if !task.IsPaused() {
		return models.NewPreconditionError(fmt.Sprintf("task %d is not paused", taskID), nil)
	}
	restoredStatus := models.StatusImplementing
	if task.PausedFromStatus != nil {
		restoredStatus = *task.PausedFromStatus
	}

	var nilTaskStatus *models.TaskStatus
	var nilPauseReason *models.PauseReason
	_, err = store.UpdateTask(e.db, taskID, store.TaskPatch{
		Status:           statusPtr(restoredStatus),
		PausedFromStatus: statusPtrPtr(nilTaskStatus),
		PauseReason:      pauseReasonPtrPtr(nilPauseReason),
	}, -1)
	if err != nil {
		return fmt.Errorf("resume task %d: %w", taskID, err)
	}

	if task.CurrentAgent == nil {
		return nil
	}
	resumeSessionID := ""
	if task.ActiveSessionID != nil {
		resumeSessionID = *task.ActiveSessionID
	}
	return e.runStageWithResume(ctx, taskID, *task.CurrentAgent, "", resumeSessionID)
}

// RestartToStage is the central rollback operation: abort the active
// session, reset the VCS worktree to the commit before targetStage, clear
// stage outputs at or after targetStage, and set status to targetStage's
// status.
func (e *Engine) RestartToStage(ctx context.Context, taskID int64, targetStage models.Stage) error {
	task, err := store.GetTask(e.db, taskID)
	if err != nil {
		return err
	}

	if task.CurrentAgent != nil {
		e.runner.Registry().AbortSession(sessionKeyFor(taskID))
	}

	targetIndex := StageIndex(task.Tier, targetStage)
	if e.vcs != nil {
		var vcsErr error
		seq := StageSequence(task.Tier)
		if targetIndex <= 0 {
			_, vcsErr = e.vcs.StashAndReset(ctx, taskID)
		} else {
			vcsErr = e.vcs.ResetToStageCommit(ctx, taskID, seq[targetIndex-1])
		}
		if vcsErr != nil {
			slog.Warn("pipeline: vcs rollback failed, falling back to stash-and-reset", "task_id", taskID, "error", vcsErr)
			_, _ = e.vcs.StashAndReset(ctx, taskID)
		}
	}

	patch := store.TaskPatch{
		Status:          statusPtr(StatusFor(targetStage)),
		CurrentAgent:    stagePtrPtr(&targetStage),
		ActiveSessionID: stringPtrPtr(nil),
		RichHandoff:     stringPtrPtr(nil),
		Todos:           stringPtrPtr(nil),
	}
	for _, field := range ClearFields(targetStage) {
		applyClearField(&patch, field)
	}

	if _, err := store.UpdateTask(e.db, taskID, patch, -1); err != nil {
		return fmt.Errorf("restart task %d to %s: %w", taskID, targetStage, err)
	}
	if err := store.DeleteHandoffs(e.db, taskID); err != nil {
		return fmt.Errorf("clear handoffs for task %d: %w", taskID, err)
	}
	_ = store.AppendLogEntry(e.db, models.AgentLogEntry{TaskID: taskID, Action: "restart", Details: string(targetStage)})
	e.emit(models.EventPipelineStageChange, map[string]any{"task_id": taskID, "action": "restart", "stage": targetStage})
	return nil
}

func applyClearField(patch *store.TaskPatch, field string) {
	var nilStr *string
	switch field {
	case "brainstorm_output":
		patch.BrainstormOutput = stringPtrPtr(nilStr)
	case "design_review":
		patch.DesignReview = stringPtrPtr(nilStr)
	case "plan":
		patch.Plan = stringPtrPtr(nilStr)
	case "implementation_notes":
		patch.ImplementationNotes = stringPtrPtr(nilStr)
	case "review_comments":
		patch.ReviewComments = stringPtrPtr(nilStr)
	case "review_score":
		var nilF *float64
		patch.ReviewScore = floatPtrPtr(nilF)
	case "test_results":
		var nilTR *models.TestResults
		patch.TestResults = testResultsPtrPtr(nilTR)
	case "verify_result":
		patch.VerifyResult = stringPtrPtr(nilStr)
	case "commit_hash":
		patch.CommitHash = stringPtrPtr(nilStr)
	}
}

func (e *Engine) runStage(ctx context.Context, taskID int64, stage models.Stage, feedback string) error {
	return e.runStageWithResume(ctx, taskID, stage, feedback, "")
}

// runStage is the heart of the engine: compose prompt, call the SDK
// Runner under an abortable timeout, parse the handoff, persist outputs,
// and dispatch on the handoff status.
func (e *Engine) runStageWithResume(ctx context.Context, taskID int64, stage models.Stage, feedback, resumeSessionID string) error {
	task, err := store.GetTask(e.db, taskID)
	if err != nil {
		return err
	}

	started := time.Now()
	ctx, span := telemetry.StartStageSpan(ctx, taskID, string(stage))
	defer span.End()
	e.emit(models.EventStageStart, map[string]any{"task_id": taskID, "stage": stage})
	_ = store.AppendLogEntry(e.db, models.AgentLogEntry{TaskID: taskID, Action: "stage_start", Details: string(stage)})

	handoffs, _ := store.ListHandoffs(e.db, taskID)
	promptText, err := prompt.Build(prompt.BuildParams{
		Task:      task,
		Stage:     stage,
		Handoffs:  handoffs,
		Skills:    e.skills,
		Knowledge: e.knowledge,
		Feedback:  feedback,
	})
	if err != nil {
		return fmt.Errorf("compose prompt for task %d stage %s: %w", taskID, stage, err)
	}

	cfg := Config(stage)
	cfg.Model = e.resolveModel(cfg.Model)
	workingDir := ""
	if task.WorktreePath != nil {
		workingDir = *task.WorktreePath
	}
	sessionKey := sessionKeyFor(taskID)

	runCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	result, runErr := e.runner.Run(runCtx, sdkrunner.RunParams{
		Prompt:          promptText,
		Model:           cfg.Model,
		MaxTurns:        cfg.MaxTurns,
		WorkingDir:      workingDir,
		TaskID:          taskID,
		AutoMode:        task.AutoMode,
		ResumeSessionID: resumeSessionID,
		SessionKey:      sessionKey,
		Stage:           string(stage),
		OnStream: func(content string, st sdkrunner.StreamType, extra map[string]any) {
			e.emit(models.EventPipelineStream, map[string]any{"task_id": taskID, "stage": stage, "type": st, "content": content, "extra": extra})
		},
		OnApprovalRequest: func(requestID, toolName string, input json.RawMessage) {
			e.emit(models.EventPipelineApprovalRequest, map[string]any{"task_id": taskID, "request_id": requestID, "tool": toolName})
		},
	})

	if runErr != nil {
		// Pausing races the catch; the pause must win, so only blocks when
		// the task isn't already paused by a concurrent PauseTask call.
		current, getErr := store.GetTask(e.db, taskID)
		if getErr == nil && !current.IsPaused() {
			_, _ = store.UpdateTask(e.db, taskID, store.TaskPatch{Status: statusPtr(models.StatusBlocked)}, -1)
		}
		_ = store.AppendLogEntry(e.db, models.AgentLogEntry{TaskID: taskID, Action: "stage_error", Details: runErr.Error()})
		e.emit(models.EventStageError, map[string]any{"task_id": taskID, "stage": stage, "error": runErr.Error()})
		telemetry.RecordStageDuration(string(stage), "error", time.Since(started).Seconds())
		telemetry.RecordStageTransition(string(stage), "error")
		telemetry.EndSpanErr(span, runErr)
		return nil
	}
	telemetry.RecordStageDuration(string(stage), "ok", time.Since(started).Seconds())
	telemetry.EndSpanOK(span)

	parsed := prompt.ParseHandoff(result.Output)
	handoff := models.Handoff{
		TaskID:         taskID,
		Stage:          stage,
		Agent:          string(stage),
		Model:          cfg.Model,
		Status:         parsed.Status,
		Summary:        parsed.Summary,
		KeyDecisions:   parsed.KeyDecisions,
		OpenQuestions:  parsed.OpenQuestions,
		FilesModified:  parsed.FilesModified,
		NextStageNeeds: parsed.NextStageNeeds,
		Warnings:       parsed.Warnings,
	}
	if _, err := store.AppendHandoff(e.db, handoff); err != nil {
		return fmt.Errorf("append handoff for task %d: %w", taskID, err)
	}

	patch := stageOutputPatch(stage, result.Output)
	if result.SessionID != "" {
		patch.ActiveSessionID = stringPtrPtr(&result.SessionID)
	}
	if _, err := store.UpdateTask(e.db, taskID, patch, -1); err != nil {
		return fmt.Errorf("write stage outputs for task %d: %w", taskID, err)
	}
	_ = store.AppendLogEntry(e.db, models.AgentLogEntry{TaskID: taskID, Action: "stage_complete", Details: string(stage)})

	switch parsed.Status {
	case models.HandoffBlocked:
		_, _ = store.UpdateTask(e.db, taskID, store.TaskPatch{Status: statusPtr(models.StatusBlocked)}, -1)
		e.emit(models.EventStageError, map[string]any{"task_id": taskID, "stage": stage, "handoff_status": parsed.Status})
		telemetry.RecordStageTransition(string(stage), "blocked")
		return nil
	case models.HandoffNeedsIntervention:
		e.emit(models.EventStagePause, map[string]any{"task_id": taskID, "stage": stage, "open_questions": parsed.OpenQuestions})
		telemetry.RecordStageTransition(string(stage), "needs_intervention")
		return nil
	}
	if parsed.OpenQuestions != "" {
		e.emit(models.EventStagePause, map[string]any{"task_id": taskID, "stage": stage, "open_questions": parsed.OpenQuestions})
		telemetry.RecordStageTransition(string(stage), "pause")
		return nil
	}

	e.emit(models.EventStageComplete, map[string]any{"task_id": taskID, "stage": stage})
	e.emit(models.EventGroupTaskStageComplete, map[string]any{"task_id": taskID, "stage": stage, "summary": parsed.Summary})

	cfg2 := Config(stage)
	if cfg2.Pauses && !task.AutoMode {
		return nil
	}

	freshTask, err := store.GetTask(e.db, taskID)
	if err != nil {
		return err
	}
	next, ok := NextStage(freshTask.Tier, stage)
	if !ok {
		return e.markDone(taskID)
	}
	if !canTransition(freshTask, next) {
		return e.tripCircuitBreaker(taskID, freshTask)
	}
	if _, err := store.UpdateTask(e.db, taskID, store.TaskPatch{
		Status:       statusPtr(StatusFor(next)),
		CurrentAgent: stagePtrPtr(&next),
	}, -1); err != nil {
		return fmt.Errorf("advance task %d to %s: %w", taskID, next, err)
	}
	e.emit(models.EventPipelineStageChange, map[string]any{"task_id": taskID, "action": "advance", "stage": next})
	return e.runStage(ctx, taskID, next, "")
}

var reviewScoreRe = regexp.MustCompile(`(?i)(?:score|rating)\s*[:=]\s*(\d+(?:\.\d+)?)`)
var testsPassedRe = regexp.MustCompile(`(?i)tests passed`)
var commitHashRe = regexp.MustCompile(`(?i)commit\s+([0-9a-f]{7,40})`)

// stageOutputPatch maps a stage's output text to the task fields it
// populates, per the stage-output table.
func stageOutputPatch(stage models.Stage, output string) store.TaskPatch {
	patch := store.TaskPatch{}
	text := output
	switch stage {
	case models.StageBrainstorm:
		patch.BrainstormOutput = stringPtrPtr(&text)
	case models.StageDesignReview:
		patch.DesignReview = stringPtrPtr(&text)
	case models.StagePlan:
		patch.Plan = stringPtrPtr(&text)
	case models.StageImplement:
		patch.ImplementationNotes = stringPtrPtr(&text)
	case models.StageCodeReview:
		patch.ReviewComments = stringPtrPtr(&text)
		if m := reviewScoreRe.FindStringSubmatch(output); m != nil {
			if score, err := strconv.ParseFloat(m[1], 64); err == nil {
				patch.ReviewScore = floatPtrPtr(&score)
			}
		}
	case models.StageVerify:
		patch.VerifyResult = stringPtrPtr(&text)
		tr := models.TestResults{Passed: testsPassedRe.MatchString(output), Summary: truncate(output, 500)}
		patch.TestResults = testResultsPtrPtr(&tr)
	case models.StageDone:
		if m := commitHashRe.FindStringSubmatch(output); m != nil {
			hash := m[1]
			patch.CommitHash = stringPtrPtr(&hash)
		}
	}
	return patch
}

// sessionKeyFor derives the registry session key for a task, distinct from
// the provider-issued session id stored in activeSessionId (used to resume
// a conversation rather than to cancel it).
func sessionKeyFor(taskID int64) string {
	return fmt.Sprintf("task-%d", taskID)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// pointer-construction helpers shared across this file; kept tiny and
// local rather than a generic package since each wraps a distinct
// TaskPatch field type.
func statusPtr(s models.TaskStatus) *models.TaskStatus       { return &s }
func statusPtrPtr(p *models.TaskStatus) **models.TaskStatus   { return &p }
func stagePtrPtr(p *models.Stage) **models.Stage              { return &p }
func timePtrPtr(p *time.Time) **time.Time                     { return &p }
func stringPtrPtr(p *string) **string                         { return &p }
func floatPtrPtr(p *float64) **float64                        { return &p }
func testResultsPtrPtr(p *models.TestResults) **models.TestResults { return &p }
func pauseReasonPtrPtr(p *models.PauseReason) **models.PauseReason { return &p }
