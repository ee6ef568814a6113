// Package orchestrator coordinates a TaskGroup's member tasks: topological
// launch order, pause/resume propagation on member failure, and group
// lifecycle transitions driven by Pipeline Engine events.
package orchestrator

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/clawflow/clawflow/internal/models"
	"github.com/clawflow/clawflow/internal/pipeline"
	"github.com/clawflow/clawflow/internal/store"
	"github.com/clawflow/clawflow/internal/telemetry"
)

// EventSink receives Orchestrator observability events (group:*).
type EventSink func(models.Event)

// Orchestrator launches and coordinates a group's member tasks over the
// Pipeline Engine.
type Orchestrator struct {
	db     *sql.DB
	engine *pipeline.Engine
	sink   EventSink

	mu            sync.Mutex
	pausedByGroup map[int64]bool
}

// New builds an Orchestrator over the shared Store and Pipeline Engine.
func New(db *sql.DB, engine *pipeline.Engine, sink EventSink) *Orchestrator {
	return &Orchestrator{db: db, engine: engine, sink: sink, pausedByGroup: make(map[int64]bool)}
}

func (o *Orchestrator) emit(kind string, payload any) {
	if o.sink == nil {
		return
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return
	}
	o.sink(models.Event{Kind: kind, Payload: b})
}

// HandleEngineEvent is wired into the Pipeline Engine's EventSink (composed
// alongside whatever sink feeds the renderer) so the Orchestrator reacts to
// member-task stage transitions without the Engine knowing about groups.
func (o *Orchestrator) HandleEngineEvent(ev models.Event) {
	var payload struct {
		TaskID  int64  `json:"task_id"`
		Stage   string `json:"stage"`
		Summary string `json:"summary"`
		Action  string `json:"action"`
	}
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		return
	}
	if payload.TaskID == 0 {
		return
	}
	task, err := store.GetTask(o.db, payload.TaskID)
	if err != nil || task.GroupID == nil {
		return
	}
	groupID := *task.GroupID

	switch ev.Kind {
	case models.EventStageComplete:
		o.emit(models.EventGroupTaskStageComplete, map[string]any{
			"group_id": groupID, "task_id": payload.TaskID, "stage": payload.Stage, "summary": payload.Summary,
		})
		o.maybeCompleteGroup(groupID)
	case models.EventPipelineStageChange:
		if payload.Action != "done" {
			return
		}
		o.maybeCompleteGroup(groupID)
		if err := o.launchReadyMembers(context.Background(), groupID); err != nil {
			slog.Warn("orchestrator: failed to launch newly-ready members", "group_id", groupID, "error", err)
		}
	case models.EventStageError, models.EventStagePause:
		if err := o.pauseGroup(context.Background(), groupID, "member task "+ev.Kind); err != nil {
			slog.Warn("orchestrator: failed to pause group after member event", "group_id", groupID, "error", err)
		}
	}
}

// launchReadyMembers re-checks every not-yet-started member of groupID whose
// dependencies (restricted to the group) are now met, and starts them. It is
// called whenever a member task reaches done, since that is the only event
// that can newly satisfy another member's dependency.
func (o *Orchestrator) launchReadyMembers(ctx context.Context, groupID int64) error {
	o.mu.Lock()
	paused := o.pausedByGroup[groupID]
	o.mu.Unlock()
	if paused {
		return nil
	}

	tasks, err := store.GetTasksByGroup(o.db, groupID)
	if err != nil {
		return fmt.Errorf("load group %d members: %w", groupID, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, t := range tasks {
		if t.Status != models.StatusBacklog {
			continue
		}
		t := t
		met, err := store.AreDependenciesMet(o.db, t.ID)
		if err != nil {
			return fmt.Errorf("check dependencies for task %d: %w", t.ID, err)
		}
		if !met {
			continue
		}
		g.Go(func() error {
			if startErr := o.engine.StartTask(gctx, t.ID); startErr != nil {
				slog.Warn("orchestrator: member task failed to start", "task_id", t.ID, "error", startErr)
			}
			return nil
		})
	}
	return g.Wait()
}

// LaunchGroup marks the group running and starts every member task whose
// dependencies (restricted to the group) are already met, in topological
// order, launching mutually-ready tasks in parallel.
func (o *Orchestrator) LaunchGroup(ctx context.Context, groupID int64) error {
	if _, err := store.UpdateGroup(o.db, groupID, store.GroupPatch{Status: groupStatusPtr(models.GroupStatusRunning)}, -1); err != nil {
		return fmt.Errorf("mark group %d running: %w", groupID, err)
	}

	tasks, err := store.GetTasksByGroup(o.db, groupID)
	if err != nil {
		return fmt.Errorf("load group %d members: %w", groupID, err)
	}
	ordered := topoSort(tasks)

	g, gctx := errgroup.WithContext(ctx)
	for _, t := range ordered {
		t := t
		met, err := store.AreDependenciesMet(o.db, t.ID)
		if err != nil {
			return fmt.Errorf("check dependencies for task %d: %w", t.ID, err)
		}
		if !met {
			continue
		}
		g.Go(func() error {
			if startErr := o.engine.StartTask(gctx, t.ID); startErr != nil {
				slog.Warn("orchestrator: member task failed to start", "task_id", t.ID, "error", startErr)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	o.emit(models.EventGroupCreated, map[string]any{"group_id": groupID, "action": "launched"})
	telemetry.RecordGroupEvent("launch")
	return nil
}

// pauseGroup pauses every active member task and emits group:paused. It is
// idempotent per group.
func (o *Orchestrator) pauseGroup(ctx context.Context, groupID int64, reason string) error {
	o.mu.Lock()
	if o.pausedByGroup[groupID] {
		o.mu.Unlock()
		return nil
	}
	o.pausedByGroup[groupID] = true
	o.mu.Unlock()

	tasks, err := store.GetTasksByGroup(o.db, groupID)
	if err != nil {
		return fmt.Errorf("load group %d members: %w", groupID, err)
	}

	pausedCount := 0
	for _, t := range tasks {
		if t.Status.IsTerminal() || t.IsPaused() {
			continue
		}
		if err := o.engine.PauseTask(ctx, t.ID, models.PauseReasonManual); err != nil {
			slog.Warn("orchestrator: failed to pause member task", "task_id", t.ID, "error", err)
			continue
		}
		pausedCount++
	}

	if _, err := store.UpdateGroup(o.db, groupID, store.GroupPatch{Status: groupStatusPtr(models.GroupStatusPaused)}, -1); err != nil {
		return fmt.Errorf("mark group %d paused: %w", groupID, err)
	}
	o.emit(models.EventGroupPaused, map[string]any{"group_id": groupID, "reason": reason, "paused_count": pausedCount})
	telemetry.RecordGroupEvent("pause")
	return nil
}

// PauseGroup is the public, synchronous-at-this-layer entry point:
// requests every member's pause and returns once requested, without
// waiting for their sessions to actually wind down.
func (o *Orchestrator) PauseGroup(ctx context.Context, groupID int64) error {
	return o.pauseGroup(ctx, groupID, "manual")
}

// ResumeGroup resumes every paused member whose dependencies are met;
// members still blocked on an unmet dependency are left paused. Idempotent.
func (o *Orchestrator) ResumeGroup(ctx context.Context, groupID int64) error {
	o.mu.Lock()
	o.pausedByGroup[groupID] = false
	o.mu.Unlock()

	tasks, err := store.GetTasksByGroup(o.db, groupID)
	if err != nil {
		return fmt.Errorf("load group %d members: %w", groupID, err)
	}

	for _, t := range tasks {
		if !t.IsPaused() {
			continue
		}
		met, err := store.AreDependenciesMet(o.db, t.ID)
		if err != nil {
			return fmt.Errorf("check dependencies for task %d: %w", t.ID, err)
		}
		if !met {
			continue
		}
		if err := o.engine.ResumeTask(ctx, t.ID); err != nil {
			slog.Warn("orchestrator: failed to resume member task", "task_id", t.ID, "error", err)
		}
	}

	if _, err := store.UpdateGroup(o.db, groupID, store.GroupPatch{Status: groupStatusPtr(models.GroupStatusRunning)}, -1); err != nil {
		return fmt.Errorf("mark group %d running: %w", groupID, err)
	}
	telemetry.RecordGroupEvent("resume")
	return nil
}

// DeleteGroup pauses any running members, unlinks tasks from the group, and
// removes the group record.
func (o *Orchestrator) DeleteGroup(ctx context.Context, groupID int64) error {
	if err := o.pauseGroup(ctx, groupID, "group deleted"); err != nil {
		slog.Warn("orchestrator: pause-before-delete failed", "group_id", groupID, "error", err)
	}

	tasks, err := store.GetTasksByGroup(o.db, groupID)
	if err != nil {
		return fmt.Errorf("load group %d members: %w", groupID, err)
	}
	var nilGroupID *int64
	for _, t := range tasks {
		if _, err := store.UpdateTask(o.db, t.ID, store.TaskPatch{GroupID: groupIDPtrPtr(nilGroupID)}, -1); err != nil {
			return fmt.Errorf("unlink task %d from group %d: %w", t.ID, groupID, err)
		}
	}

	if err := store.DeleteGroup(o.db, groupID); err != nil {
		return fmt.Errorf("delete group %d: %w", groupID, err)
	}
	o.emit(models.EventGroupDeleted, map[string]any{"group_id": groupID})
	telemetry.RecordGroupEvent("delete")
	return nil
}

func (o *Orchestrator) maybeCompleteGroup(groupID int64) {
	tasks, err := store.GetTasksByGroup(o.db, groupID)
	if err != nil {
		return
	}
	for _, t := range tasks {
		if t.Status != models.StatusDone {
			return
		}
	}
	if _, err := store.UpdateGroup(o.db, groupID, store.GroupPatch{Status: groupStatusPtr(models.GroupStatusCompleted)}, -1); err != nil {
		slog.Warn("orchestrator: failed to mark group completed", "group_id", groupID, "error", err)
		return
	}
	o.emit(models.EventGroupCompleted, map[string]any{"group_id": groupID})
	telemetry.RecordGroupEvent("complete")
}

func groupStatusPtr(s models.GroupStatus) *models.GroupStatus { return &s }
func groupIDPtrPtr(p *int64) **int64                          { return &p }
