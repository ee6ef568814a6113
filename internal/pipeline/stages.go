// Package pipeline drives a task through its tier's stage sequence,
// coordinating the Store, the VCS Adapter, and the SDK Runner, and emitting
// events for the renderer at every transition.
package pipeline

import (
	"time"

	"github.com/clawflow/clawflow/internal/models"
)

// StageConfig is the static configuration for one stage.
type StageConfig struct {
	Model    string
	MaxTurns int
	Pauses   bool
	Skill    string
	Timeout  time.Duration
}

const defaultStageTimeout = 15 * time.Minute

// tierSequences maps each tier to its ordered stage list.
var tierSequences = map[models.Tier][]models.Stage{
	models.TierL1: {models.StagePlan, models.StageImplement, models.StageDone},
	models.TierL2: {models.StageBrainstorm, models.StagePlan, models.StageImplement, models.StageVerify, models.StageDone},
	models.TierL3: {models.StageBrainstorm, models.StageDesignReview, models.StagePlan, models.StageImplement, models.StageCodeReview, models.StageVerify, models.StageDone},
}

// StageSequence returns the ordered stage list for a tier.
func StageSequence(tier models.Tier) []models.Stage {
	return tierSequences[tier]
}

// stageConfigs is the per-stage static configuration table.
var stageConfigs = map[models.Stage]StageConfig{
	models.StageBrainstorm:   {Model: "default", MaxTurns: 8, Pauses: true, Skill: "brainstorm", Timeout: defaultStageTimeout},
	models.StageDesignReview: {Model: "default", MaxTurns: 6, Pauses: true, Skill: "design_review", Timeout: defaultStageTimeout},
	models.StagePlan:         {Model: "default", MaxTurns: 8, Pauses: true, Skill: "plan", Timeout: defaultStageTimeout},
	models.StageImplement:    {Model: "default", MaxTurns: 40, Pauses: false, Skill: "implement", Timeout: defaultStageTimeout},
	models.StageCodeReview:   {Model: "default", MaxTurns: 10, Pauses: true, Skill: "code_review", Timeout: defaultStageTimeout},
	models.StageVerify:       {Model: "default", MaxTurns: 15, Pauses: false, Skill: "verify", Timeout: defaultStageTimeout},
	models.StageDone:         {Model: "default", MaxTurns: 3, Pauses: false, Skill: "finalize", Timeout: defaultStageTimeout},
}

// Config returns the static configuration for a stage.
func Config(stage models.Stage) StageConfig {
	return stageConfigs[stage]
}

// stageStatus maps a stage to the task's external status while that stage
// is active.
var stageStatus = map[models.Stage]models.TaskStatus{
	models.StageBrainstorm:   models.StatusBrainstorming,
	models.StageDesignReview: models.StatusDesignReview,
	models.StagePlan:         models.StatusPlanning,
	models.StageImplement:    models.StatusImplementing,
	models.StageCodeReview:   models.StatusCodeReview,
	models.StageVerify:       models.StatusVerifying,
	models.StageDone:         models.StatusDone,
}

// StatusFor returns the task status a stage maps to.
func StatusFor(stage models.Stage) models.TaskStatus {
	return stageStatus[stage]
}

// NextStage returns the stage after current in tier's sequence, and false
// if current is the last stage.
func NextStage(tier models.Tier, current models.Stage) (models.Stage, bool) {
	seq := StageSequence(tier)
	for i, s := range seq {
		if s == current {
			if i+1 < len(seq) {
				return seq[i+1], true
			}
			return "", false
		}
	}
	return "", false
}

// StageIndex returns current's position in tier's sequence, or -1.
func StageIndex(tier models.Tier, current models.Stage) int {
	seq := StageSequence(tier)
	for i, s := range seq {
		if s == current {
			return i
		}
	}
	return -1
}

// isPlanCounterStage reports whether a rejection at this stage increments
// planReviewCount (true) or implReviewCount (false).
func isPlanCounterStage(stage models.Stage) bool {
	switch stage {
	case models.StageBrainstorm, models.StageDesignReview, models.StagePlan:
		return true
	default:
		return false
	}
}

// stageClearFields is the static table restartToStage uses to null out
// stage outputs at or after the restart target.
var stageClearFields = map[models.Stage][]string{
	models.StageBrainstorm:   {"brainstorm_output", "design_review", "plan", "implementation_notes", "review_comments", "review_score", "test_results", "verify_result", "commit_hash"},
	models.StageDesignReview: {"design_review", "plan", "implementation_notes", "review_comments", "review_score", "test_results", "verify_result", "commit_hash"},
	models.StagePlan:         {"plan", "implementation_notes", "review_comments", "review_score", "test_results", "verify_result", "commit_hash"},
	models.StageImplement:    {"implementation_notes", "review_comments", "review_score", "test_results", "verify_result", "commit_hash"},
	models.StageCodeReview:   {"review_comments", "review_score", "test_results", "verify_result", "commit_hash"},
	models.StageVerify:       {"test_results", "verify_result", "commit_hash"},
	models.StageDone:         {"commit_hash"},
}

// ClearFields returns the stage-output columns to null when restarting to
// target.
func ClearFields(target models.Stage) []string {
	return stageClearFields[target]
}
