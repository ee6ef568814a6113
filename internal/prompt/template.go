// Package prompt assembles the text sent to the SDK Runner for a stage run,
// and parses the structured handoff back out of the agent's final output.
package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/clawflow/clawflow/internal/models"
)

// stageSystemTemplates holds one template per stage, selected before the
// rest of the sections are appended. {{variable}} placeholders are
// substituted by Build.
var stageSystemTemplates = map[models.Stage]string{
	models.StageBrainstorm: "You are brainstorming approaches for task #{{task_id}}: {{task_title}}.\n{{task_description}}",
	models.StageDesignReview: "Review the design for task #{{task_id}}: {{task_title}}.\n{{task_description}}",
	models.StagePlan: "Produce an implementation plan for task #{{task_id}}: {{task_title}}.\n{{task_description}}",
	models.StageImplement: "Implement task #{{task_id}}: {{task_title}} in the working directory.\n{{task_description}}",
	models.StageCodeReview: "Review the implementation for task #{{task_id}}: {{task_title}}.\n{{task_description}}",
	models.StageVerify: "Verify task #{{task_id}}: {{task_title}} by running its tests.\n{{task_description}}",
	models.StageDone: "Finalize task #{{task_id}}: {{task_title}}. Commit any remaining changes and report the commit hash.\n{{task_description}}",
}

// SkillResolver resolves skill content by name through an override -> project
// -> global -> default chain.
type SkillResolver interface {
	Resolve(name string) (string, error)
}

// KnowledgeIndex supplies the one-line-per-entry domain knowledge index.
type KnowledgeIndex interface {
	IndexLines() ([]string, error)
}

// BuildParams is the input to Build.
type BuildParams struct {
	Task       *models.Task
	Stage      models.Stage
	Handoffs   []*models.Handoff
	Skills     SkillResolver
	Knowledge  KnowledgeIndex
	Feedback   string // non-empty when re-running after a rejection
}

// Build composes the full prompt text for a stage run.
func Build(p BuildParams) (string, error) {
	var b strings.Builder

	system := stageSystemTemplates[p.Stage]
	system = substitute(system, map[string]string{
		"task_id":          fmt.Sprintf("%d", p.Task.ID),
		"task_title":       p.Task.Title,
		"task_description": p.Task.Description,
	})
	b.WriteString(system)
	b.WriteString("\n\n")

	if p.Skills != nil {
		cfg := cfgFor(p.Task, p.Stage)
		if cfg != "" {
			content, err := p.Skills.Resolve(cfg)
			if err == nil && content != "" {
				b.WriteString("## Skill guidance\n")
				b.WriteString(content)
				b.WriteString("\n\n")
			}
		}
	}

	b.WriteString("## Previous stages\n")
	b.WriteString(FormatHandoffChain(p.Handoffs))
	b.WriteString("\n\n")

	if p.Task.WorkOrder != nil {
		woJSON, _ := json.MarshalIndent(p.Task.WorkOrder, "", "  ")
		b.WriteString("## Work order\n")
		b.Write(woJSON)
		b.WriteString("\n\n")
	}

	if p.Knowledge != nil {
		lines, err := p.Knowledge.IndexLines()
		if err == nil && len(lines) > 0 {
			b.WriteString("## Known context\n")
			for _, l := range lines {
				b.WriteString("- ")
				b.WriteString(l)
				b.WriteString("\n")
			}
			b.WriteString("\n")
		}
	}

	if p.Feedback != "" {
		b.WriteString("## Reviewer feedback\n")
		b.WriteString(p.Feedback)
		b.WriteString("\n")
	}

	return b.String(), nil
}

func cfgFor(task *models.Task, stage models.Stage) string {
	if task.AssignedSkill != nil && *task.AssignedSkill != "" {
		return *task.AssignedSkill
	}
	return string(stage)
}

func substitute(tmpl string, vars map[string]string) string {
	out := tmpl
	for k, v := range vars {
		out = strings.ReplaceAll(out, "{{"+k+"}}", v)
	}
	return out
}
