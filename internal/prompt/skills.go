package prompt

import (
	"os"
	"path/filepath"
)

// defaultSkills is the built-in fallback content per stage skill name, used
// when no override/project/global file exists.
var defaultSkills = map[string]string{
	"brainstorm":    "List at least two viable approaches with tradeoffs before committing to one.",
	"design_review": "Check the design against existing architecture conventions before approving.",
	"plan":          "Break the implementation into small, independently verifiable steps.",
	"implement":     "Write the smallest correct change that satisfies the plan; keep diffs focused.",
	"code_review":   "Look for correctness, missed edge cases, and test coverage gaps.",
	"verify":        "Run the test suite and report pass/fail plainly.",
	"finalize":      "Commit any uncommitted changes with a clear message and report the commit hash.",
}

// FileSkillResolver resolves skill content by name through an override ->
// project -> global -> default chain, each represented as a directory of
// "{name}.md" files (empty directories are tolerated).
type FileSkillResolver struct {
	OverrideDir string
	ProjectDir  string
	GlobalDir   string
}

// Resolve implements SkillResolver.
func (r FileSkillResolver) Resolve(name string) (string, error) {
	for _, dir := range []string{r.OverrideDir, r.ProjectDir, r.GlobalDir} {
		if dir == "" {
			continue
		}
		content, err := os.ReadFile(filepath.Join(dir, name+".md"))
		if err == nil {
			return string(content), nil
		}
	}
	return defaultSkills[name], nil
}
