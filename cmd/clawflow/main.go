// Command clawflow orchestrates local LLM coding agents through a
// multi-stage pipeline, storing task state, handoffs, and knowledge in
// SQLite and isolating each task's changes in its own git worktree.
package main

import (
	"os"
	"runtime/debug"

	"github.com/clawflow/clawflow/internal/commands"
)

// version is set via ldflags (-X main.version=v1.0.0) or detected
// automatically from Go module info embedded by go install.
var version = "dev"

func main() {
	if version == "dev" {
		if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
			version = info.Main.Version
		}
	}
	if err := commands.Execute(version); err != nil {
		os.Exit(1)
	}
}
