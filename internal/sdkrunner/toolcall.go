package sdkrunner

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
)

// toolCallRe matches <tool_call name="X">{JSON}</tool_call> blocks scanned
// out of the final accumulated output after the stream drains.
var toolCallRe = regexp.MustCompile(`(?s)<tool_call name="([^"]+)">(.*?)</tool_call>`)

type saveKnowledgeArgs struct {
	Key     string `json:"key"`
	Summary string `json:"summary"`
	Content string `json:"content"`
}

// extractToolCalls scans output for XML-wrapped tool calls and dispatches
// any save_knowledge calls found. Malformed JSON inside a block is logged
// and skipped; it never aborts the run.
func (r *Runner) extractToolCalls(ctx context.Context, output string) {
	if r.knowledge == nil {
		return
	}
	matches := toolCallRe.FindAllStringSubmatch(output, -1)
	for _, m := range matches {
		name, body := m[1], m[2]
		if name != "save_knowledge" {
			continue
		}
		var args saveKnowledgeArgs
		if err := json.Unmarshal([]byte(body), &args); err != nil {
			slog.Warn("sdkrunner: skipping malformed save_knowledge tool call", "error", err)
			continue
		}
		if err := r.knowledge.SaveCandidate(ctx, args.Key, args.Summary, args.Content); err != nil {
			slog.Warn("sdkrunner: failed to save candidate knowledge", "key", args.Key, "error", err)
		}
	}
}

// isTodoTool reports whether a tool-use name is a todo/task bookkeeping
// tool. runOnce uses it to tag the tool_use stream event with
// todos_updated (at most once per todoDebounce); the tool's arguments are
// not parsed or persisted, and the call still goes through the permission
// check like any other tool use.
func isTodoTool(name string) bool {
	switch name {
	case "TaskCreate", "TaskUpdate", "TodoWrite":
		return true
	default:
		return false
	}
}
