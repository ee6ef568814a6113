package sdkrunner

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var readOnlyTools = map[string]bool{
	"Read": true, "Glob": true, "Grep": true, "WebSearch": true, "WebFetch": true,
}

var orchestrationTools = map[string]bool{
	"TaskCreate": true, "TaskUpdate": true, "TodoWrite": true,
	"TeamAssign": true, "TeamStatus": true, "TeamMessage": true,
}

type permissionDecision struct {
	allowed bool
	reason  string
}

type writeEditInput struct {
	FilePath string `json:"file_path"`
	Path     string `json:"path"`
}

// checkPermission implements the five-rule dispatch: read-only tools and
// orchestration bookkeeping are always allowed; writes/edits confined to
// the working directory are allowed after ensuring the parent directory
// exists; `mkdir ` Bash commands are allowed; everything else defers to
// autoMode or suspends for an approval round-trip.
func (r *Runner) checkPermission(ctx context.Context, p RunParams, toolName string, input json.RawMessage) (permissionDecision, <-chan approvalResult, string) {
	if readOnlyTools[toolName] {
		return permissionDecision{allowed: true, reason: "read-only tool"}, nil, ""
	}
	if orchestrationTools[toolName] {
		return permissionDecision{allowed: true, reason: "orchestration bookkeeping"}, nil, ""
	}

	if toolName == "Write" || toolName == "Edit" {
		var args writeEditInput
		_ = json.Unmarshal(input, &args)
		path := args.FilePath
		if path == "" {
			path = args.Path
		}
		if path != "" && pathWithin(p.WorkingDir, path) {
			_ = os.MkdirAll(filepath.Dir(resolveWithin(p.WorkingDir, path)), 0o750)
			return permissionDecision{allowed: true, reason: "write within working directory"}, nil, ""
		}
	}

	if toolName == "Bash" {
		var bashArgs struct {
			Command string `json:"command"`
		}
		_ = json.Unmarshal(input, &bashArgs)
		if strings.HasPrefix(bashArgs.Command, "mkdir ") {
			return permissionDecision{allowed: true, reason: "mkdir bash command"}, nil, ""
		}
	}

	if p.AutoMode {
		return permissionDecision{allowed: true, reason: "autoMode bypass"}, nil, ""
	}

	requestID := newRequestID()
	resultCh := r.registry.requestApproval(p.SessionKey, requestID)
	if p.OnApprovalRequest != nil {
		p.OnApprovalRequest(requestID, toolName, input)
	}
	return permissionDecision{}, resultCh, requestID
}

func pathWithin(workingDir, candidate string) bool {
	resolved := resolveWithin(workingDir, candidate)
	rel, err := filepath.Rel(workingDir, resolved)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func resolveWithin(workingDir, candidate string) string {
	if filepath.IsAbs(candidate) {
		return filepath.Clean(candidate)
	}
	return filepath.Clean(filepath.Join(workingDir, candidate))
}

func newRequestID() string {
	return "req_" + uuid.NewString()
}
