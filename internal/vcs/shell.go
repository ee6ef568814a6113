// Package vcs isolates each task in its own git worktree over a shared
// project repository, and provides stage-tagged commits, rollback, and
// merge on top of it.
package vcs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/clawflow/clawflow/internal/models"
	"github.com/clawflow/clawflow/internal/telemetry"
)

const (
	shellTimeout   = 30 * time.Second
	maxOutputBytes = 10 * 1024 * 1024
)

// EventSink receives VCS observability events (git:error, worktree:created,
// etc). Adapter never blocks on it; a nil sink silently drops events.
type EventSink func(models.Event)

// limitedBuffer caps writes at maxBytes, silently discarding overflow so a
// runaway git process can never exhaust memory.
type limitedBuffer struct {
	buf      bytes.Buffer
	maxBytes int
}

func (w *limitedBuffer) Write(p []byte) (int, error) {
	n := len(p)
	remaining := w.maxBytes - w.buf.Len()
	if remaining <= 0 {
		return n, nil
	}
	if len(p) > remaining {
		p = p[:remaining]
	}
	w.buf.Write(p)
	return n, nil
}

// runGit executes git with an explicit argument array (no shell expansion)
// in dir, bounded by shellTimeout and maxOutputBytes. On failure it emits a
// git:error event carrying the arguments and combined error text.
func (a *Adapter) runGit(ctx context.Context, dir string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, shellTimeout)
	defer cancel()

	op := "git"
	if len(args) > 0 {
		op = args[0]
	}
	started := time.Now()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir

	var stdout, stderr limitedBuffer
	stdout.maxBytes = maxOutputBytes
	stderr.maxBytes = maxOutputBytes
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := strings.TrimRight(stdout.buf.String(), " \t\r\n")
	if err != nil {
		errText := strings.TrimSpace(stderr.buf.String())
		if errText == "" {
			errText = err.Error()
		}
		a.emitGitError(args, errText)
		telemetry.RecordVCSOperation(op, "error", time.Since(started).Seconds())
		return out, fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, errText)
	}
	telemetry.RecordVCSOperation(op, "ok", time.Since(started).Seconds())
	return out, nil
}

func (a *Adapter) emit(kind string, payload any) {
	if a.sink == nil {
		return
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return
	}
	a.sink(models.Event{Kind: kind, Payload: b, Timestamp: time.Now()})
}

func (a *Adapter) emitGitError(args []string, errText string) {
	a.emit(models.EventGitError, map[string]any{
		"args":  args,
		"error": errText,
	})
}
