// Package sdkrunner executes one LLM interaction to completion: it sends a
// prompt, consumes a stream of model output, mediates tool-use permissions,
// recovers from transient failures with bounded retries, and supports
// cooperative cancellation.
package sdkrunner

import (
	"context"
	"encoding/json"
)

// StreamType mirrors models.StreamType for the onStream callback, kept
// local to avoid a dependency from sdkrunner back onto the Engine.
type StreamType string

const (
	StreamText    StreamType = "text"
	StreamToolUse StreamType = "tool_use"
	StreamContext StreamType = "context"
	StreamThinking StreamType = "thinking"
)

// RunParams is the input to Run.
type RunParams struct {
	Prompt     string
	Model      string
	MaxTurns   int
	WorkingDir string
	TaskID     int64
	AutoMode   bool

	ResumeSessionID string
	SessionKey      string

	DBPath string
	Stage  string

	OnStream          func(content string, streamType StreamType, extra map[string]any)
	OnApprovalRequest func(requestID, toolName string, input json.RawMessage)
}

// Usage is token accounting for one run.
type Usage struct {
	InputTokens      int `json:"input_tokens"`
	OutputTokens     int `json:"output_tokens"`
	CacheReadTokens  int `json:"cache_read_input_tokens"`
	Cost             float64 `json:"cost"`
}

// Result is the outcome of one completed run.
type Result struct {
	Output        string `json:"output"`
	Cost          float64 `json:"cost"`
	Turns         int    `json:"turns"`
	SessionID     string `json:"session_id"`
	ContextTokens int    `json:"context_tokens"`
	ContextMax    int    `json:"context_max"`
	Usage         Usage  `json:"usage"`
}

// Runner executes LLM interactions against a Provider, applying the
// permission broker, retry policy, and cancellation registry described in
// the package doc.
type Runner struct {
	provider  Provider
	registry  *Registry
	knowledge KnowledgeSaver
}

// KnowledgeSaver persists a candidate knowledge entry extracted from a
// run's output. Implemented by the store package; kept as an interface
// here so sdkrunner never imports store directly.
type KnowledgeSaver interface {
	SaveCandidate(ctx context.Context, key, summary, content string) error
}

// NewRunner builds a Runner over provider, optionally persisting
// save_knowledge tool calls via knowledge.
func NewRunner(provider Provider, knowledge KnowledgeSaver) *Runner {
	return &Runner{
		provider:  provider,
		registry:  NewRegistry(),
		knowledge: knowledge,
	}
}

// Registry exposes the shared session registry so callers (the command
// surface) can wire abortSession/resolveApproval to HTTP endpoints.
func (r *Runner) Registry() *Registry {
	return r.registry
}
