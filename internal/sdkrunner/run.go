package sdkrunner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/clawflow/clawflow/internal/telemetry"
)

const todoDebounce = 500 * time.Millisecond

// Run executes one LLM interaction to completion per the package doc:
// stream consumption, permission brokering, retry-on-transient-failure, and
// cooperative cancellation via p.SessionKey.
func (r *Runner) Run(ctx context.Context, p RunParams) (*Result, error) {
	ctx, cancel := r.registry.register(ctx, p.SessionKey)
	defer cancel()
	defer r.registry.release(p.SessionKey)

	telemetry.SessionStarted()
	defer telemetry.SessionEnded()

	req := ChatRequest{
		Model:           p.Model,
		Prompt:          p.Prompt,
		WorkingDir:      p.WorkingDir,
		MaxTurns:        p.MaxTurns,
		ResumeSessionID: p.ResumeSessionID,
	}

	var lastErr error
	for attempt := 0; attempt <= maxRunRetries; attempt++ {
		result, err := r.runOnce(ctx, p, req)
		if err == nil {
			if result != nil {
				telemetry.RecordSDKRunTokens(p.Model, result.ContextTokens)
			}
			return result, nil
		}
		lastErr = err

		retryable, retryAfter := classifyRetryable(err)
		telemetry.RecordSDKRunRetry(retryable)
		if !retryable || attempt == maxRunRetries {
			return nil, err
		}

		delay := retryAfter
		if delay == 0 {
			delay = backoffDelay(attempt)
		}
		if sleepErr := abortableSleep(ctx, delay); sleepErr != nil {
			return nil, fmt.Errorf("run aborted during retry backoff: %w", sleepErr)
		}
	}
	return nil, lastErr
}

func (r *Runner) runOnce(ctx context.Context, p RunParams, req ChatRequest) (*Result, error) {
	chunks, errs := r.provider.Stream(ctx, req)

	var (
		output        strings.Builder
		finalResult   string
		usedFinal     bool
		turns         int
		cost          float64
		contextTokens int
		contextMax    = 200000
		usage         Usage
		sessionID     string
		lastTodoFlush time.Time
	)

streamLoop:
	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				if errs != nil {
					select {
					case err := <-errs:
						if err != nil {
							return nil, err
						}
					case <-ctx.Done():
						return nil, ctx.Err()
					}
				}
				break streamLoop
			}
			switch chunk.Type {
			case "text":
				output.WriteString(chunk.Text)
				if p.OnStream != nil {
					p.OnStream(chunk.Text, StreamText, nil)
				}
			case "thinking":
				if p.OnStream != nil {
					p.OnStream(chunk.Text, StreamThinking, nil)
				}
			case "tool_use":
				r.handleToolUse(ctx, p, chunk)
				if isTodoTool(chunk.ToolName) && time.Since(lastTodoFlush) >= todoDebounce {
					lastTodoFlush = time.Now()
					if p.OnStream != nil {
						p.OnStream("", StreamToolUse, map[string]any{"tool": chunk.ToolName, "todos_updated": true})
					}
				} else if p.OnStream != nil {
					p.OnStream("", StreamToolUse, map[string]any{"tool": chunk.ToolName})
				}
			case "usage":
				usage = chunk.Usage
				cost = usage.Cost
				contextTokens = usage.InputTokens + usage.CacheReadTokens
				if p.OnStream != nil {
					p.OnStream(fmt.Sprintf("__context:%d:%d", contextTokens, contextMax), StreamContext, nil)
				}
			case "result":
				turns++
				if chunk.SessionID != "" {
					sessionID = chunk.SessionID
				}
				if chunk.ResultSubtype == "success" && chunk.FinalResult != "" {
					finalResult = chunk.FinalResult
					usedFinal = true
				}
			}
		case err, ok := <-errs:
			if ok && err != nil {
				return nil, err
			}
			errs = nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	finalOutput := output.String()
	if usedFinal {
		finalOutput = finalResult
	}

	r.extractToolCalls(ctx, finalOutput)

	return &Result{
		Output:        finalOutput,
		Cost:          cost,
		Turns:         turns,
		SessionID:     sessionID,
		ContextTokens: contextTokens,
		ContextMax:    contextMax,
		Usage:         usage,
	}, nil
}

// handleToolUse runs a tool-use chunk through the permission broker and, if
// a human decision is required, suspends on the approval channel until the
// renderer resolves it (or the session ends).
func (r *Runner) handleToolUse(ctx context.Context, p RunParams, chunk Chunk) {
	decision, waitCh, requestID := r.checkPermission(ctx, p, chunk.ToolName, chunk.ToolInput)
	if waitCh == nil {
		_ = decision
		return
	}

	if p.OnStream != nil {
		p.OnStream("", StreamToolUse, map[string]any{
			"tool":       chunk.ToolName,
			"request_id": requestID,
			"pending":    true,
		})
	}

	select {
	case <-waitCh:
	case <-ctx.Done():
	}
}
