package sdkrunner

import (
	"context"
	"errors"
	"io"

	openai "github.com/sashabaranov/go-openai"
)

// ChatRequest is the provider-agnostic request shape Run builds from
// RunParams before handing it to a Provider.
type ChatRequest struct {
	Model           string
	Prompt          string
	WorkingDir      string
	MaxTurns        int
	ResumeSessionID string
}

// Chunk is one piece of streamed model output. Exactly one of Text,
// ToolName, or FinalResult is meaningfully populated per chunk.
type Chunk struct {
	Type        string // "text" | "thinking" | "tool_use" | "usage" | "result"
	Text        string
	ToolName    string
	ToolInput   []byte
	Usage       Usage
	FinalResult string
	ResultSubtype string // "success" | "error_max_turns" | ...
	SessionID   string
	Done        bool
}

// Provider streams one chat completion to Chunks, closing the channel when
// the interaction ends (successfully or with an error sent on errCh).
type Provider interface {
	Stream(ctx context.Context, req ChatRequest) (<-chan Chunk, <-chan error)
}

// OpenAIProvider is the default Provider, backed by a streaming chat
// completion against an OpenAI-compatible endpoint.
type OpenAIProvider struct {
	client *openai.Client
}

// NewOpenAIProvider builds a provider around an already-configured
// go-openai client (so callers can point it at a local or hosted
// OpenAI-compatible endpoint via openai.ClientConfig.BaseURL).
func NewOpenAIProvider(client *openai.Client) *OpenAIProvider {
	return &OpenAIProvider{client: client}
}

func (p *OpenAIProvider) Stream(ctx context.Context, req ChatRequest) (<-chan Chunk, <-chan error) {
	chunks := make(chan Chunk, 16)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)

		stream, err := p.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
			Model: req.Model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
			},
			Stream: true,
		})
		if err != nil {
			errs <- err
			return
		}
		defer stream.Close()

		var turns int
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				chunks <- Chunk{Type: "result", ResultSubtype: "success", Done: true}
				return
			}
			if err != nil {
				errs <- err
				return
			}
			if ctx.Err() != nil {
				errs <- ctx.Err()
				return
			}

			for _, choice := range resp.Choices {
				if choice.Delta.Content != "" {
					chunks <- Chunk{Type: "text", Text: choice.Delta.Content}
				}
				for _, call := range choice.Delta.ToolCalls {
					chunks <- Chunk{
						Type:      "tool_use",
						ToolName:  call.Function.Name,
						ToolInput: []byte(call.Function.Arguments),
					}
				}
				if choice.FinishReason != "" {
					turns++
				}
			}
			if resp.Usage != nil {
				chunks <- Chunk{
					Type: "usage",
					Usage: Usage{
						InputTokens:  resp.Usage.PromptTokens,
						OutputTokens: resp.Usage.CompletionTokens,
					},
				}
			}
		}
	}()

	return chunks, errs
}
