package llm

import (
	"context"

	"github.com/deskai-dev/deskai/go/internal/engine/models"
)

// Request is one model call: the full conversation window plus the tool
// catalog. The iteration loop lives in the orchestrator, not here.
type Request struct {
	Model        string
	SystemPrompt string
	Messages     []models.Message
	Tools        []models.ToolDefinition
	MaxTokens    int
}

// Response is a complete model turn.
type Response struct {
	Content      string
	ToolCalls    []models.ToolCall
	FinishReason string
	Usage        models.TokenUsage
}

// Provider is an interface for LLM providers
type Provider interface {
	// Chat sends a chat request to the LLM and returns the response
	Chat(ctx context.Context, request Request) (*Response, error)

	// ChatStream sends a chat request and streams the response. Text deltas
	// arrive as Delta chunks; the terminal chunk (Delta false) carries the
	// accumulated content, tool calls and finish reason.
	ChatStream(ctx context.Context, request Request) (<-chan StreamChunk, <-chan error)

	// Name returns the provider name
	Name() string
}

// StreamChunk represents a chunk of streaming response
type StreamChunk struct {
	Content      string
	ToolCalls    []models.ToolCall
	FinishReason string
	Delta        bool // true if this is a delta update, false if complete
}
