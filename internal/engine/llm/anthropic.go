package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/deskai-dev/deskai/go/internal/engine/models"
)

const anthropicDefaultMaxTokens = 8192

type anthropicProvider struct {
	client anthropic.Client
}

// NewAnthropicProvider creates a new Anthropic provider
func NewAnthropicProvider(apiKey string) Provider {
	return &anthropicProvider{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
	}
}

func (p *anthropicProvider) Name() string {
	return "anthropic"
}

func (p *anthropicProvider) buildParams(request Request) anthropic.MessageNewParams {
	maxTokens := request.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(request.Model),
		MaxTokens: int64(maxTokens),
		Messages:  toAnthropicMessages(request.Messages),
	}
	if request.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: request.SystemPrompt}}
	}

	for _, tool := range request.Tools {
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        tool.Name,
				Description: anthropic.String(tool.Description),
				InputSchema: toAnthropicSchema(tool.Parameters),
			},
		})
	}

	return params
}

// toAnthropicMessages converts neutral history. Consecutive tool results are
// coalesced into a single user message, as the API requires every result for
// an assistant turn in one message.
func toAnthropicMessages(msgs []models.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs))

	var pendingResults []anthropic.ContentBlockParamUnion
	flushResults := func() {
		if len(pendingResults) > 0 {
			out = append(out, anthropic.NewUserMessage(pendingResults...))
			pendingResults = nil
		}
	}

	for _, msg := range msgs {
		if msg.Role == models.RoleTool {
			result := &anthropic.ToolResultBlockParam{
				ToolUseID: msg.ToolCallID,
				Content: []anthropic.ToolResultBlockParamContentUnion{
					{OfText: &anthropic.TextBlockParam{Text: msg.Content}},
				},
			}
			if msg.IsError {
				result.IsError = anthropic.Bool(true)
			}
			pendingResults = append(pendingResults, anthropic.ContentBlockParamUnion{OfToolResult: result})
			continue
		}
		flushResults()

		switch msg.Role {
		case models.RoleUser:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		case models.RoleAssistant:
			blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.ToolCalls)+1)
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				blocks = append(blocks, anthropic.ContentBlockParamUnion{
					OfToolUse: &anthropic.ToolUseBlockParam{
						ID:    tc.ID,
						Name:  tc.Name,
						Input: json.RawMessage(argumentsOrEmpty(tc.Arguments)),
					},
				})
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			}
		}
	}
	flushResults()
	return out
}

func toAnthropicSchema(parameters map[string]interface{}) anthropic.ToolInputSchemaParam {
	schema := anthropic.ToolInputSchemaParam{}
	if props, ok := parameters["properties"]; ok {
		schema.Properties = props
	}
	switch required := parameters["required"].(type) {
	case []string:
		schema.Required = required
	case []interface{}:
		for _, item := range required {
			if name, ok := item.(string); ok {
				schema.Required = append(schema.Required, name)
			}
		}
	}
	return schema
}

func (p *anthropicProvider) Chat(ctx context.Context, request Request) (*Response, error) {
	message, err := p.client.Messages.New(ctx, p.buildParams(request))
	if err != nil {
		return nil, fmt.Errorf("anthropic API error: %w", err)
	}

	response := &Response{
		FinishReason: string(message.StopReason),
		Usage: models.TokenUsage{
			PromptTokens:     int(message.Usage.InputTokens),
			CompletionTokens: int(message.Usage.OutputTokens),
			TotalTokens:      int(message.Usage.InputTokens + message.Usage.OutputTokens),
		},
	}
	response.Content, response.ToolCalls = collectBlocks(message)
	return response, nil
}

func (p *anthropicProvider) ChatStream(ctx context.Context, request Request) (<-chan StreamChunk, <-chan error) {
	chunkChan := make(chan StreamChunk, 10)
	errChan := make(chan error, 1)

	go func() {
		defer close(chunkChan)
		defer close(errChan)

		stream := p.client.Messages.NewStreaming(ctx, p.buildParams(request))
		message := anthropic.Message{}

		for stream.Next() {
			event := stream.Current()
			if err := message.Accumulate(event); err != nil {
				errChan <- fmt.Errorf("anthropic stream error: %w", err)
				return
			}

			if deltaEvent, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
				if textDelta, ok := deltaEvent.Delta.AsAny().(anthropic.TextDelta); ok && textDelta.Text != "" {
					chunkChan <- StreamChunk{Content: textDelta.Text, Delta: true}
				}
			}
		}

		if err := stream.Err(); err != nil {
			errChan <- fmt.Errorf("anthropic stream error: %w", err)
			return
		}

		final := StreamChunk{FinishReason: string(message.StopReason)}
		final.Content, final.ToolCalls = collectBlocks(&message)
		chunkChan <- final
	}()

	return chunkChan, errChan
}

func collectBlocks(message *anthropic.Message) (string, []models.ToolCall) {
	var content string
	var toolCalls []models.ToolCall
	for _, block := range message.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			content += variant.Text
		case anthropic.ToolUseBlock:
			toolCalls = append(toolCalls, models.ToolCall{
				ID:        variant.ID,
				Name:      variant.Name,
				Arguments: argumentsOrEmpty(variant.JSON.Input.Raw()),
			})
		}
	}
	return content, toolCalls
}
