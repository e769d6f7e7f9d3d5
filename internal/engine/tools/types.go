package tools

import (
	"context"

	"github.com/deskai-dev/deskai/go/internal/engine/audit"
	"github.com/deskai-dev/deskai/go/internal/engine/config"
	"github.com/deskai-dev/deskai/go/internal/engine/models"
	"github.com/deskai-dev/deskai/go/internal/engine/protocol"
	"github.com/deskai-dev/deskai/go/internal/engine/sandbox"
	"github.com/deskai-dev/deskai/go/internal/engine/shell"
)

// Tool defines the interface for workspace tools
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]interface{}
	RunAsync(ctx context.Context, args map[string]interface{}, toolCtx *Context) (string, error)
}

// Context contains context information for tool execution
type Context struct {
	Settings *config.Settings
	Sandbox  *sandbox.Validator
	Shell    *shell.Manager
	Emitter  protocol.Emitter
	Audit    *audit.Logger
	PromptID string
}

// ToolLog emits a tool_log event to the host. Ignored when no emitter is set.
func (c *Context) ToolLog(message string) {
	if c.Emitter != nil {
		_ = c.Emitter.Emit(protocol.NewToolLog(message))
	}
}

// BaseTool provides common functionality for tools
type BaseTool struct {
	name        string
	description string
	parameters  map[string]interface{}
}

// NewBaseTool creates a new BaseTool
func NewBaseTool(name, description string, parameters map[string]interface{}) BaseTool {
	return BaseTool{
		name:        name,
		description: description,
		parameters:  parameters,
	}
}

// Name returns the tool name
func (b *BaseTool) Name() string {
	return b.name
}

// Description returns the tool description
func (b *BaseTool) Description() string {
	return b.description
}

// Parameters returns the tool's JSON schema
func (b *BaseTool) Parameters() map[string]interface{} {
	return b.parameters
}

// Definition converts the tool metadata into provider catalog form.
func (b *BaseTool) Definition() models.ToolDefinition {
	return models.ToolDefinition{
		Name:        b.name,
		Description: b.description,
		Parameters:  b.parameters,
	}
}

func stringArg(args map[string]interface{}, key string) (string, bool) {
	value, ok := args[key].(string)
	return value, ok
}

// intArg reads a numeric argument. JSON decoding hands numbers over as
// float64, but tolerate native ints from direct callers too.
func intArg(args map[string]interface{}, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return fallback
}

func boolArg(args map[string]interface{}, key string, fallback bool) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return fallback
}
