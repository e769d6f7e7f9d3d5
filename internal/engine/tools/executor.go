package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/muesli/reflow/truncate"
	"github.com/sirupsen/logrus"

	"github.com/deskai-dev/deskai/go/internal/engine/approval"
	"github.com/deskai-dev/deskai/go/internal/engine/audit"
	"github.com/deskai-dev/deskai/go/internal/engine/config"
	"github.com/deskai-dev/deskai/go/internal/engine/models"
	"github.com/deskai-dev/deskai/go/internal/engine/protocol"
	"github.com/deskai-dev/deskai/go/internal/engine/sandbox"
	"github.com/deskai-dev/deskai/go/internal/engine/shell"
	apperrors "github.com/deskai-dev/deskai/go/pkg/errors"
)

// ToolOutputPreviewLength caps the result echoed in tool_call_end events.
// The full result still reaches the provider.
const ToolOutputPreviewLength = 200

// DeniedResult is the tool result handed to the provider after a denial.
const DeniedResult = "User denied the request."

// Executor runs model-issued tool calls behind the sandbox and approval
// gates, bracketing each call with tool_call_start/tool_call_end events.
type Executor struct {
	settings  *config.Settings
	validator *sandbox.Validator
	approvals *approval.Coordinator
	shellMgr  *shell.Manager
	emitter   protocol.Emitter
	auditLog  *audit.Logger

	tools map[string]Tool
	order []Tool
}

// NewExecutor builds an executor with the six workspace tools registered.
func NewExecutor(
	settings *config.Settings,
	validator *sandbox.Validator,
	approvals *approval.Coordinator,
	shellMgr *shell.Manager,
	emitter protocol.Emitter,
	auditLog *audit.Logger,
) *Executor {
	e := &Executor{
		settings:  settings,
		validator: validator,
		approvals: approvals,
		shellMgr:  shellMgr,
		emitter:   emitter,
		auditLog:  auditLog,
		tools:     make(map[string]Tool),
	}
	for _, tool := range workspaceTools() {
		e.tools[tool.Name()] = tool
		e.order = append(e.order, tool)
	}
	return e
}

func workspaceTools() []Tool {
	return []Tool{
		NewRunShellTool(),
		NewReadFileTool(),
		NewWriteFileTool(),
		NewListDirectoryTool(),
		NewDeletePathTool(),
		NewSearchFilesTool(),
	}
}

func definitionsOf(ts []Tool) []models.ToolDefinition {
	defs := make([]models.ToolDefinition, 0, len(ts))
	for _, tool := range ts {
		defs = append(defs, models.ToolDefinition{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  tool.Parameters(),
		})
	}
	return defs
}

// Catalog returns the definitions of the six workspace tools.
func Catalog() []models.ToolDefinition {
	return definitionsOf(workspaceTools())
}

// Definitions returns the tool catalog offered to providers, in registration
// order.
func (e *Executor) Definitions() []models.ToolDefinition {
	return definitionsOf(e.order)
}

// Execute runs one tool call to completion. A denial is not an error: the
// refusal text is returned as the result so the conversation can continue.
// Errors are returned for the caller to surface to the provider.
func (e *Executor) Execute(ctx context.Context, call models.ToolCall, promptID string) (string, error) {
	toolCallID := call.ID
	if toolCallID == "" {
		toolCallID = uuid.NewString()
	}

	e.emit(protocol.NewToolCallStart(toolCallID, call.Name, argumentsJSON(call.Arguments), promptID))

	tool, ok := e.tools[call.Name]
	if !ok {
		return "", e.fail(toolCallID, apperrors.New(apperrors.ErrCodeInvalidInput,
			fmt.Sprintf("Unknown tool: %s", call.Name), nil))
	}

	args := map[string]interface{}{}
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			// Malformed arguments degrade to an empty set; the tool reports
			// whichever required argument is then missing.
			logrus.WithError(err).WithField("tool", call.Name).Warn("failed to decode tool arguments")
			args = map[string]interface{}{}
		}
	}

	if err := e.validatePaths(call.Name, args); err != nil {
		return "", e.fail(toolCallID, err)
	}

	request := e.buildRequest(call.Name, args)
	if e.requiresApproval(call.Name) {
		approved, err := e.approvals.Await(ctx, request)
		if err != nil {
			return "", e.fail(toolCallID, apperrors.New(apperrors.ErrCodeApprovalDenied,
				"Approval request cancelled", err))
		}
		if !approved {
			e.emit(protocol.NewToolCallEnd(toolCallID, DeniedResult, "denied"))
			return DeniedResult, nil
		}
	} else if e.notifyWhenExempt(call.Name, request) {
		e.approvals.NotifyAutoApproved(request)
	}

	output, err := tool.RunAsync(ctx, args, &Context{
		Settings: e.settings,
		Sandbox:  e.validator,
		Shell:    e.shellMgr,
		Emitter:  e.emitter,
		Audit:    e.auditLog,
		PromptID: promptID,
	})
	if err != nil {
		return "", e.fail(toolCallID, err)
	}

	e.emit(protocol.NewToolCallEnd(toolCallID, truncate.StringWithTail(output, ToolOutputPreviewLength, "..."), ""))
	return output, nil
}

func (e *Executor) requiresApproval(name string) bool {
	switch name {
	case "run_shell":
		return e.settings.ConfirmShell
	case "write_file", "delete_path":
		return e.settings.ConfirmWrites
	case "read_file", "list_directory", "search_files":
		return !e.settings.AutoApproveReads
	}
	return false
}

// notifyWhenExempt reports whether a policy-exempt call still announces
// itself. Reads stay silent; side-effecting and elevated calls do not.
func (e *Executor) notifyWhenExempt(name string, request approval.Request) bool {
	switch name {
	case "run_shell", "write_file", "delete_path":
		return true
	}
	return request.Elevated != nil && *request.Elevated
}

// validatePaths rejects out-of-sandbox paths before any approval prompt, so
// the user is never asked to approve an operation that cannot run. Tools
// resolve the same paths again when they execute.
func (e *Executor) validatePaths(name string, args map[string]interface{}) error {
	resolve := e.validator.Resolve
	if name == "delete_path" {
		resolve = e.validator.ResolveForDelete
	}

	switch name {
	case "read_file", "write_file", "delete_path":
		if path, ok := stringArg(args, "path"); ok {
			_, err := resolve(path)
			return err
		}
	case "list_directory", "search_files":
		path, ok := stringArg(args, "path")
		if !ok || path == "" {
			path = "."
		}
		_, err := resolve(path)
		return err
	}
	return nil
}

func (e *Executor) buildRequest(name string, args map[string]interface{}) approval.Request {
	request := approval.Request{Action: approvalAction(name)}

	if path, ok := stringArg(args, "path"); ok && path != "" {
		request.Path = path
		request.Description = path
	}
	if command, ok := stringArg(args, "command"); ok && command != "" {
		request.Command = command
		request.Description = command
	}
	if name == "write_file" {
		if content, ok := stringArg(args, "content"); ok {
			size := len(content)
			request.Bytes = &size
		}
	}
	if name == "run_shell" {
		if command, ok := stringArg(args, "command"); ok {
			elevated := shell.IsElevated(command)
			request.Elevated = &elevated
		}
	}
	return request
}

func approvalAction(name string) string {
	switch name {
	case "run_shell":
		return "shell"
	case "read_file":
		return "read"
	case "write_file":
		return "write"
	case "list_directory":
		return "list"
	case "delete_path":
		return "delete"
	case "search_files":
		return "search"
	}
	return name
}

// fail closes the tool call with an error and passes the error through.
func (e *Executor) fail(toolCallID string, err error) error {
	msg := err.Error()
	e.emit(protocol.NewToolCallEnd(toolCallID, msg, msg))
	return err
}

func (e *Executor) emit(ev protocol.Event) {
	if err := e.emitter.Emit(ev); err != nil {
		logrus.WithError(err).Warn("failed to emit tool event")
	}
}

func argumentsJSON(raw string) string {
	if raw == "" {
		return "{}"
	}
	return raw
}
