package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/deskai-dev/deskai/go/internal/engine/shell"
	apperrors "github.com/deskai-dev/deskai/go/pkg/errors"
)

const (
	// ShellOutputMaxLength caps the combined output returned to the model.
	// When exceeded, the last ShellOutputMaxLength bytes win.
	ShellOutputMaxLength = 6000

	DefaultShellTimeoutSecs = 120
	MinShellTimeoutSecs     = 1
	MaxShellTimeoutSecs     = 300
)

// ElevationBlockedMessage is returned when a command needs privileges the
// current policy does not grant.
const ElevationBlockedMessage = "This command requires elevated privileges, but elevated commands are disabled in settings. Enable 'Allow elevated commands' to run this."

// RunShellTool executes shell commands through the session manager
type RunShellTool struct {
	BaseTool
}

// NewRunShellTool creates a new RunShellTool
func NewRunShellTool() *RunShellTool {
	return &RunShellTool{
		BaseTool: NewBaseTool("run_shell", "Run a shell command in the workspace. Use cautiously.", map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"command": map[string]interface{}{"type": "string", "description": "Command to run."},
				"timeout": map[string]interface{}{"type": "integer", "default": 120, "minimum": 1, "maximum": 300},
			},
			"required": []string{"command"},
		}),
	}
}

func (t *RunShellTool) RunAsync(ctx context.Context, args map[string]interface{}, toolCtx *Context) (string, error) {
	command, ok := stringArg(args, "command")
	if !ok || command == "" {
		return "", apperrors.New(apperrors.ErrCodeInvalidInput, "Shell command missing", nil)
	}

	timeout := intArg(args, "timeout", DefaultShellTimeoutSecs)
	if timeout < MinShellTimeoutSecs {
		timeout = MinShellTimeoutSecs
	}
	if timeout > MaxShellTimeoutSecs {
		timeout = MaxShellTimeoutSecs
	}

	elevated := shell.IsElevated(command)
	if elevated && !toolCtx.Settings.AllowElevatedCommands {
		toolCtx.Audit.Error("Elevated command blocked: %s", command)
		return "", apperrors.New(apperrors.ErrCodeElevationBlocked, ElevationBlockedMessage, nil)
	}

	toolCtx.Audit.ToolCall("run_shell", fmt.Sprintf("cmd=%s, elevated=%t", command, elevated))

	result, err := toolCtx.Shell.Run(shell.RunOptions{
		Command:    command,
		Cwd:        toolCtx.Settings.Workdir,
		Timeout:    time.Duration(timeout) * time.Second,
		Elevated:   elevated,
		PromptID:   toolCtx.PromptID,
		ShowOutput: toolCtx.Settings.ShowCommandOutput,
	})
	if err != nil {
		return "", err
	}

	output := result.Output()
	if len(output) > ShellOutputMaxLength {
		output = output[len(output)-ShellOutputMaxLength:]
	}
	if output == "" {
		output = "(no output)"
	}
	return fmt.Sprintf("%s\n\nExit code: %d", output, result.ExitCode), nil
}
