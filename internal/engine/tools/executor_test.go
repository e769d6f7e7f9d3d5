package tools

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskai-dev/deskai/go/internal/engine/approval"
	"github.com/deskai-dev/deskai/go/internal/engine/config"
	"github.com/deskai-dev/deskai/go/internal/engine/models"
	"github.com/deskai-dev/deskai/go/internal/engine/protocol"
	"github.com/deskai-dev/deskai/go/internal/engine/sandbox"
	"github.com/deskai-dev/deskai/go/internal/engine/shell"
)

type captureEmitter struct {
	mu     sync.Mutex
	events []protocol.Event
}

func (e *captureEmitter) Emit(ev protocol.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
	return nil
}

func (e *captureEmitter) snapshot() []protocol.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]protocol.Event(nil), e.events...)
}

func (e *captureEmitter) toolRequests() []*protocol.ToolRequest {
	var out []*protocol.ToolRequest
	for _, ev := range e.snapshot() {
		if req, ok := ev.(*protocol.ToolRequest); ok {
			out = append(out, req)
		}
	}
	return out
}

func (e *captureEmitter) toolCallStarts() []*protocol.ToolCallStart {
	var out []*protocol.ToolCallStart
	for _, ev := range e.snapshot() {
		if start, ok := ev.(*protocol.ToolCallStart); ok {
			out = append(out, start)
		}
	}
	return out
}

func (e *captureEmitter) toolCallEnds() []*protocol.ToolCallEnd {
	var out []*protocol.ToolCallEnd
	for _, ev := range e.snapshot() {
		if end, ok := ev.(*protocol.ToolCallEnd); ok {
			out = append(out, end)
		}
	}
	return out
}

func (e *captureEmitter) toolLogs() []*protocol.ToolLog {
	var out []*protocol.ToolLog
	for _, ev := range e.snapshot() {
		if log, ok := ev.(*protocol.ToolLog); ok {
			out = append(out, log)
		}
	}
	return out
}

func (e *captureEmitter) waitToolRequest(t *testing.T) *protocol.ToolRequest {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if reqs := e.toolRequests(); len(reqs) > 0 {
			return reqs[len(reqs)-1]
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("no tool_request emitted")
	return nil
}

func testSettings(workdir string) *config.Settings {
	return &config.Settings{
		Provider:          config.ProviderOpenAI,
		APIKey:            "test-key",
		Model:             "test-model",
		Workdir:           workdir,
		AutoApproveReads:  true,
		ConfirmWrites:     true,
		ConfirmShell:      true,
		ShowCommandOutput: true,
	}
}

func newTestExecutor(t *testing.T, settings *config.Settings) (*Executor, *captureEmitter, *approval.Coordinator) {
	t.Helper()
	emitter := &captureEmitter{}
	validator, err := sandbox.NewValidator(settings.Workdir, settings.AllowSystemWide)
	require.NoError(t, err)
	coordinator := approval.NewCoordinator(emitter, nil)
	executor := NewExecutor(settings, validator, coordinator, shell.NewManager(emitter), emitter, nil)
	return executor, emitter, coordinator
}

func newToolContext(t *testing.T, workdir string) (*Context, *captureEmitter) {
	t.Helper()
	emitter := &captureEmitter{}
	validator, err := sandbox.NewValidator(workdir, false)
	require.NoError(t, err)
	return &Context{
		Settings: testSettings(workdir),
		Sandbox:  validator,
		Shell:    shell.NewManager(emitter),
		Emitter:  emitter,
		PromptID: "prompt-1",
	}, emitter
}

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
}

func TestExecutor_Definitions(t *testing.T) {
	executor, _, _ := newTestExecutor(t, testSettings(t.TempDir()))

	defs := executor.Definitions()
	require.Len(t, defs, 6)

	names := make([]string, 0, len(defs))
	for _, def := range defs {
		names = append(names, def.Name)
		assert.NotEmpty(t, def.Description)
		assert.Equal(t, "object", def.Parameters["type"])
	}
	assert.Equal(t, []string{
		"run_shell", "read_file", "write_file",
		"list_directory", "delete_path", "search_files",
	}, names)
}

func TestExecutor_AutoApprovedReadIsSilent(t *testing.T) {
	workdir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(workdir, "note.txt"), []byte("hello"), 0644))

	executor, emitter, _ := newTestExecutor(t, testSettings(workdir))

	output, err := executor.Execute(context.Background(), models.ToolCall{
		ID:        "call_1",
		Name:      "read_file",
		Arguments: `{"path":"note.txt"}`,
	}, "prompt-1")
	require.NoError(t, err)
	assert.Equal(t, "hello", output)

	// Auto-approved reads never announce themselves.
	assert.Empty(t, emitter.toolRequests())

	starts := emitter.toolCallStarts()
	require.Len(t, starts, 1)
	assert.Equal(t, "call_1", starts[0].ToolCallID)
	assert.Equal(t, "read_file", starts[0].Name)
	assert.Equal(t, "prompt-1", starts[0].PromptID)

	ends := emitter.toolCallEnds()
	require.Len(t, ends, 1)
	assert.Equal(t, "hello", ends[0].Result)
	assert.Empty(t, ends[0].Error)
}

func TestExecutor_GatedReadAwaitsApproval(t *testing.T) {
	workdir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(workdir, "note.txt"), []byte("secret"), 0644))

	settings := testSettings(workdir)
	settings.AutoApproveReads = false
	executor, emitter, coordinator := newTestExecutor(t, settings)

	type outcome struct {
		output string
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		output, err := executor.Execute(context.Background(), models.ToolCall{
			Name:      "read_file",
			Arguments: `{"path":"note.txt"}`,
		}, "prompt-1")
		done <- outcome{output, err}
	}()

	request := emitter.waitToolRequest(t)
	assert.Equal(t, "read", request.Action)
	assert.Equal(t, "note.txt", request.Path)
	assert.False(t, request.AutoApproved)

	require.NoError(t, coordinator.Resolve(request.RequestID, true))

	result := <-done
	require.NoError(t, result.err)
	assert.Equal(t, "secret", result.output)
}

func TestExecutor_DenialLeavesNoSideEffects(t *testing.T) {
	workdir := t.TempDir()
	executor, emitter, coordinator := newTestExecutor(t, testSettings(workdir))

	done := make(chan string, 1)
	go func() {
		output, err := executor.Execute(context.Background(), models.ToolCall{
			Name:      "write_file",
			Arguments: `{"path":"new.txt","content":"payload"}`,
		}, "prompt-1")
		require.NoError(t, err)
		done <- output
	}()

	request := emitter.waitToolRequest(t)
	assert.Equal(t, "write", request.Action)
	require.NotNil(t, request.Bytes)
	assert.Equal(t, len("payload"), *request.Bytes)

	require.NoError(t, coordinator.Resolve(request.RequestID, false))

	assert.Equal(t, DeniedResult, <-done)

	ends := emitter.toolCallEnds()
	require.Len(t, ends, 1)
	assert.Equal(t, DeniedResult, ends[0].Result)
	assert.Equal(t, "denied", ends[0].Error)

	// Denial must leave the filesystem untouched.
	assert.NoFileExists(t, filepath.Join(workdir, "new.txt"))
}

func TestExecutor_ExemptWriteNotifiesAutoApproved(t *testing.T) {
	workdir := t.TempDir()
	settings := testSettings(workdir)
	settings.ConfirmWrites = false
	executor, emitter, _ := newTestExecutor(t, settings)

	output, err := executor.Execute(context.Background(), models.ToolCall{
		Name:      "write_file",
		Arguments: `{"path":"new.txt","content":"payload"}`,
	}, "prompt-1")
	require.NoError(t, err)
	assert.Equal(t, "Wrote 7 bytes to new.txt.", output)

	requests := emitter.toolRequests()
	require.Len(t, requests, 1)
	assert.True(t, requests[0].AutoApproved)
	assert.Equal(t, "write", requests[0].Action)

	assert.FileExists(t, filepath.Join(workdir, "new.txt"))
}

func TestExecutor_SandboxViolationBeforeApproval(t *testing.T) {
	workdir := t.TempDir()
	executor, emitter, _ := newTestExecutor(t, testSettings(workdir))

	_, err := executor.Execute(context.Background(), models.ToolCall{
		Name:      "write_file",
		Arguments: `{"path":"../escape.txt","content":"x"}`,
	}, "prompt-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Access outside of workspace is denied.")

	// The violation is caught before the user is ever prompted.
	assert.Empty(t, emitter.toolRequests())

	ends := emitter.toolCallEnds()
	require.Len(t, ends, 1)
	assert.Contains(t, ends[0].Error, "Access outside of workspace is denied.")
}

func TestExecutor_UnknownTool(t *testing.T) {
	executor, emitter, _ := newTestExecutor(t, testSettings(t.TempDir()))

	_, err := executor.Execute(context.Background(), models.ToolCall{
		Name: "frobnicate",
	}, "prompt-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unknown tool: frobnicate")

	ends := emitter.toolCallEnds()
	require.Len(t, ends, 1)
	assert.Contains(t, ends[0].Error, "Unknown tool: frobnicate")
}

func TestExecutor_MalformedArgumentsDegrade(t *testing.T) {
	executor, _, _ := newTestExecutor(t, testSettings(t.TempDir()))

	// Undecodable arguments become an empty set; the tool then reports the
	// missing required argument instead of the decode failure.
	_, err := executor.Execute(context.Background(), models.ToolCall{
		Name:      "read_file",
		Arguments: `{broken`,
	}, "prompt-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Path argument is required")
}

func TestExecutor_PreviewTruncation(t *testing.T) {
	workdir := t.TempDir()
	long := strings.Repeat("a", 1000)
	require.NoError(t, os.WriteFile(filepath.Join(workdir, "big.txt"), []byte(long), 0644))

	executor, emitter, _ := newTestExecutor(t, testSettings(workdir))

	output, err := executor.Execute(context.Background(), models.ToolCall{
		Name:      "read_file",
		Arguments: `{"path":"big.txt"}`,
	}, "prompt-1")
	require.NoError(t, err)
	assert.Len(t, output, 1000)

	ends := emitter.toolCallEnds()
	require.Len(t, ends, 1)
	assert.True(t, strings.HasSuffix(ends[0].Result, "..."))
	assert.LessOrEqual(t, len(ends[0].Result), ToolOutputPreviewLength)
}

func TestExecutor_RunShellGated(t *testing.T) {
	skipOnWindows(t)
	workdir := t.TempDir()
	executor, emitter, coordinator := newTestExecutor(t, testSettings(workdir))

	done := make(chan string, 1)
	go func() {
		output, err := executor.Execute(context.Background(), models.ToolCall{
			Name:      "run_shell",
			Arguments: `{"command":"echo hi"}`,
		}, "prompt-1")
		require.NoError(t, err)
		done <- output
	}()

	request := emitter.waitToolRequest(t)
	assert.Equal(t, "shell", request.Action)
	assert.Equal(t, "echo hi", request.Command)
	require.NotNil(t, request.Elevated)
	assert.False(t, *request.Elevated)

	require.NoError(t, coordinator.Resolve(request.RequestID, true))

	output := <-done
	assert.Contains(t, output, "hi\n")
	assert.Contains(t, output, "Exit code: 0")
}

func TestExecutor_ApprovalCancelled(t *testing.T) {
	workdir := t.TempDir()
	executor, emitter, _ := newTestExecutor(t, testSettings(workdir))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := executor.Execute(ctx, models.ToolCall{
			Name:      "write_file",
			Arguments: `{"path":"a.txt","content":"x"}`,
		}, "prompt-1")
		done <- err
	}()

	emitter.waitToolRequest(t)
	cancel()

	err := <-done
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Approval request cancelled")
	assert.NoFileExists(t, filepath.Join(workdir, "a.txt"))
}

func TestExecutor_GeneratesToolCallID(t *testing.T) {
	workdir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(workdir, "note.txt"), []byte("x"), 0644))
	executor, emitter, _ := newTestExecutor(t, testSettings(workdir))

	_, err := executor.Execute(context.Background(), models.ToolCall{
		Name:      "read_file",
		Arguments: `{"path":"note.txt"}`,
	}, "prompt-1")
	require.NoError(t, err)

	starts := emitter.toolCallStarts()
	require.Len(t, starts, 1)
	assert.NotEmpty(t, starts[0].ToolCallID)

	ends := emitter.toolCallEnds()
	require.Len(t, ends, 1)
	assert.Equal(t, starts[0].ToolCallID, ends[0].ToolCallID)
}
