package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeInbound_Config(t *testing.T) {
	line := `{"type":"config","provider":"openai","apiKey":"sk-test","model":"gpt-4o","workdir":"/tmp/ws","confirmShell":false}`

	msg, err := DecodeInbound([]byte(line))
	require.NoError(t, err)

	cfg, ok := msg.(*ConfigMessage)
	require.True(t, ok)
	assert.Equal(t, "openai", cfg.Provider)
	assert.Equal(t, "sk-test", cfg.APIKey)
	assert.Equal(t, "gpt-4o", cfg.Model)
	assert.Equal(t, "/tmp/ws", cfg.Workdir)

	// Absent booleans stay nil, explicit false survives.
	assert.Nil(t, cfg.AutoApproveReads)
	require.NotNil(t, cfg.ConfirmShell)
	assert.False(t, *cfg.ConfirmShell)
}

func TestDecodeInbound_Prompt(t *testing.T) {
	msg, err := DecodeInbound([]byte(`{"type":"prompt","id":"p1","text":"list my files"}`))
	require.NoError(t, err)

	prompt, ok := msg.(*PromptMessage)
	require.True(t, ok)
	assert.Equal(t, "p1", prompt.ID)
	assert.Equal(t, "list my files", prompt.Text)
}

func TestDecodeInbound_Approval(t *testing.T) {
	msg, err := DecodeInbound([]byte(`{"type":"approval","requestId":"r1","approved":true}`))
	require.NoError(t, err)

	approval, ok := msg.(*ApprovalMessage)
	require.True(t, ok)
	assert.Equal(t, "r1", approval.RequestID)
	assert.True(t, approval.Approved)
}

func TestDecodeInbound_Kill(t *testing.T) {
	msg, err := DecodeInbound([]byte(`{"type":"kill","sessionId":"s1"}`))
	require.NoError(t, err)

	kill, ok := msg.(*KillMessage)
	require.True(t, ok)
	assert.Equal(t, "s1", kill.SessionID)

	msg, err = DecodeInbound([]byte(`{"type":"kill"}`))
	require.NoError(t, err)
	assert.Empty(t, msg.(*KillMessage).SessionID)
}

func TestDecodeInbound_UnknownType(t *testing.T) {
	_, err := DecodeInbound([]byte(`{"type":"telemetry"}`))
	require.Error(t, err)

	var unknown *UnknownTypeError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "Unknown message type: telemetry", err.Error())
}

func TestDecodeInbound_InvalidJSON(t *testing.T) {
	_, err := DecodeInbound([]byte(`{"type":"prompt",`))
	assert.Error(t, err)
}

func TestEventMarshal_Token(t *testing.T) {
	data, err := json.Marshal(NewToken("p1", "hello"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"token","id":"p1","text":"hello"}`, string(data))
}

func TestEventMarshal_ShellEnd_ZeroExitCode(t *testing.T) {
	data, err := json.Marshal(NewShellEnd("s1", 0, 1500*time.Millisecond))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"shell_end","sessionId":"s1","exitCode":0,"durationMs":1500}`, string(data))
}

func TestEventMarshal_ToolRequest(t *testing.T) {
	elevated := false
	bytes := 42
	req := &ToolRequest{
		Type:      TypeToolRequest,
		RequestID: "r1",
		Action:    "shell",
		Command:   "ls -la",
		Elevated:  &elevated,
	}
	data, err := json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"tool_request","requestId":"r1","action":"shell","command":"ls -la","elevated":false}`, string(data))

	req = &ToolRequest{
		Type:      TypeToolRequest,
		RequestID: "r2",
		Action:    "write",
		Path:      "/tmp/ws/a.txt",
		Bytes:     &bytes,
	}
	data, err = json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"tool_request","requestId":"r2","action":"write","path":"/tmp/ws/a.txt","bytes":42}`, string(data))
}

func TestEventMarshal_StatusOmitsEmptyMessage(t *testing.T) {
	data, err := json.Marshal(NewStatus(StatusReady, ""))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"status","status":"ready"}`, string(data))
}

func TestEventMarshal_Exit(t *testing.T) {
	data, err := json.Marshal(NewExit(0, "SIGTERM"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"exit","code":0,"signal":"SIGTERM"}`, string(data))

	data, err = json.Marshal(NewExit(0, ""))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"exit","code":0}`, string(data))
}

func TestNowISO_Format(t *testing.T) {
	ts := NowISO()
	parsed, err := time.Parse("2006-01-02T15:04:05Z", ts)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC(), parsed, 5*time.Second)
}
