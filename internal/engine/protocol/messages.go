package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Inbound message type tags
const (
	TypeConfig   = "config"
	TypePrompt   = "prompt"
	TypeApproval = "approval"
	TypeKill     = "kill"
)

// Outbound event type tags
const (
	TypeStatus        = "status"
	TypeToken         = "token"
	TypeFinal         = "final"
	TypeToolRequest   = "tool_request"
	TypeToolCallStart = "tool_call_start"
	TypeToolCallEnd   = "tool_call_end"
	TypeShellStart    = "shell_start"
	TypeShellData     = "shell_data"
	TypeShellEnd      = "shell_end"
	TypeToolLog       = "tool_log"
	TypeError         = "error"
	TypeExit          = "exit"
)

// Inbound is a message received from the host application.
type Inbound interface {
	isInbound()
}

// ConfigMessage replaces the engine configuration. Boolean policy fields are
// pointers so an absent key is distinguishable from an explicit false.
type ConfigMessage struct {
	Provider              string `json:"provider"`
	APIKey                string `json:"apiKey"`
	Model                 string `json:"model"`
	Workdir               string `json:"workdir"`
	AutoApproveReads      *bool  `json:"autoApproveReads,omitempty"`
	ConfirmWrites         *bool  `json:"confirmWrites,omitempty"`
	ConfirmShell          *bool  `json:"confirmShell,omitempty"`
	AllowSystemWide       *bool  `json:"allowSystemWide,omitempty"`
	AllowElevatedCommands *bool  `json:"allowElevatedCommands,omitempty"`
	ShowCommandOutput     *bool  `json:"showCommandOutput,omitempty"`
}

// PromptMessage starts a new assistant turn.
type PromptMessage struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// ApprovalMessage resolves a pending tool approval.
type ApprovalMessage struct {
	RequestID string `json:"requestId"`
	Approved  bool   `json:"approved"`
}

// KillMessage terminates a shell session, or the in-flight prompt when no
// session ID is given.
type KillMessage struct {
	SessionID string `json:"sessionId,omitempty"`
}

func (*ConfigMessage) isInbound()   {}
func (*PromptMessage) isInbound()   {}
func (*ApprovalMessage) isInbound() {}
func (*KillMessage) isInbound()     {}

// UnknownTypeError reports an inbound message with an unrecognized type tag.
type UnknownTypeError struct {
	Type string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("Unknown message type: %s", e.Type)
}

// DecodeInbound parses one protocol line into its concrete message type.
func DecodeInbound(data []byte) (Inbound, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, err
	}

	var msg Inbound
	switch envelope.Type {
	case TypeConfig:
		msg = &ConfigMessage{}
	case TypePrompt:
		msg = &PromptMessage{}
	case TypeApproval:
		msg = &ApprovalMessage{}
	case TypeKill:
		msg = &KillMessage{}
	default:
		return nil, &UnknownTypeError{Type: envelope.Type}
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// Event is a message emitted to the host application.
type Event interface {
	isEvent()
}

// Status reports engine lifecycle transitions.
type Status struct {
	Type    string `json:"type"`
	Status  string `json:"status"` // starting, ready, error
	Message string `json:"message,omitempty"`
}

// Status values
const (
	StatusStarting = "starting"
	StatusReady    = "ready"
	StatusError    = "error"
)

// Token is an incremental chunk of assistant text for a prompt.
type Token struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Final seals a prompt turn and carries the aggregated answer.
type Final struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Text string `json:"text"`
}

// ToolRequest asks the host to approve a tool action, or informs it of an
// auto-approved one.
type ToolRequest struct {
	Type         string `json:"type"`
	RequestID    string `json:"requestId"`
	Action       string `json:"action"` // shell, read, write, list, delete, search
	Path         string `json:"path,omitempty"`
	Command      string `json:"command,omitempty"`
	Description  string `json:"description,omitempty"`
	Bytes        *int   `json:"bytes,omitempty"`
	Elevated     *bool  `json:"elevated,omitempty"`
	AutoApproved bool   `json:"autoApproved,omitempty"`
}

// ToolCallStart announces a model-initiated tool call.
type ToolCallStart struct {
	Type       string `json:"type"`
	ToolCallID string `json:"toolCallId"`
	Name       string `json:"name"`
	Arguments  string `json:"arguments"`
	PromptID   string `json:"promptId"`
}

// ToolCallEnd reports the outcome of a tool call.
type ToolCallEnd struct {
	Type       string `json:"type"`
	ToolCallID string `json:"toolCallId"`
	Result     string `json:"result"`
	Error      string `json:"error,omitempty"`
}

// ShellStart announces a spawned shell session.
type ShellStart struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Cmd       string `json:"cmd"`
	Cwd       string `json:"cwd"`
	Ts        string `json:"ts"`
}

// ShellData carries one chunk of shell output.
type ShellData struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Chunk     string `json:"chunk"`
	Stream    string `json:"stream"` // stdout, stderr
}

// Output streams
const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
)

// ShellEnd reports shell session termination. Emitted exactly once per
// session, after all ShellData for it.
type ShellEnd struct {
	Type       string `json:"type"`
	SessionID  string `json:"sessionId"`
	ExitCode   int    `json:"exitCode"`
	DurationMs int64  `json:"durationMs"`
}

// ToolLog is a human-readable activity note.
type ToolLog struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Ts      string `json:"ts"`
}

// ErrorEvent reports a recoverable engine error.
type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Raw     string `json:"raw,omitempty"`
}

// Exit announces engine shutdown. Last event on the stream.
type Exit struct {
	Type   string `json:"type"`
	Code   int    `json:"code"`
	Signal string `json:"signal,omitempty"`
}

func (*Status) isEvent()        {}
func (*Token) isEvent()         {}
func (*Final) isEvent()         {}
func (*ToolRequest) isEvent()   {}
func (*ToolCallStart) isEvent() {}
func (*ToolCallEnd) isEvent()   {}
func (*ShellStart) isEvent()    {}
func (*ShellData) isEvent()     {}
func (*ShellEnd) isEvent()      {}
func (*ToolLog) isEvent()       {}
func (*ErrorEvent) isEvent()    {}
func (*Exit) isEvent()          {}

// NewStatus builds a status event.
func NewStatus(status, message string) *Status {
	return &Status{Type: TypeStatus, Status: status, Message: message}
}

// NewToken builds a token event for the given prompt.
func NewToken(promptID, text string) *Token {
	return &Token{Type: TypeToken, ID: promptID, Text: text}
}

// NewFinal builds the sealing event for the given prompt.
func NewFinal(promptID, text string) *Final {
	return &Final{Type: TypeFinal, ID: promptID, Text: text}
}

// NewToolCallStart builds a tool call announcement.
func NewToolCallStart(toolCallID, name, arguments, promptID string) *ToolCallStart {
	return &ToolCallStart{Type: TypeToolCallStart, ToolCallID: toolCallID, Name: name, Arguments: arguments, PromptID: promptID}
}

// NewToolCallEnd builds a tool call outcome event.
func NewToolCallEnd(toolCallID, result, errMsg string) *ToolCallEnd {
	return &ToolCallEnd{Type: TypeToolCallEnd, ToolCallID: toolCallID, Result: result, Error: errMsg}
}

// NewShellStart builds a shell session announcement stamped with the current time.
func NewShellStart(sessionID, cmd, cwd string) *ShellStart {
	return &ShellStart{Type: TypeShellStart, SessionID: sessionID, Cmd: cmd, Cwd: cwd, Ts: NowISO()}
}

// NewShellData builds one shell output chunk.
func NewShellData(sessionID, chunk, stream string) *ShellData {
	return &ShellData{Type: TypeShellData, SessionID: sessionID, Chunk: chunk, Stream: stream}
}

// NewShellEnd builds the shell session termination event.
func NewShellEnd(sessionID string, exitCode int, duration time.Duration) *ShellEnd {
	return &ShellEnd{Type: TypeShellEnd, SessionID: sessionID, ExitCode: exitCode, DurationMs: duration.Milliseconds()}
}

// NewToolLog builds an activity note stamped with the current time.
func NewToolLog(message string) *ToolLog {
	return &ToolLog{Type: TypeToolLog, Message: message, Ts: NowISO()}
}

// NewError builds an error event.
func NewError(message string) *ErrorEvent {
	return &ErrorEvent{Type: TypeError, Message: message}
}

// NewExit builds the shutdown event.
func NewExit(code int, signal string) *Exit {
	return &Exit{Type: TypeExit, Code: code, Signal: signal}
}

// NowISO returns the current UTC time in the wire timestamp format.
func NowISO() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05Z")
}
