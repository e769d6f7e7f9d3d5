package cli

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/deskai-dev/deskai/go/internal/engine"
	"github.com/deskai-dev/deskai/go/internal/engine/protocol"
)

type fakePrinter struct {
	b strings.Builder
}

func (p *fakePrinter) Print(val ...interface{}) { fmt.Fprint(&p.b, val...) }
func (p *fakePrinter) Printf(format string, val ...interface{}) {
	fmt.Fprintf(&p.b, format, val...)
}
func (p *fakePrinter) Println(val ...interface{}) { fmt.Fprintln(&p.b, val...) }

func newTestConsole() *console {
	cons := &console{events: make(chan protocol.Event, 16)}
	cons.eng = engine.New(cons, nil)
	return cons
}

func TestRender_TokenAndFinal(t *testing.T) {
	cons := newTestConsole()
	p := &fakePrinter{}

	done := cons.render(p, protocol.NewToken("p1", "Hello"), nil)
	assert.False(t, done)
	done = cons.render(p, protocol.NewFinal("p1", "Hello"), nil)
	assert.True(t, done)
	assert.Contains(t, p.b.String(), "Hello")
}

func TestRender_StatusError_Terminal(t *testing.T) {
	cons := newTestConsole()
	p := &fakePrinter{}

	done := cons.render(p, protocol.NewStatus(protocol.StatusError, "Provider request failed."), nil)

	assert.True(t, done)
	assert.Contains(t, p.b.String(), "Provider request failed.")
}

func TestRender_PreflightErrorEndsAsk(t *testing.T) {
	cons := newTestConsole()
	p := &fakePrinter{}

	// No prompt is active, so the engine is idle and the error is terminal.
	done := cons.render(p, protocol.NewError("Backend not configured."), nil)

	assert.True(t, done)
	assert.Contains(t, p.b.String(), "Backend not configured.")
}

func TestRender_AutoApprovedRequest(t *testing.T) {
	cons := newTestConsole()
	p := &fakePrinter{}

	req := &protocol.ToolRequest{
		Type:         protocol.TypeToolRequest,
		RequestID:    "req-1",
		Action:       "read",
		Path:         "notes.txt",
		AutoApproved: true,
	}
	done := cons.render(p, req, nil)

	assert.False(t, done)
	assert.Contains(t, p.b.String(), "auto-approved")
	assert.Contains(t, p.b.String(), "notes.txt")
}

func TestRender_ShellOutput(t *testing.T) {
	cons := newTestConsole()
	p := &fakePrinter{}

	cons.render(p, protocol.NewShellStart("s1", "echo hi", "/tmp"), nil)
	cons.render(p, protocol.NewShellData("s1", "hi\n", protocol.StreamStdout), nil)

	assert.Contains(t, p.b.String(), "$ echo hi")
	assert.Contains(t, p.b.String(), "hi\n")
}

func TestDescribeRequest(t *testing.T) {
	cases := []struct {
		req  *protocol.ToolRequest
		want string
	}{
		{&protocol.ToolRequest{Action: "shell", Command: "ls -la"}, "shell: ls -la"},
		{&protocol.ToolRequest{Action: "write", Path: "out.txt"}, "write out.txt"},
		{&protocol.ToolRequest{Action: "delete", Description: "remove build dir"}, "delete: remove build dir"},
		{&protocol.ToolRequest{Action: "search"}, "search"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, describeRequest(tc.req))
	}
}

func TestFirstLine(t *testing.T) {
	assert.Equal(t, "one", firstLine("one\ntwo"))
	assert.Equal(t, "plain", firstLine("plain"))
	assert.Equal(t, "", firstLine("\nrest"))
}
