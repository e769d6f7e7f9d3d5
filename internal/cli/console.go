package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/abiosoft/ishell/v2"
	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/deskai-dev/deskai/go/internal/engine"
	"github.com/deskai-dev/deskai/go/internal/engine/audit"
	"github.com/deskai-dev/deskai/go/internal/engine/protocol"
)

// ConsoleConfig holds configuration for the console command
type ConsoleConfig struct {
	Provider string
	APIKey   string
	Model    string
	Workdir  string
}

// NewConsoleCmd creates the console command
func NewConsoleCmd() *cobra.Command {
	cfg := &ConsoleConfig{}

	cmd := &cobra.Command{
		Use:   "console",
		Short: "Interactive developer console",
		Long: `Run the engine in-process with an interactive shell instead of a host
application. Prompts stream to the terminal, approval requests are answered
on the spot, and the conversation keeps its history between asks.

Commands inside the console:
  ask [text]  Send a prompt to the assistant
  tools       Print the tool catalog
  policy      Show or change the approval policy
  sessions    List running shell sessions
  exit        Leave the console

Examples:
  deskai-engine console --provider openai --model gpt-4o
  deskai-engine console --provider anthropic --model claude-sonnet-4 --workdir ~/scratch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConsole(cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.Provider, "provider", "openai", "Provider name (openai or anthropic)")
	cmd.Flags().StringVar(&cfg.APIKey, "api-key", "", "API key (default: the provider's environment variable)")
	cmd.Flags().StringVar(&cfg.Model, "model", "", "Model identifier")
	cmd.Flags().StringVar(&cfg.Workdir, "workdir", ".", "Sandbox root directory")
	_ = cmd.MarkFlagRequired("model")

	return cmd
}

var (
	consoleDim    = color.New(color.Faint)
	consoleGood   = color.New(color.FgGreen)
	consoleBad    = color.New(color.FgRed)
	consoleAsk    = color.New(color.FgYellow)
	consoleDanger = color.New(color.FgRed, color.Bold)
)

// printer is the subset of ishell output methods the renderer needs. Both
// *ishell.Shell and *ishell.Context satisfy it.
type printer interface {
	Print(val ...interface{})
	Printf(format string, val ...interface{})
	Println(val ...interface{})
}

// console owns an in-process engine and renders its event stream to the
// terminal. Events are queued on a channel so all terminal I/O happens on
// the REPL goroutine; a full channel back-pressures the engine.
type console struct {
	eng    *engine.Engine
	events chan protocol.Event
}

func (c *console) Emit(ev protocol.Event) error {
	c.events <- ev
	return nil
}

func runConsole(cfg *ConsoleConfig) error {
	cons := &console{events: make(chan protocol.Event, 256)}

	// Keep the stderr mirror quiet; the audit file still records everything.
	var auditLog *audit.Logger
	if path, err := audit.DefaultPath(); err == nil {
		if log, err := audit.Open(path, io.Discard); err == nil {
			auditLog = log
			defer auditLog.Close()
		}
	}

	cons.eng = engine.New(cons, auditLog)

	err := cons.eng.Configure(&protocol.ConfigMessage{
		Provider: cfg.Provider,
		APIKey:   cfg.APIKey,
		Model:    cfg.Model,
		Workdir:  cfg.Workdir,
	})

	sh := ishell.New()
	sh.Println(color.New(color.Bold).Sprint("Desk AI developer console"))
	cons.drainPending(sh)
	if err != nil {
		return err
	}

	settings := cons.eng.Settings()
	sh.Printf("provider %s, model %s, workdir %s\n", settings.Provider, settings.Model, settings.Workdir)
	sh.Println(consoleDim.Sprint("type \"help\" for commands"))

	sh.AddCmd(&ishell.Cmd{
		Name: "ask",
		Help: "send a prompt to the assistant",
		Func: cons.cmdAsk,
	})
	sh.AddCmd(&ishell.Cmd{
		Name: "tools",
		Help: "print the tool catalog",
		Func: func(ctx *ishell.Context) {
			ctx.Print(toolTable())
		},
	})
	sh.AddCmd(&ishell.Cmd{
		Name: "policy",
		Help: "show or change the approval policy: policy [<flag> on|off]",
		Func: cons.cmdPolicy,
	})
	sh.AddCmd(&ishell.Cmd{
		Name: "sessions",
		Help: "list running shell sessions",
		Func: cons.cmdSessions,
	})

	sh.Run()
	cons.eng.Shutdown()
	cons.drainPending(sh)
	return nil
}

func (c *console) cmdAsk(ctx *ishell.Context) {
	text := strings.TrimSpace(strings.Join(ctx.Args, " "))
	if text == "" {
		ctx.Print("> ")
		text = strings.TrimSpace(ctx.ReadLine())
	}
	if text == "" {
		return
	}

	spin := spinner.New(spinner.CharSets[14], 120*time.Millisecond)
	spin.Suffix = " thinking..."
	spin.Start()
	spinning := true
	stopSpin := func() {
		if spinning {
			spin.Stop()
			spinning = false
		}
	}
	defer stopSpin()

	promptID := uuid.NewString()
	c.eng.HandleMessage(context.Background(), &protocol.PromptMessage{ID: promptID, Text: text})

	for ev := range c.events {
		stopSpin()
		if c.render(ctx, ev, ctx.ReadLine) {
			break
		}
	}
	ctx.Println()
}

func (c *console) cmdPolicy(ctx *ishell.Context) {
	settings := c.eng.Settings()

	if len(ctx.Args) == 0 {
		show := func(name string, on bool) {
			state := consoleDim.Sprint("off")
			if on {
				state = consoleGood.Sprint("on")
			}
			ctx.Printf("  %-22s %s\n", name, state)
		}
		show("auto-approve-reads", settings.AutoApproveReads)
		show("confirm-writes", settings.ConfirmWrites)
		show("confirm-shell", settings.ConfirmShell)
		show("allow-system-wide", settings.AllowSystemWide)
		show("allow-elevated", settings.AllowElevatedCommands)
		show("show-output", settings.ShowCommandOutput)
		return
	}

	if len(ctx.Args) != 2 {
		ctx.Println("usage: policy [<flag> on|off]")
		return
	}

	on := ctx.Args[1] == "on" || ctx.Args[1] == "true"
	msg := &protocol.ConfigMessage{
		Provider:              settings.Provider,
		APIKey:                settings.APIKey,
		Model:                 settings.Model,
		Workdir:               settings.Workdir,
		AutoApproveReads:      &settings.AutoApproveReads,
		ConfirmWrites:         &settings.ConfirmWrites,
		ConfirmShell:          &settings.ConfirmShell,
		AllowSystemWide:       &settings.AllowSystemWide,
		AllowElevatedCommands: &settings.AllowElevatedCommands,
		ShowCommandOutput:     &settings.ShowCommandOutput,
	}

	switch ctx.Args[0] {
	case "auto-approve-reads":
		msg.AutoApproveReads = &on
	case "confirm-writes":
		msg.ConfirmWrites = &on
	case "confirm-shell":
		msg.ConfirmShell = &on
	case "allow-system-wide":
		msg.AllowSystemWide = &on
	case "allow-elevated":
		msg.AllowElevatedCommands = &on
	case "show-output":
		msg.ShowCommandOutput = &on
	default:
		ctx.Printf("unknown policy flag: %s\n", ctx.Args[0])
		return
	}

	if err := c.eng.Configure(msg); err == nil {
		ctx.Println(consoleDim.Sprint("(conversation history reset)"))
	}
	c.drainPending(ctx)
}

func (c *console) cmdSessions(ctx *ishell.Context) {
	sessions := c.eng.Sessions()
	if len(sessions) == 0 {
		ctx.Println("no running shell sessions")
		return
	}
	ctx.Print(sessionTable(sessions))
}

// drainPending renders events already queued without blocking. Used after
// synchronous calls such as Configure; approval requests cannot appear here.
func (c *console) drainPending(p printer) {
	for {
		select {
		case ev := <-c.events:
			c.render(p, ev, nil)
		default:
			return
		}
	}
}

// render prints one event. readLine answers approval requests; when nil they
// are denied. The return value reports whether the current ask is finished.
func (c *console) render(p printer, ev protocol.Event, readLine func() string) bool {
	switch ev := ev.(type) {
	case *protocol.Token:
		p.Print(ev.Text)

	case *protocol.Final:
		p.Println()
		return true

	case *protocol.Status:
		switch ev.Status {
		case protocol.StatusReady:
			p.Println(consoleGood.Sprintf("✓ %s", ev.Message))
		case protocol.StatusError:
			p.Println(consoleBad.Sprintf("✗ %s", ev.Message))
			return true
		default:
			p.Println(consoleDim.Sprint(ev.Message))
		}

	case *protocol.ErrorEvent:
		p.Println(consoleBad.Sprintf("✗ %s", ev.Message))
		// Pre-flight rejections produce no final event; detect them by the
		// engine staying idle.
		if c.eng.State() == engine.StateIdle {
			return true
		}

	case *protocol.ToolRequest:
		if ev.AutoApproved {
			p.Println(consoleDim.Sprintf("  auto-approved %s", describeRequest(ev)))
			return false
		}
		label := describeRequest(ev)
		if ev.Elevated != nil && *ev.Elevated {
			p.Println(consoleDanger.Sprintf("  ELEVATED %s", label))
		} else {
			p.Println(consoleAsk.Sprintf("  %s", label))
		}
		approved := false
		if readLine != nil {
			p.Print("  approve? [y/N] ")
			answer := strings.ToLower(strings.TrimSpace(readLine()))
			approved = answer == "y" || answer == "yes"
		}
		c.eng.HandleMessage(context.Background(), &protocol.ApprovalMessage{
			RequestID: ev.RequestID,
			Approved:  approved,
		})

	case *protocol.ToolCallStart:
		p.Println(consoleDim.Sprintf("  [%s] %s", ev.Name, ev.Arguments))

	case *protocol.ToolCallEnd:
		if ev.Error != "" {
			p.Println(consoleBad.Sprintf("  [tool] %s", ev.Error))
		} else {
			p.Println(consoleDim.Sprintf("  [tool] %s", firstLine(ev.Result)))
		}

	case *protocol.ShellStart:
		p.Println(consoleDim.Sprintf("  $ %s", ev.Cmd))

	case *protocol.ShellData:
		if ev.Stream == protocol.StreamStderr {
			p.Print(consoleBad.Sprint(ev.Chunk))
		} else {
			p.Print(consoleDim.Sprint(ev.Chunk))
		}

	case *protocol.ShellEnd:
		p.Println(consoleDim.Sprintf("  exit %d (%dms)", ev.ExitCode, ev.DurationMs))

	case *protocol.ToolLog:
		p.Println(consoleDim.Sprintf("  · %s", ev.Message))
	}
	return false
}

func describeRequest(req *protocol.ToolRequest) string {
	switch {
	case req.Command != "":
		return fmt.Sprintf("%s: %s", req.Action, req.Command)
	case req.Path != "":
		return fmt.Sprintf("%s %s", req.Action, req.Path)
	case req.Description != "":
		return fmt.Sprintf("%s: %s", req.Action, req.Description)
	default:
		return req.Action
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
