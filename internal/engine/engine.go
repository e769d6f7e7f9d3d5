// Package engine owns the session orchestrator: the current configuration,
// the conversation history, and the single active prompt. It dispatches
// inbound protocol messages, drives the provider loop, routes tool calls
// into the executor, and emits protocol events throughout.
package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/deskai-dev/deskai/go/internal/engine/approval"
	"github.com/deskai-dev/deskai/go/internal/engine/audit"
	"github.com/deskai-dev/deskai/go/internal/engine/config"
	"github.com/deskai-dev/deskai/go/internal/engine/llm"
	"github.com/deskai-dev/deskai/go/internal/engine/metrics"
	"github.com/deskai-dev/deskai/go/internal/engine/models"
	"github.com/deskai-dev/deskai/go/internal/engine/protocol"
	"github.com/deskai-dev/deskai/go/internal/engine/sandbox"
	"github.com/deskai-dev/deskai/go/internal/engine/shell"
	"github.com/deskai-dev/deskai/go/internal/engine/tools"
)

// State is the orchestrator phase for the current prompt.
type State string

// Prompt states. Sealed is transient: the engine returns to Idle as soon as
// the turn's bookkeeping is done.
const (
	StateIdle             State = "idle"
	StateAwaitingProvider State = "awaiting_provider"
	StateToolsPending     State = "tools_pending"
	StateSealed           State = "sealed"
)

// ProviderFactory builds a provider for a validated configuration.
type ProviderFactory func(name, apiKey string) (llm.Provider, error)

// Option customizes an Engine.
type Option func(*Engine)

// WithProviderFactory replaces the default provider registry lookup.
func WithProviderFactory(factory ProviderFactory) Option {
	return func(e *Engine) {
		e.buildProvider = factory
	}
}

// WithMetrics attaches a collector registry. The engine records prompt,
// tool and approval activity on it.
func WithMetrics(m *metrics.Registry) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// Engine coordinates one prompt at a time against the configured provider.
type Engine struct {
	emitter       protocol.Emitter
	auditLog      *audit.Logger
	metrics       *metrics.Registry
	buildProvider ProviderFactory

	approvals *approval.Coordinator
	shellMgr  *shell.Manager

	mu           sync.Mutex
	state        State
	settings     *config.Settings
	provider     llm.Provider
	executor     *tools.Executor
	history      []models.Message
	activePrompt string
	cancelPrompt context.CancelFunc
	queuedConfig *protocol.ConfigMessage
}

// New builds an unconfigured engine emitting on emitter. The audit logger
// may be nil.
func New(emitter protocol.Emitter, auditLog *audit.Logger, opts ...Option) *Engine {
	e := &Engine{
		emitter:       emitter,
		auditLog:      auditLog,
		buildProvider: llm.Build,
		approvals:     approval.NewCoordinator(emitter, auditLog),
		shellMgr:      shell.NewManager(emitter),
		state:         StateIdle,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// HandleMessage dispatches one inbound protocol message. Prompts are
// processed on their own goroutine; everything else is handled inline.
func (e *Engine) HandleMessage(ctx context.Context, msg protocol.Inbound) {
	switch m := msg.(type) {
	case *protocol.ConfigMessage:
		e.handleConfig(m)
	case *protocol.PromptMessage:
		e.handlePrompt(ctx, m)
	case *protocol.ApprovalMessage:
		e.handleApproval(m)
	case *protocol.KillMessage:
		e.handleKill(m)
	}
}

func (e *Engine) handleConfig(msg *protocol.ConfigMessage) {
	e.mu.Lock()
	if e.state != StateIdle {
		e.queuedConfig = msg
		e.mu.Unlock()
		logrus.Info("configuration queued until the active prompt completes")
		return
	}
	e.mu.Unlock()

	_ = e.Configure(msg)
}

// Configure validates the configuration, rebuilds the provider, sandbox and
// executor, clears the conversation history, and reports the outcome as a
// status event. The returned error mirrors the emitted status for callers
// that need it, such as bootstrap.
func (e *Engine) Configure(msg *protocol.ConfigMessage) error {
	settings, err := config.Resolve(config.Options{
		Provider:              msg.Provider,
		APIKey:                msg.APIKey,
		Model:                 msg.Model,
		Workdir:               msg.Workdir,
		AutoApproveReads:      msg.AutoApproveReads,
		ConfirmWrites:         msg.ConfirmWrites,
		ConfirmShell:          msg.ConfirmShell,
		AllowSystemWide:       msg.AllowSystemWide,
		AllowElevatedCommands: msg.AllowElevatedCommands,
		ShowCommandOutput:     msg.ShowCommandOutput,
	})
	if err != nil {
		e.emit(protocol.NewStatus(protocol.StatusError, err.Error()))
		return err
	}

	provider, err := e.buildProvider(settings.Provider, settings.APIKey)
	if err != nil {
		e.emit(protocol.NewStatus(protocol.StatusError, err.Error()))
		return err
	}

	validator, err := sandbox.NewValidator(settings.Workdir, settings.AllowSystemWide)
	if err != nil {
		e.emit(protocol.NewStatus(protocol.StatusError, err.Error()))
		return err
	}

	e.mu.Lock()
	e.settings = settings
	e.provider = provider
	e.executor = tools.NewExecutor(settings, validator, e.approvals, e.shellMgr, e.emitter, e.auditLog)
	e.history = nil
	e.mu.Unlock()

	logrus.WithFields(settings.LogFields()).Info("configuration applied")
	e.auditLog.Info("Engine configured: provider=%s, model=%s, workdir=%s",
		settings.Provider, settings.Model, settings.Workdir)

	e.emit(protocol.NewStatus(protocol.StatusReady, settings.ProviderTitle()+" connection ready."))
	return nil
}

func (e *Engine) handleApproval(msg *protocol.ApprovalMessage) {
	if msg.RequestID == "" {
		e.emit(protocol.NewError("Approval payload missing requestId."))
		return
	}
	if err := e.approvals.Resolve(msg.RequestID, msg.Approved); err != nil {
		e.emit(protocol.NewError(err.Error()))
		return
	}
	e.metrics.Approval(msg.Approved)
	logrus.WithFields(logrus.Fields{
		"requestId": msg.RequestID,
		"approved":  msg.Approved,
	}).Debug("approval resolved")
}

func (e *Engine) handleKill(msg *protocol.KillMessage) {
	if msg.SessionID != "" {
		if err := e.shellMgr.Kill(msg.SessionID); err != nil {
			e.emit(protocol.NewError(err.Error()))
			return
		}
		e.emit(protocol.NewToolLog(fmt.Sprintf("stop shell session %s", msg.SessionID)))
		return
	}

	e.mu.Lock()
	cancel := e.cancelPrompt
	promptID := e.activePrompt
	e.mu.Unlock()

	if cancel == nil {
		logrus.Debug("kill received with no active prompt")
		return
	}

	cancel()
	denied := e.approvals.DenyAll()
	killed := e.shellMgr.KillForPrompt(promptID)

	e.auditLog.Info("Prompt cancelled: %s", promptID)
	logrus.WithFields(logrus.Fields{
		"prompt":          promptID,
		"approvalsDenied": denied,
		"sessionsKilled":  killed,
	}).Info("prompt cancelled")
}

// State reports the current orchestrator phase.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Configured reports whether a valid configuration has been applied.
func (e *Engine) Configured() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings != nil
}

// Settings returns a copy of the active configuration, or nil before the
// first valid config message.
func (e *Engine) Settings() *config.Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.settings == nil {
		return nil
	}
	snapshot := *e.settings
	return &snapshot
}

// Sessions returns a snapshot of the running shell sessions.
func (e *Engine) Sessions() []shell.SessionInfo {
	return e.shellMgr.Active()
}

// SessionCount reports how many shell sessions are running.
func (e *Engine) SessionCount() int {
	return len(e.shellMgr.Active())
}

// Shutdown kills every running shell session and cancels the in-flight
// prompt, if any. Called on serve teardown.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	cancel := e.cancelPrompt
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	e.approvals.DenyAll()
	if n := e.shellMgr.KillAll(); n > 0 {
		logrus.WithField("sessions", n).Info("killed running shell sessions")
	}
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

func (e *Engine) emit(ev protocol.Event) {
	if err := e.emitter.Emit(ev); err != nil {
		logrus.WithError(err).Warn("failed to emit event")
	}
}
