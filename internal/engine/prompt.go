package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/deskai-dev/deskai/go/internal/engine/config"
	"github.com/deskai-dev/deskai/go/internal/engine/llm"
	"github.com/deskai-dev/deskai/go/internal/engine/metrics"
	"github.com/deskai-dev/deskai/go/internal/engine/models"
	"github.com/deskai-dev/deskai/go/internal/engine/protocol"
	"github.com/deskai-dev/deskai/go/internal/engine/tools"
)

// Transcript markers appended when a turn ends abnormally.
const (
	cancelledMarker      = "\n[cancelled]"
	iterationLimitMarker = "\n[Reached maximum tool iterations]"
)

func (e *Engine) handlePrompt(ctx context.Context, msg *protocol.PromptMessage) {
	promptID := msg.ID
	if promptID == "" {
		promptID = uuid.NewString()
	}

	e.mu.Lock()
	if e.settings == nil {
		e.mu.Unlock()
		e.emit(protocol.NewError("Backend not configured."))
		return
	}
	if e.state != StateIdle {
		e.mu.Unlock()
		e.emit(protocol.NewError("A prompt is already being processed."))
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.state = StateAwaitingProvider
	e.activePrompt = promptID
	e.cancelPrompt = cancel

	turn := promptTurn{
		id:       promptID,
		text:     msg.Text,
		settings: e.settings,
		provider: e.provider,
		executor: e.executor,
		history:  append([]models.Message(nil), e.history...),
	}
	e.mu.Unlock()

	e.metrics.PromptStarted()
	e.metrics.SetBusy(true)
	logrus.WithFields(logrus.Fields{
		"prompt":   promptID,
		"provider": turn.provider.Name(),
	}).Info("prompt accepted")

	go e.runPrompt(runCtx, turn)
}

// promptTurn is the immutable snapshot a prompt goroutine works against.
// Config swaps mid-turn never touch it.
type promptTurn struct {
	id       string
	text     string
	settings *config.Settings
	provider llm.Provider
	executor *tools.Executor
	history  []models.Message
}

func (e *Engine) runPrompt(ctx context.Context, turn promptTurn) {
	var transcript strings.Builder

	messages := append(turn.history, models.NewUserMessage(turn.text))
	catalog := turn.executor.Definitions()

	var runErr error
	answered := false

	for iteration := 1; iteration <= config.MaxIterations; iteration++ {
		if ctx.Err() != nil {
			runErr = ctx.Err()
			break
		}

		e.metrics.ProviderIteration()
		logrus.WithFields(logrus.Fields{
			"prompt":    turn.id,
			"iteration": iteration,
		}).Debug("calling provider")

		chunks, errs := turn.provider.ChatStream(ctx, llm.Request{
			Model:        turn.settings.Model,
			SystemPrompt: turn.settings.SystemPrompt(),
			Messages:     messages,
			Tools:        catalog,
		})

		turnText, calls, err := e.consumeStream(turn.id, chunks, errs, &transcript)
		if err != nil {
			runErr = err
			break
		}

		if len(calls) == 0 {
			answered = true
			break
		}

		e.setState(StateToolsPending)
		messages = append(messages, models.NewAssistantMessage(turnText, calls))

		for i := range calls {
			output, failed := e.executeCall(ctx, turn, calls[i])
			if failed {
				messages = append(messages, models.NewToolErrorMessage(calls[i].ID, output))
			} else {
				messages = append(messages, models.NewToolMessage(calls[i].ID, output))
			}
			if ctx.Err() != nil {
				break
			}
		}
		if ctx.Err() != nil {
			runErr = ctx.Err()
			break
		}
		e.setState(StateAwaitingProvider)
	}

	switch {
	case errors.Is(runErr, context.Canceled):
		e.emit(protocol.NewToken(turn.id, cancelledMarker))
		transcript.WriteString(cancelledMarker)
		e.emit(protocol.NewFinal(turn.id, transcript.String()))
		e.metrics.PromptCancelled()
		e.seal(turn, true, transcript.String())

	case runErr != nil:
		e.emit(protocol.NewError(fmt.Sprintf("Prompt failed: %v", runErr)))
		if llm.IsAuthError(runErr) {
			e.emit(protocol.NewStatus(protocol.StatusError,
				fmt.Sprintf("%s authentication failed. Check your API key.", turn.settings.ProviderTitle())))
		} else {
			e.emit(protocol.NewStatus(protocol.StatusError,
				"Provider request failed. Check your network connection."))
		}
		logrus.WithError(runErr).WithField("prompt", turn.id).Error("prompt failed")
		e.seal(turn, false, "")

	default:
		if !answered {
			e.emit(protocol.NewToken(turn.id, iterationLimitMarker))
			transcript.WriteString(iterationLimitMarker)
			e.emit(protocol.NewToolLog(fmt.Sprintf("Reached maximum tool iterations (%d)", config.MaxIterations)))
		}
		e.emit(protocol.NewFinal(turn.id, transcript.String()))
		e.metrics.PromptCompleted()
		e.seal(turn, true, transcript.String())
	}
}

// consumeStream drains one provider call, forwarding text deltas as token
// events. It returns the turn's text, its tool calls with IDs assigned, and
// the stream error, if any.
func (e *Engine) consumeStream(promptID string, chunks <-chan llm.StreamChunk, errs <-chan error, transcript *strings.Builder) (string, []models.ToolCall, error) {
	var text strings.Builder
	var calls []models.ToolCall

	for chunk := range chunks {
		if chunk.Delta {
			if chunk.Content != "" {
				text.WriteString(chunk.Content)
				transcript.WriteString(chunk.Content)
				e.emit(protocol.NewToken(promptID, chunk.Content))
			}
			continue
		}

		calls = chunk.ToolCalls
		if text.Len() == 0 && chunk.Content != "" {
			// Provider sent no deltas; surface the complete text at once.
			text.WriteString(chunk.Content)
			transcript.WriteString(chunk.Content)
			e.emit(protocol.NewToken(promptID, chunk.Content))
		}
	}

	if err, ok := <-errs; ok && err != nil {
		return "", nil, err
	}

	for i := range calls {
		if calls[i].ID == "" {
			calls[i].ID = uuid.NewString()
		}
	}
	return text.String(), calls, nil
}

// executeCall runs one tool call and renders its outcome as the result
// string fed back to the provider, with failed reporting execution errors.
// Failures never abort the turn; denials are decisions, not failures.
func (e *Engine) executeCall(ctx context.Context, turn promptTurn, call models.ToolCall) (result string, failed bool) {
	output, err := turn.executor.Execute(ctx, call, turn.id)
	switch {
	case err != nil:
		e.metrics.ToolCall(call.Name, metrics.OutcomeError)
		return fmt.Sprintf("Tool execution failed: %v", err), true
	case output == tools.DeniedResult:
		e.metrics.ToolCall(call.Name, metrics.OutcomeDenied)
		return output, false
	default:
		e.metrics.ToolCall(call.Name, metrics.OutcomeOK)
		return output, false
	}
}

// seal closes the turn: commits it to the conversation history when asked,
// releases the prompt slot, and applies any configuration queued mid-turn.
func (e *Engine) seal(turn promptTurn, commit bool, finalText string) {
	e.mu.Lock()
	if commit {
		e.history = append(e.history, models.NewUserMessage(turn.text))
		if finalText != "" {
			e.history = append(e.history, models.NewAssistantMessage(finalText, nil))
		}
		e.history = models.TrimHistory(e.history, config.MaxHistoryMessages)
	}
	cancel := e.cancelPrompt
	e.state = StateSealed
	e.activePrompt = ""
	e.cancelPrompt = nil
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	e.approvals.Reset()
	e.metrics.SetBusy(false)
	logrus.WithField("prompt", turn.id).Debug("turn sealed")

	e.mu.Lock()
	queued := e.queuedConfig
	e.queuedConfig = nil
	e.state = StateIdle
	e.mu.Unlock()

	if queued != nil {
		_ = e.Configure(queued)
	}
}
