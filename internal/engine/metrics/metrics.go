// Package metrics exposes the engine's prometheus collectors on a
// dedicated registry. Collectors are only created when the debug
// listener is enabled; a nil Registry discards every observation, so
// callers never need to guard their call sites.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/deskai-dev/deskai/go/internal/engine/protocol"
)

// Tool call outcomes recorded by ToolCall.
const (
	OutcomeOK     = "ok"
	OutcomeError  = "error"
	OutcomeDenied = "denied"
)

const namespace = "deskai"

// Registry bundles the engine collectors on a prometheus registry that
// is separate from the global default.
type Registry struct {
	reg *prometheus.Registry

	promptsStarted     prometheus.Counter
	promptsCompleted   prometheus.Counter
	promptsCancelled   prometheus.Counter
	providerIterations prometheus.Counter
	toolCalls          *prometheus.CounterVec
	approvals          *prometheus.CounterVec
	shellStarted       prometheus.Counter
	shellActive        prometheus.GaugeFunc
	busy               prometheus.Gauge
}

// New builds the collector set. activeSessions is polled at scrape time
// for the active shell session gauge; nil reads as zero.
func New(activeSessions func() int) *Registry {
	m := &Registry{
		reg: prometheus.NewRegistry(),
		promptsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prompts_started_total",
			Help:      "Prompts accepted for processing.",
		}),
		promptsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prompts_completed_total",
			Help:      "Prompts that reached a final result.",
		}),
		promptsCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prompts_cancelled_total",
			Help:      "Prompts cancelled before completion.",
		}),
		providerIterations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_iterations_total",
			Help:      "Model calls issued across all prompts.",
		}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool executions by tool name and outcome.",
		}, []string{"tool", "outcome"}),
		approvals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "approvals_total",
			Help:      "Approval decisions received from the host.",
		}, []string{"decision"}),
		shellStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shell_sessions_started_total",
			Help:      "Shell sessions spawned.",
		}),
		shellActive: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "shell_sessions_active",
			Help:      "Shell sessions currently running.",
		}, func() float64 {
			if activeSessions == nil {
				return 0
			}
			return float64(activeSessions())
		}),
		busy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "engine_busy",
			Help:      "1 while a prompt is being processed.",
		}),
	}
	m.reg.MustRegister(
		m.promptsStarted,
		m.promptsCompleted,
		m.promptsCancelled,
		m.providerIterations,
		m.toolCalls,
		m.approvals,
		m.shellStarted,
		m.shellActive,
		m.busy,
	)
	return m
}

// Handler serves the registry in the prometheus exposition format.
func (m *Registry) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// PromptStarted records a prompt entering processing.
func (m *Registry) PromptStarted() {
	if m == nil {
		return
	}
	m.promptsStarted.Inc()
}

// PromptCompleted records a prompt reaching its final event.
func (m *Registry) PromptCompleted() {
	if m == nil {
		return
	}
	m.promptsCompleted.Inc()
}

// PromptCancelled records a prompt cancelled by the host.
func (m *Registry) PromptCancelled() {
	if m == nil {
		return
	}
	m.promptsCancelled.Inc()
}

// ProviderIteration records one model call within a prompt.
func (m *Registry) ProviderIteration() {
	if m == nil {
		return
	}
	m.providerIterations.Inc()
}

// ToolCall records a tool execution outcome.
func (m *Registry) ToolCall(tool, outcome string) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(tool, outcome).Inc()
}

// Approval records a host approval decision.
func (m *Registry) Approval(approved bool) {
	if m == nil {
		return
	}
	decision := "denied"
	if approved {
		decision = "approved"
	}
	m.approvals.WithLabelValues(decision).Inc()
}

// SetBusy flips the engine state gauge.
func (m *Registry) SetBusy(busy bool) {
	if m == nil {
		return
	}
	if busy {
		m.busy.Set(1)
	} else {
		m.busy.Set(0)
	}
}

// Instrument wraps next so shell session starts are counted as their
// events stream past. A nil registry returns next unchanged.
func (m *Registry) Instrument(next protocol.Emitter) protocol.Emitter {
	if m == nil {
		return next
	}
	return &instrumentedEmitter{next: next, metrics: m}
}

type instrumentedEmitter struct {
	next    protocol.Emitter
	metrics *Registry
}

func (e *instrumentedEmitter) Emit(ev protocol.Event) error {
	if _, ok := ev.(*protocol.ShellStart); ok {
		e.metrics.shellStarted.Inc()
	}
	return e.next.Emit(ev)
}
