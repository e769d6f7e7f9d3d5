// Package approval suspends tool execution until the host application
// resolves a request. Each request is a one-shot completion keyed by UUID:
// the first resolution wins, later resolutions for the same ID are no-ops,
// and prompt cancellation releases every waiter.
package approval

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/deskai-dev/deskai/go/internal/engine/audit"
	"github.com/deskai-dev/deskai/go/internal/engine/protocol"
)

// Request describes a tool action awaiting a decision.
type Request struct {
	ID          string
	Action      string // shell, read, write, list, delete, search
	Path        string
	Command     string
	Description string
	Bytes       *int
	Elevated    *bool
}

func (r Request) event(autoApproved bool) *protocol.ToolRequest {
	return &protocol.ToolRequest{
		Type:         protocol.TypeToolRequest,
		RequestID:    r.ID,
		Action:       r.Action,
		Path:         r.Path,
		Command:      r.Command,
		Description:  r.Description,
		Bytes:        r.Bytes,
		Elevated:     r.Elevated,
		AutoApproved: autoApproved,
	}
}

func (r Request) elevated() bool {
	return r.Elevated != nil && *r.Elevated
}

// Coordinator pairs emitted tool requests with host approval messages.
type Coordinator struct {
	emitter  protocol.Emitter
	auditLog *audit.Logger

	mu       sync.Mutex
	pending  map[string]chan bool
	resolved map[string]struct{}
}

// NewCoordinator builds a coordinator emitting on emitter. The audit logger
// may be nil.
func NewCoordinator(emitter protocol.Emitter, auditLog *audit.Logger) *Coordinator {
	return &Coordinator{
		emitter:  emitter,
		auditLog: auditLog,
		pending:  make(map[string]chan bool),
		resolved: make(map[string]struct{}),
	}
}

// Await emits a tool request and blocks until the host resolves it or ctx is
// cancelled. It returns (false, ctx.Err()) on cancellation, (approved, nil)
// otherwise. A missing request ID is assigned.
func (c *Coordinator) Await(ctx context.Context, req Request) (bool, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	ch := make(chan bool, 1)
	c.mu.Lock()
	c.pending[req.ID] = ch
	c.mu.Unlock()

	if err := c.emitter.Emit(req.event(false)); err != nil {
		logrus.WithError(err).Warn("failed to emit tool request")
	}

	select {
	case approved := <-ch:
		if req.elevated() {
			c.auditLog.ElevatedCommand(approved, req.Command)
		}
		return approved, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
		if req.elevated() {
			c.auditLog.ElevatedCommand(false, req.Command)
		}
		return false, ctx.Err()
	}
}

// NotifyAutoApproved emits a non-blocking tool request marked autoApproved,
// so the host can surface actions that policy exempted from confirmation.
func (c *Coordinator) NotifyAutoApproved(req Request) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if err := c.emitter.Emit(req.event(true)); err != nil {
		logrus.WithError(err).Warn("failed to emit tool request")
	}
	if req.elevated() {
		c.auditLog.ElevatedCommand(true, req.Command)
	}
}

// Resolve completes the pending request with the host's decision. Resolving
// an already-resolved request is a no-op; an unknown ID is an error.
func (c *Coordinator) Resolve(requestID string, approved bool) error {
	c.mu.Lock()
	ch, ok := c.pending[requestID]
	if ok {
		delete(c.pending, requestID)
		c.resolved[requestID] = struct{}{}
		c.mu.Unlock()
		ch <- approved
		return nil
	}
	_, seen := c.resolved[requestID]
	c.mu.Unlock()

	if seen {
		return nil
	}
	return fmt.Errorf("No pending approval for %s", requestID)
}

// DenyAll resolves every pending request as denied and returns how many
// waiters it released. Called when the in-flight prompt is killed.
func (c *Coordinator) DenyAll() int {
	c.mu.Lock()
	channels := make([]chan bool, 0, len(c.pending))
	for id, ch := range c.pending {
		delete(c.pending, id)
		c.resolved[id] = struct{}{}
		channels = append(channels, ch)
	}
	c.mu.Unlock()

	for _, ch := range channels {
		ch <- false
	}
	return len(channels)
}

// Reset forgets resolved-request history. Called between prompt turns so the
// idempotence window does not grow without bound.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resolved = make(map[string]struct{})
}

// PendingCount reports how many requests are awaiting resolution.
func (c *Coordinator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
