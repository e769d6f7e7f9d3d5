// Package shell spawns workspace commands, streams their output as protocol
// events and tracks running sessions so the host can terminate them. Every
// session emits shell_start, zero or more shell_data chunks, and exactly one
// shell_end after all data.
package shell

import (
	"bufio"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/deskai-dev/deskai/go/internal/engine/protocol"
	apperrors "github.com/deskai-dev/deskai/go/pkg/errors"
)

// DefaultTimeout applies when a run request does not carry one.
const DefaultTimeout = 120 * time.Second

// RunOptions describes one shell execution.
type RunOptions struct {
	Command    string
	Cwd        string
	Timeout    time.Duration
	Elevated   bool
	PromptID   string
	ShowOutput bool
}

// Result is the outcome of a completed shell session.
type Result struct {
	SessionID string
	ExitCode  int
	Stdout    string
	Stderr    string
	TimedOut  bool
	Duration  time.Duration
}

// Output returns stdout followed by stderr.
func (r Result) Output() string {
	return r.Stdout + r.Stderr
}

// SessionInfo is a point-in-time view of a running session.
type SessionInfo struct {
	ID        string    `json:"id"`
	Command   string    `json:"command"`
	Cwd       string    `json:"cwd"`
	PromptID  string    `json:"promptId,omitempty"`
	Elevated  bool      `json:"elevated"`
	StartedAt time.Time `json:"startedAt"`
}

type session struct {
	info SessionInfo
	cmd  *exec.Cmd

	killOnce sync.Once
}

func (s *session) kill() {
	s.killOnce.Do(func() {
		if s.cmd.Process != nil {
			if err := s.cmd.Process.Kill(); err != nil {
				logrus.WithError(err).WithField("session", s.info.ID).Debug("kill failed")
			}
		}
	})
}

// Manager runs shell sessions and keeps a registry of the live ones.
type Manager struct {
	emitter protocol.Emitter

	mu       sync.Mutex
	sessions map[string]*session
}

// NewManager builds a manager emitting session events on emitter.
func NewManager(emitter protocol.Emitter) *Manager {
	return &Manager{
		emitter:  emitter,
		sessions: make(map[string]*session),
	}
}

// Run executes one command to completion. It blocks until the process exits,
// is killed, or times out; the final shell_end is emitted before it returns.
// Kill requests arriving via the registry terminate the process, which
// surfaces here as a non-zero exit.
func (m *Manager) Run(opts RunOptions) (Result, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	var argv []string
	if opts.Elevated {
		argv = elevatedArgv(runtime.GOOS, opts.Command)
	} else {
		argv = normalArgv(runtime.GOOS, opts.Command)
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = opts.Cwd

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, apperrors.New(apperrors.ErrCodeShellSpawn, "failed to open stdout pipe", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Result{}, apperrors.New(apperrors.ErrCodeShellSpawn, "failed to open stderr pipe", err)
	}

	sess := &session{
		info: SessionInfo{
			ID:        uuid.NewString(),
			Command:   opts.Command,
			Cwd:       opts.Cwd,
			PromptID:  opts.PromptID,
			Elevated:  opts.Elevated,
			StartedAt: time.Now().UTC(),
		},
		cmd: cmd,
	}

	m.emit(protocol.NewShellStart(sess.info.ID, opts.Command, opts.Cwd))

	if err := cmd.Start(); err != nil {
		// The session was announced, so close it out before failing.
		m.emit(protocol.NewShellEnd(sess.info.ID, -1, time.Since(sess.info.StartedAt)))
		msg := fmt.Sprintf("Failed to start command: %v", err)
		if opts.Elevated && runtime.GOOS != "windows" {
			msg += " You may need to configure passwordless sudo or use pkexec."
		}
		m.emit(protocol.NewError(msg))
		return Result{}, apperrors.New(apperrors.ErrCodeShellSpawn, msg, err)
	}

	m.register(sess)
	defer m.unregister(sess.info.ID)

	var outBuf, errBuf strings.Builder
	var bufMu sync.Mutex

	readers := &errgroup.Group{}
	readers.Go(func() error {
		return m.streamPipe(stdout, sess.info.ID, protocol.StreamStdout, &outBuf, &bufMu, opts.ShowOutput)
	})
	readers.Go(func() error {
		return m.streamPipe(stderr, sess.info.ID, protocol.StreamStderr, &errBuf, &bufMu, opts.ShowOutput)
	})

	done := make(chan error, 1)
	go func() {
		// Pipe readers must drain before Wait reclaims the descriptors.
		rerr := readers.Wait()
		werr := cmd.Wait()
		if werr == nil && rerr != nil {
			werr = rerr
		}
		done <- werr
	}()

	timedOut := false
	timer := time.NewTimer(opts.Timeout)
	defer timer.Stop()

	var waitErr error
	select {
	case waitErr = <-done:
	case <-timer.C:
		timedOut = true
		sess.kill()
		m.emit(protocol.NewError(fmt.Sprintf("Command timed out after %ds: %s",
			int(opts.Timeout/time.Second), opts.Command)))
		waitErr = <-done
	}

	duration := time.Since(sess.info.StartedAt)
	exitCode := exitCodeFrom(cmd, waitErr)
	if timedOut {
		exitCode = -1
	}

	bufMu.Lock()
	result := Result{
		SessionID: sess.info.ID,
		ExitCode:  exitCode,
		Stdout:    outBuf.String(),
		Stderr:    errBuf.String(),
		TimedOut:  timedOut,
		Duration:  duration,
	}
	bufMu.Unlock()

	m.emit(protocol.NewShellEnd(sess.info.ID, exitCode, duration))
	return result, nil
}

func (m *Manager) streamPipe(pipe io.Reader, sessionID, stream string, buf *strings.Builder, bufMu *sync.Mutex, show bool) error {
	reader := bufio.NewReader(pipe)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			if !strings.HasSuffix(line, "\n") {
				line += "\n"
			}
			bufMu.Lock()
			buf.WriteString(line)
			bufMu.Unlock()
			if show {
				m.emit(protocol.NewShellData(sessionID, line, stream))
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

func exitCodeFrom(cmd *exec.Cmd, waitErr error) int {
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	if waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			return exitErr.ExitCode()
		}
	}
	return -1
}

func (m *Manager) register(s *session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.info.ID] = s
}

func (m *Manager) unregister(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

func (m *Manager) emit(ev protocol.Event) {
	if err := m.emitter.Emit(ev); err != nil {
		logrus.WithError(err).Warn("failed to emit shell event")
	}
}

// Kill terminates the session with the given ID.
func (m *Manager) Kill(sessionID string) error {
	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("No running shell session %s", sessionID)
	}
	sess.kill()
	return nil
}

// KillForPrompt terminates every session spawned by the given prompt and
// returns how many it signalled.
func (m *Manager) KillForPrompt(promptID string) int {
	m.mu.Lock()
	var targets []*session
	for _, sess := range m.sessions {
		if sess.info.PromptID == promptID {
			targets = append(targets, sess)
		}
	}
	m.mu.Unlock()

	for _, sess := range targets {
		sess.kill()
	}
	return len(targets)
}

// KillAll terminates every running session. Used at shutdown.
func (m *Manager) KillAll() int {
	m.mu.Lock()
	targets := make([]*session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		targets = append(targets, sess)
	}
	m.mu.Unlock()

	for _, sess := range targets {
		sess.kill()
	}
	return len(targets)
}

// Active returns a snapshot of the running sessions.
func (m *Manager) Active() []SessionInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	infos := make([]SessionInfo, 0, len(m.sessions))
	for _, sess := range m.sessions {
		infos = append(infos, sess.info)
	}
	return infos
}

// ActiveCount reports how many sessions are running.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
