package protocol

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Emitter sends events to the host application.
type Emitter interface {
	Emit(ev Event) error
}

// Handler receives decoded inbound messages from the bridge read loop.
type Handler interface {
	HandleMessage(ctx context.Context, msg Inbound)
}

// Bridge speaks newline-delimited JSON over a reader/writer pair. Events may
// be emitted concurrently from any goroutine; inbound messages are dispatched
// sequentially from the read loop.
type Bridge struct {
	in io.Reader

	mu  sync.Mutex
	out *bufio.Writer
}

// NewBridge wraps the given streams. In normal operation in is stdin and out
// is stdout; stderr stays free for diagnostics.
func NewBridge(in io.Reader, out io.Writer) *Bridge {
	return &Bridge{
		in:  in,
		out: bufio.NewWriter(out),
	}
}

// Emit writes one event as a single JSON line and flushes it.
func (b *Bridge) Emit(ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.out.Write(data); err != nil {
		return err
	}
	if err := b.out.WriteByte('\n'); err != nil {
		return err
	}
	return b.out.Flush()
}

// Run reads protocol lines until EOF or context cancellation, dispatching
// each decoded message to the handler. Malformed lines produce error events
// and do not stop the loop. Lines of any length are accepted.
func (b *Bridge) Run(ctx context.Context, handler Handler) error {
	lines := make(chan string)
	readErr := make(chan error, 1)

	go func() {
		defer close(lines)
		reader := bufio.NewReader(b.in)
		for {
			line, err := reader.ReadString('\n')
			if line != "" {
				select {
				case lines <- line:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				if err != io.EOF {
					readErr <- err
				}
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					return err
				default:
					return nil
				}
			}
			b.dispatch(ctx, handler, line)
		}
	}
}

func (b *Bridge) dispatch(ctx context.Context, handler Handler, line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	msg, err := DecodeInbound([]byte(line))
	if err != nil {
		ev := &ErrorEvent{Type: TypeError, Raw: line}
		if _, unknown := err.(*UnknownTypeError); unknown {
			ev.Message = err.Error()
		} else {
			ev.Message = "Invalid JSON from frontend"
		}
		if emitErr := b.Emit(ev); emitErr != nil {
			logrus.WithError(emitErr).Warn("failed to emit protocol error")
		}
		return
	}
	handler.HandleMessage(ctx, msg)
}
