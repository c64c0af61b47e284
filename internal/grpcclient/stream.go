package grpcclient

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/jhump/protoreflect/dynamic"
	"github.com/jhump/protoreflect/dynamic/grpcdynamic"
)

// StreamState is the lifecycle state of a server stream.
type StreamState int32

const (
	StateIdle StreamState = iota
	StateStreaming
	StateCancelled
	StateErrored
	StateCompleted
)

// String returns a human-readable representation of the stream state.
func (s StreamState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateStreaming:
		return "Streaming"
	case StateCancelled:
		return "Cancelled"
	case StateErrored:
		return "Errored"
	case StateCompleted:
		return "Completed"
	default:
		return "Unknown"
	}
}

// Stream adapts a server-streaming RPC into a cancellable sequence of
// decoded messages. Messages arrive on the channel returned by Messages in
// delivery order; the channel closes when the stream completes, errors, or
// is cancelled. After the channel closes, Err reports the terminal error,
// if any.
type Stream struct {
	msgs   chan map[string]interface{}
	cancel context.CancelFunc
	once   sync.Once

	mu    sync.Mutex
	state StreamState
	err   error
}

func newStream(cancel context.CancelFunc) *Stream {
	return &Stream{
		msgs:   make(chan map[string]interface{}, 10), // Buffered to avoid blocking on send
		cancel: cancel,
		state:  StateIdle,
	}
}

// Messages returns the receive side of the stream's message sequence.
func (s *Stream) Messages() <-chan map[string]interface{} {
	return s.msgs
}

// Err returns the terminal error of the stream. It is nil until the message
// channel has closed, and stays nil on normal completion or cancellation.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// State returns the current lifecycle state.
func (s *Stream) State() StreamState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Cancel stops the stream and releases its underlying resources. It is
// idempotent: the underlying cancel operation runs exactly once, and no
// further messages are delivered after it returns.
func (s *Stream) Cancel() {
	s.once.Do(s.cancel)
}

// transition moves the stream to a terminal state unless one was already
// reached.
func (s *Stream) transition(state StreamState, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateCancelled || s.state == StateErrored || s.state == StateCompleted {
		return
	}
	s.state = state
	s.err = err
}

func (s *Stream) setStreaming() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateIdle {
		s.state = StateStreaming
	}
}

// pump drains the underlying RPC stream into the message channel. It runs
// until end-of-stream, a stream error, or cancellation, then marks the
// terminal state and closes the channel.
func (s *Stream) pump(ctx context.Context, ss *grpcdynamic.ServerStream, method string, logger *slog.Logger) {
	defer close(s.msgs)
	defer s.Cancel() // Release the RPC context once the stream is drained.

	s.setStreaming()

	count := 0
	for {
		respMsg, err := ss.RecvMsg()
		if err == io.EOF {
			logger.Debug("server stream completed",
				slog.String("method", method),
				slog.Int("message_count", count),
			)
			s.transition(StateCompleted, nil)
			return
		}
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				logger.Debug("server stream cancelled",
					slog.String("method", method),
					slog.Int("message_count", count),
				)
				s.transition(StateCancelled, nil)
				return
			}
			logger.Error("stream receive error",
				slog.String("method", method),
				slog.Int("message_count", count),
				slog.Any("error", err),
			)
			s.transition(StateErrored, err)
			return
		}

		decoded, err := decodeMessage(respMsg.(*dynamic.Message))
		if err != nil {
			logger.Error("failed to decode stream message",
				slog.String("method", method),
				slog.Any("error", err),
			)
			s.transition(StateErrored, err)
			return
		}

		count++
		select {
		case s.msgs <- decoded:
		case <-ctx.Done():
			s.transition(StateCancelled, nil)
			return
		}
	}
}
