// Package ws adapts WebSocket connections into actor sessions and serves the
// room and waiting-room upgrade endpoints.
package ws

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

var (
	// ErrSendQueueFull is returned when a session's outbound queue overflows.
	// The session closes itself.
	ErrSendQueueFull = errors.New("send queue full")
	// ErrSessionClosed is returned for sends after the session closed.
	ErrSessionClosed = errors.New("session closed")
)

// conn is the part of *websocket.Conn a Session writes through.
type conn interface {
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
}

// Session is one client connection. Send never blocks: payloads are queued
// and written by a dedicated goroutine with a per-write deadline.
type Session struct {
	id           string
	conn         conn
	out          chan []byte
	writeTimeout time.Duration
	logger       *slog.Logger

	closeOnce   sync.Once
	closed      chan struct{}
	done        chan struct{}
	closeCode   websocket.StatusCode
	closeReason string
}

func newSession(c conn, queue int, writeTimeout time.Duration, logger *slog.Logger) *Session {
	id := uuid.NewString()
	s := &Session{
		id:           id,
		conn:         c,
		out:          make(chan []byte, queue),
		writeTimeout: writeTimeout,
		logger:       logger.With("session_id", id),
		closed:       make(chan struct{}),
		done:         make(chan struct{}),
	}
	go s.writeLoop()
	return s
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Send queues payload for delivery.
func (s *Session) Send(payload []byte) error {
	select {
	case <-s.closed:
		return ErrSessionClosed
	default:
	}
	select {
	case s.out <- payload:
		return nil
	default:
		s.Close(websocket.StatusPolicyViolation, "send queue full")
		return ErrSendQueueFull
	}
}

// Alive reports whether the session is still open.
func (s *Session) Alive() bool {
	select {
	case <-s.closed:
		return false
	default:
		return true
	}
}

// Close marks the session closed and lets the writer close the connection.
// Only the first call's code and reason are used.
func (s *Session) Close(code websocket.StatusCode, reason string) {
	s.closeOnce.Do(func() {
		s.closeCode, s.closeReason = code, reason
		close(s.closed)
	})
}

// Done is closed once the underlying connection has been closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) writeLoop() {
	defer close(s.done)
	for {
		select {
		case <-s.closed:
			if err := s.conn.Close(s.closeCode, s.closeReason); err != nil {
				s.logger.Debug("Failed to close websocket", "error", err)
			}
			return
		case p := <-s.out:
			ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
			err := s.conn.Write(ctx, websocket.MessageText, p)
			cancel()
			if err != nil {
				s.logger.Debug("WebSocket write error", "error", err)
				s.Close(websocket.StatusGoingAway, "write failed")
			}
		}
	}
}
