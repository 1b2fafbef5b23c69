package ws

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu      sync.Mutex
	writes  [][]byte
	block   chan struct{}
	failErr error
	closed  chan websocket.StatusCode
}

func newFakeConn() *fakeConn {
	return &fakeConn{closed: make(chan websocket.StatusCode, 1)}
}

func (c *fakeConn) Write(ctx context.Context, _ websocket.MessageType, p []byte) error {
	if c.block != nil {
		select {
		case <-c.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failErr != nil {
		return c.failErr
	}
	c.writes = append(c.writes, p)
	return nil
}

func (c *fakeConn) Close(code websocket.StatusCode, _ string) error {
	c.closed <- code
	return nil
}

func (c *fakeConn) written() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.writes))
	for i, w := range c.writes {
		out[i] = string(w)
	}
	return out
}

func TestSession_DeliversInOrder(t *testing.T) {
	c := newFakeConn()
	s := newSession(c, 8, time.Second, slog.Default())
	defer s.Close(websocket.StatusNormalClosure, "")

	for _, p := range []string{"a", "b", "c"} {
		require.NoError(t, s.Send([]byte(p)))
	}

	require.Eventually(t, func() bool { return len(c.written()) == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"a", "b", "c"}, c.written())
	assert.NotEmpty(t, s.ID())
	assert.True(t, s.Alive())
}

func TestSession_FullQueueClosesSession(t *testing.T) {
	c := newFakeConn()
	c.block = make(chan struct{})
	s := newSession(c, 1, time.Hour, slog.Default())

	require.NoError(t, s.Send([]byte("picked up by writer")))
	require.Eventually(t, func() bool { return len(s.out) == 0 }, time.Second, time.Millisecond)
	require.NoError(t, s.Send([]byte("queued")))

	err := s.Send([]byte("overflow"))
	assert.ErrorIs(t, err, ErrSendQueueFull)
	assert.False(t, s.Alive())
	assert.ErrorIs(t, s.Send([]byte("late")), ErrSessionClosed)

	close(c.block)
	select {
	case code := <-c.closed:
		assert.Equal(t, websocket.StatusPolicyViolation, code)
	case <-time.After(time.Second):
		t.Fatal("connection was not closed")
	}
	<-s.Done()
}

func TestSession_WriteFailureCloses(t *testing.T) {
	c := newFakeConn()
	c.failErr = errors.New("broken pipe")
	s := newSession(c, 4, time.Second, slog.Default())

	require.NoError(t, s.Send([]byte("x")))

	require.Eventually(t, func() bool { return !s.Alive() }, time.Second, 5*time.Millisecond)
	assert.Equal(t, websocket.StatusGoingAway, <-c.closed)
}

func TestSession_WriteTimeoutCloses(t *testing.T) {
	c := newFakeConn()
	c.block = make(chan struct{})
	s := newSession(c, 4, 10*time.Millisecond, slog.Default())

	require.NoError(t, s.Send([]byte("stuck")))

	require.Eventually(t, func() bool { return !s.Alive() }, time.Second, 5*time.Millisecond)
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	c := newFakeConn()
	s := newSession(c, 1, time.Second, slog.Default())

	s.Close(websocket.StatusNormalClosure, "bye")
	s.Close(websocket.StatusInternalError, "again")

	<-s.Done()
	assert.Equal(t, websocket.StatusNormalClosure, <-c.closed)
}
