package hub_test

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sfurman3/vectorchat/internal/message"
	"github.com/sfurman3/vectorchat/internal/transport"
)

// fakeConn is an in-memory transport.Conn standing in for a real websocket
// connection, so hub tests can drive the join/chat/disconnect lifecycle
// without a network.
type fakeConn struct {
	remote     string
	id         string
	toClient   chan []byte
	fromClient chan []byte
	closed     chan struct{}
	closeOnce  sync.Once
}

func newFakeConn(remote string) *fakeConn {
	return &fakeConn{
		remote:     remote,
		toClient:   make(chan []byte, 64),
		fromClient: make(chan []byte, 64),
		closed:     make(chan struct{}),
	}
}

var _ transport.Conn = (*fakeConn)(nil)

func (c *fakeConn) ReadFrame() ([]byte, error) {
	select {
	case data, ok := <-c.fromClient:
		if !ok {
			return nil, io.EOF
		}
		return data, nil
	case <-c.closed:
		return nil, io.EOF
	}
}

func (c *fakeConn) WriteFrame(data []byte) error {
	select {
	case c.toClient <- data:
		return nil
	case <-c.closed:
		return transport.ErrClosed
	}
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) RemoteAddr() string { return c.remote }

// send simulates the client transmitting f to the hub.
func (c *fakeConn) send(t *testing.T, f *message.Frame) {
	t.Helper()
	data, err := message.Encode(f)
	require.NoError(t, err)
	select {
	case c.fromClient <- data:
	case <-c.closed:
		t.Fatalf("send on closed fakeConn")
	}
}

// recv waits up to timeout for the next frame the hub wrote to this
// connection.
func (c *fakeConn) recv(t *testing.T, timeout time.Duration) *message.Frame {
	t.Helper()
	select {
	case data := <-c.toClient:
		f, err := message.Decode(data)
		require.NoError(t, err)
		return f
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for a frame on %s", c.remote)
		return nil
	}
}

// recvType waits for the next frame of the given type, skipping over any
// other frame kinds that arrive first.
func (c *fakeConn) recvType(t *testing.T, frameType string, timeout time.Duration) *message.Frame {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			t.Fatalf("timed out waiting for frame type %q on %s", frameType, c.remote)
		}
		f := c.recv(t, remaining)
		if f.Type == frameType {
			return f
		}
	}
}
