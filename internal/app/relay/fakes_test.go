package relay

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dkeye/voicebridge/internal/core"
)

const waitFor = 2 * time.Second

type readItem struct {
	data []byte
	err  error
}

// fakeConn is an in-memory socket. Tests push inbound messages with
// send, end the peer side with hangup or fail, and observe text writes.
type fakeConn struct {
	in     chan readItem
	writes chan []byte
	closed chan struct{}

	closeOnce sync.Once
	mu        sync.Mutex
	closeMsgs int
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan readItem, 64),
		writes: make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case item := <-c.in:
		if item.err != nil {
			return 0, nil, item.err
		}
		return websocket.TextMessage, item.data, nil
	case <-c.closed:
		return 0, nil, net.ErrClosed
	}
}

func (c *fakeConn) WriteMessage(mt int, data []byte) error {
	select {
	case <-c.closed:
		return net.ErrClosed
	default:
	}
	if mt == websocket.CloseMessage {
		c.mu.Lock()
		c.closeMsgs++
		c.mu.Unlock()
		return nil
	}
	c.writes <- append([]byte(nil), data...)
	return nil
}

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) send(msg string) { c.in <- readItem{data: []byte(msg)} }

// hangup simulates the peer closing normally.
func (c *fakeConn) hangup() {
	c.in <- readItem{err: &websocket.CloseError{Code: websocket.CloseNormalClosure}}
}

func (c *fakeConn) fail(err error) { c.in <- readItem{err: err} }

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) closeFrames() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeMsgs
}

func (c *fakeConn) nextWrite(t *testing.T) string {
	t.Helper()
	select {
	case w := <-c.writes:
		return string(w)
	case <-time.After(waitFor):
		t.Fatalf("timed out waiting for write")
		return ""
	}
}

func (c *fakeConn) noWrite(t *testing.T) {
	t.Helper()
	select {
	case w := <-c.writes:
		t.Fatalf("unexpected write: %s", w)
	default:
	}
}

type fakeDialer struct {
	mu    sync.Mutex
	calls int
	conn  *fakeConn
	err   error
	gate  chan struct{}
}

func (d *fakeDialer) Dial(ctx context.Context) (core.MessageConn, error) {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()
	if d.gate != nil {
		select {
		case <-d.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if d.err != nil {
		return nil, d.err
	}
	return d.conn, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type notification struct {
	url string
	ev  core.WebhookEvent
}

type fakeNotifier struct {
	ch chan notification
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{ch: make(chan notification, 16)}
}

func (n *fakeNotifier) Notify(url string, ev core.WebhookEvent) {
	n.ch <- notification{url: url, ev: ev}
}

func (n *fakeNotifier) next(t *testing.T) notification {
	t.Helper()
	select {
	case got := <-n.ch:
		return got
	case <-time.After(waitFor):
		t.Fatalf("timed out waiting for webhook")
		return notification{}
	}
}

func (n *fakeNotifier) none(t *testing.T) {
	t.Helper()
	select {
	case got := <-n.ch:
		t.Fatalf("unexpected webhook: %+v", got)
	default:
	}
}

var errBroken = errors.New("connection reset by peer")

// runSession starts a session and returns a channel closed when Run
// returns.
func runSession(t *testing.T, ctx context.Context, s *Session) <-chan struct{} {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()
	return done
}

func waitClosed(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatalf("session did not finish")
	}
}
