package eventflit

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// discardErrors is a no-op ErrorHandler used in tests that don't assert error handler behavior.
var discardErrors = func(SDKError) {}

// fakeTransport hands out in-memory connections and records every dial.
type fakeTransport struct {
	mu      sync.Mutex
	dialErr error
	urls    []string
	dialed  chan *fakeConn
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{dialed: make(chan *fakeConn, 32)}
}

func (t *fakeTransport) Dial(_ context.Context, url string) (Conn, error) {
	t.mu.Lock()
	t.urls = append(t.urls, url)
	err := t.dialErr
	t.mu.Unlock()
	if err != nil {
		return nil, err
	}
	c := &fakeConn{listening: make(chan struct{})}
	t.dialed <- c
	return c, nil
}

func (t *fakeTransport) setDialErr(err error) {
	t.mu.Lock()
	t.dialErr = err
	t.mu.Unlock()
}

func (t *fakeTransport) dialCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.urls)
}

func (t *fakeTransport) next(tb testing.TB) *fakeConn {
	tb.Helper()
	select {
	case c := <-t.dialed:
		return c
	case <-time.After(2 * time.Second):
		tb.Fatal("timed out waiting for dial")
		return nil
	}
}

type fakeConn struct {
	mu        sync.Mutex
	events    TransportEvents
	sent      [][]byte
	closed    bool
	listening chan struct{}
}

func (c *fakeConn) Listen(events TransportEvents) {
	c.mu.Lock()
	c.events = events
	c.mu.Unlock()
	close(c.listening)
}

func (c *fakeConn) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("connection closed")
	}
	c.sent = append(c.sent, append([]byte(nil), frame...))
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// deliver feeds an inbound frame once the client listens.
func (c *fakeConn) deliver(frame string) {
	<-c.listening
	c.mu.Lock()
	fn := c.events.OnMessage
	c.mu.Unlock()
	fn([]byte(frame))
}

// drop simulates the peer closing the connection.
func (c *fakeConn) drop(err error) {
	<-c.listening
	c.mu.Lock()
	c.closed = true
	fn := c.events.OnClose
	c.mu.Unlock()
	fn(err)
}

type sentFrame struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

func (c *fakeConn) frames() []sentFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]sentFrame, 0, len(c.sent))
	for _, raw := range c.sent {
		var f sentFrame
		_ = json.Unmarshal(raw, &f)
		out = append(out, f)
	}
	return out
}

func (c *fakeConn) framesNamed(event string) []sentFrame {
	var out []sentFrame
	for _, f := range c.frames() {
		if f.Event == event {
			out = append(out, f)
		}
	}
	return out
}

// subscribedChannels returns the channel of every subscribe frame, in order.
func (c *fakeConn) subscribedChannels() []string {
	var out []string
	for _, f := range c.framesNamed(eventSubscribe) {
		var d subscribeData
		_ = json.Unmarshal(f.Data, &d)
		out = append(out, d.Channel)
	}
	return out
}

func (c *fakeConn) waitFrame(tb testing.TB, event string) sentFrame {
	tb.Helper()
	var found sentFrame
	require.Eventually(tb, func() bool {
		fs := c.framesNamed(event)
		if len(fs) == 0 {
			return false
		}
		found = fs[len(fs)-1]
		return true
	}, 2*time.Second, 5*time.Millisecond, "no %s frame sent", event)
	return found
}

// frame builds an inbound envelope whose data is a JSON-encoded string.
func frame(event, channel, data string) string {
	m := map[string]any{"event": event, "data": data}
	if channel != "" {
		m["channel"] = channel
	}
	b, _ := json.Marshal(m)
	return string(b)
}

func establishedFrame(socketID string) string {
	return frame(eventConnectionEstablished, "", `{"socket_id":"`+socketID+`","activity_timeout":120}`)
}

// errorRecorder collects SDK errors.
type errorRecorder struct {
	mu   sync.Mutex
	errs []SDKError
}

func (r *errorRecorder) handle(e SDKError) {
	r.mu.Lock()
	r.errs = append(r.errs, e)
	r.mu.Unlock()
}

func (r *errorRecorder) kinds() []ErrorKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ErrorKind, 0, len(r.errs))
	for _, e := range r.errs {
		out = append(out, e.Kind)
	}
	return out
}

func (r *errorRecorder) find(kind ErrorKind) (SDKError, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.errs {
		if e.Kind == kind {
			return e, true
		}
	}
	return SDKError{}, false
}

func newTestClient(t *testing.T, cfg Config, opts ...ClientOption) (*Client, *fakeTransport, *errorRecorder) {
	t.Helper()
	if cfg.Key == "" {
		cfg.Key = "app-key"
	}
	if cfg.Host == "" {
		cfg.Host = "ws.test"
	}
	ft := newFakeTransport()
	rec := &errorRecorder{}
	c, err := NewClient(cfg, rec.handle, append([]ClientOption{WithTransport(ft)}, opts...)...)
	require.NoError(t, err)
	c.backoff = newBackoff(10*time.Millisecond, 50*time.Millisecond)
	t.Cleanup(func() { _ = c.Close() })
	return c, ft, rec
}

// connect drives c to connected on a fresh fake connection.
func connect(t *testing.T, c *Client, ft *fakeTransport, socketID string) *fakeConn {
	t.Helper()
	require.NoError(t, c.Connect(context.Background()))
	conn := ft.next(t)
	conn.deliver(establishedFrame(socketID))
	require.Equal(t, StateConnected, c.State())
	return conn
}

// waitIdle blocks until every queued callback has run.
func waitIdle(tb testing.TB, d *dispatcher) {
	tb.Helper()
	require.Eventually(tb, func() bool {
		d.mu.Lock()
		defer d.mu.Unlock()
		return !d.running && len(d.queue) == 0
	}, 2*time.Second, time.Millisecond)
}
