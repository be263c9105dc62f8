package eventflit

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Transport opens socket connections to the service.
// The default implementation uses gorilla/websocket; tests and hosts with
// special networking needs can supply their own via WithTransport.
type Transport interface {
	// Dial opens a connection to url. Inbound frames are not delivered until
	// Listen is called on the returned Conn.
	Dial(ctx context.Context, url string) (Conn, error)
}

// Conn is one open socket connection.
type Conn interface {
	// Listen starts delivering inbound frames to events. It is called once.
	Listen(events TransportEvents)

	// Send writes one text frame.
	Send(frame []byte) error

	// Close shuts the connection down. OnClose is not called for a local close.
	Close() error
}

// TransportEvents are the callbacks a Conn reports to. OnClose is called at
// most once, when the connection drops for a reason other than Close.
type TransportEvents struct {
	OnMessage func(frame []byte)
	OnClose   func(err error)
}

const handshakeTimeout = 10 * time.Second

type websocketTransport struct {
	dialer websocket.Dialer
}

func newWebsocketTransport() *websocketTransport {
	return &websocketTransport{
		dialer: websocket.Dialer{
			HandshakeTimeout: handshakeTimeout,
		},
	}
}

func (t *websocketTransport) Dial(ctx context.Context, url string) (Conn, error) {
	conn, _, err := t.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, &TransportError{URL: url, Err: err}
	}
	return &websocketConn{
		conn: conn,
		done: make(chan struct{}),
	}, nil
}

type websocketConn struct {
	conn *websocket.Conn
	mu   sync.Mutex // serializes writes

	once sync.Once
	done chan struct{}
}

func (c *websocketConn) Listen(events TransportEvents) {
	go c.readLoop(events)
}

func (c *websocketConn) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.done:
		return ErrNotConnected
	default:
	}
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

func (c *websocketConn) Close() error {
	alreadyClosed := true
	c.once.Do(func() {
		alreadyClosed = false
		close(c.done)
	})
	if alreadyClosed {
		return nil
	}

	c.mu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	c.mu.Unlock()

	return c.conn.Close()
}

func (c *websocketConn) readLoop(events TransportEvents) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			c.once.Do(func() { close(c.done) })
			c.conn.Close()

			if events.OnClose != nil {
				events.OnClose(err)
			}
			return
		}

		if events.OnMessage != nil {
			events.OnMessage(data)
		}
	}
}
