package eventflit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// echoServer upgrades every request, echoes text frames, and hands the
// server side of each connection to conns.
func echoServer(t *testing.T, conns chan<- *websocket.Conn) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		if conns != nil {
			conns <- ws
			return
		}
		defer ws.Close()
		for {
			mt, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			if err := ws.WriteMessage(mt, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebsocketTransport_SendReceive(t *testing.T) {
	url := echoServer(t, nil)

	conn, err := newWebsocketTransport().Dial(context.Background(), url)
	require.NoError(t, err)
	defer conn.Close()

	msgs := make(chan string, 1)
	conn.Listen(TransportEvents{
		OnMessage: func(frame []byte) { msgs <- string(frame) },
		OnClose:   func(error) {},
	})

	require.NoError(t, conn.Send([]byte(`{"event":"x"}`)))
	select {
	case got := <-msgs:
		require.Equal(t, `{"event":"x"}`, got)
	case <-time.After(2 * time.Second):
		t.Fatal("no echo")
	}
}

func TestWebsocketTransport_RemoteClose(t *testing.T) {
	server := make(chan *websocket.Conn, 1)
	url := echoServer(t, server)

	conn, err := newWebsocketTransport().Dial(context.Background(), url)
	require.NoError(t, err)

	closed := make(chan error, 1)
	conn.Listen(TransportEvents{
		OnMessage: func([]byte) {},
		OnClose:   func(err error) { closed <- err },
	})

	ws := <-server
	require.NoError(t, ws.Close())

	select {
	case err := <-closed:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("OnClose not called")
	}
	require.ErrorIs(t, conn.Send([]byte("x")), ErrNotConnected)
}

func TestWebsocketTransport_LocalCloseIsSilent(t *testing.T) {
	server := make(chan *websocket.Conn, 1)
	url := echoServer(t, server)

	conn, err := newWebsocketTransport().Dial(context.Background(), url)
	require.NoError(t, err)

	closed := make(chan error, 1)
	conn.Listen(TransportEvents{
		OnMessage: func([]byte) {},
		OnClose:   func(err error) { closed <- err },
	})
	ws := <-server
	defer ws.Close()

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close(), "second close is a no-op")

	select {
	case err := <-closed:
		t.Fatalf("OnClose called after local close: %v", err)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWebsocketTransport_DialError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	_, err := newWebsocketTransport().Dial(context.Background(), url)
	var te *TransportError
	require.ErrorAs(t, err, &te)
	require.Equal(t, url, te.URL)
}
