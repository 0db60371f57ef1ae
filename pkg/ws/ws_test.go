package ws_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/paratune/paratune/pkg/ws"
)

// echoServer reverses every frame it receives and sends it back.
func echoServer(t *testing.T) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Log(err)
			return
		}

		s := ws.Wrap(nil, "reverser", c)
		defer func() { _ = s.Close() }()
		for frame := range s.Inbox {
			out := bytes.Clone(frame)
			for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
				out[i], out[j] = out[j], out[i]
			}
			if err := s.Send(context.Background(), out); err != nil {
				return
			}
		}
	}))
}

func dial(t *testing.T, ts *httptest.Server) *ws.Socket {
	c, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	return ws.Wrap(nil, "client", c)
}

func TestSocketRoundTrip(t *testing.T) {
	ts := echoServer(t)
	defer ts.Close()

	s := dial(t, ts)
	ctx := context.Background()
	for _, frame := range [][]byte{{1, 2, 3}, {}, []byte("paratune")} {
		require.NoError(t, s.Send(ctx, frame))
	}

	want := [][]byte{{3, 2, 1}, {}, []byte("enutarap")}
	for _, w := range want {
		select {
		case got, ok := <-s.Inbox:
			require.True(t, ok, s.Error())
			require.Equal(t, w, got)
		case <-time.After(5 * time.Second):
			require.FailNow(t, "timed out waiting for frame")
		}
	}

	require.NoError(t, s.Close())
	_, ok := <-s.Inbox
	require.False(t, ok)
	// Closing twice reports the same result.
	require.NoError(t, s.Close())
}

func TestSocketSendOversized(t *testing.T) {
	ts := echoServer(t)
	defer ts.Close()

	s := dial(t, ts)
	defer func() { require.NoError(t, s.Close()) }()
	require.Error(t, s.Send(context.Background(), make([]byte, ws.MaxFrameSize+1)))
}

// holdServer upgrades every request and hands the server side of the connection to the test.
func holdServer(t *testing.T) (*httptest.Server, <-chan *websocket.Conn) {
	conns := make(chan *websocket.Conn, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Log(err)
			return
		}
		conns <- c
	}))
	return ts, conns
}

func TestSocketPeerClose(t *testing.T) {
	ts, conns := holdServer(t)
	defer ts.Close()

	s := dial(t, ts)
	peer := <-conns
	// Dropping the server side without a handshake terminates the client's read loop.
	require.NoError(t, peer.Close())
	select {
	case <-s.Done:
	case <-time.After(5 * time.Second):
		require.FailNow(t, "socket should have finished after the peer went away")
	}
	require.Error(t, s.Error())
	_, ok := <-s.Inbox
	require.False(t, ok)
	_ = s.Close()
}

func TestSocketCloseWhileReading(t *testing.T) {
	ts, conns := holdServer(t)
	defer ts.Close()

	s := dial(t, ts)
	peer := ws.Wrap(nil, "peer", <-conns)
	defer func() { _ = peer.Close() }()

	// Keep frames flowing so the read loop is busy while the handshake starts.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		for ctx.Err() == nil {
			if err := peer.Send(ctx, []byte("frame")); err != nil {
				return
			}
		}
	}()
	select {
	case <-s.Inbox:
	case <-time.After(5 * time.Second):
		require.FailNow(t, "timed out waiting for frame")
	}

	require.NoError(t, s.Close())
	select {
	case <-s.Done:
	default:
		require.FailNow(t, "close returned before the socket finished")
	}
}
