package tunnelclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jamesacklin/alex/internal/tunnelproto"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// fakeRelay plays the relay side of §4.2 by hand so the client session can
// be exercised without a real relay.Relay.
func fakeRelay(t *testing.T, upgrader websocket.Upgrader, handle func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		handle(conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURLOf(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestConnectSuccess(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := fakeRelay(t, upgrader, func(conn *websocket.Conn) {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		frame, err := tunnelproto.DecodeFrame(data)
		require.NoError(t, err)
		require.Equal(t, tunnelproto.TypeRegister, frame.Type)
		subdomain, err := frame.Register()
		require.NoError(t, err)
		require.Equal(t, "my-tunnel", subdomain)

		ack, err := tunnelproto.NewRegisterAckFrame(true, "registered")
		require.NoError(t, err)
		data, err = tunnelproto.EncodeFrame(ack)
		require.NoError(t, err)
		require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, data))

		// Keep the conn open briefly so Connect reads the RegisterAck before
		// the handler returns and closes it.
		time.Sleep(50 * time.Millisecond)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	session, err := Connect(ctx, wsURLOf(srv), Config{Subdomain: "my-tunnel", LocalAddr: "127.0.0.1:1"}, zerolog.Nop())
	require.NoError(t, err)
	require.NotNil(t, session)
	session.conn.Close()
}

func TestConnectRejected(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := fakeRelay(t, upgrader, func(conn *websocket.Conn) {
		_, _, err := conn.ReadMessage()
		require.NoError(t, err)
		ack, _ := tunnelproto.NewRegisterAckFrame(false, "subdomain already in use")
		data, _ := tunnelproto.EncodeFrame(ack)
		_ = conn.WriteMessage(websocket.BinaryMessage, data)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := Connect(ctx, wsURLOf(srv), Config{Subdomain: "taken"}, zerolog.Nop())
	require.Error(t, err)
	require.Contains(t, err.Error(), "subdomain already in use")
}

func TestSessionForwardsRequestToLocalOrigin(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/hello", r.URL.Path)
		w.Header().Set("content-type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("world"))
	}))
	defer origin.Close()
	localAddr := strings.TrimPrefix(origin.URL, "http://")

	upgrader := websocket.Upgrader{}
	received := make(chan tunnelproto.Frame, 8)

	srv := fakeRelay(t, upgrader, func(conn *websocket.Conn) {
		_, _, err := conn.ReadMessage()
		require.NoError(t, err)
		ack, _ := tunnelproto.NewRegisterAckFrame(true, "registered")
		data, _ := tunnelproto.EncodeFrame(ack)
		require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, data))

		req, _ := tunnelproto.NewHTTPRequestFrame(1, "GET", "/hello", nil, nil)
		reqData, _ := tunnelproto.EncodeFrame(req)
		require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, reqData))

		for i := 0; i < 2; i++ {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			frame, err := tunnelproto.DecodeFrame(data)
			if err != nil {
				continue
			}
			received <- frame
			if frame.Type == tunnelproto.TypeResponseEnd {
				return
			}
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	session, err := Connect(ctx, wsURLOf(srv), Config{Subdomain: "x", LocalAddr: localAddr}, zerolog.Nop())
	require.NoError(t, err)

	go session.Run(ctx)

	head := <-received
	require.Equal(t, tunnelproto.TypeHTTPResponse, head.Type)
	status, headers, err := head.HTTPResponse()
	require.NoError(t, err)
	require.Equal(t, uint16(200), status)
	found := false
	for _, h := range headers {
		if strings.EqualFold(h.Name, "content-type") && h.Value == "text/plain" {
			found = true
		}
	}
	require.True(t, found)
}
