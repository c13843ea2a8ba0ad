package tunnelclient

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jamesacklin/alex/internal/tunnelproto"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestForwardRequestSuccess(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/echo", r.URL.Path)
		require.Equal(t, "bar", r.Header.Get("x-foo"))
		w.Header().Set("content-type", "text/plain")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("created"))
	}))
	defer origin.Close()
	localAddr := strings.TrimPrefix(origin.URL, "http://")

	var frames []tunnelproto.Frame
	send := func(f tunnelproto.Frame) bool {
		frames = append(frames, f)
		return true
	}

	forwardRequest(http.DefaultClient, send, 7, "GET", "/echo",
		[]tunnelproto.Header{{Name: "x-foo", Value: "bar"}}, nil, localAddr, zerolog.Nop())

	require.Len(t, frames, 3)
	require.Equal(t, tunnelproto.TypeHTTPResponse, frames[0].Type)
	status, headers, err := frames[0].HTTPResponse()
	require.NoError(t, err)
	require.Equal(t, uint16(201), status)
	var contentType string
	for _, h := range headers {
		if strings.EqualFold(h.Name, "content-type") {
			contentType = h.Value
		}
	}
	require.Equal(t, "text/plain", contentType)

	require.Equal(t, tunnelproto.TypeResponseChunk, frames[1].Type)
	data, err := frames[1].ResponseChunk()
	require.NoError(t, err)
	require.Equal(t, "created", string(data))

	require.Equal(t, tunnelproto.TypeResponseEnd, frames[2].Type)
}

func TestForwardRequestOriginUnreachable(t *testing.T) {
	var frames []tunnelproto.Frame
	send := func(f tunnelproto.Frame) bool {
		frames = append(frames, f)
		return true
	}

	forwardRequest(http.DefaultClient, send, 1, "GET", "/", nil, nil, "127.0.0.1:1", zerolog.Nop())

	require.Len(t, frames, 3)
	status, _, err := frames[0].HTTPResponse()
	require.NoError(t, err)
	require.Equal(t, uint16(http.StatusBadGateway), status)

	chunk, err := frames[1].ResponseChunk()
	require.NoError(t, err)
	require.Contains(t, string(chunk), "local server error")
}

func TestStreamBodyCoalescesLargeResponses(t *testing.T) {
	total := bytes.Repeat([]byte{0x42}, 150*1024)

	var frames []tunnelproto.Frame
	send := func(f tunnelproto.Frame) bool {
		frames = append(frames, f)
		return true
	}

	streamBody(bytes.NewReader(total), 1, send, zerolog.Nop())

	require.GreaterOrEqual(t, len(frames), 2)
	var reassembled []byte
	for _, f := range frames {
		data, err := f.ResponseChunk()
		require.NoError(t, err)
		reassembled = append(reassembled, data...)
	}
	require.Equal(t, total, reassembled)
}
