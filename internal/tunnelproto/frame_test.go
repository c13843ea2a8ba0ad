package tunnelproto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	hdrs := []Header{{Name: "content-type", Value: "text/plain"}}

	tests := []struct {
		name  string
		build func(t *testing.T) Frame
	}{
		{"register", func(t *testing.T) Frame {
			f, err := NewRegisterFrame("gentle-morning-tide")
			require.NoError(t, err)
			return f
		}},
		{"register ack success", func(t *testing.T) Frame {
			f, err := NewRegisterAckFrame(true, "registered")
			require.NoError(t, err)
			return f
		}},
		{"register ack failure", func(t *testing.T) Frame {
			f, err := NewRegisterAckFrame(false, "subdomain already in use")
			require.NoError(t, err)
			return f
		}},
		{"http request", func(t *testing.T) Frame {
			f, err := NewHTTPRequestFrame(42, "GET", "/books", hdrs, []byte{1, 2, 3})
			require.NoError(t, err)
			return f
		}},
		{"http request empty body", func(t *testing.T) Frame {
			f, err := NewHTTPRequestFrame(1, "GET", "/", nil, nil)
			require.NoError(t, err)
			return f
		}},
		{"http request 1MiB body", func(t *testing.T) Frame {
			f, err := NewHTTPRequestFrame(2, "POST", "/upload", hdrs, bytes.Repeat([]byte{0xAB}, 1<<20))
			require.NoError(t, err)
			return f
		}},
		{"http response", func(t *testing.T) Frame {
			f, err := NewHTTPResponseFrame(99, 200, hdrs)
			require.NoError(t, err)
			return f
		}},
		{"response chunk 1 byte", func(t *testing.T) Frame {
			f, err := NewResponseChunkFrame(7, []byte{0x42})
			require.NoError(t, err)
			return f
		}},
		{"response chunk 64KiB", func(t *testing.T) Frame {
			f, err := NewResponseChunkFrame(7, bytes.Repeat([]byte{0x01}, 64*1024))
			require.NoError(t, err)
			return f
		}},
		{"response chunk empty", func(t *testing.T) Frame {
			f, err := NewResponseChunkFrame(7, []byte{})
			require.NoError(t, err)
			return f
		}},
		{"response end", func(t *testing.T) Frame {
			return NewResponseEndFrame(7)
		}},
		{"ping", func(t *testing.T) Frame {
			return NewPingFrame()
		}},
		{"pong", func(t *testing.T) Frame {
			return NewPongFrame()
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := tt.build(t)

			encoded, err := EncodeFrame(frame)
			require.NoError(t, err)

			decoded, err := DecodeFrame(encoded)
			require.NoError(t, err)

			require.Equal(t, frame.Type, decoded.Type)
			require.Equal(t, frame.RequestID, decoded.RequestID)
			require.True(t, bytes.Equal(frame.Payload, decoded.Payload) ||
				(len(frame.Payload) == 0 && len(decoded.Payload) == 0))
		})
	}
}

func TestRegisterRoundTripValue(t *testing.T) {
	frame, err := NewRegisterFrame("gentle-morning-tide")
	require.NoError(t, err)

	encoded, err := EncodeFrame(frame)
	require.NoError(t, err)

	decoded, err := DecodeFrame(encoded)
	require.NoError(t, err)

	subdomain, err := decoded.Register()
	require.NoError(t, err)
	require.Equal(t, "gentle-morning-tide", subdomain)
}

func TestHTTPRequestRoundTripValue(t *testing.T) {
	hdrs := []Header{{Name: "host", Value: "example.com"}}
	frame, err := NewHTTPRequestFrame(42, "GET", "/books", hdrs, []byte{1, 2, 3})
	require.NoError(t, err)

	encoded, err := EncodeFrame(frame)
	require.NoError(t, err)
	decoded, err := DecodeFrame(encoded)
	require.NoError(t, err)

	method, uri, headers, body, err := decoded.HTTPRequest()
	require.NoError(t, err)
	require.Equal(t, "GET", method)
	require.Equal(t, "/books", uri)
	require.Len(t, headers, 1)
	require.Equal(t, []byte{1, 2, 3}, body)
}

func TestDecodeMalformedFrame(t *testing.T) {
	cases := map[string][]byte{
		"empty":                  {},
		"short header":           {1, 2, 3},
		"bad version":            append([]byte{9, byte(TypePing)}, make([]byte, 12)...),
		"unknown type":           append([]byte{wireVersion, 0xFF}, make([]byte, 12)...),
		"truncated payload":      append([]byte{wireVersion, byte(TypePing), 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 5}, []byte("ab")...),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeFrame(data)
			require.ErrorIs(t, err, ErrMalformedFrame)
		})
	}
}

func TestUnmarshalWrongVariantErrors(t *testing.T) {
	frame := NewPingFrame()
	_, err := frame.Register()
	require.Error(t, err)
}
