// Package tunnelproto defines the wire protocol shared by the relay and the
// tunnel client: a tagged frame envelope carrying one of a fixed set of
// variants over a length-framed binary transport (in practice, one
// gorilla/websocket BinaryMessage per frame).
package tunnelproto

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedFrame is returned by DecodeFrame when the input cannot be
// parsed as a Frame.
var ErrMalformedFrame = errors.New("tunnelproto: malformed frame")

// Type tags the variant carried by a Frame.
type Type uint8

const (
	TypeRegister Type = iota + 1
	TypeRegisterAck
	TypeHTTPRequest
	TypeHTTPResponse
	TypeResponseChunk
	TypeResponseEnd
	TypePing
	TypePong
)

func (t Type) String() string {
	switch t {
	case TypeRegister:
		return "Register"
	case TypeRegisterAck:
		return "RegisterAck"
	case TypeHTTPRequest:
		return "HttpRequest"
	case TypeHTTPResponse:
		return "HttpResponse"
	case TypeResponseChunk:
		return "ResponseChunk"
	case TypeResponseEnd:
		return "ResponseEnd"
	case TypePing:
		return "Ping"
	case TypePong:
		return "Pong"
	default:
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
}

const wireVersion = 1

// Frame is the envelope every transport message carries. RequestID is unset
// (zero) for variants that don't name one (Register, RegisterAck, Ping,
// Pong). Payload holds the JSON-encoded variant body; it is empty for Ping
// and Pong.
type Frame struct {
	Type      Type
	RequestID uint64
	Payload   []byte
}

// Header is a single (name, value) pair. Headers are carried as an ordered
// slice, not a map, so encode/decode preserves arrival order.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// HeadersOf converts an ordered slice of name/value pairs already paired up
// elsewhere in the codebase into Header values.
func HeadersOf(pairs [][2]string) []Header {
	out := make([]Header, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, Header{Name: p[0], Value: p[1]})
	}
	return out
}

type registerPayload struct {
	Subdomain string `json:"subdomain"`
}

type registerAckPayload struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type httpRequestPayload struct {
	Method  string   `json:"method"`
	URI     string   `json:"uri"`
	Headers []Header `json:"headers"`
	Body    []byte   `json:"body"`
}

type httpResponsePayload struct {
	Status  uint16   `json:"status"`
	Headers []Header `json:"headers"`
}

type responseChunkPayload struct {
	Data []byte `json:"data"`
}

// NewRegisterFrame builds a client->relay Register frame.
func NewRegisterFrame(subdomain string) (Frame, error) {
	return newFrame(TypeRegister, 0, registerPayload{Subdomain: subdomain})
}

// NewRegisterAckFrame builds a relay->client RegisterAck frame.
func NewRegisterAckFrame(success bool, message string) (Frame, error) {
	return newFrame(TypeRegisterAck, 0, registerAckPayload{Success: success, Message: message})
}

// NewHTTPRequestFrame builds a relay->client HttpRequest frame.
func NewHTTPRequestFrame(requestID uint64, method, uri string, headers []Header, body []byte) (Frame, error) {
	return newFrame(TypeHTTPRequest, requestID, httpRequestPayload{
		Method:  method,
		URI:     uri,
		Headers: headers,
		Body:    body,
	})
}

// NewHTTPResponseFrame builds a client->relay HttpResponse frame.
func NewHTTPResponseFrame(requestID uint64, status uint16, headers []Header) (Frame, error) {
	return newFrame(TypeHTTPResponse, requestID, httpResponsePayload{Status: status, Headers: headers})
}

// NewResponseChunkFrame builds a client->relay ResponseChunk frame.
func NewResponseChunkFrame(requestID uint64, data []byte) (Frame, error) {
	return newFrame(TypeResponseChunk, requestID, responseChunkPayload{Data: data})
}

// NewResponseEndFrame builds a client->relay ResponseEnd frame. It carries no
// payload beyond the request id.
func NewResponseEndFrame(requestID uint64) Frame {
	return Frame{Type: TypeResponseEnd, RequestID: requestID}
}

// NewPingFrame builds a liveness Ping frame. Either endpoint may send one.
func NewPingFrame() Frame { return Frame{Type: TypePing} }

// NewPongFrame builds the reply to a Ping.
func NewPongFrame() Frame { return Frame{Type: TypePong} }

func newFrame(t Type, requestID uint64, payload any) (Frame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("tunnelproto: encode %s payload: %w", t, err)
	}
	return Frame{Type: t, RequestID: requestID, Payload: data}, nil
}

// Register decodes the payload of a Register frame.
func (f Frame) Register() (subdomain string, err error) {
	var p registerPayload
	if err := f.unmarshal(TypeRegister, &p); err != nil {
		return "", err
	}
	return p.Subdomain, nil
}

// RegisterAck decodes the payload of a RegisterAck frame.
func (f Frame) RegisterAck() (success bool, message string, err error) {
	var p registerAckPayload
	if err := f.unmarshal(TypeRegisterAck, &p); err != nil {
		return false, "", err
	}
	return p.Success, p.Message, nil
}

// HTTPRequest decodes the payload of an HttpRequest frame.
func (f Frame) HTTPRequest() (method, uri string, headers []Header, body []byte, err error) {
	var p httpRequestPayload
	if err := f.unmarshal(TypeHTTPRequest, &p); err != nil {
		return "", "", nil, nil, err
	}
	return p.Method, p.URI, p.Headers, p.Body, nil
}

// HTTPResponse decodes the payload of an HttpResponse frame.
func (f Frame) HTTPResponse() (status uint16, headers []Header, err error) {
	var p httpResponsePayload
	if err := f.unmarshal(TypeHTTPResponse, &p); err != nil {
		return 0, nil, err
	}
	return p.Status, p.Headers, nil
}

// ResponseChunk decodes the payload of a ResponseChunk frame.
func (f Frame) ResponseChunk() (data []byte, err error) {
	var p responseChunkPayload
	if err := f.unmarshal(TypeResponseChunk, &p); err != nil {
		return nil, err
	}
	return p.Data, nil
}

func (f Frame) unmarshal(want Type, v any) error {
	if f.Type != want {
		return fmt.Errorf("tunnelproto: expected %s frame, got %s", want, f.Type)
	}
	if len(f.Payload) == 0 {
		return fmt.Errorf("%w: empty payload for %s", ErrMalformedFrame, want)
	}
	if err := json.Unmarshal(f.Payload, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return nil
}

// EncodeFrame is total: it never fails for a Frame built through the
// constructors above. Wire layout: version(1) | type(1) | requestID(8) |
// payloadLen(4) | payload.
func EncodeFrame(f Frame) ([]byte, error) {
	buf := make([]byte, 0, 14+len(f.Payload))
	buf = append(buf, wireVersion, byte(f.Type))
	var idBuf [8]byte
	binary.BigEndian.PutUint64(idBuf[:], f.RequestID)
	buf = append(buf, idBuf[:]...)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(f.Payload)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, f.Payload...)
	return buf, nil
}

// DecodeFrame parses a single wire message back into a Frame. It fails with
// ErrMalformedFrame on any corrupt or truncated input; a decode failure must
// never be fatal to the caller's read loop (§4.2/§4.4).
func DecodeFrame(data []byte) (Frame, error) {
	const headerLen = 1 + 1 + 8 + 4
	if len(data) < headerLen {
		return Frame{}, fmt.Errorf("%w: short header (%d bytes)", ErrMalformedFrame, len(data))
	}
	r := bytes.NewReader(data)

	var version, typ byte
	if err := binary.Read(r, binary.BigEndian, &version); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if version != wireVersion {
		return Frame{}, fmt.Errorf("%w: unsupported version %d", ErrMalformedFrame, version)
	}
	if err := binary.Read(r, binary.BigEndian, &typ); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	var requestID uint64
	if err := binary.Read(r, binary.BigEndian, &requestID); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	var payloadLen uint32
	if err := binary.Read(r, binary.BigEndian, &payloadLen); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if uint64(payloadLen) != uint64(r.Len()) {
		return Frame{}, fmt.Errorf("%w: payload length %d does not match remaining %d bytes", ErrMalformedFrame, payloadLen, r.Len())
	}

	payload := make([]byte, payloadLen)
	if payloadLen > 0 {
		if _, err := r.Read(payload); err != nil {
			return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
	}

	t := Type(typ)
	switch t {
	case TypeRegister, TypeRegisterAck, TypeHTTPRequest, TypeHTTPResponse,
		TypeResponseChunk, TypeResponseEnd, TypePing, TypePong:
	default:
		return Frame{}, fmt.Errorf("%w: unknown type tag %d", ErrMalformedFrame, typ)
	}

	return Frame{Type: t, RequestID: requestID, Payload: payload}, nil
}
