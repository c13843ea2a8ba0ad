package tunnelclient

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/jamesacklin/alex/internal/tunnelproto"
	"github.com/rs/zerolog"
)

// responseChunkSize is the coalescing size for streamed response bodies
// (§4.5, §5 bounds): buffer until >= 64 KiB, then emit one chunk.
const responseChunkSize = 64 * 1024

// forwardRequest implements §4.5: translate one HttpRequest frame into a
// local HTTP exchange against localAddr and stream the response back as
// frames over send. It never returns an error that the caller must act on —
// all failure modes are reported as frames, matching the forwarder's
// per-request isolation (a forwarder never takes down the session).
func forwardRequest(client *http.Client, send func(tunnelproto.Frame) bool, requestID uint64, method, uri string, headers []tunnelproto.Header, body []byte, localAddr string, logger zerolog.Logger) {
	url := fmt.Sprintf("http://%s%s", localAddr, uri)

	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		sendSynthetic502(send, requestID, fmt.Sprintf("failed to build request: %v", err))
		return
	}
	for _, h := range headers {
		if strings.EqualFold(h.Name, "host") {
			continue // the public Host is discarded; we rewrite it below (§4.5 step 1)
		}
		req.Header.Add(h.Name, h.Value)
	}
	req.Host = localAddr

	resp, err := client.Do(req)
	if err != nil {
		logger.Warn().Uint64("request_id", requestID).Err(err).Msg("local origin unreachable")
		sendSynthetic502(send, requestID, fmt.Sprintf("local server error: %v", err))
		return
	}
	defer resp.Body.Close()

	respHeaders := make([]tunnelproto.Header, 0, len(resp.Header))
	for name, values := range resp.Header {
		for _, v := range values {
			respHeaders = append(respHeaders, tunnelproto.Header{Name: name, Value: v})
		}
	}

	headFrame, err := tunnelproto.NewHTTPResponseFrame(requestID, uint16(resp.StatusCode), respHeaders)
	if err != nil {
		logger.Error().Uint64("request_id", requestID).Err(err).Msg("failed to encode response head")
		return
	}
	send(headFrame)

	streamBody(resp.Body, requestID, send, logger)
	send(tunnelproto.NewResponseEndFrame(requestID))
}

func streamBody(body io.Reader, requestID uint64, send func(tunnelproto.Frame) bool, logger zerolog.Logger) {
	buf := make([]byte, 0, responseChunkSize)
	readBuf := make([]byte, 32*1024)

	flush := func() {
		if len(buf) == 0 {
			return
		}
		chunk, err := tunnelproto.NewResponseChunkFrame(requestID, buf)
		if err != nil {
			logger.Error().Uint64("request_id", requestID).Err(err).Msg("failed to encode response chunk")
			return
		}
		send(chunk)
		buf = make([]byte, 0, responseChunkSize)
	}

	for {
		n, err := body.Read(readBuf)
		if n > 0 {
			buf = append(buf, readBuf[:n]...)
			for len(buf) >= responseChunkSize {
				chunk, encErr := tunnelproto.NewResponseChunkFrame(requestID, buf[:responseChunkSize])
				if encErr != nil {
					logger.Error().Uint64("request_id", requestID).Err(encErr).Msg("failed to encode response chunk")
					return
				}
				send(chunk)
				buf = append([]byte(nil), buf[responseChunkSize:]...)
			}
		}
		if err != nil {
			if err != io.EOF {
				logger.Warn().Uint64("request_id", requestID).Err(err).Msg("error reading response body")
			}
			break
		}
	}
	flush()
}

func sendSynthetic502(send func(tunnelproto.Frame) bool, requestID uint64, message string) {
	head, err := tunnelproto.NewHTTPResponseFrame(requestID, http.StatusBadGateway,
		[]tunnelproto.Header{{Name: "content-type", Value: "text/plain"}})
	if err != nil {
		return
	}
	send(head)
	chunk, err := tunnelproto.NewResponseChunkFrame(requestID, []byte(message))
	if err == nil {
		send(chunk)
	}
	send(tunnelproto.NewResponseEndFrame(requestID))
}
