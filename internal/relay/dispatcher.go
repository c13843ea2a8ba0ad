package relay

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/jamesacklin/alex/internal/tunnelproto"
	"github.com/rs/zerolog"
)

const maxRequestBodyBytes = 10 * 1024 * 1024 // 10 MiB (§4.3 step 3)

// responseHeadTimeout is a var, not a const, so tests can shrink it instead
// of waiting out the real 120s (§4.3 step 5).
var responseHeadTimeout = 120 * time.Second

// Dispatcher is the relay's public HTTP surface (§4.3, §6.2): it resolves a
// tenant by Host, hands the request to that tenant's ClientHandle, and
// streams the response back.
type Dispatcher struct {
	registry   *TenantRegistry
	baseDomain string
	metrics    *Metrics
	logger     zerolog.Logger
}

// NewDispatcher builds a Dispatcher bound to registry and baseDomain.
func NewDispatcher(registry *TenantRegistry, baseDomain string, metrics *Metrics, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{registry: registry, baseDomain: baseDomain, metrics: metrics, logger: logger}
}

func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	subdomain, ok := ExtractSubdomain(r.Host, d.baseDomain)
	if !ok {
		d.respondStatus(w, http.StatusNotFound, "no tunnel found")
		return
	}

	handle, ok := d.registry.Lookup(subdomain)
	if !ok {
		d.respondStatus(w, http.StatusBadGateway, "tunnel not connected")
		return
	}

	body, err := readLimitedBody(r.Body, maxRequestBodyBytes)
	if err != nil {
		d.respondStatus(w, http.StatusBadRequest, "request body too large")
		return
	}

	headers := make([]tunnelproto.Header, 0, len(r.Header))
	for name, values := range r.Header {
		for _, v := range values {
			headers = append(headers, tunnelproto.Header{Name: name, Value: v})
		}
	}

	requestID := handle.NextRequestID()
	pendingCh := handle.pending.insert(requestID)

	frame, err := tunnelproto.NewHTTPRequestFrame(requestID, r.Method, r.URL.RequestURI(), headers, body)
	if err != nil {
		handle.pending.remove(requestID)
		d.respondStatus(w, http.StatusInternalServerError, "failed to build request frame")
		return
	}

	if !handle.Send(frame) {
		handle.pending.remove(requestID)
		d.respondStatus(w, http.StatusBadGateway, "tunnel client disconnected")
		return
	}

	d.metrics.RequestsInFlight.Inc()
	defer d.metrics.RequestsInFlight.Dec()

	head, err := awaitResponseHead(r.Context(), pendingCh, responseHeadTimeout)
	if err != nil {
		// Abandon the pending entry so a late HttpResponse is dropped; if the
		// reader already took it, drain that body so the reader never blocks.
		if _, ok := handle.pending.remove(requestID); !ok {
			if late, ok := <-pendingCh; ok {
				go func() {
					for event := range late.Body {
						if event.End {
							return
						}
					}
				}()
			}
		}
	}
	switch err {
	case nil:
		d.writeResponse(w, head)
	case errResponseCancelled:
		d.respondStatus(w, http.StatusBadGateway, "tunnel client dropped request")
	case errResponseTimeout:
		d.logger.Warn().Uint64("request_id", requestID).Msg("request timed out awaiting response head")
		d.respondStatus(w, http.StatusGatewayTimeout, "tunnel request timed out")
	}
}

var (
	errResponseCancelled = errHeadCancelled{}
	errResponseTimeout   = errHeadTimeout{}
)

type errHeadCancelled struct{}

func (errHeadCancelled) Error() string { return "tunnel client dropped request" }

type errHeadTimeout struct{}

func (errHeadTimeout) Error() string { return "tunnel request timed out" }

// awaitResponseHead waits on pendingCh per §4.3 step 5: a value means the
// head arrived, a closed channel means the session tore down mid-request,
// and the timeout fires after responseHeadTimeout.
func awaitResponseHead(ctx context.Context, pendingCh <-chan ResponseHead, timeout time.Duration) (ResponseHead, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case head, ok := <-pendingCh:
		if !ok {
			return ResponseHead{}, errResponseCancelled
		}
		return head, nil
	case <-timer.C:
		return ResponseHead{}, errResponseTimeout
	case <-ctx.Done():
		// Public client gone: the tunnel exchange is not cancelled (§5), we
		// just stop waiting on our end. Treat like a dropped request so the
		// handler returns promptly; the caller then abandons the pending entry,
		// so the session drops the late response frames.
		return ResponseHead{}, errResponseCancelled
	}
}

// writeResponse implements §4.3 step 6: malformed header names/values are
// silently dropped, chunks stream in arrival order, and the stream ends on
// End or channel close.
func (d *Dispatcher) writeResponse(w http.ResponseWriter, head ResponseHead) {
	for _, h := range head.Headers {
		if !validHeaderName(h.Name) || !validHeaderValue(h.Value) {
			continue
		}
		w.Header().Add(h.Name, h.Value)
	}
	w.WriteHeader(int(head.Status))
	d.metrics.DispatchResponses.WithLabelValues(statusClass(int(head.Status))).Inc()

	flusher, _ := w.(http.Flusher)
	for event := range head.Body {
		if event.End {
			return
		}
		if len(event.Data) > 0 {
			_, _ = w.Write(event.Data)
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}

func (d *Dispatcher) respondStatus(w http.ResponseWriter, status int, body string) {
	d.metrics.DispatchResponses.WithLabelValues(statusClass(status)).Inc()
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func statusClass(status int) string {
	switch status / 100 {
	case 2:
		return "2xx"
	case 3:
		return "3xx"
	case 4:
		return "4xx"
	case 5:
		return "5xx"
	default:
		return "other"
	}
}

func readLimitedBody(r io.Reader, limit int64) ([]byte, error) {
	limited := io.LimitReader(r, limit+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

var errBodyTooLarge = errBodyTooLargeErr{}

type errBodyTooLargeErr struct{}

func (errBodyTooLargeErr) Error() string { return "request body exceeds limit" }

func validHeaderName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c <= ' ' || c == ':' || c >= 127 {
			return false
		}
	}
	return true
}

func validHeaderValue(value string) bool {
	for i := 0; i < len(value); i++ {
		c := value[i]
		if c == '\r' || c == '\n' {
			return false
		}
	}
	return true
}
