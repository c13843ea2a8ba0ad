package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jamesacklin/alex/internal/tunnelproto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	outboundChannelCapacity = 256
	heartbeatInterval       = 30 * time.Second
)

// Session is the relay-side state machine for one connected tunnel client
// (§4.2): [Awaiting-Register] -> [Registered] -> [Terminated].
type Session struct {
	conn     *websocket.Conn
	registry *TenantRegistry
	metrics  *Metrics
	logger   zerolog.Logger

	handle    *ClientHandle
	closeOnce sync.Once
}

// Accept performs the registration handshake and, on success, runs the
// session's reader and writer tasks until the transport closes or ctx is
// cancelled. It always returns (never panics); a non-nil error says why the
// session ended and is returned for the caller to log.
func Accept(ctx context.Context, conn *websocket.Conn, registry *TenantRegistry, metrics *Metrics, logger zerolog.Logger) error {
	subdomain, err := awaitRegister(conn, logger)
	if err != nil {
		return err
	}

	handle := newClientHandle(subdomain, outboundChannelCapacity)

	if !registry.Register(subdomain, handle) {
		metrics.RegisterRejected.Inc()
		ack, _ := tunnelproto.NewRegisterAckFrame(false, "subdomain already in use")
		_ = writeFrame(conn, ack)
		logger.Warn().Str("subdomain", subdomain).Msg("rejected duplicate registration")
		return fmt.Errorf("relay: subdomain %q already in use", subdomain)
	}

	ack, _ := tunnelproto.NewRegisterAckFrame(true, "registered")
	if err := writeFrame(conn, ack); err != nil {
		registry.Remove(subdomain, handle)
		return fmt.Errorf("relay: send RegisterAck: %w", err)
	}

	metrics.ConnectedTenants.Inc()
	logger.Info().Str("subdomain", subdomain).Msg("tunnel client registered")

	s := &Session{conn: conn, registry: registry, metrics: metrics, logger: logger, handle: handle}
	return s.run(ctx)
}

func awaitRegister(conn *websocket.Conn, logger zerolog.Logger) (string, error) {
	msgType, data, err := conn.ReadMessage()
	if err != nil {
		return "", fmt.Errorf("relay: client disconnected before registering: %w", err)
	}
	if msgType != websocket.BinaryMessage {
		return "", fmt.Errorf("relay: first message was not binary")
	}

	frame, err := tunnelproto.DecodeFrame(data)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to decode first frame")
		return "", err
	}
	if frame.Type != tunnelproto.TypeRegister {
		logger.Warn().Str("type", frame.Type.String()).Msg("first frame was not Register")
		return "", fmt.Errorf("relay: first frame was %s, not Register", frame.Type)
	}

	subdomain, err := frame.Register()
	if err != nil {
		return "", err
	}
	return subdomain, nil
}

// run drives the writer, reader, and heartbeat tasks concurrently and tears
// the session down when any of them exits (§4.2 Termination).
func (s *Session) run(ctx context.Context) error {
	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error { return s.writeLoop(gctx) })
	group.Go(func() error { return s.readLoop() })
	group.Go(func() error { return s.heartbeatLoop(gctx) })

	// Close the transport once any task fails or ctx is cancelled, so the
	// reader's blocking ReadMessage returns and the session can tear down.
	group.Go(func() error {
		<-gctx.Done()
		s.conn.Close()
		return nil
	})

	err := group.Wait()
	s.teardown()
	return err
}

func (s *Session) writeLoop(ctx context.Context) error {
	for {
		select {
		case frame, ok := <-s.handle.outbound:
			if !ok {
				return nil
			}
			if err := writeFrame(s.conn, frame); err != nil {
				return fmt.Errorf("relay: write frame: %w", err)
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *Session) readLoop() error {
	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("relay: transport read: %w", err)
		}
		if msgType != websocket.BinaryMessage {
			continue
		}

		frame, err := tunnelproto.DecodeFrame(data)
		if err != nil {
			s.metrics.FramesDropped.WithLabelValues("decode_error").Inc()
			s.logger.Warn().Err(err).Str("subdomain", s.handle.Subdomain).Msg("dropping malformed frame")
			continue
		}
		s.metrics.FramesDecoded.WithLabelValues(frame.Type.String()).Inc()
		s.handleFrame(frame)
	}
}

func (s *Session) handleFrame(frame tunnelproto.Frame) {
	switch frame.Type {
	case tunnelproto.TypeHTTPResponse:
		status, headers, err := frame.HTTPResponse()
		if err != nil {
			s.logger.Warn().Err(err).Msg("malformed HttpResponse")
			return
		}
		ch, ok := s.handle.pending.remove(frame.RequestID)
		if !ok {
			// Stale id: the dispatcher already gave up. Silently drop (§4.2).
			return
		}
		bodyCh := s.handle.bodies.create(frame.RequestID)
		ch <- ResponseHead{Status: status, Headers: headers, Body: bodyCh}
		close(ch)

	case tunnelproto.TypeResponseChunk:
		data, err := frame.ResponseChunk()
		if err != nil {
			s.logger.Warn().Err(err).Msg("malformed ResponseChunk")
			return
		}
		if ch, ok := s.handle.bodies.get(frame.RequestID); ok {
			ch <- BodyEvent{Data: data}
		}

	case tunnelproto.TypeResponseEnd:
		if ch, ok := s.handle.bodies.get(frame.RequestID); ok {
			ch <- BodyEvent{End: true}
			s.handle.bodies.remove(frame.RequestID)
		}

	case tunnelproto.TypePong:
		s.metrics.LastPongSeconds.WithLabelValues(s.handle.Subdomain).Set(float64(time.Now().Unix()))

	default:
		s.metrics.FramesDropped.WithLabelValues("unexpected_variant").Inc()
		s.logger.Warn().Str("type", frame.Type.String()).Msg("ignoring unexpected frame from client")
	}
}

func (s *Session) heartbeatLoop(ctx context.Context) error {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.handle.Send(tunnelproto.NewPingFrame())
		case <-ctx.Done():
			return nil
		}
	}
}

// teardown implements the linear cleanup path of §4.2/§9: remove from the
// registry first, then drop the pending and body tables so any racing
// dispatcher observes cancellation rather than a resurrected handle.
func (s *Session) teardown() {
	s.closeOnce.Do(func() {
		s.registry.Remove(s.handle.Subdomain, s.handle)
		s.metrics.ConnectedTenants.Dec()
		close(s.handle.outbound)
		s.handle.pending.closeAll()
		s.handle.bodies.closeAll()
		s.logger.Info().Str("subdomain", s.handle.Subdomain).Msg("tunnel client disconnected")
	})
}

func writeFrame(conn *websocket.Conn, frame tunnelproto.Frame) error {
	data, err := tunnelproto.EncodeFrame(frame)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.BinaryMessage, data)
}
