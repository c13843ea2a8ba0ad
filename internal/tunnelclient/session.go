package tunnelclient

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jamesacklin/alex/internal/tunnelproto"
	"github.com/rs/dnscache"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const outboundChannelCapacity = 256

// resolver is shared across reconnect attempts so the backoff loop in
// supervisor.go doesn't re-resolve the relay's hostname from scratch on every
// retry (SPEC_FULL domain-stack: rs/dnscache).
var resolver = &dnscache.Resolver{}

func init() {
	go dnscacheRefreshLoop()
}

func dnscacheRefreshLoop() {
	t := time.NewTicker(5 * time.Minute)
	defer t.Stop()
	for range t.C {
		resolver.Refresh(true)
	}
}

// dialer is a websocket.Dialer whose NetDialContext consults resolver before
// falling back to net.Dialer, caching DNS lookups across reconnects.
var dialer = &websocket.Dialer{
	NetDialContext: dialContextWithCache,
	HandshakeTimeout: 10 * time.Second,
}

func dialContextWithCache(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return net.Dial(network, addr)
	}
	ips, err := resolver.LookupHost(ctx, host)
	if err != nil || len(ips) == 0 {
		return (&net.Dialer{}).DialContext(ctx, network, addr)
	}
	var lastErr error
	for _, ip := range ips {
		conn, err := (&net.Dialer{}).DialContext(ctx, network, net.JoinHostPort(ip, port))
		if err == nil {
			return conn, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// Session is the client-side state machine for one connected relay session
// (§4.4): connect, Register, await RegisterAck, then run writer/reader tasks
// until the transport closes or ctx is cancelled.
type Session struct {
	conn      *websocket.Conn
	cfg       Config
	logger    zerolog.Logger
	outbound  chan tunnelproto.Frame
	client    *http.Client
}

// Connect dials the relay, performs the registration handshake, and on
// success returns a Session ready to Run. A non-success RegisterAck is
// reported as an error without retrying — that decision belongs to the
// reconnect supervisor (§4.6).
func Connect(ctx context.Context, wsURL string, cfg Config, logger zerolog.Logger) (*Session, error) {
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("tunnelclient: dial relay: %w", err)
	}

	reg, err := tunnelproto.NewRegisterFrame(cfg.Subdomain)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("tunnelclient: build Register frame: %w", err)
	}
	if err := writeFrame(conn, reg); err != nil {
		conn.Close()
		return nil, fmt.Errorf("tunnelclient: send Register: %w", err)
	}

	msgType, data, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("tunnelclient: relay closed before RegisterAck: %w", err)
	}
	if msgType != websocket.BinaryMessage {
		conn.Close()
		return nil, fmt.Errorf("tunnelclient: first message was not binary")
	}

	frame, err := tunnelproto.DecodeFrame(data)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("tunnelclient: decode RegisterAck: %w", err)
	}
	if frame.Type != tunnelproto.TypeRegisterAck {
		conn.Close()
		return nil, fmt.Errorf("tunnelclient: expected RegisterAck, got %s", frame.Type)
	}
	success, message, err := frame.RegisterAck()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("tunnelclient: malformed RegisterAck: %w", err)
	}
	if !success {
		conn.Close()
		return nil, fmt.Errorf("tunnelclient: relay rejected registration: %s", message)
	}

	logger.Info().Str("subdomain", cfg.Subdomain).Msg("registered with relay")

	return &Session{
		conn:     conn,
		cfg:      cfg,
		logger:   logger,
		outbound: make(chan tunnelproto.Frame, outboundChannelCapacity),
		// No client timeout: origin-side forwarding is explicitly unbounded,
		// left to the origin itself (§5).
		client: &http.Client{},
	}, nil
}

// Run drives the session's writer and reader tasks until ctx is cancelled or
// the transport fails. It always closes the underlying connection before
// returning.
func (s *Session) Run(ctx context.Context) error {
	defer s.conn.Close()

	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error { return s.writeLoop(gctx) })
	group.Go(func() error { return s.readLoop(gctx) })

	// Unblock the reader's blocking ReadMessage() on cancellation: gorilla's
	// websocket.Conn has no context-aware read, so we close it out-of-band.
	group.Go(func() error {
		<-gctx.Done()
		s.conn.Close()
		return nil
	})

	err := group.Wait()
	// Forwarders that outlive the session now get false from send.
	close(s.outbound)
	return err
}

func (s *Session) writeLoop(ctx context.Context) error {
	for {
		select {
		case frame, ok := <-s.outbound:
			if !ok {
				return nil
			}
			if err := writeFrame(s.conn, frame); err != nil {
				return fmt.Errorf("tunnelclient: write frame: %w", err)
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *Session) readLoop(ctx context.Context) error {
	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil // clean shutdown: the watcher goroutine closed the conn
			}
			return fmt.Errorf("tunnelclient: transport read: %w", err)
		}
		if msgType != websocket.BinaryMessage {
			continue
		}

		frame, err := tunnelproto.DecodeFrame(data)
		if err != nil {
			s.logger.Warn().Err(err).Msg("dropping malformed frame from relay")
			continue
		}

		switch frame.Type {
		case tunnelproto.TypeHTTPRequest:
			method, uri, headers, body, err := frame.HTTPRequest()
			if err != nil {
				s.logger.Warn().Err(err).Msg("malformed HttpRequest")
				continue
			}
			// Each request forwards on its own goroutine, isolated from the
			// session's errgroup: a forwarder's failure must never tear down
			// the tunnel connection (§4.5).
			go forwardRequest(s.client, s.send, frame.RequestID, method, uri, headers, body, s.cfg.LocalAddr, s.logger)

		case tunnelproto.TypePing:
			s.send(tunnelproto.NewPongFrame())

		default:
			s.logger.Warn().Str("type", frame.Type.String()).Msg("ignoring unexpected frame from relay")
		}
	}
}

// send enqueues a frame for the writer task, returning false if the session
// has already torn down.
func (s *Session) send(f tunnelproto.Frame) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	s.outbound <- f
	return true
}

func writeFrame(conn *websocket.Conn, frame tunnelproto.Frame) error {
	data, err := tunnelproto.EncodeFrame(frame)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.BinaryMessage, data)
}
