package relay

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// upgrader accepts the tunnel duplex transport at GET /_tunnel/ws (§6.2).
// Origin checking is left permissive: tunnel clients are not browsers and
// authentication of tunnel clients is explicitly a non-goal (§1).
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Relay bundles the tenant registry, metrics, and HTTP surface described in
// §4.2-§4.3 and §6.2 into one long-lived process component.
type Relay struct {
	registry   *TenantRegistry
	dispatcher *Dispatcher
	metrics    *Metrics
	logger     zerolog.Logger
	server     *http.Server
}

// New constructs a Relay bound to cfg, wiring its own prometheus registry so
// multiple Relays can coexist in tests.
func New(cfg Config, logger zerolog.Logger) *Relay {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	registry := NewTenantRegistry()
	dispatcher := NewDispatcher(registry, cfg.BaseDomain, metrics, logger)

	r := &Relay{registry: registry, dispatcher: dispatcher, metrics: metrics, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("/_tunnel/ws", r.handleTunnelWS)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Handle("/", dispatcher)

	r.server = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return r
}

// ListenAndServe runs the relay's HTTP server until ctx is cancelled, then
// shuts down gracefully — the Go equivalent of the original
// axum::serve(...).with_graceful_shutdown(...) (SPEC_FULL §3).
func (r *Relay) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- r.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		r.logger.Info().Msg("relay shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return r.server.Shutdown(shutdownCtx)
	}
}

func (r *Relay) handleTunnelWS(w http.ResponseWriter, req *http.Request) {
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	// Run synchronously: the handler's goroutine IS the session's lifetime.
	// req.Context() is cancelled the instant ServeHTTP returns, so the
	// session must not outlive this call — unlike axum's on_upgrade, which
	// spawns an independent task, net/http ties a hijacked connection's
	// context to its originating handler invocation.
	if err := Accept(context.Background(), conn, r.registry, r.metrics, r.logger); err != nil {
		r.logger.Debug().Err(err).Msg("tunnel session ended")
	}
}

// Registry exposes the relay's tenant registry for tests that want to
// assert on connection state without going through HTTP.
func (r *Relay) Registry() *TenantRegistry { return r.registry }

// Handler exposes the relay's HTTP mux directly, letting tests wrap it in
// an httptest.Server without binding a real listen address.
func (r *Relay) Handler() http.Handler { return r.server.Handler }
