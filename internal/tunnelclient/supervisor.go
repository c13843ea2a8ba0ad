package tunnelclient

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// For testing: shrink the backoff schedule instead of waiting out real time.
var (
	backoffInitialDelay = 5 * time.Second
	backoffMaxDelay      = 60 * time.Second
)

const backoffMultiplier = 2.0

// Run drives the reconnect supervisor described in §4.6: dial, register, and
// serve a tunnel session; on any disconnect, back off exponentially (5s,
// 10s, 20s, ... capped at 60s) and try again. The delay resets to its
// initial value only after a session registers successfully. Run returns
// only when ctx is cancelled.
func Run(ctx context.Context, wsURL string, cfg Config, logger zerolog.Logger) error {
	cfg = cfg.Normalize()
	delay := backoffInitialDelay
	attempt := 0

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		session, err := Connect(ctx, wsURL, cfg, logger)
		if err != nil {
			attempt++
			logger.Warn().
				Err(err).
				Int("attempt", attempt).
				Str("next_retry", delay.String()).
				Msg("failed to connect to relay, will retry")

			if !sleepOrDone(ctx, delay) {
				return ctx.Err()
			}
			delay = nextDelay(delay)
			continue
		}

		// Connected and registered: reset the backoff schedule.
		delay = backoffInitialDelay
		attempt = 0

		runErr := session.Run(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn().Err(runErr).Msg("tunnel session ended, reconnecting")

		if !sleepOrDone(ctx, delay) {
			return ctx.Err()
		}
		delay = nextDelay(delay)
	}
}

func nextDelay(delay time.Duration) time.Duration {
	next := time.Duration(float64(delay) * backoffMultiplier)
	if next > backoffMaxDelay {
		return backoffMaxDelay
	}
	return next
}

func sleepOrDone(ctx context.Context, delay time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(delay):
		return true
	}
}

// RelayWebsocketURL rewrites an http(s) relay base URL into the ws(s) tunnel
// endpoint at /_tunnel/ws (§6.2).
func RelayWebsocketURL(base string) string {
	url := base
	switch {
	case strings.HasPrefix(url, "https://"):
		url = "wss://" + strings.TrimPrefix(url, "https://")
	case strings.HasPrefix(url, "http://"):
		url = "ws://" + strings.TrimPrefix(url, "http://")
	}
	url = strings.TrimSuffix(url, "/")
	return url + "/_tunnel/ws"
}
