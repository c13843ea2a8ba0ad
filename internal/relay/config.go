package relay

import "strings"

// Default listen address and base domain (§6.4).
const (
	DefaultListenAddr = "0.0.0.0:8080"
	DefaultBaseDomain = "alexreader.app"
)

// Config carries the relay's two configuration knobs (§6.4). Zero-value
// fields are filled with defaults by Normalize.
type Config struct {
	ListenAddr string
	BaseDomain string
}

// Normalize trims whitespace and applies defaults, mirroring the teacher's
// normalizeClientInputs trim-then-default pattern (internal/relay/config_validation_test.go).
func (c Config) Normalize() Config {
	c.ListenAddr = strings.TrimSpace(c.ListenAddr)
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	c.BaseDomain = strings.TrimSpace(c.BaseDomain)
	if c.BaseDomain == "" {
		c.BaseDomain = DefaultBaseDomain
	}
	return c
}
