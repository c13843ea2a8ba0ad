package tunnelclient

import "strings"

// DefaultLocalAddr is the local origin address a client proxies to when none
// is configured (§6.4).
const DefaultLocalAddr = "127.0.0.1:3210"

// Config carries the three knobs a tunnel client needs (§6.4): which
// subdomain to claim, which relay to dial, and which local HTTP origin to
// forward requests to.
type Config struct {
	Subdomain string
	RelayURL  string
	LocalAddr string
}

// Normalize trims whitespace and fills in the local-addr default. Subdomain
// and RelayURL have no default — the caller (cmd/alex-tunnel) is responsible
// for generating a subdomain via internal/wordlist when one isn't supplied.
func (c Config) Normalize() Config {
	c.Subdomain = strings.TrimSpace(c.Subdomain)
	c.RelayURL = strings.TrimSpace(c.RelayURL)
	c.LocalAddr = strings.TrimSpace(c.LocalAddr)
	if c.LocalAddr == "" {
		c.LocalAddr = DefaultLocalAddr
	}
	return c
}
