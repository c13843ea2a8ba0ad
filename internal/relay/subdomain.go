package relay

import "strings"

// ExtractSubdomain implements §6.3: strip the port from host, require it to
// end with "."+baseDomain, and require the remaining prefix to be
// non-empty and dot-free.
func ExtractSubdomain(host, baseDomain string) (string, bool) {
	if idx := strings.IndexByte(host, ':'); idx >= 0 {
		host = host[:idx]
	}

	suffix := "." + baseDomain
	if !strings.HasSuffix(host, suffix) || len(host) <= len(suffix) {
		return "", false
	}

	subdomain := host[:len(host)-len(suffix)]
	if subdomain == "" || strings.Contains(subdomain, ".") {
		return "", false
	}
	return subdomain, true
}
