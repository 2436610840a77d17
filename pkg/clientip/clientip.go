// Package clientip derives the key used to rate limit, block and log a client.
package clientip

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// RealClientIP returns the peer address of r. Proxy headers are ignored: the
// API is reached directly, so they are client controlled. IPv4-mapped IPv6
// addresses are unmapped and zones dropped, so one client always maps to
// one key.
func RealClientIP(r *http.Request) string {
	return Normalize(r.RemoteAddr)
}

// Normalize accepts "host:port" or a bare address. Values that do not parse
// are returned trimmed.
func Normalize(addr string) string {
	addr = strings.TrimSpace(addr)
	if ap, err := netip.ParseAddrPort(addr); err == nil {
		return ap.Addr().Unmap().WithZone("").String()
	}
	host := addr
	if h, _, err := net.SplitHostPort(addr); err == nil {
		host = h
	}
	if ip, err := netip.ParseAddr(strings.Trim(host, "[]")); err == nil {
		return ip.Unmap().WithZone("").String()
	}
	return host
}
