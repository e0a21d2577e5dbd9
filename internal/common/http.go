package common

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ClientIP returns the address the request came from. Forwarding headers are
// honoured only when their first hop parses as an IP.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip, ok := parseIP(first); ok {
			return ip
		}
	}
	if ip, ok := parseIP(r.Header.Get("X-Real-IP")); ok {
		return ip
	}
	remote := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(remote); err == nil {
		return host
	}
	return remote
}

// SessionClientKey identifies a storefront session at a client address. Kiosks
// behind one NAT get separate budgets, and a session id alone cannot be
// rotated to dodge a per-address limit.
func SessionClientKey(r *http.Request) string {
	ip := ClientIP(r)
	if r == nil {
		return ip
	}
	if id, ok := SessionID(r.Context()); ok {
		return ip + "|" + id
	}
	return ip
}

func parseIP(raw string) (string, bool) {
	addr, err := netip.ParseAddr(strings.TrimSpace(raw))
	if err != nil {
		return "", false
	}
	return addr.Unmap().String(), true
}
